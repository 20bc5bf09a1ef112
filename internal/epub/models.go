package epub

import "encoding/xml"

// XML namespaces used by package, navigation and content documents.
const (
	NamespaceOPF       = "http://www.idpf.org/2007/opf"
	NamespaceDC        = "http://purl.org/dc/elements/1.1/"
	NamespaceXML       = "http://www.w3.org/XML/1998/namespace"
	NamespaceXHTML     = "http://www.w3.org/1999/xhtml"
	NamespaceOPS       = "http://www.idpf.org/2007/ops"
	NamespaceNCX       = "http://www.daisy.org/z3986/2005/ncx/"
	NamespaceContainer = "urn:oasis:names:tc:opendocument:xmlns:container"

	// NamespaceMeta is the bucket for <meta> elements of the package metadata.
	NamespaceMeta = ""
)

// Media types the container model treats specially.
const (
	MediaTypeEPUB    = "application/epub+zip"
	MediaTypeOPF     = "application/oebps-package+xml"
	MediaTypeNCX     = "application/x-dtbncx+xml"
	MediaTypeXHTML   = "application/xhtml+xml"
	MediaTypeJPEG    = "image/jpeg"
	MediaTypeSVG     = "image/svg+xml"
	MediaTypeCSS     = "text/css"
	containerPath    = "META-INF/container.xml"
	mimetypePath     = "mimetype"
	defaultOPFName   = "content.opf"
	defaultNavHref   = "nav.xhtml"
	defaultNCXHref   = "toc.ncx"
	navProperty      = "nav"
	coverImageMarker = "cover-image"
)

// ItemKind classifies a manifest item.
type ItemKind int

const (
	KindOther ItemKind = iota
	KindImage
	KindCover
	KindDocument
	KindNavigation
	KindNCX
	KindStyle
	KindFont
)

func (k ItemKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindCover:
		return "cover"
	case KindDocument:
		return "document"
	case KindNavigation:
		return "navigation"
	case KindNCX:
		return "ncx"
	case KindStyle:
		return "style"
	case KindFont:
		return "font"
	default:
		return "other"
	}
}

// Book is the in-memory representation of an EPUB container.
type Book struct {
	Version      string
	UniqueIDRef  string
	PackageAttrs []xml.Attr
	PackagePath  string

	Items      []*Item
	Metadata   []MetaEntry
	Spine      []SpineRef
	SpineAttrs []xml.Attr
	TOC        []TOCEntry
	Guide      []GuideRef

	// Resources are archive entries outside the manifest, kept verbatim.
	Resources []*Resource

	spineTOC string
}

// Item is a manifest entry together with its content.
type Item struct {
	ID         string
	Href       string // relative to the package document
	MediaType  string
	Properties []string
	Fallback   string
	Content    []byte
	Kind       ItemKind
}

// MetaEntry is one element of the package metadata.
type MetaEntry struct {
	Namespace string
	Name      string
	Value     string
	Attrs     []xml.Attr
}

// SpineRef is an itemref in reading order.
type SpineRef struct {
	IDRef      string
	Linear     bool
	Properties string
}

// TOCEntry is a navigation entry. Href is relative to the package document
// and may carry a fragment.
type TOCEntry struct {
	Title    string
	Href     string
	Children []TOCEntry
}

// GuideRef is an EPUB 2 guide landmark.
type GuideRef struct {
	Type  string
	Title string
	Href  string
}

// Resource is an archive entry that is not part of the manifest.
type Resource struct {
	Path    string
	Content []byte
}
