package epub

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html/charset"
)

// opfPackage represents the OPF XML structure
type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	UniqueID string      `xml:"unique-identifier,attr"`
	Attrs    []xml.Attr  `xml:",any,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest opfManifest `xml:"manifest"`
	Spine    opfSpine    `xml:"spine"`
	Guide    opfGuide    `xml:"guide"`
}

// opfMetadata keeps every metadata child in document order.
type opfMetadata struct {
	Elements []opfElement `xml:",any"`
}

// opfElement is a generic metadata element.
type opfElement struct {
	XMLName  xml.Name
	Attrs    []xml.Attr   `xml:",any,attr"`
	Value    string       `xml:",chardata"`
	Children []opfElement `xml:",any"`
}

type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
	Fallback   string `xml:"fallback,attr"`
}

type opfSpine struct {
	Toc      string       `xml:"toc,attr"`
	Attrs    []xml.Attr   `xml:",any,attr"`
	ItemRefs []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	IDRef      string `xml:"idref,attr"`
	Linear     string `xml:"linear,attr"`
	Properties string `xml:"properties,attr"`
}

type opfGuide struct {
	References []opfGuideReference `xml:"reference"`
}

type opfGuideReference struct {
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
	Href  string `xml:"href,attr"`
}

// unmarshalXML decodes XML honouring non-UTF-8 encoding declarations.
func unmarshalXML(data []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(stripBOM(data)))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false
	return dec.Decode(v)
}

// parsePackage parses package document content into a Book without item content.
func parsePackage(content []byte) (*Book, error) {
	var pkg opfPackage
	if err := unmarshalXML(content, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse OPF XML: %w", err)
	}

	book := &Book{
		Version:      pkg.Version,
		UniqueIDRef:  pkg.UniqueID,
		PackageAttrs: dropNamespaceDecls(pkg.Attrs),
		SpineAttrs:   dropNamespaceDecls(pkg.Spine.Attrs),
		spineTOC:     pkg.Spine.Toc,
	}

	for _, el := range pkg.Metadata.Elements {
		book.Metadata = appendMetaElement(book.Metadata, el)
	}

	for _, item := range pkg.Manifest.Items {
		if item.ID == "" || item.Href == "" {
			continue
		}
		it := &Item{
			ID:         item.ID,
			Href:       strings.TrimSpace(item.Href),
			MediaType:  strings.TrimSpace(item.MediaType),
			Properties: strings.Fields(item.Properties),
			Fallback:   item.Fallback,
		}
		it.Kind = classify(it)
		book.Items = append(book.Items, it)
	}

	for _, ref := range pkg.Spine.ItemRefs {
		book.Spine = append(book.Spine, SpineRef{
			IDRef:      ref.IDRef,
			Linear:     ref.Linear != "no",
			Properties: ref.Properties,
		})
	}

	for _, ref := range pkg.Guide.References {
		book.Guide = append(book.Guide, GuideRef{
			Type:  ref.Type,
			Title: ref.Title,
			Href:  ref.Href,
		})
	}

	return book, nil
}

// appendMetaElement flattens OPF 1.x dc-metadata/x-metadata wrappers.
func appendMetaElement(entries []MetaEntry, el opfElement) []MetaEntry {
	if el.XMLName.Local == "dc-metadata" || el.XMLName.Local == "x-metadata" {
		for _, child := range el.Children {
			entries = append(entries, appendMetaElement(nil, child)...)
		}
		return entries
	}

	ns := el.XMLName.Space
	if ns == NamespaceOPF {
		ns = NamespaceMeta
	}
	return append(entries, MetaEntry{
		Namespace: ns,
		Name:      el.XMLName.Local,
		Value:     strings.TrimSpace(el.Value),
		Attrs:     dropNamespaceDecls(el.Attrs),
	})
}

func dropNamespaceDecls(attrs []xml.Attr) []xml.Attr {
	var out []xml.Attr
	for _, a := range attrs {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		out = append(out, a)
	}
	return out
}

// classify derives the item kind from media type and properties.
func classify(item *Item) ItemKind {
	mediaType := strings.ToLower(item.MediaType)
	switch {
	case item.HasProperty(navProperty):
		return KindNavigation
	case mediaType == MediaTypeNCX:
		return KindNCX
	case item.HasProperty(coverImageMarker):
		return KindCover
	case strings.HasPrefix(mediaType, "image/"):
		return KindImage
	case strings.Contains(mediaType, "html"):
		return KindDocument
	case mediaType == MediaTypeCSS:
		return KindStyle
	case strings.HasPrefix(mediaType, "font/"),
		strings.Contains(mediaType, "font"),
		mediaType == "application/vnd.ms-opentype":
		return KindFont
	default:
		return KindOther
	}
}

// renderPackage serializes the package document.
func (b *Book) renderPackage() []byte {
	prefixes := newPrefixTable()
	for _, m := range b.Metadata {
		prefixes.register(m.Namespace)
		for _, a := range m.Attrs {
			prefixes.register(a.Name.Space)
		}
	}

	var w strings.Builder
	w.WriteString(xml.Header)
	w.WriteString(`<package xmlns="` + NamespaceOPF + `"`)
	if b.Version != "" {
		writeAttr(&w, "version", b.Version)
	}
	if b.UniqueIDRef != "" {
		writeAttr(&w, "unique-identifier", b.UniqueIDRef)
	}
	for _, a := range b.PackageAttrs {
		writeAttr(&w, prefixes.attrName(a.Name), a.Value)
	}
	w.WriteString(">\n")

	w.WriteString(`  <metadata xmlns:dc="` + NamespaceDC + `" xmlns:opf="` + NamespaceOPF + `"`)
	for _, decl := range prefixes.declarations() {
		writeAttr(&w, "xmlns:"+decl.prefix, decl.uri)
	}
	w.WriteString(">\n")
	for _, m := range b.Metadata {
		name := prefixes.elementName(m.Namespace, m.Name)
		w.WriteString("    <" + name)
		for _, a := range m.Attrs {
			writeAttr(&w, prefixes.attrName(a.Name), a.Value)
		}
		if m.Value == "" {
			w.WriteString("/>\n")
			continue
		}
		w.WriteString(">" + escape(m.Value) + "</" + name + ">\n")
	}
	w.WriteString("  </metadata>\n")

	w.WriteString("  <manifest>\n")
	for _, item := range b.Items {
		w.WriteString("    <item")
		writeAttr(&w, "id", item.ID)
		writeAttr(&w, "href", item.Href)
		writeAttr(&w, "media-type", item.MediaType)
		if len(item.Properties) > 0 {
			writeAttr(&w, "properties", strings.Join(item.Properties, " "))
		}
		if item.Fallback != "" {
			writeAttr(&w, "fallback", item.Fallback)
		}
		w.WriteString("/>\n")
	}
	w.WriteString("  </manifest>\n")

	w.WriteString("  <spine")
	if ncx := b.NCXItem(); ncx != nil {
		writeAttr(&w, "toc", ncx.ID)
	}
	for _, a := range b.SpineAttrs {
		writeAttr(&w, prefixes.attrName(a.Name), a.Value)
	}
	w.WriteString(">\n")
	for _, ref := range b.Spine {
		w.WriteString("    <itemref")
		writeAttr(&w, "idref", ref.IDRef)
		if !ref.Linear {
			writeAttr(&w, "linear", "no")
		}
		if ref.Properties != "" {
			writeAttr(&w, "properties", ref.Properties)
		}
		w.WriteString("/>\n")
	}
	w.WriteString("  </spine>\n")

	if len(b.Guide) > 0 {
		w.WriteString("  <guide>\n")
		for _, ref := range b.Guide {
			w.WriteString("    <reference")
			writeAttr(&w, "type", ref.Type)
			if ref.Title != "" {
				writeAttr(&w, "title", ref.Title)
			}
			writeAttr(&w, "href", ref.Href)
			w.WriteString("/>\n")
		}
		w.WriteString("  </guide>\n")
	}

	w.WriteString("</package>\n")
	return []byte(w.String())
}

// prefixTable maps namespace URIs to the prefixes used when rendering.
type prefixTable struct {
	uris map[string]string
}

type prefixDecl struct {
	prefix string
	uri    string
}

func newPrefixTable() *prefixTable {
	return &prefixTable{uris: map[string]string{
		NamespaceDC:  "dc",
		NamespaceOPF: "opf",
		NamespaceXML: "xml",
	}}
}

// register assigns a generated prefix to an unknown namespace URI.
// Bare prefixes left unresolved by the decoder are written as-is.
func (p *prefixTable) register(space string) {
	if space == "" || !isNamespaceURI(space) {
		return
	}
	if _, ok := p.uris[space]; ok {
		return
	}
	p.uris[space] = fmt.Sprintf("ns%d", len(p.uris)-2)
}

func (p *prefixTable) declarations() []prefixDecl {
	var decls []prefixDecl
	for uri, prefix := range p.uris {
		switch uri {
		case NamespaceDC, NamespaceOPF, NamespaceXML:
			continue
		}
		decls = append(decls, prefixDecl{prefix: prefix, uri: uri})
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].prefix < decls[j].prefix })
	return decls
}

func (p *prefixTable) qualify(space, local string) string {
	if space == "" {
		return local
	}
	if prefix, ok := p.uris[space]; ok {
		return prefix + ":" + local
	}
	return space + ":" + local
}

func (p *prefixTable) attrName(name xml.Name) string {
	return p.qualify(name.Space, name.Local)
}

func (p *prefixTable) elementName(namespace, local string) string {
	if namespace == NamespaceMeta {
		return local
	}
	return p.qualify(namespace, local)
}

func isNamespaceURI(s string) bool {
	return strings.Contains(s, ":") || strings.Contains(s, "/")
}

func writeAttr(w *strings.Builder, name, value string) {
	if name == "" {
		return
	}
	w.WriteString(" " + name + `="` + escape(value) + `"`)
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
