package epub

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// ncxDocument is the subset of an NCX file needed to rebuild the TOC.
type ncxDocument struct {
	NavMap struct {
		NavPoints []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type ncxNavPoint struct {
	Label   string `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// loadTOC fills b.TOC from the navigation documents. EPUB 3 books read the
// nav document first; EPUB 2 books read the NCX first. The other document is
// used when the preferred one is missing, broken or empty.
func (b *Book) loadTOC() error {
	sources := []func() ([]TOCEntry, error){b.tocFromNCX, b.tocFromNav}
	if b.IsEPUB3() {
		sources[0], sources[1] = sources[1], sources[0]
	}

	var firstErr error
	for _, load := range sources {
		entries, err := load()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(entries) > 0 {
			b.TOC = entries
			return nil
		}
	}
	return firstErr
}

func (b *Book) tocFromNCX() ([]TOCEntry, error) {
	item := b.NCXItem()
	if item == nil {
		return nil, nil
	}
	entries, err := parseNCX(item.Content, b.ZipPath(item.Href), b.Dir())
	if err != nil {
		return nil, fmt.Errorf("failed to parse NCX %s: %w", item.Href, err)
	}
	return entries, nil
}

// parseNCX converts NCX navPoints to package-relative TOC entries.
func parseNCX(content []byte, ncxPath, pkgDir string) ([]TOCEntry, error) {
	var doc ncxDocument
	if err := unmarshalXML(content, &doc); err != nil {
		return nil, err
	}
	return convertNavPoints(doc.NavMap.NavPoints, ncxPath, pkgDir), nil
}

func convertNavPoints(points []ncxNavPoint, ncxPath, pkgDir string) []TOCEntry {
	var entries []TOCEntry
	for _, np := range points {
		entries = append(entries, TOCEntry{
			Title:    collapseSpace(np.Label),
			Href:     toPackageHref(np.Content.Src, ncxPath, pkgDir),
			Children: convertNavPoints(np.Children, ncxPath, pkgDir),
		})
	}
	return entries
}

// renderNCX serializes the TOC as an NCX document stored at ncxPath.
func (b *Book) renderNCX(ncxPath string) []byte {
	uid, _ := b.Identifier()
	title, _ := b.Title()

	var w strings.Builder
	w.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	w.WriteString(`<ncx xmlns="` + NamespaceNCX + `" version="2005-1">` + "\n")
	w.WriteString("  <head>\n")
	writeNCXMeta(&w, "dtb:uid", uid)
	writeNCXMeta(&w, "dtb:depth", strconv.Itoa(max(tocDepth(b.TOC), 1)))
	writeNCXMeta(&w, "dtb:totalPageCount", "0")
	writeNCXMeta(&w, "dtb:maxPageNumber", "0")
	w.WriteString("  </head>\n")
	w.WriteString("  <docTitle><text>" + escape(title) + "</text></docTitle>\n")
	w.WriteString("  <navMap>\n")
	order := 0
	b.writeNavPoints(&w, b.TOC, ncxPath, &order, 2)
	w.WriteString("  </navMap>\n")
	w.WriteString("</ncx>\n")
	return []byte(w.String())
}

func (b *Book) writeNavPoints(w *strings.Builder, entries []TOCEntry, ncxPath string, order *int, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, e := range entries {
		href := firstHref(e)
		if href == "" {
			continue
		}
		*order++
		fmt.Fprintf(w, "%s<navPoint id=\"navpoint-%d\" playOrder=\"%d\">\n", indent, *order, *order)
		w.WriteString(indent + "  <navLabel><text>" + escape(e.Title) + "</text></navLabel>\n")
		w.WriteString(indent + `  <content src="` + escape(b.fromPackageHref(href, ncxPath)) + `"/>` + "\n")
		b.writeNavPoints(w, e.Children, ncxPath, order, depth+1)
		w.WriteString(indent + "</navPoint>\n")
	}
}

func writeNCXMeta(w *strings.Builder, name, content string) {
	w.WriteString(`    <meta name="` + name + `" content="` + escape(content) + `"/>` + "\n")
}

// firstHref returns the entry's href or, for headings, the first descendant's.
func firstHref(e TOCEntry) string {
	if e.Href != "" {
		return e.Href
	}
	for _, c := range e.Children {
		if href := firstHref(c); href != "" {
			return href
		}
	}
	return ""
}

func tocDepth(entries []TOCEntry) int {
	depth := 0
	for _, e := range entries {
		depth = max(depth, 1+tocDepth(e.Children))
	}
	return depth
}

// toPackageHref resolves src, relative to the document at docPath, to an
// href relative to the package directory.
func toPackageHref(src, docPath, pkgDir string) string {
	src = strings.TrimSpace(src)
	if src == "" || isExternal(src) {
		return src
	}
	p, fragment := splitFragment(src)
	target := docPath
	if p != "" {
		target = path.Join(path.Dir(docPath), unescapeHref(p))
	}
	href := relativeHref(pkgDir, target)
	if fragment != "" {
		href += "#" + fragment
	}
	return href
}

// fromPackageHref expresses a package-relative href relative to docPath.
func (b *Book) fromPackageHref(href, docPath string) string {
	if isExternal(href) {
		return href
	}
	_, fragment := splitFragment(href)
	dir := path.Dir(docPath)
	if dir == "." {
		dir = ""
	}
	rel := escapeHref(relativeHref(dir, b.ZipPath(href)))
	if fragment != "" {
		rel += "#" + fragment
	}
	return rel
}

func isExternal(href string) bool {
	return strings.Contains(href, "://") || strings.HasPrefix(href, "mailto:")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
