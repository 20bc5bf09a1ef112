package epub

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// landmarkTypes maps EPUB 2 guide types to EPUB 3 landmark types.
var landmarkTypes = map[string]string{
	"cover":          "cover",
	"toc":            "toc",
	"text":           "bodymatter",
	"title-page":     "titlepage",
	"copyright-page": "copyright-page",
}

func (b *Book) tocFromNav() ([]TOCEntry, error) {
	item := b.NavItem()
	if item == nil {
		return nil, nil
	}
	entries, err := parseNav(item.Content, b.ZipPath(item.Href), b.Dir())
	if err != nil {
		return nil, fmt.Errorf("failed to parse nav %s: %w", item.Href, err)
	}
	return entries, nil
}

// parseNav reads the toc nav of an EPUB 3 navigation document.
func parseNav(content []byte, navPath, pkgDir string) ([]TOCEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	var toc *goquery.Selection
	doc.Find("nav").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if hasEpubType(s, "toc") {
			toc = s
			return false
		}
		return true
	})
	if toc == nil {
		return nil, nil
	}

	return parseNavList(toc.Find("ol").First(), navPath, pkgDir), nil
}

func parseNavList(ol *goquery.Selection, navPath, pkgDir string) []TOCEntry {
	var entries []TOCEntry
	ol.ChildrenFiltered("li").Each(func(i int, li *goquery.Selection) {
		label := li.ChildrenFiltered("a, span").First()
		href, _ := label.Attr("href")
		entry := TOCEntry{
			Title:    collapseSpace(label.Text()),
			Href:     toPackageHref(href, navPath, pkgDir),
			Children: parseNavList(li.ChildrenFiltered("ol").First(), navPath, pkgDir),
		}
		if entry.Title == "" && entry.Href == "" && len(entry.Children) == 0 {
			return
		}
		entries = append(entries, entry)
	})
	return entries
}

func hasEpubType(s *goquery.Selection, want string) bool {
	types, _ := s.Attr("epub:type")
	for _, t := range strings.Fields(types) {
		if t == want {
			return true
		}
	}
	return false
}

// renderNav serializes the TOC and guide landmarks as a navigation document
// stored at navPath.
func (b *Book) renderNav(navPath string) []byte {
	title, ok := b.Title()
	if !ok {
		title = "Contents"
	}
	lang := escape(b.Language())

	var w strings.Builder
	w.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	w.WriteString("<!DOCTYPE html>\n")
	w.WriteString(`<html xmlns="` + NamespaceXHTML + `" xmlns:epub="` + NamespaceOPS + `" lang="` + lang + `" xml:lang="` + lang + `">` + "\n")
	w.WriteString("<head>\n  <title>" + escape(title) + "</title>\n</head>\n<body>\n")
	w.WriteString(`  <nav epub:type="toc" id="toc" role="doc-toc">` + "\n")
	w.WriteString("    <h1>" + escape(title) + "</h1>\n")
	b.writeNavList(&w, b.TOC, navPath, 2)
	w.WriteString("  </nav>\n")

	var landmarks []GuideRef
	for _, ref := range b.Guide {
		if _, ok := landmarkTypes[ref.Type]; ok && ref.Href != "" {
			landmarks = append(landmarks, ref)
		}
	}
	if len(landmarks) > 0 {
		w.WriteString(`  <nav epub:type="landmarks" id="landmarks" hidden="hidden">` + "\n    <ol>\n")
		for _, ref := range landmarks {
			fmt.Fprintf(&w, "      <li><a epub:type=\"%s\" href=\"%s\">%s</a></li>\n",
				landmarkTypes[ref.Type], escape(b.fromPackageHref(ref.Href, navPath)), escape(landmarkTitle(ref)))
		}
		w.WriteString("    </ol>\n  </nav>\n")
	}

	w.WriteString("</body>\n</html>\n")
	return []byte(w.String())
}

func (b *Book) writeNavList(w *strings.Builder, entries []TOCEntry, navPath string, depth int) {
	indent := strings.Repeat("  ", depth)
	w.WriteString(indent + "<ol>\n")
	for _, e := range entries {
		w.WriteString(indent + "  <li>")
		if e.Href != "" {
			w.WriteString(`<a href="` + escape(b.fromPackageHref(e.Href, navPath)) + `">` + escape(e.Title) + "</a>")
		} else {
			w.WriteString("<span>" + escape(e.Title) + "</span>")
		}
		if len(e.Children) > 0 {
			w.WriteString("\n")
			b.writeNavList(w, e.Children, navPath, depth+2)
			w.WriteString(indent + "  ")
		}
		w.WriteString("</li>\n")
	}
	w.WriteString(indent + "</ol>\n")
}

func landmarkTitle(ref GuideRef) string {
	if ref.Title != "" {
		return ref.Title
	}
	return strings.ToUpper(ref.Type[:1]) + ref.Type[1:]
}

// EnsureNav returns the navigation document, adding an item for one when
// the book has none. Its content is generated on write.
func (b *Book) EnsureNav() *Item {
	if nav := b.NavItem(); nav != nil {
		return nav
	}
	item := &Item{
		ID:         b.FreeID("nav"),
		Href:       b.freeHref(defaultNavHref),
		MediaType:  MediaTypeXHTML,
		Properties: []string{navProperty},
		Kind:       KindNavigation,
	}
	b.Items = append(b.Items, item)
	return item
}

// EnsureNCX returns the NCX document, adding an item for one when the book
// has none. Its content is generated on write.
func (b *Book) EnsureNCX() *Item {
	if ncx := b.NCXItem(); ncx != nil {
		return ncx
	}
	item := &Item{
		ID:        b.FreeID("ncx"),
		Href:      b.freeHref(defaultNCXHref),
		MediaType: MediaTypeNCX,
		Kind:      KindNCX,
	}
	b.Items = append(b.Items, item)
	b.spineTOC = item.ID
	return item
}

// FreeID returns id, or id with the first numeric suffix no manifest item uses.
func (b *Book) FreeID(id string) string {
	candidate := id
	for n := 1; b.Item(candidate) != nil; n++ {
		candidate = fmt.Sprintf("%s-%d", id, n)
	}
	return candidate
}

func (b *Book) freeHref(href string) string {
	ext := path.Ext(href)
	base := strings.TrimSuffix(href, ext)
	candidate := href
	for n := 1; b.ItemByHref(candidate) != nil; n++ {
		candidate = fmt.Sprintf("%s-%d%s", base, n, ext)
	}
	return candidate
}
