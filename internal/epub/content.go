package epub

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Content is a parsed XHTML document from the manifest.
type Content struct {
	Item     *Item
	Path     string // archive path
	Document *goquery.Document

	// Archive paths of linked stylesheets and referenced images.
	Stylesheets []string
	Images      []string
}

// LoadContent parses an XHTML item and collects the resources it references.
func (b *Book) LoadContent(item *Item) (*Content, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(item.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XHTML %s: %w", item.Href, err)
	}

	c := &Content{
		Item:     item,
		Path:     b.ZipPath(item.Href),
		Document: doc,
	}
	baseDir := path.Dir(c.Path)

	doc.Find("link[rel='stylesheet']").Each(func(i int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			c.Stylesheets = append(c.Stylesheets, resolvePath(baseDir, href))
		}
	})

	// SVG covers reference the image through <image xlink:href>.
	doc.Find("img, image").Each(func(i int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok {
			if src, ok = s.Attr("xlink:href"); !ok {
				src, ok = s.Attr("href")
			}
		}
		if ok && src != "" && !isExternal(src) {
			c.Images = append(c.Images, resolvePath(baseDir, src))
		}
	})

	return c, nil
}

// resolvePath resolves a document-relative reference to an archive path.
func resolvePath(baseDir, ref string) string {
	ref, _ = splitFragment(strings.TrimSpace(ref))
	return path.Clean(path.Join(baseDir, unescapeHref(ref)))
}
