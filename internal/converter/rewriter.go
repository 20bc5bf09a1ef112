package converter

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/oldtownbooks/epubcover/internal/epub"
)

// Fixed names of the inserted cover artifacts.
const (
	CoverImageID   = "cover-img"
	CoverImageHref = "cover.jpg"
	CoverPageID    = "cover"
	CoverPageHref  = "cover.xhtml"
	CoverTitle     = "Cover"

	defaultBookTitle = "Book"
	packageFileName  = "content.opf"
)

// staleCoverNames are file names removed regardless of media type.
var staleCoverNames = []string{"cover.jpg", "cover.jpeg", "cover.png", "cover.xhtml"}

const coverPage = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops" lang="en" xml:lang="en">
<head>
  <title>Cover</title>
  <style type="text/css">
    body { margin: 0; padding: 0; text-align: center; }
    img { width: 100%; height: 100%; object-fit: contain; }
  </style>
</head>
<body epub:type="cover">
  <img src="` + CoverImageHref + `" alt="Cover"/>
</body>
</html>
`

// CoverRewriter replaces the cover of an EPUB container.
type CoverRewriter struct {
	logger *slog.Logger
}

// NewCoverRewriter creates a rewriter that logs to logger (slog.Default when nil).
func NewCoverRewriter(logger *slog.Logger) *CoverRewriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CoverRewriter{logger: logger}
}

// Rewrite returns a copy of the EPUB in input whose cover is the JPEG in
// cover. The cover image, cover page, spine head, TOC head, cover metadata and
// guide are rebuilt so that rewriting the output again yields the same
// structure. Errors are *RewriteError values.
func (r *CoverRewriter) Rewrite(input, cover []byte) ([]byte, error) {
	book, err := epub.Parse(input)
	if err != nil {
		return nil, &RewriteError{Stage: "parse", Kind: ErrEpubParse, Err: err}
	}

	if err := r.apply(book, cover); err != nil {
		return nil, err
	}

	out, err := book.Bytes()
	if err != nil {
		return nil, &RewriteError{Stage: "serialize", Kind: ErrEpubSerialize, Err: err}
	}
	return out, nil
}

func (r *CoverRewriter) apply(book *epub.Book, cover []byte) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &RewriteError{Stage: "transform", Kind: ErrEpubProcessing, Err: fmt.Errorf("panic: %v", v)}
		}
	}()

	purged := purgeStaleCovers(book)
	if len(purged) > 0 {
		ids := make([]string, len(purged))
		for i, it := range purged {
			ids[i] = it.ID
		}
		r.logger.Debug("removed stale cover items", "ids", ids)
	}

	for _, id := range []string{CoverImageID, CoverPageID} {
		if book.Item(id) == nil {
			continue
		}
		renamed := book.FreeID(id + "-orig")
		book.RenameItem(id, renamed)
		r.logger.Debug("renamed item occupying cover id", "id", id, "renamed", renamed)
	}

	insertCover(book, cover)
	nav := rebuildSpine(book)
	rebuildTOC(book, purged)
	title := reassertIdentity(book)

	book.PackagePath = path.Join(book.Dir(), packageFileName)
	book.Guide = []epub.GuideRef{{Type: "cover", Title: CoverTitle, Href: CoverPageHref}}

	attrs := []any{
		"title", title,
		"package", book.PackagePath,
		"items", len(book.Items),
		"spine", len(book.Spine),
	}
	if nav != nil {
		attrs = append(attrs, "nav", nav.Href)
	}
	r.logger.Info("cover rewritten", attrs...)
	return nil
}

// purgeStaleCovers drops previous cover images and pages, cover metadata and
// cover-image markers on the remaining items.
func purgeStaleCovers(book *epub.Book) []*epub.Item {
	removed := book.RemoveItems(isStaleCover)

	book.RemoveMetadata(func(m epub.MetaEntry) bool {
		return m.Namespace == epub.NamespaceMeta && m.Attr("name") == "cover"
	})

	for _, it := range book.Items {
		if !it.HasProperty("cover-image") {
			continue
		}
		it.Properties = slices.DeleteFunc(it.Properties, func(p string) bool { return p == "cover-image" })
		if it.Kind == epub.KindCover {
			it.Kind = epub.KindImage
		}
	}
	return removed
}

func isStaleCover(it *epub.Item) bool {
	name := strings.ToLower(it.FileName())
	if slices.Contains(staleCoverNames, name) {
		return true
	}
	return it.IsImage() && strings.Contains(name, "cover")
}

func insertCover(book *epub.Book, cover []byte) {
	img := &epub.Item{
		ID:        CoverImageID,
		Href:      CoverImageHref,
		MediaType: epub.MediaTypeJPEG,
		Content:   cover,
		Kind:      epub.KindCover,
	}
	if book.IsEPUB3() {
		img.Properties = []string{"cover-image"}
	}
	book.AddItem(img)

	book.AddItem(&epub.Item{
		ID:        CoverPageID,
		Href:      CoverPageHref,
		MediaType: epub.MediaTypeXHTML,
		Content:   []byte(coverPage),
		Kind:      epub.KindDocument,
	})
}

// rebuildSpine puts the cover page first and the navigation document second,
// followed by the previous reading order without duplicates.
func rebuildSpine(book *epub.Book) *epub.Item {
	book.EnsureNCX()

	nav := book.NavItem()
	if nav == nil && book.IsEPUB3() {
		nav = book.EnsureNav()
	}

	head := []epub.SpineRef{{IDRef: CoverPageID, Linear: true}}
	if nav != nil {
		head = append(head, epub.SpineRef{IDRef: nav.ID, Linear: true})
	}

	seen := make(map[string]bool, len(book.Spine)+len(head))
	for _, ref := range head {
		seen[ref.IDRef] = true
	}
	book.FilterSpine(func(ref epub.SpineRef) bool {
		if seen[ref.IDRef] || book.Item(ref.IDRef) == nil {
			return false
		}
		seen[ref.IDRef] = true
		return true
	})
	book.Spine = append(head, book.Spine...)
	return nav
}

// rebuildTOC prepends the cover entry, dropping entries that point at the
// cover page or at a purged item. Children of a dropped entry take its place.
func rebuildTOC(book *epub.Book, purged []*epub.Item) {
	drop := map[string]bool{book.ZipPath(CoverPageHref): true}
	for _, it := range purged {
		drop[book.ZipPath(it.Href)] = true
	}
	entries := pruneTOC(book, book.TOC, drop)
	book.TOC = append([]epub.TOCEntry{{Title: CoverTitle, Href: CoverPageHref}}, entries...)
}

func pruneTOC(book *epub.Book, entries []epub.TOCEntry, drop map[string]bool) []epub.TOCEntry {
	var out []epub.TOCEntry
	for _, e := range entries {
		children := pruneTOC(book, e.Children, drop)
		if e.Href != "" && drop[book.ZipPath(e.Href)] {
			out = append(out, children...)
			continue
		}
		e.Children = children
		out = append(out, e)
	}
	return out
}

// reassertIdentity keeps the title and identifier and adds the cover meta.
func reassertIdentity(book *epub.Book) string {
	title, ok := book.Title()
	if !ok {
		title = defaultBookTitle
	}

	if id, ok := book.Identifier(); ok {
		book.SetIdentifier(id)
	}

	hasTitle := slices.ContainsFunc(book.MetadataValues(epub.NamespaceDC, "title"), func(m epub.MetaEntry) bool {
		return m.Value == title
	})
	if !hasTitle {
		book.AddMetadata(epub.MetaEntry{Namespace: epub.NamespaceDC, Name: "title", Value: title})
	}

	book.AddMetadata(epub.MetaEntry{
		Namespace: epub.NamespaceMeta,
		Name:      "meta",
		Attrs: []xml.Attr{
			{Name: xml.Name{Local: "name"}, Value: "cover"},
			{Name: xml.Name{Local: "content"}, Value: CoverImageID},
		},
	})
	return title
}
