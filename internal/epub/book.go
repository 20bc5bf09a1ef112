package epub

import (
	"encoding/xml"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"
)

// HasProperty reports whether the item carries a manifest property.
func (it *Item) HasProperty(prop string) bool {
	return slices.Contains(it.Properties, prop)
}

// FileName returns the base name of the item's href.
func (it *Item) FileName() string {
	return path.Base(unescapeHref(it.Href))
}

// IsImage reports whether the item is a raster or vector image.
func (it *Item) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(it.MediaType), "image/")
}

// Dir returns the directory holding the package document, "" at the root.
func (b *Book) Dir() string {
	dir := path.Dir(b.PackagePath)
	if dir == "." {
		return ""
	}
	return dir
}

// ZipPath resolves a package-relative href to an archive path.
func (b *Book) ZipPath(href string) string {
	href, _ = splitFragment(href)
	return path.Join(b.Dir(), unescapeHref(href))
}

// Item returns the manifest item with the given id.
func (b *Book) Item(id string) *Item {
	for _, it := range b.Items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// ItemByHref returns the manifest item a package-relative href points at.
func (b *Book) ItemByHref(href string) *Item {
	target := b.ZipPath(href)
	for _, it := range b.Items {
		if b.ZipPath(it.Href) == target {
			return it
		}
	}
	return nil
}

// AddItem inserts an item at the front of the manifest, replacing any item
// with the same id.
func (b *Book) AddItem(item *Item) {
	b.RemoveItems(func(it *Item) bool { return it.ID == item.ID })
	b.Items = append([]*Item{item}, b.Items...)
}

// RemoveItems drops matching items from the manifest along with their spine
// references and the fallbacks naming them, and returns the removed items.
func (b *Book) RemoveItems(match func(*Item) bool) []*Item {
	var kept, removed []*Item
	for _, it := range b.Items {
		if match(it) {
			removed = append(removed, it)
			continue
		}
		kept = append(kept, it)
	}
	if len(removed) == 0 {
		return nil
	}

	gone := make(map[string]bool, len(removed))
	for _, it := range removed {
		gone[it.ID] = true
	}
	b.Items = kept
	b.Spine = filterSpine(b.Spine, func(ref SpineRef) bool { return !gone[ref.IDRef] })
	for _, it := range b.Items {
		if gone[it.Fallback] {
			it.Fallback = ""
		}
	}
	if gone[b.spineTOC] {
		b.spineTOC = ""
	}
	return removed
}

// RenameItem changes an item id and rewrites references to it.
func (b *Book) RenameItem(oldID, newID string) bool {
	it := b.Item(oldID)
	if it == nil || b.Item(newID) != nil {
		return false
	}
	it.ID = newID
	for i := range b.Spine {
		if b.Spine[i].IDRef == oldID {
			b.Spine[i].IDRef = newID
		}
	}
	for _, other := range b.Items {
		if other.Fallback == oldID {
			other.Fallback = newID
		}
	}
	if b.spineTOC == oldID {
		b.spineTOC = newID
	}
	return true
}

// NavItem returns the EPUB 3 navigation document, if any.
func (b *Book) NavItem() *Item {
	for _, it := range b.Items {
		if it.HasProperty(navProperty) {
			return it
		}
	}
	return nil
}

// NCXItem returns the NCX document referenced by the spine, falling back to
// the first item with the NCX media type.
func (b *Book) NCXItem() *Item {
	if b.spineTOC != "" {
		if it := b.Item(b.spineTOC); it != nil {
			return it
		}
	}
	for _, it := range b.Items {
		if strings.EqualFold(it.MediaType, MediaTypeNCX) {
			return it
		}
	}
	return nil
}

// IsEPUB3 reports whether the package declares version 3 or later.
func (b *Book) IsEPUB3() bool {
	major, _, _ := strings.Cut(strings.TrimSpace(b.Version), ".")
	n, err := strconv.Atoi(major)
	return err == nil && n >= 3
}

// MetadataValues returns metadata entries of the given namespace and name.
func (b *Book) MetadataValues(namespace, name string) []MetaEntry {
	var out []MetaEntry
	for _, m := range b.Metadata {
		if m.Namespace == namespace && m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// AddMetadata appends a metadata entry.
func (b *Book) AddMetadata(entry MetaEntry) {
	b.Metadata = append(b.Metadata, entry)
}

// RemoveMetadata drops matching metadata entries and returns how many were removed.
func (b *Book) RemoveMetadata(match func(MetaEntry) bool) int {
	kept := make([]MetaEntry, 0, len(b.Metadata))
	for _, m := range b.Metadata {
		if !match(m) {
			kept = append(kept, m)
		}
	}
	removed := len(b.Metadata) - len(kept)
	b.Metadata = kept
	return removed
}

// Title returns the first Dublin Core title.
func (b *Book) Title() (string, bool) {
	for _, m := range b.MetadataValues(NamespaceDC, "title") {
		if m.Value != "" {
			return m.Value, true
		}
	}
	return "", false
}

// Language returns the first Dublin Core language, "en" when absent.
func (b *Book) Language() string {
	for _, m := range b.MetadataValues(NamespaceDC, "language") {
		if m.Value != "" {
			return m.Value
		}
	}
	return "en"
}

// Identifier returns the identifier selected by the package's
// unique-identifier attribute, falling back to the first dc:identifier.
func (b *Book) Identifier() (string, bool) {
	ids := b.MetadataValues(NamespaceDC, "identifier")
	for _, m := range ids {
		if b.UniqueIDRef != "" && m.Attr("id") == b.UniqueIDRef {
			return m.Value, true
		}
	}
	if len(ids) > 0 {
		return ids[0].Value, true
	}
	return "", false
}

// SetIdentifier stores value on the identifier element the package's
// unique-identifier attribute points at, adding the element if needed.
func (b *Book) SetIdentifier(value string) {
	ref := b.UniqueIDRef
	if ref == "" {
		// Adopt the first identifier's id, as Identifier() falls back to it.
		for i, m := range b.Metadata {
			if m.Namespace != NamespaceDC || m.Name != "identifier" {
				continue
			}
			ref = m.Attr("id")
			if ref == "" {
				ref = "id"
				b.Metadata[i].Attrs = append(b.Metadata[i].Attrs, xml.Attr{Name: xml.Name{Local: "id"}, Value: ref})
			}
			break
		}
		if ref == "" {
			ref = "id"
		}
		b.UniqueIDRef = ref
	}

	for i, m := range b.Metadata {
		if m.Namespace == NamespaceDC && m.Name == "identifier" && m.Attr("id") == ref {
			b.Metadata[i].Value = value
			return
		}
	}
	b.AddMetadata(MetaEntry{
		Namespace: NamespaceDC,
		Name:      "identifier",
		Value:     value,
		Attrs:     []xml.Attr{{Name: xml.Name{Local: "id"}, Value: ref}},
	})
}

// Attr returns the value of an unqualified attribute.
func (m MetaEntry) Attr(name string) string {
	for _, a := range m.Attrs {
		if a.Name.Local == name && (a.Name.Space == "" || a.Name.Space == NamespaceOPF) {
			return a.Value
		}
	}
	return ""
}

func filterSpine(spine []SpineRef, keep func(SpineRef) bool) []SpineRef {
	out := make([]SpineRef, 0, len(spine))
	for _, ref := range spine {
		if keep(ref) {
			out = append(out, ref)
		}
	}
	return out
}

// FilterSpine keeps the spine references that satisfy keep.
func (b *Book) FilterSpine(keep func(SpineRef) bool) {
	b.Spine = filterSpine(b.Spine, keep)
}

func unescapeHref(href string) string {
	if decoded, err := url.PathUnescape(href); err == nil {
		return decoded
	}
	return href
}

// escapeHref percent-encodes each segment of an archive-relative path.
func escapeHref(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// splitFragment splits a source path into the path and fragment identifier.
func splitFragment(src string) (p, fragment string) {
	p, fragment, _ = strings.Cut(src, "#")
	return p, fragment
}

// relativeHref expresses target (archive path) relative to directory dir.
func relativeHref(dir, target string) string {
	if dir == "" || dir == "." {
		return target
	}
	from := strings.Split(dir, "/")
	to := strings.Split(target, "/")
	i := 0
	for i < len(from) && i < len(to)-1 && from[i] == to[i] {
		i++
	}
	parts := make([]string, 0, len(from)-i+len(to)-i)
	for range from[i:] {
		parts = append(parts, "..")
	}
	parts = append(parts, to[i:]...)
	return strings.Join(parts, "/")
}
