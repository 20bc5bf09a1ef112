package epub

import (
	"testing"
)

func newTestBook() *Book {
	return &Book{
		PackagePath: "OEBPS/content.opf",
		Items: []*Item{
			{ID: "ncx", Href: "toc.ncx", MediaType: MediaTypeNCX},
			{ID: "img", Href: "images/Cover%20Art.PNG", MediaType: "image/png"},
			{ID: "c1", Href: "text/c1.xhtml", MediaType: MediaTypeXHTML},
			{ID: "c2", Href: "text/c2.xhtml", MediaType: MediaTypeXHTML, Fallback: "img"},
		},
		Spine:    []SpineRef{{IDRef: "c1", Linear: true}, {IDRef: "c2", Linear: true}, {IDRef: "c1", Linear: true}},
		spineTOC: "ncx",
	}
}

func TestBook_ZipPath(t *testing.T) {
	tests := []struct {
		name        string
		packagePath string
		href        string
		want        string
	}{
		{"package directory", "OEBPS/content.opf", "text/c1.xhtml", "OEBPS/text/c1.xhtml"},
		{"fragment", "OEBPS/content.opf", "text/c1.xhtml#p3", "OEBPS/text/c1.xhtml"},
		{"escaped", "OEBPS/content.opf", "text/c%201.xhtml", "OEBPS/text/c 1.xhtml"},
		{"parent directory", "OEBPS/content.opf", "../images/c.jpg", "images/c.jpg"},
		{"root package", "content.opf", "c1.xhtml", "c1.xhtml"},
		{"invalid escape kept", "content.opf", "100%.xhtml", "100%.xhtml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Book{PackagePath: tt.packagePath}
			if got := b.ZipPath(tt.href); got != tt.want {
				t.Errorf("ZipPath(%q) = %q, want %q", tt.href, got, tt.want)
			}
		})
	}
}

func TestItem_FileName(t *testing.T) {
	b := newTestBook()
	if got := b.Item("img").FileName(); got != "Cover Art.PNG" {
		t.Errorf("FileName() = %q, want %q", got, "Cover Art.PNG")
	}
}

func TestBook_ItemByHref(t *testing.T) {
	b := newTestBook()
	if it := b.ItemByHref("text/c2.xhtml#end"); it == nil || it.ID != "c2" {
		t.Errorf("ItemByHref() = %v, want c2", it)
	}
	if it := b.ItemByHref("images/Cover Art.PNG"); it == nil || it.ID != "img" {
		t.Errorf("ItemByHref(unescaped) = %v, want img", it)
	}
	if it := b.ItemByHref("missing.xhtml"); it != nil {
		t.Errorf("ItemByHref(missing) = %v, want nil", it)
	}
}

func TestBook_AddItem(t *testing.T) {
	b := newTestBook()
	b.AddItem(&Item{ID: "c1", Href: "new.xhtml", MediaType: MediaTypeXHTML})

	if len(b.Items) != 4 {
		t.Fatalf("len(Items) = %d, want 4", len(b.Items))
	}
	if b.Items[0].ID != "c1" || b.Items[0].Href != "new.xhtml" {
		t.Errorf("Items[0] = %+v, want replaced c1 first", b.Items[0])
	}
	for _, ref := range b.Spine {
		if ref.IDRef == "c1" {
			t.Errorf("spine still references replaced item: %+v", b.Spine)
		}
	}
}

func TestBook_RemoveItems(t *testing.T) {
	b := newTestBook()
	removed := b.RemoveItems(func(it *Item) bool { return it.ID == "c1" })

	if len(removed) != 1 || removed[0].ID != "c1" {
		t.Errorf("removed = %+v, want c1", removed)
	}
	if b.Item("c1") != nil {
		t.Error("c1 still in manifest")
	}
	if len(b.Spine) != 1 || b.Spine[0].IDRef != "c2" {
		t.Errorf("Spine = %+v, want only c2", b.Spine)
	}

	if removed := b.RemoveItems(func(*Item) bool { return false }); removed != nil {
		t.Errorf("RemoveItems(no match) = %+v, want nil", removed)
	}
}

func TestBook_RemoveItems_ClearsReferences(t *testing.T) {
	b := newTestBook()
	b.RemoveItems(func(it *Item) bool { return it.ID == "img" || it.ID == "ncx" })

	if fb := b.Item("c2").Fallback; fb != "" {
		t.Errorf("c2 fallback = %q, want it cleared", fb)
	}
	if b.spineTOC != "" {
		t.Errorf("spineTOC = %q, want it cleared", b.spineTOC)
	}
	if b.NCXItem() != nil {
		t.Errorf("NCXItem() = %v, want nil", b.NCXItem())
	}
}

func TestBook_RenameItem(t *testing.T) {
	b := newTestBook()

	if !b.RenameItem("img", "img-orig") {
		t.Fatal("RenameItem(img) = false, want true")
	}
	if b.Item("c2").Fallback != "img-orig" {
		t.Errorf("fallback = %q, want %q", b.Item("c2").Fallback, "img-orig")
	}

	if !b.RenameItem("c1", "chapter-1") {
		t.Fatal("RenameItem(c1) = false, want true")
	}
	if b.Spine[0].IDRef != "chapter-1" || b.Spine[2].IDRef != "chapter-1" {
		t.Errorf("Spine = %+v, want renamed refs", b.Spine)
	}

	if !b.RenameItem("ncx", "toc") {
		t.Fatal("RenameItem(ncx) = false, want true")
	}
	if b.NCXItem() == nil || b.NCXItem().ID != "toc" {
		t.Errorf("NCXItem() = %v, want toc", b.NCXItem())
	}

	if b.RenameItem("missing", "x") {
		t.Error("RenameItem(missing) = true, want false")
	}
	if b.RenameItem("c2", "toc") {
		t.Error("RenameItem onto an existing id = true, want false")
	}
}

func TestBook_IsEPUB3(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"3.0", true},
		{"3.3", true},
		{" 3.0 ", true},
		{"2.0", false},
		{"2.0.1", false},
		{"", false},
		{"three", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			b := &Book{Version: tt.version}
			if got := b.IsEPUB3(); got != tt.want {
				t.Errorf("IsEPUB3(%q) = %v, want %v", tt.version, got, tt.want)
			}
		})
	}
}

func TestBook_Identifier(t *testing.T) {
	tests := []struct {
		name     string
		ref      string
		metadata []MetaEntry
		want     string
		wantOK   bool
	}{
		{
			name: "unique identifier reference",
			ref:  "uid",
			metadata: []MetaEntry{
				{Namespace: NamespaceDC, Name: "identifier", Value: "isbn", Attrs: attrs("id", "isbn-id")},
				{Namespace: NamespaceDC, Name: "identifier", Value: "uuid", Attrs: attrs("id", "uid")},
			},
			want:   "uuid",
			wantOK: true,
		},
		{
			name: "first identifier",
			ref:  "missing",
			metadata: []MetaEntry{
				{Namespace: NamespaceDC, Name: "identifier", Value: "isbn"},
			},
			want:   "isbn",
			wantOK: true,
		},
		{
			name: "none",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Book{UniqueIDRef: tt.ref, Metadata: tt.metadata}
			got, ok := b.Identifier()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Identifier() = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestBook_SetIdentifier(t *testing.T) {
	t.Run("updates referenced identifier", func(t *testing.T) {
		b := &Book{
			UniqueIDRef: "uid",
			Metadata: []MetaEntry{
				{Namespace: NamespaceDC, Name: "identifier", Value: "old", Attrs: attrs("id", "uid")},
			},
		}
		b.SetIdentifier("new")
		if len(b.Metadata) != 1 || b.Metadata[0].Value != "new" {
			t.Errorf("Metadata = %+v", b.Metadata)
		}
	})

	t.Run("adopts first identifier without id", func(t *testing.T) {
		b := &Book{
			Metadata: []MetaEntry{
				{Namespace: NamespaceDC, Name: "identifier", Value: "isbn"},
			},
		}
		b.SetIdentifier("isbn")
		if b.UniqueIDRef != "id" {
			t.Errorf("UniqueIDRef = %q, want %q", b.UniqueIDRef, "id")
		}
		if len(b.Metadata) != 1 || b.Metadata[0].Attr("id") != "id" {
			t.Errorf("Metadata = %+v, want the existing identifier tagged", b.Metadata)
		}
		if got, _ := b.Identifier(); got != "isbn" {
			t.Errorf("Identifier() = %q, want %q", got, "isbn")
		}
	})

	t.Run("adds missing identifier", func(t *testing.T) {
		b := &Book{UniqueIDRef: "pub-id"}
		b.SetIdentifier("urn:x")
		if got, ok := b.Identifier(); !ok || got != "urn:x" {
			t.Errorf("Identifier() = %q, %v; want %q, true", got, ok, "urn:x")
		}
		if b.Metadata[0].Attr("id") != "pub-id" {
			t.Errorf("added identifier attrs = %+v", b.Metadata[0].Attrs)
		}
	})
}

func TestBook_RemoveMetadata(t *testing.T) {
	b := &Book{Metadata: []MetaEntry{
		{Namespace: NamespaceMeta, Name: "meta", Attrs: attrs("name", "cover", "content", "a")},
		{Namespace: NamespaceDC, Name: "title", Value: "T"},
		{Namespace: NamespaceMeta, Name: "meta", Attrs: attrs("name", "cover", "content", "b")},
		{Namespace: NamespaceMeta, Name: "meta", Attrs: attrs("name", "calibre:series", "content", "S")},
	}}

	n := b.RemoveMetadata(func(m MetaEntry) bool {
		return m.Namespace == NamespaceMeta && m.Attr("name") == "cover"
	})
	if n != 2 {
		t.Errorf("RemoveMetadata() = %d, want 2", n)
	}
	if len(b.Metadata) != 2 || b.Metadata[0].Name != "title" || b.Metadata[1].Attr("name") != "calibre:series" {
		t.Errorf("Metadata = %+v", b.Metadata)
	}
}

func TestRelativeHref(t *testing.T) {
	tests := []struct {
		dir    string
		target string
		want   string
	}{
		{"", "a/b.xhtml", "a/b.xhtml"},
		{"OEBPS", "OEBPS/a.xhtml", "a.xhtml"},
		{"OEBPS/text", "OEBPS/images/c.jpg", "../images/c.jpg"},
		{"OEBPS", "META-INF/x.xml", "../META-INF/x.xml"},
		{"a/b", "a/b/c/d.xhtml", "c/d.xhtml"},
	}

	for _, tt := range tests {
		t.Run(tt.dir+"->"+tt.target, func(t *testing.T) {
			if got := relativeHref(tt.dir, tt.target); got != tt.want {
				t.Errorf("relativeHref(%q, %q) = %q, want %q", tt.dir, tt.target, got, tt.want)
			}
		})
	}
}

func TestBook_FreeID(t *testing.T) {
	b := newTestBook()
	b.Items = append(b.Items, &Item{ID: "img-1", Href: "a.png", MediaType: "image/png"})

	for _, tt := range []struct{ id, want string }{
		{"fresh", "fresh"},
		{"c1", "c1-1"},
		{"img", "img-2"},
	} {
		if got := b.FreeID(tt.id); got != tt.want {
			t.Errorf("FreeID(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}
