package epub

import "testing"

func TestDetectCover(t *testing.T) {
	coverPage := `<html xmlns="http://www.w3.org/1999/xhtml"><body><div><img src="../images/front.jpg" alt=""/></div></body></html>`
	svgPage := `<html xmlns="http://www.w3.org/1999/xhtml"><body>
<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink"><image xlink:href="../images/front.jpg"/></svg>
</body></html>`

	tests := []struct {
		name       string
		items      []*Item
		metadata   []MetaEntry
		guide      []GuideRef
		wantID     string
		wantMethod string
	}{
		{
			name: "cover-image property",
			items: []*Item{
				{ID: "c1", Href: "text/c1.xhtml", MediaType: MediaTypeXHTML, Kind: KindDocument},
				{ID: "art", Href: "images/art.jpg", MediaType: "image/jpeg", Properties: []string{"cover-image"}},
			},
			wantID:     "art",
			wantMethod: DetectedByProperty,
		},
		{
			name: "meta cover",
			items: []*Item{
				{ID: "front", Href: "images/front.jpg", MediaType: "image/jpeg"},
				{ID: "cover-file", Href: "images/cover.jpg", MediaType: "image/jpeg"},
			},
			metadata:   []MetaEntry{{Namespace: NamespaceMeta, Name: "meta", Attrs: attrs("name", "cover", "content", "front")}},
			wantID:     "front",
			wantMethod: DetectedByMeta,
		},
		{
			name: "meta pointing at a page is ignored",
			items: []*Item{
				{ID: "page", Href: "text/page.xhtml", MediaType: MediaTypeXHTML, Kind: KindDocument},
				{ID: "img", Href: "images/my-cover.png", MediaType: "image/png"},
			},
			metadata:   []MetaEntry{{Namespace: NamespaceMeta, Name: "meta", Attrs: attrs("name", "cover", "content", "page")}},
			wantID:     "img",
			wantMethod: DetectedByFilename,
		},
		{
			name: "guide to image",
			items: []*Item{
				{ID: "front", Href: "images/front.jpg", MediaType: "image/jpeg"},
			},
			guide:      []GuideRef{{Type: "cover", Href: "images/front.jpg"}},
			wantID:     "front",
			wantMethod: DetectedByGuide,
		},
		{
			name: "guide to page with img",
			items: []*Item{
				{ID: "titlepage", Href: "text/titlepage.xhtml", MediaType: MediaTypeXHTML, Kind: KindDocument, Content: []byte(coverPage)},
				{ID: "front", Href: "images/front.jpg", MediaType: "image/jpeg"},
			},
			guide:      []GuideRef{{Type: "text", Href: "text/other.xhtml"}, {Type: "cover", Href: "text/titlepage.xhtml#top"}},
			wantID:     "front",
			wantMethod: DetectedByGuide,
		},
		{
			name: "guide to svg page",
			items: []*Item{
				{ID: "titlepage", Href: "text/titlepage.xhtml", MediaType: MediaTypeXHTML, Kind: KindDocument, Content: []byte(svgPage)},
				{ID: "front", Href: "images/front.jpg", MediaType: "image/jpeg"},
			},
			guide:      []GuideRef{{Type: "cover", Href: "text/titlepage.xhtml"}},
			wantID:     "front",
			wantMethod: DetectedByGuide,
		},
		{
			name: "filename skips svg",
			items: []*Item{
				{ID: "vector", Href: "images/cover.svg", MediaType: MediaTypeSVG},
				{ID: "raster", Href: "images/Book_Cover.JPEG", MediaType: "image/jpeg"},
			},
			wantID:     "raster",
			wantMethod: DetectedByFilename,
		},
		{
			name: "none",
			items: []*Item{
				{ID: "c1", Href: "text/c1.xhtml", MediaType: MediaTypeXHTML, Kind: KindDocument},
				{ID: "fig", Href: "images/fig1.png", MediaType: "image/png"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Book{
				PackagePath: "OEBPS/content.opf",
				Items:       tt.items,
				Metadata:    tt.metadata,
				Guide:       tt.guide,
			}
			info := b.DetectCover()
			if tt.wantID == "" {
				if info != nil {
					t.Fatalf("DetectCover() = %+v, want nil", info)
				}
				return
			}
			if info == nil {
				t.Fatal("DetectCover() returned nil, want CoverInfo")
			}
			if info.Item.ID != tt.wantID {
				t.Errorf("Item.ID = %q, want %q", info.Item.ID, tt.wantID)
			}
			if info.DetectionMethod != tt.wantMethod {
				t.Errorf("DetectionMethod = %q, want %q", info.DetectionMethod, tt.wantMethod)
			}
		})
	}
}
