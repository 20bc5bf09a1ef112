package epub

import (
	"strings"
)

// Detection methods reported in CoverInfo.
const (
	DetectedByProperty = "properties"
	DetectedByMeta     = "meta"
	DetectedByGuide    = "guide"
	DetectedByFilename = "filename"
)

// CoverInfo describes the detected cover image.
type CoverInfo struct {
	Item            *Item
	DetectionMethod string
}

// DetectCover finds the cover image using, in order:
//  1. properties="cover-image" (EPUB 3)
//  2. <meta name="cover" content="id"> (EPUB 2)
//  3. guide type="cover", either an image or a page whose first image is the cover
//  4. an image whose file name contains "cover" (SVG excluded)
//
// Returns nil if no cover image is found.
func (b *Book) DetectCover() *CoverInfo {
	for _, item := range b.Items {
		if item.HasProperty(coverImageMarker) {
			return &CoverInfo{Item: item, DetectionMethod: DetectedByProperty}
		}
	}

	for _, m := range b.MetadataValues(NamespaceMeta, "meta") {
		if m.Attr("name") != "cover" {
			continue
		}
		if item := b.Item(m.Attr("content")); item != nil && item.IsImage() {
			return &CoverInfo{Item: item, DetectionMethod: DetectedByMeta}
		}
	}

	for _, ref := range b.Guide {
		if ref.Type != "cover" {
			continue
		}
		target := b.ItemByHref(ref.Href)
		if target == nil {
			continue
		}
		if isRasterImage(target.MediaType) {
			return &CoverInfo{Item: target, DetectionMethod: DetectedByGuide}
		}
		if target.Kind != KindDocument {
			continue
		}
		page, err := b.LoadContent(target)
		if err != nil || len(page.Images) == 0 {
			continue
		}
		for _, item := range b.Items {
			if item.IsImage() && b.ZipPath(item.Href) == page.Images[0] {
				return &CoverInfo{Item: item, DetectionMethod: DetectedByGuide}
			}
		}
	}

	for _, item := range b.Items {
		if !isRasterImage(item.MediaType) {
			continue
		}
		if strings.Contains(strings.ToLower(item.FileName()), "cover") {
			return &CoverInfo{Item: item, DetectionMethod: DetectedByFilename}
		}
	}

	return nil
}

// isRasterImage checks if a media type is a raster image (SVG excluded).
func isRasterImage(mediaType string) bool {
	mediaType = strings.ToLower(mediaType)
	return mediaType != MediaTypeSVG && strings.HasPrefix(mediaType, "image/")
}
