package converter

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	DefaultThumbnailWidth   = 200
	DefaultThumbnailHeight  = 300
	DefaultThumbnailQuality = 85
	defaultMaxPixels        = 100 * 1000 * 1000 // 100 megapixels
)

// ThumbnailOptions configures the cover thumbnail.
type ThumbnailOptions struct {
	Path      string
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// ThumbnailBuilder turns the fixed cover source image into a small JPEG.
type ThumbnailBuilder struct {
	Path      string
	MaxWidth  int
	MaxHeight int
	Quality   int
	MaxPixels int // Total pixel count limit for decode (width * height)
}

// NewThumbnailBuilder creates a thumbnail builder with defaults.
func NewThumbnailBuilder(opts ThumbnailOptions) *ThumbnailBuilder {
	maxWidth := opts.MaxWidth
	if maxWidth <= 0 {
		maxWidth = DefaultThumbnailWidth
	}

	maxHeight := opts.MaxHeight
	if maxHeight <= 0 {
		maxHeight = DefaultThumbnailHeight
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultThumbnailQuality
	}

	return &ThumbnailBuilder{
		Path:      opts.Path,
		MaxWidth:  maxWidth,
		MaxHeight: maxHeight,
		Quality:   quality,
		MaxPixels: defaultMaxPixels,
	}
}

// Build reads the source image from Path and encodes the thumbnail.
func (b *ThumbnailBuilder) Build() ([]byte, error) {
	f, err := os.Open(b.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageUnavailable, err)
	}
	defer f.Close()

	return b.BuildFrom(f)
}

// BuildFrom encodes a thumbnail from source image bytes. The result is an
// opaque JPEG fitted within MaxWidth x MaxHeight; smaller images keep their
// size.
func (b *ThumbnailBuilder) BuildFrom(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageUnavailable, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageUnavailable, err)
	}
	pixels := uint64(cfg.Width) * uint64(cfg.Height)
	if b.MaxPixels > 0 && pixels > uint64(b.MaxPixels) {
		return nil, fmt.Errorf("%w: image too large to decode: %dx%d (%d pixels)",
			ErrImageUnavailable, cfg.Width, cfg.Height, pixels)
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageUnavailable, err)
	}

	thumb := imaging.Fit(dropAlpha(src), b.MaxWidth, b.MaxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(b.Quality)); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

// dropAlpha returns an opaque copy of img. Color channels keep their
// straight (non-premultiplied) values, so transparent pixels are not
// darkened.
func dropAlpha(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}
