package converter

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultFilenameSuffix is inserted before the extension of delivered files.
const DefaultFilenameSuffix = "_OldTown"

// Status describes how completely an upload was processed.
type Status int

const (
	// StatusComplete means the thumbnail is attached and EPUBs were rewritten.
	StatusComplete Status = iota
	// StatusThumbnailUnavailable means the original bytes are delivered
	// without a thumbnail.
	StatusThumbnailUnavailable
	// StatusRewriteFailed means the EPUB rewrite failed and the original
	// bytes are delivered with the thumbnail.
	StatusRewriteFailed
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusThumbnailUnavailable:
		return "thumbnail-unavailable"
	case StatusRewriteFailed:
		return "rewrite-failed"
	default:
		return "unknown"
	}
}

// Upload is an inbound file.
type Upload struct {
	Name string
	Data []byte
}

// Delivery is the file to send back.
type Delivery struct {
	Name      string
	Data      []byte
	Thumbnail []byte // nil when unavailable
	Status    Status
	Err       error // cause of a degraded status
}

// PipelineOptions holds options for the per-upload pipeline.
type PipelineOptions struct {
	Thumbnail      ThumbnailOptions
	FilenameSuffix string
	Logger         *slog.Logger
}

// Pipeline attaches the cover thumbnail to uploads and rewrites EPUB covers.
// It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	thumbnails *ThumbnailBuilder
	rewriter   *CoverRewriter
	suffix     string
	logger     *slog.Logger
}

// NewPipeline creates a new upload pipeline.
func NewPipeline(opts PipelineOptions) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		thumbnails: NewThumbnailBuilder(opts.Thumbnail),
		rewriter:   NewCoverRewriter(logger),
		suffix:     opts.FilenameSuffix,
		logger:     logger,
	}
}

// Process runs one upload through the pipeline. It never fails: degraded
// outcomes deliver the original bytes and report why in Status and Err.
func (p *Pipeline) Process(up Upload) Delivery {
	logger := p.logger.With("file", up.Name, "size", len(up.Data))
	d := Delivery{
		Name: RenameWithSuffix(up.Name, p.suffix),
		Data: up.Data,
	}

	thumb, err := p.thumbnails.Build()
	if err != nil {
		logger.Warn("thumbnail unavailable, delivering original file", "error", err)
		d.Status = StatusThumbnailUnavailable
		d.Err = err
		return d
	}
	d.Thumbnail = thumb

	if !IsEPUB(up.Name) {
		logger.Debug("attaching thumbnail only", "detected", mimetype.Detect(up.Data).String())
		return d
	}

	out, err := p.rewriter.Rewrite(up.Data, thumb)
	if err != nil {
		logger.Error("cover rewrite failed, delivering original file", "error", err)
		d.Status = StatusRewriteFailed
		d.Err = err
		return d
	}

	logger.Info("epub cover replaced", "output_size", len(out))
	d.Data = out
	return d
}

// IsEPUB reports whether name has an .epub extension (case-insensitive).
func IsEPUB(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".epub")
}

// RenameWithSuffix inserts suffix between the base name and the extension.
func RenameWithSuffix(name, suffix string) string {
	ext := filepath.Ext(name)
	if ext == filepath.Base(name) {
		// Dotfiles have no extension.
		ext = ""
	}
	return strings.TrimSuffix(name, ext) + suffix + ext
}
