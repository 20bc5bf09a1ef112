// Package bot serves the Telegram webhook that stamps the cover onto files.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/semaphore"

	"github.com/oldtownbooks/epubcover/internal/config"
	"github.com/oldtownbooks/epubcover/internal/converter"
)

const (
	defaultMaxConcurrent = 4
	defaultJobTimeout    = 5 * time.Minute
	fallbackFileName     = "file"
)

// Processor turns an upload into the file to send back.
type Processor interface {
	Process(up converter.Upload) converter.Delivery
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	Messenger     Messenger
	Processor     Processor
	Captions      config.Captions
	MaxFileSize   int64 // bytes; 0 disables the check
	MaxConcurrent int64
	JobTimeout    time.Duration
	Logger        *slog.Logger
}

// Handler dispatches Telegram updates. Documents are processed in the
// background, at most MaxConcurrent at a time.
type Handler struct {
	messenger   Messenger
	processor   Processor
	captions    config.Captions
	maxFileSize int64
	jobTimeout  time.Duration
	sem         *semaphore.Weighted
	wg          sync.WaitGroup
	logger      *slog.Logger
}

// NewHandler creates an update handler.
func NewHandler(opts HandlerOptions) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.MaxConcurrent
	if workers < 1 {
		workers = defaultMaxConcurrent
	}
	timeout := opts.JobTimeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	return &Handler{
		messenger:   opts.Messenger,
		processor:   opts.Processor,
		captions:    opts.Captions,
		maxFileSize: opts.MaxFileSize,
		jobTimeout:  timeout,
		sem:         semaphore.NewWeighted(workers),
		logger:      logger,
	}
}

// HandleUpdate reacts to one update. Commands are answered inline; documents
// are acknowledged and queued.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	logger := h.logger.With("update_id", update.UpdateID, "chat_id", chatID)

	switch {
	case msg.IsCommand():
		switch msg.Command() {
		case "start":
			h.reply(ctx, logger, chatID, h.captions.Start)
		case "help":
			h.reply(ctx, logger, chatID, h.captions.Help)
		default:
			logger.Debug("ignoring unknown command", "command", msg.Command())
		}
	case msg.Document != nil:
		h.handleDocument(ctx, logger, chatID, *msg.Document)
	default:
		logger.Debug("ignoring message without document")
	}
}

func (h *Handler) handleDocument(ctx context.Context, logger *slog.Logger, chatID int64, doc tgbotapi.Document) {
	name := doc.FileName
	if name == "" {
		name = fallbackFileName
	}
	logger = logger.With("file", name, "file_size", doc.FileSize)

	if h.maxFileSize > 0 && int64(doc.FileSize) > h.maxFileSize {
		logger.Warn("refusing oversized file", "limit", h.maxFileSize)
		h.reply(ctx, logger, chatID, h.captions.TooLarge)
		return
	}

	h.reply(ctx, logger, chatID, h.captions.Received)

	jobCtx := context.WithoutCancel(ctx)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(jobCtx, h.jobTimeout)
		defer cancel()
		h.process(ctx, logger, chatID, doc.FileID, name)
	}()
}

func (h *Handler) process(ctx context.Context, logger *slog.Logger, chatID int64, fileID, name string) {
	defer func() {
		if v := recover(); v != nil {
			logger.Error("panic while processing file", "panic", fmt.Sprint(v))
			h.retry(ctx, logger, chatID)
		}
	}()

	if err := h.sem.Acquire(ctx, 1); err != nil {
		logger.Error("gave up waiting for a worker", "error", err)
		h.retry(ctx, logger, chatID)
		return
	}
	defer h.sem.Release(1)

	start := time.Now()
	data, err := h.messenger.DownloadFile(ctx, fileID)
	if err != nil {
		logger.Error("download failed", "error", err)
		h.retry(ctx, logger, chatID)
		return
	}

	d := h.processor.Process(converter.Upload{Name: name, Data: data})

	err = h.messenger.SendDocument(ctx, chatID, Document{
		Name:      d.Name,
		Data:      d.Data,
		Thumbnail: d.Thumbnail,
		Caption:   h.caption(d.Status),
	})
	if err != nil {
		logger.Error("sending file failed", "error", err)
		h.retry(ctx, logger, chatID)
		return
	}

	logger.Info("file delivered",
		"name", d.Name,
		"status", d.Status.String(),
		"elapsed", time.Since(start),
	)
}

func (h *Handler) caption(status converter.Status) string {
	switch status {
	case converter.StatusThumbnailUnavailable:
		return h.captions.NoThumbnail
	case converter.StatusRewriteFailed:
		return h.captions.RewriteFailed
	default:
		return h.captions.Success
	}
}

func (h *Handler) reply(ctx context.Context, logger *slog.Logger, chatID int64, text string) {
	if text == "" {
		return
	}
	if err := h.messenger.SendText(ctx, chatID, text); err != nil {
		logger.Error("reply failed", "error", err)
	}
}

// retry asks the user to resend. The reply outlives the job's deadline.
func (h *Handler) retry(ctx context.Context, logger *slog.Logger, chatID int64) {
	h.reply(context.WithoutCancel(ctx), logger, chatID, h.captions.Retry)
}

// Wait blocks until all queued documents are finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}
