package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var ErrFileTooLarge = errors.New("file exceeds size limit")

// Document is an outgoing file message.
type Document struct {
	Name      string
	Data      []byte
	Thumbnail []byte // optional JPEG preview
	Caption   string
}

// Messenger is the chat API the handler talks to.
type Messenger interface {
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
	SendText(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, doc Document) error
}

// TelegramMessenger implements Messenger with the Telegram Bot API.
type TelegramMessenger struct {
	api     *tgbotapi.BotAPI
	client  *http.Client
	maxSize int64
}

// NewTelegramMessenger authenticates with token and returns a messenger that
// refuses downloads larger than maxSize bytes.
func NewTelegramMessenger(token string, maxSize int64, logger *slog.Logger) (*TelegramMessenger, error) {
	if logger != nil {
		_ = tgbotapi.SetLogger(botLogger{logger})
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	return &TelegramMessenger{
		api:     api,
		client:  &http.Client{Timeout: 2 * time.Minute},
		maxSize: maxSize,
	}, nil
}

// BotName returns the authenticated bot's user name.
func (m *TelegramMessenger) BotName() string {
	return m.api.Self.UserName
}

// RegisterWebhook points Telegram at url.
func (m *TelegramMessenger) RegisterWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if _, err := m.api.Request(wh); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	return nil
}

func (m *TelegramMessenger) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	url, err := m.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file %s: %w", fileID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download file %s: status %d", fileID, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, m.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", fileID, err)
	}
	if int64(len(data)) > m.maxSize {
		return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, fileID)
	}
	return data, nil
}

func (m *TelegramMessenger) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := m.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (m *TelegramMessenger) SendDocument(ctx context.Context, chatID int64, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: doc.Name, Bytes: doc.Data})
	msg.Caption = doc.Caption
	if len(doc.Thumbnail) > 0 {
		msg.Thumb = tgbotapi.FileBytes{Name: "thumbnail.jpg", Bytes: doc.Thumbnail}
	}
	if _, err := m.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send document %s: %w", doc.Name, err)
	}
	return nil
}

// botLogger routes the Bot API client's log lines to slog.
type botLogger struct {
	logger *slog.Logger
}

func (l botLogger) Println(v ...any) {
	l.logger.Debug(fmt.Sprint(v...), "component", "telegram")
}

func (l botLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "telegram")
}
