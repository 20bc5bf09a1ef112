package bot

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookPath = "/123456:secret-token"

func newTestServer(t *testing.T) (*httptest.Server, *fakeMessenger, *Handler) {
	t.Helper()
	m := newFakeMessenger()
	h := newTestHandler(m, &stubProcessor{})
	s := NewServer(h, testWebhookPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts, m, h
}

func postUpdate(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_Healthz(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

func TestServer_Webhook(t *testing.T) {
	t.Run("start command", func(t *testing.T) {
		ts, m, _ := newTestServer(t)

		resp := postUpdate(t, ts.URL+testWebhookPath, `{
			"update_id": 1,
			"message": {
				"message_id": 5,
				"date": 1700000000,
				"chat": {"id": 42, "type": "private"},
				"text": "/start",
				"entities": [{"type": "bot_command", "offset": 0, "length": 6}]
			}
		}`)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []string{"start"}, m.Texts())
	})

	t.Run("document", func(t *testing.T) {
		ts, m, h := newTestServer(t)
		m.files["doc-1"] = []byte("contents")

		resp := postUpdate(t, ts.URL+testWebhookPath, `{
			"update_id": 2,
			"message": {
				"message_id": 6,
				"date": 1700000000,
				"chat": {"id": 42, "type": "private"},
				"document": {"file_id": "doc-1", "file_unique_id": "u1", "file_name": "notes.txt", "file_size": 8}
			}
		}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		h.Wait()

		docs := m.Docs()
		require.Len(t, docs, 1)
		assert.Equal(t, "notes_OldTown.txt", docs[0].doc.Name)
		assert.Equal(t, "success", docs[0].doc.Caption)
	})

	t.Run("malformed body", func(t *testing.T) {
		ts, m, _ := newTestServer(t)

		resp := postUpdate(t, ts.URL+testWebhookPath, `{"update_id": `)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Empty(t, m.Texts())
	})

	t.Run("wrong path", func(t *testing.T) {
		ts, m, _ := newTestServer(t)

		resp := postUpdate(t, ts.URL+"/not-the-token", `{"update_id": 1}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Empty(t, m.Texts())
	})
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	m := newFakeMessenger()
	h := newTestHandler(m, &stubProcessor{})
	s := NewServer(h, testWebhookPath, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
