package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/perchlabs/wrenbot/kernel/engine"
)

type stubEngine struct {
	calls    []engine.ChatRequest
	response *engine.ChatResult
	err      error
}

func (s *stubEngine) ProcessChat(ctx context.Context, req engine.ChatRequest) (*engine.ChatResult, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

type stubUpdateHandler struct {
	mu      sync.Mutex
	updates []tgbotapi.Update
	done    chan struct{}
}

func newStubUpdateHandler() *stubUpdateHandler {
	return &stubUpdateHandler{done: make(chan struct{}, 8)}
}

func (s *stubUpdateHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	s.mu.Lock()
	s.updates = append(s.updates, update)
	s.mu.Unlock()
	s.done <- struct{}{}
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Engine == nil {
		cfg.Engine = &stubEngine{response: &engine.ChatResult{Response: "done"}}
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return srv
}

func postJSON(t *testing.T, handler http.Handler, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleChat_Success(t *testing.T) {
	eng := &stubEngine{response: &engine.ChatResult{
		Response:        "Created it.",
		ActionPerformed: true,
	}}
	srv := newTestServer(t, Config{Engine: eng})

	rec := postJSON(t, srv.Handler(), "/chat", `{
		"message": "create a post",
		"context": {"url": "/edit", "postId": 42},
		"history": [
			{"role": "user", "parts": [{"text": "earlier"}]},
			{"role": "banana", "parts": [{"text": "malformed"}]}
		]
	}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Response != "Created it." || !resp.ActionPerformed {
		t.Fatalf("response = %+v", resp)
	}

	call := eng.calls[0]
	if call.PostID != 42 {
		t.Fatalf("PostID = %d, want 42", call.PostID)
	}
	if len(call.History) != 1 || call.History[0].TextContent() != "earlier" {
		t.Fatalf("malformed entries must be dropped, history = %+v", call.History)
	}
	if call.Identity != nil {
		t.Fatal("unauthenticated request must stay anonymous")
	}
}

func TestHandleChat_EmptyMessage(t *testing.T) {
	eng := &stubEngine{}
	srv := newTestServer(t, Config{Engine: eng})

	for _, body := range []string{`{"message": "   "}`, `{}`, `not json`} {
		rec := postJSON(t, srv.Handler(), "/chat", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, rec.Code)
		}
		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp["response"] != "I didn't catch that. Could you repeat it?" {
			t.Fatalf("body %q: response = %q", body, resp["response"])
		}
	}
	if len(eng.calls) != 0 {
		t.Fatal("rejected requests must not reach the engine")
	}
}

func TestHandleChat_EngineError(t *testing.T) {
	eng := &stubEngine{err: fmt.Errorf("provider exploded: secret detail")}
	srv := newTestServer(t, Config{Engine: eng})

	rec := postJSON(t, srv.Handler(), "/chat", `{"message": "hi"}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp["response"], "I encountered an error: ") {
		t.Fatalf("response = %q", resp["response"])
	}
	if strings.Contains(resp["response"], "secret detail") {
		t.Fatalf("internal error detail leaked: %q", resp["response"])
	}
}

func TestHandleChat_GatewayUnavailable(t *testing.T) {
	eng := &stubEngine{err: engine.ErrGatewayUnavailable}
	srv := newTestServer(t, Config{Engine: eng})

	rec := postJSON(t, srv.Handler(), "/chat", `{"message": "hi"}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not configured") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestHandleChat_BearerToken(t *testing.T) {
	eng := &stubEngine{response: &engine.ChatResult{Response: "ok"}}
	srv := newTestServer(t, Config{Engine: eng, APIToken: "s3cret"})

	postJSON(t, srv.Handler(), "/chat", `{"message": "hi"}`, map[string]string{
		"Authorization": "Bearer s3cret",
	})
	postJSON(t, srv.Handler(), "/chat", `{"message": "hi"}`, map[string]string{
		"Authorization": "Bearer wrong",
	})
	postJSON(t, srv.Handler(), "/chat", `{"message": "hi"}`, nil)

	if len(eng.calls) != 3 {
		t.Fatalf("calls = %d", len(eng.calls))
	}
	if eng.calls[0].Identity == nil || eng.calls[0].Identity.Name != "api" {
		t.Fatalf("matching token must map to the editor principal: %+v", eng.calls[0].Identity)
	}
	if eng.calls[1].Identity != nil || eng.calls[2].Identity != nil {
		t.Fatal("non-matching or missing token must stay anonymous")
	}
}

func TestTelegramWebhook_AlwaysAcknowledges(t *testing.T) {
	handler := newStubUpdateHandler()
	srv := newTestServer(t, Config{Telegram: handler})

	rec := postJSON(t, srv.Handler(), "/telegram-webhook", `{
		"update_id": 7,
		"message": {"message_id": 1, "chat": {"id": 55}, "text": "hello"}
	}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("body = %s", rec.Body.String())
	}

	select {
	case <-handler.done:
	case <-time.After(2 * time.Second):
		t.Fatal("update never reached the handler")
	}
	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.updates) != 1 || handler.updates[0].Message.Text != "hello" {
		t.Fatalf("updates = %+v", handler.updates)
	}
}

func TestTelegramWebhook_UndecodableBodyStillOK(t *testing.T) {
	handler := newStubUpdateHandler()
	srv := newTestServer(t, Config{Telegram: handler})

	rec := postJSON(t, srv.Handler(), "/telegram-webhook", `{{{`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestTelegramWebhook_NotMountedWithoutBridge(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := postJSON(t, srv.Handler(), "/telegram-webhook", `{}`, nil)
	if rec.Code == http.StatusOK {
		t.Fatalf("webhook must not be mounted, status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
