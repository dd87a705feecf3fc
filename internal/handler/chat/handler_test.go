package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	model "github.com/harborlight/henry/backend/internal/model/chat"
	"github.com/harborlight/henry/backend/internal/service/session"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string]string
}

func (m *memStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func newTestRouter() http.Handler {
	factory := &session.Factory{Cache: &memStore{entries: make(map[string]string)}}
	handler := New(session.NewManager(), factory)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func openSession(t *testing.T, router http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		SessionID string          `json:"sessionId"`
		Messages  []model.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid open-session response: %v", err)
	}
	if payload.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if len(payload.Messages) != 1 || payload.Messages[0].IsFromUser {
		t.Fatalf("expected a greeting transcript, got %v", payload.Messages)
	}
	return payload.SessionID
}

func postMessage(t *testing.T, router http.Handler, sessionID, text string) (*httptest.ResponseRecorder, []model.Message) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"text": text})
	req := httptest.NewRequest(http.MethodPost, "/session/"+sessionID+"/messages", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var payload struct {
		Messages []model.Message `json:"messages"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &payload)
	return rec, payload.Messages
}

func TestOpenSessionSeedsGreeting(t *testing.T) {
	router := newTestRouter()
	openSession(t, router)
}

func TestSendMessageFastPath(t *testing.T) {
	router := newTestRouter()
	id := openSession(t, router)

	rec, msgs := postMessage(t, router, id, "hello")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(msgs) != 2 {
		t.Fatalf("expected user echo and reply, got %v", msgs)
	}
	if !msgs[0].IsFromUser || msgs[1].IsFromUser {
		t.Fatal("expected user message then assistant reply")
	}
}

func TestSendMessageCrisisReportsEmergency(t *testing.T) {
	router := newTestRouter()
	id := openSession(t, router)

	body, _ := json.Marshal(map[string]string{"text": "I want to kill myself"})
	req := httptest.NewRequest(http.MethodPost, "/session/"+id+"/messages", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var payload struct {
		Messages        []model.Message `json:"messages"`
		EmergencyActive bool            `json:"emergencyActive"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if !payload.EmergencyActive {
		t.Fatal("expected emergencyActive in response")
	}
	if !strings.Contains(payload.Messages[len(payload.Messages)-1].Text, "988") {
		t.Fatal("expected safety reply with hotline guidance")
	}
}

func TestSendMessageUnknownSession(t *testing.T) {
	router := newTestRouter()
	rec, _ := postMessage(t, router, "missing", "hello")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCloseSessionRemovesIt(t *testing.T) {
	router := newTestRouter()
	id := openSession(t, router)

	req := httptest.NewRequest(http.MethodDelete, "/session/"+id, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec, _ = postMessage(t, router, id, "hello")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after close, got %d", rec.Code)
	}
}
