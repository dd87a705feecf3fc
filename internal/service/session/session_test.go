package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harborlight/henry/backend/internal/model/chat"
	"github.com/harborlight/henry/backend/internal/service/conversation"
)

type memKV struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMemKV() *memKV {
	return &memKV{entries: make(map[string]string)}
}

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

type fakeAI struct {
	mu      sync.Mutex
	calls   int
	reply   chat.AIReply
	err     error
	release chan struct{} // when set, GetResponse blocks until closed
}

func (f *fakeAI) GetResponse(_ context.Context, _ string, _ []chat.Message) (chat.AIReply, error) {
	f.mu.Lock()
	f.calls++
	release := f.release
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	return f.reply, f.err
}

func (f *fakeAI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	session     *Session
	cache       *memKV
	ai          *fakeAI
	emitted     []chat.Message
	alerts      []Alert
	emergencies int
	mu          sync.Mutex
}

func newHarness(ai *fakeAI) *harness {
	h := &harness{cache: newMemKV(), ai: ai}
	store := conversation.NewStore(h.cache, nil, "")
	cfg := Config{
		Emit: func(msg chat.Message) {
			h.mu.Lock()
			h.emitted = append(h.emitted, msg)
			h.mu.Unlock()
		},
		Notify: func(a Alert) {
			h.mu.Lock()
			h.alerts = append(h.alerts, a)
			h.mu.Unlock()
		},
		OnEmergency: func() {
			h.mu.Lock()
			h.emergencies++
			h.mu.Unlock()
		},
		Now: func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) },
	}
	if ai != nil {
		h.session = New("test-session", store, h.cache, ai, cfg)
	} else {
		h.session = New("test-session", store, h.cache, nil, cfg)
	}
	return h
}

func (h *harness) emittedTexts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.emitted))
	for i, m := range h.emitted {
		out[i] = m.Text
	}
	return out
}

func TestProcessEmptyInputIsNoOp(t *testing.T) {
	h := newHarness(&fakeAI{})
	if err := h.session.Process(context.Background(), "   "); err != nil {
		t.Fatalf("Process err: %v", err)
	}
	if len(h.emittedTexts()) != 0 {
		t.Fatal("expected no emissions for empty input")
	}
	if h.session.Transcript() != nil && len(h.session.Transcript()) != 0 {
		t.Fatal("expected no state change for empty input")
	}
}

func TestCrisisEscalation(t *testing.T) {
	aiClient := &fakeAI{reply: chat.AIReply{Response: "should not be used", RiskLevel: chat.RiskNone}}
	h := newHarness(aiClient)

	if err := h.session.Process(context.Background(), "I want to kill myself"); err != nil {
		t.Fatalf("Process err: %v", err)
	}

	if !h.session.EmergencyActive() {
		t.Fatal("expected emergency mode")
	}
	if h.emergencies != 1 {
		t.Fatalf("expected one emergency hook call, got %d", h.emergencies)
	}
	if len(h.alerts) != 1 || h.alerts[0].Severity != "destructive" {
		t.Fatalf("expected one destructive alert, got %+v", h.alerts)
	}
	if aiClient.callCount() != 0 {
		t.Fatal("expected no AI call on an emergency turn")
	}

	texts := h.emittedTexts()
	if len(texts) != 2 {
		t.Fatalf("expected user message and safety reply, got %v", texts)
	}
	if !strings.Contains(texts[1], "988") {
		t.Fatalf("expected crisis-hotline guidance, got %q", texts[1])
	}
}

func TestEmergencyFiresAtMostOncePerSession(t *testing.T) {
	h := newHarness(&fakeAI{reply: chat.AIReply{Response: "ok", RiskLevel: chat.RiskNone}})
	ctx := context.Background()

	for _, text := range []string{"I want to kill myself", "this is a crisis", "it's an emergency"} {
		if err := h.session.Process(ctx, text); err != nil {
			t.Fatalf("Process err: %v", err)
		}
	}

	if h.emergencies != 1 {
		t.Fatalf("expected exactly one emergency hook call, got %d", h.emergencies)
	}
	if !h.session.EmergencyActive() {
		t.Fatal("expected emergency mode to stay sticky")
	}
}

func TestFastPathPrecedence(t *testing.T) {
	aiClient := &fakeAI{}
	h := newHarness(aiClient)

	if err := h.session.Process(context.Background(), "hello"); err != nil {
		t.Fatalf("Process err: %v", err)
	}

	if aiClient.callCount() != 0 {
		t.Fatal("expected no AI call for a greeting")
	}
	texts := h.emittedTexts()
	if len(texts) != 2 {
		t.Fatalf("expected user message and fast-path reply, got %v", texts)
	}
	if !strings.Contains(texts[1], "Good morning") && !strings.Contains(texts[1], "Hey there") {
		t.Fatalf("expected a greeting-category reply, got %q", texts[1])
	}
}

func TestAISuccessOrderingInvariant(t *testing.T) {
	h := newHarness(&fakeAI{reply: chat.AIReply{Response: "That sounds hard. I'm here.", RiskLevel: chat.RiskLow}})

	if err := h.session.Process(context.Background(), "I feel anxious"); err != nil {
		t.Fatalf("Process err: %v", err)
	}

	msgs := h.session.Transcript()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages in log, got %d", len(msgs))
	}
	if !msgs[0].IsFromUser || msgs[1].IsFromUser {
		t.Fatal("expected user message strictly before assistant reply")
	}
	if msgs[1].Timestamp.Before(msgs[0].Timestamp) {
		t.Fatal("expected non-decreasing timestamps")
	}
}

func TestAIRiskEscalatesWithoutReplacingReply(t *testing.T) {
	h := newHarness(&fakeAI{reply: chat.AIReply{Response: "Please stay with me. You matter.", RiskLevel: chat.RiskCrisis}})

	if err := h.session.Process(context.Background(), "everything hurts and nothing helps"); err != nil {
		t.Fatalf("Process err: %v", err)
	}

	if !h.session.EmergencyActive() {
		t.Fatal("expected escalation from AI risk level")
	}
	if h.emergencies != 1 {
		t.Fatalf("expected one emergency hook call, got %d", h.emergencies)
	}
	texts := h.emittedTexts()
	if texts[len(texts)-1] != "Please stay with me. You matter." {
		t.Fatalf("expected the AI-authored reply to be kept, got %q", texts[len(texts)-1])
	}
}

func TestAIFailureDeliversFallback(t *testing.T) {
	h := newHarness(&fakeAI{err: errors.New("model unavailable")})

	if err := h.session.Process(context.Background(), "I feel anxious"); err != nil {
		t.Fatalf("expected no error to escape Process, got %v", err)
	}
	if h.session.Processing() {
		t.Fatal("expected processing flag cleared after failure")
	}

	texts := h.emittedTexts()
	if texts[len(texts)-1] != fallbackReply {
		t.Fatalf("expected fixed fallback reply, got %q", texts[len(texts)-1])
	}
}

func TestNilAIClientDeliversFallback(t *testing.T) {
	h := newHarness(nil)
	if err := h.session.Process(context.Background(), "I feel anxious"); err != nil {
		t.Fatalf("Process err: %v", err)
	}
	texts := h.emittedTexts()
	if texts[len(texts)-1] != fallbackReply {
		t.Fatalf("expected fallback reply without an AI client, got %q", texts[len(texts)-1])
	}
}

func TestProcessingFlagHygiene(t *testing.T) {
	release := make(chan struct{})
	aiClient := &fakeAI{reply: chat.AIReply{Response: "done", RiskLevel: chat.RiskNone}, release: release}
	h := newHarness(aiClient)

	done := make(chan error, 1)
	go func() {
		done <- h.session.Process(context.Background(), "I feel anxious")
	}()

	// wait until the in-flight call reaches the model
	for i := 0; i < 100 && aiClient.callCount() == 0; i++ {
		time.Sleep(5 * time.Millisecond)
	}
	if !h.session.Processing() {
		t.Fatal("expected processing flag set while a call is in flight")
	}
	if err := h.session.Process(context.Background(), "second message"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for re-entrant call, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Process err: %v", err)
	}
	if h.session.Processing() {
		t.Fatal("expected processing flag cleared after completion")
	}
}

func TestClosedSessionDiscardsLateReply(t *testing.T) {
	release := make(chan struct{})
	aiClient := &fakeAI{reply: chat.AIReply{Response: "too late", RiskLevel: chat.RiskNone}, release: release}
	h := newHarness(aiClient)

	done := make(chan error, 1)
	go func() {
		done <- h.session.Process(context.Background(), "I feel anxious")
	}()
	for i := 0; i < 100 && aiClient.callCount() == 0; i++ {
		time.Sleep(5 * time.Millisecond)
	}

	h.session.Close()
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Process err: %v", err)
	}

	for _, text := range h.emittedTexts() {
		if text == "too late" {
			t.Fatal("expected late AI reply to be discarded after Close")
		}
	}
}

func TestStartSeedsGreetingOnce(t *testing.T) {
	h := newHarness(&fakeAI{})
	msgs := h.session.Start(context.Background())
	if len(msgs) != 1 || msgs[0].IsFromUser {
		t.Fatalf("expected a single assistant greeting, got %v", msgs)
	}

	// a second session over the same cache loads the greeting instead of
	// seeding another one
	store := conversation.NewStore(h.cache, nil, "")
	other := New("other", store, h.cache, nil, Config{Emit: func(chat.Message) {}})
	if msgs := other.Start(context.Background()); len(msgs) != 1 {
		t.Fatalf("expected history of 1 greeting, got %d messages", len(msgs))
	}
}

func TestProfilePersistedAndUsed(t *testing.T) {
	h := newHarness(&fakeAI{reply: chat.AIReply{Response: "nice to meet you", RiskLevel: chat.RiskNone}})
	ctx := context.Background()

	if err := h.session.Process(ctx, "my name is sam"); err != nil {
		t.Fatalf("Process err: %v", err)
	}

	raw, ok, _ := h.cache.Get(ctx, ProfileKey)
	if !ok {
		t.Fatal("expected persisted profile")
	}
	var persisted struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		t.Fatalf("profile is not valid JSON: %v", err)
	}
	if persisted.Name != "Sam" {
		t.Fatalf("expected persisted name Sam, got %q", persisted.Name)
	}

	if err := h.session.Process(ctx, "hello"); err != nil {
		t.Fatalf("Process err: %v", err)
	}
	texts := h.emittedTexts()
	if !strings.Contains(texts[len(texts)-1], "Sam") {
		t.Fatalf("expected personalized greeting, got %q", texts[len(texts)-1])
	}
}

func TestMoodTracksLastSignal(t *testing.T) {
	h := newHarness(&fakeAI{reply: chat.AIReply{Response: "ok", RiskLevel: chat.RiskNone}})
	ctx := context.Background()

	_ = h.session.Process(ctx, "I had a great day")
	if h.session.Mood() != "positive" {
		t.Fatalf("expected positive mood, got %s", h.session.Mood())
	}

	_ = h.session.Process(ctx, "now I'm exhausted")
	if h.session.Mood() != "tired" {
		t.Fatalf("expected tired mood to overwrite, got %s", h.session.Mood())
	}
}
