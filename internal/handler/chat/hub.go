package chat

import (
	"sync"

	"github.com/harborlight/henry/backend/internal/model/chat"
	"github.com/harborlight/henry/backend/internal/service/session"
)

// Event is one item on a session's outbound stream: either an emitted
// message or an emergency alert.
type Event struct {
	Type    string         `json:"type"`
	Message *chat.Message  `json:"message,omitempty"`
	Alert   *session.Alert `json:"alert,omitempty"`
}

const (
	eventMessage = "message"
	eventAlert   = "alert"
)

// hub fans one session's emissions out to however many SSE/WebSocket
// subscribers are attached. Slow subscribers are skipped rather than allowed
// to stall the engine.
type hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan Event]struct{})}
}

func (h *hub) publish(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
