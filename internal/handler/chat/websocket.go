package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/harborlight/henry/backend/internal/service/session"
)

// WebSocketHandler carries a chat session over a single socket: inbound text
// frames are processed by the engine, outbound frames are the session's
// emitted messages and alerts.
type WebSocketHandler struct {
	chat     *Handler
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates the websocket transport over the chat handler.
func NewWebSocketHandler(chat *Handler) *WebSocketHandler {
	return &WebSocketHandler{
		chat: chat,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes wires the websocket endpoint.
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundFrame struct {
	Text string `json:"text"`
}

type outboundFrame struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, ok := h.chat.manager.Get(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	sessionHub := h.chat.hubFor(sessionID)
	if sessionHub == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := sessionHub.subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	go h.writeLoop(ctx, conn, events)
	h.readLoop(ctx, conn, sess)
}

func (h *WebSocketHandler) writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			frame := outboundFrame{Type: evt.Type, Data: evt, Timestamp: time.Now().UnixMilli()}
			if err := conn.WriteJSON(frame); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

func (h *WebSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			// tolerate bare text frames
			frame.Text = string(raw)
		}

		switch err := sess.Process(ctx, frame.Text); {
		case errors.Is(err, session.ErrBusy):
			_ = conn.WriteJSON(outboundFrame{Type: "busy", Error: err.Error(), Timestamp: time.Now().UnixMilli()})
		case errors.Is(err, session.ErrClosed):
			return
		case err != nil:
			log.Warn().Err(err).Msg("websocket message processing failed")
		}
	}
}
