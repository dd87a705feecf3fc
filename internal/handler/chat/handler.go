package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	model "github.com/harborlight/henry/backend/internal/model/chat"
	"github.com/harborlight/henry/backend/internal/service/session"
	"github.com/harborlight/henry/backend/pkg/utils"
)

// Handler exposes the conversation engine over HTTP.
type Handler struct {
	manager *session.Manager
	factory *session.Factory

	mu   sync.Mutex
	hubs map[string]*hub
}

// New creates the chat handler.
func New(manager *session.Manager, factory *session.Factory) *Handler {
	return &Handler{
		manager: manager,
		factory: factory,
		hubs:    make(map[string]*hub),
	}
}

// RegisterRoutes wires the chat endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleOpenSession)
	r.Get("/session/{sessionID}/messages", h.handleTranscript)
	r.Post("/session/{sessionID}/messages", h.handleSendMessage)
	r.Delete("/session/{sessionID}", h.handleCloseSession)
	r.Get("/stream/{sessionID}", h.handleStream)
}

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OwnerID string `json:"ownerId"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	sessionHub := newHub()
	sess := h.factory.Open(payload.OwnerID, session.Config{
		Emit: func(msg model.Message) {
			sessionHub.publish(Event{Type: eventMessage, Message: &msg})
		},
		Notify: func(alert session.Alert) {
			sessionHub.publish(Event{Type: eventAlert, Alert: &alert})
		},
		OnEmergency: func() {
			log.Warn().Msg("emergency detected in conversation")
		},
	})

	msgs := sess.Start(r.Context())
	h.manager.Add(sess)
	h.mu.Lock()
	h.hubs[sess.ID()] = sessionHub
	h.mu.Unlock()

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"sessionId": sess.ID(),
		"messages":  msgs,
	})
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.manager.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"messages":        sess.Transcript(),
		"mood":            sess.Mood(),
		"emergencyActive": sess.EmergencyActive(),
	})
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.manager.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	before := len(sess.Transcript())
	err := sess.Process(r.Context(), payload.Text)
	switch {
	case errors.Is(err, session.ErrBusy):
		utils.RespondError(w, http.StatusConflict, "a message is already being processed")
		return
	case errors.Is(err, session.ErrClosed):
		utils.RespondError(w, http.StatusGone, "session is closed")
		return
	case err != nil:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	transcript := sess.Transcript()
	if before > len(transcript) {
		before = len(transcript)
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"messages":        transcript[before:],
		"emergencyActive": sess.EmergencyActive(),
	})
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, ok := h.manager.Remove(id)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	sess.Close()
	h.mu.Lock()
	if sessionHub, ok := h.hubs[id]; ok {
		sessionHub.close()
		delete(h.hubs, id)
	}
	h.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if _, ok := h.manager.Get(id); !ok {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	h.mu.Lock()
	sessionHub := h.hubs[id]
	h.mu.Unlock()
	if sessionHub == nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	events, cancel := sessionHub.subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	utils.SendSSEEvent(w, flusher, "status", map[string]string{"message": "stream established"})

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			utils.SendSSEEvent(w, flusher, evt.Type, evt)
		}
	}
}

func (h *Handler) hubFor(id string) *hub {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hubs[id]
}
