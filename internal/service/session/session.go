package session

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harborlight/henry/backend/internal/analysis/crisis"
	"github.com/harborlight/henry/backend/internal/analysis/intent"
	profileAnalysis "github.com/harborlight/henry/backend/internal/analysis/profile"
	"github.com/harborlight/henry/backend/internal/model/chat"
	profileModel "github.com/harborlight/henry/backend/internal/model/profile"
	"github.com/harborlight/henry/backend/internal/service/ai"
	"github.com/harborlight/henry/backend/internal/service/conversation"
	"github.com/harborlight/henry/backend/internal/storage/kv"
)

// ProfileKey is the local store key holding the serialized user profile.
const ProfileKey = "userProfile"

var (
	// ErrBusy is returned when Process is called while a previous call is
	// still in flight. Callers are expected to disable input while busy.
	ErrBusy = errors.New("a message is already being processed")

	// ErrClosed is returned when the session has been torn down.
	ErrClosed = errors.New("session is closed")
)

const greetingText = "Hi there! I'm Henry. I'm here to chat whenever you need me. How are you feeling today?"

const fallbackReply = "I'm so sorry, I'm having trouble responding right now. " +
	"If you need support, please don't wait on me: reach out to a professional directly, " +
	"or call or text 988 to talk with someone at any time."

// Alert is the toast side-channel payload raised on first emergency
// detection.
type Alert struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Severity    string        `json:"severity"`
	Duration    time.Duration `json:"duration"`
}

func emergencyAlert() Alert {
	return Alert{
		Title:       "Emergency support notified",
		Description: "This conversation has been flagged so a member of the care team can follow up right away.",
		Severity:    "destructive",
		Duration:    10 * time.Second,
	}
}

// Config carries the caller-supplied collaborators for one session.
type Config struct {
	// Emit delivers every message the engine produces (user echoes and
	// assistant replies) to the UI-facing sink. Required.
	Emit func(chat.Message)

	// Notify receives the toast alert on first emergency detection. Optional.
	Notify func(Alert)

	// OnEmergency is the side-effect hook fired once per session when
	// emergency mode is entered. Optional.
	OnEmergency func()

	// TypingDelay is the pause before locally produced replies, modelling
	// typing. Zero means no pause.
	TypingDelay time.Duration

	// RNG drives reply-variant selection; nil pins the first variant.
	RNG *rand.Rand

	// Now supplies the clock for time-of-day greetings; nil means time.Now.
	Now func() time.Time
}

// Session is the per-conversation state machine. It classifies incoming user
// text, picks exactly one of the emergency, fast-path or AI branches, and
// keeps the conversation store and user profile up to date. Emergency mode is
// sticky for the session lifetime.
type Session struct {
	id        string
	store     *conversation.Store
	cache     kv.Store
	aiClient  ai.Client
	responder *intent.Responder
	cfg       Config

	mu              sync.Mutex
	prof            profileModel.UserProfile
	mood            profileModel.Mood
	emergencyActive bool

	processing atomic.Bool
	closed     atomic.Bool
}

// New assembles a session around its conversation store. aiClient may be nil
// when the remote model is not configured; the session then answers
// non-fast-path messages with the fallback reply.
func New(id string, store *conversation.Store, cache kv.Store, aiClient ai.Client, cfg Config) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{
		id:        id,
		store:     store,
		cache:     cache,
		aiClient:  aiClient,
		responder: intent.New(cfg.RNG, cfg.Now),
		cfg:       cfg,
		mood:      profileModel.MoodNeutral,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Start loads the persisted profile and conversation history, seeding the
// greeting when the history is empty. It returns the current transcript.
func (s *Session) Start(ctx context.Context) []chat.Message {
	s.loadProfile(ctx)

	msgs := s.store.Load(ctx)
	if len(msgs) == 0 {
		greeting := chat.NewAssistantMessage(greetingText)
		s.store.Append(ctx, greeting)
		s.emit(greeting)
	}
	return s.store.Messages()
}

// Process runs one turn of the state machine. Empty input is a silent no-op.
// A call while another is in flight returns ErrBusy. Exactly one of the
// emergency, fast-path or AI branches executes; the user message is always
// appended and emitted before its reply, and the processing flag is cleared
// on every exit path.
func (s *Session) Process(ctx context.Context, rawText string) error {
	text := strings.TrimSpace(rawText)
	if text == "" {
		return nil
	}
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.processing.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.processing.Store(false)

	userMsg := chat.NewUserMessage(text)
	s.store.Append(ctx, userMsg)
	s.emit(userMsg)
	s.updateProfile(ctx, text)

	if categories := crisis.Detect(text); len(categories) > 0 && s.beginEmergency() {
		s.typingPause(ctx)
		reply := chat.NewAssistantMessage(crisis.SafetyMessage(categories))
		// The safety script must reach the user even if persistence is
		// failing, so emission comes before the store write.
		s.emit(reply)
		s.store.Append(ctx, reply)
		return nil
	}

	if fast, ok := s.responder.Reply(text, s.Profile()); ok {
		s.typingPause(ctx)
		reply := chat.NewAssistantMessage(fast)
		s.emit(reply)
		s.store.Append(ctx, reply)
		return nil
	}

	return s.processWithModel(ctx, text)
}

func (s *Session) processWithModel(ctx context.Context, text string) error {
	if s.aiClient == nil {
		s.deliverFallback(ctx)
		return nil
	}

	aiReply, err := s.aiClient.GetResponse(ctx, text, s.store.Messages())
	if s.closed.Load() {
		// The surface went away mid-call; drop the late reply instead of
		// applying it to a stale conversation.
		log.Debug().Str("session", s.id).Msg("discarding AI reply for closed session")
		return nil
	}
	if err != nil {
		log.Warn().Err(err).Str("session", s.id).Msg("AI collaborator failed, using fallback reply")
		s.deliverFallback(ctx)
		return nil
	}

	if aiReply.RiskLevel.Escalates() {
		// Unlike lexicon detection, the model's own reply is kept; only the
		// escalation side effects fire here.
		s.beginEmergency()
	}

	reply := chat.NewAssistantMessage(aiReply.Response)
	s.emit(reply)
	s.store.Append(ctx, reply)
	return nil
}

func (s *Session) deliverFallback(ctx context.Context) {
	reply := chat.NewAssistantMessage(fallbackReply)
	s.emit(reply)
	s.store.Append(ctx, reply)
}

// beginEmergency flips the sticky emergency flag. It returns true only on
// the false→true transition, which is also the only time the hook and the
// toast notification fire.
func (s *Session) beginEmergency() bool {
	s.mu.Lock()
	if s.emergencyActive {
		s.mu.Unlock()
		return false
	}
	s.emergencyActive = true
	s.mu.Unlock()

	log.Warn().Str("session", s.id).Msg("emergency mode activated")
	if s.cfg.OnEmergency != nil {
		s.cfg.OnEmergency()
	}
	if s.cfg.Notify != nil {
		s.cfg.Notify(emergencyAlert())
	}
	return true
}

func (s *Session) updateProfile(ctx context.Context, text string) {
	s.mu.Lock()
	updated, mood, found := profileAnalysis.Extract(s.prof, text)
	s.prof = updated
	if found {
		s.mood = mood
	}
	s.mu.Unlock()

	raw, err := json.Marshal(updated)
	if err != nil {
		log.Error().Err(err).Msg("failed to serialize user profile")
		return
	}
	if err := s.cache.Set(ctx, ProfileKey, string(raw)); err != nil {
		log.Warn().Err(err).Msg("failed to persist user profile")
	}
}

func (s *Session) loadProfile(ctx context.Context) {
	raw, ok, err := s.cache.Get(ctx, ProfileKey)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read user profile")
		return
	}
	if !ok || raw == "" {
		return
	}

	var prof profileModel.UserProfile
	if err := json.Unmarshal([]byte(raw), &prof); err != nil {
		log.Warn().Err(err).Msg("user profile cache is corrupt, starting fresh")
		return
	}

	s.mu.Lock()
	s.prof = prof
	s.mu.Unlock()
}

func (s *Session) typingPause(ctx context.Context) {
	if s.cfg.TypingDelay <= 0 {
		return
	}
	select {
	case <-time.After(s.cfg.TypingDelay):
	case <-ctx.Done():
	}
}

func (s *Session) emit(msg chat.Message) {
	if s.closed.Load() {
		log.Debug().Str("session", s.id).Msg("dropping emission for closed session")
		return
	}
	if s.cfg.Emit != nil {
		s.cfg.Emit(msg)
	}
}

// Transcript returns a copy of the conversation log.
func (s *Session) Transcript() []chat.Message {
	return s.store.Messages()
}

// Profile returns the current user profile.
func (s *Session) Profile() profileModel.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prof
}

// Mood returns the session-scoped mood signal.
func (s *Session) Mood() profileModel.Mood {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mood
}

// EmergencyActive reports whether the sticky emergency flag is set.
func (s *Session) EmergencyActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emergencyActive
}

// Processing reports whether a Process call is in flight.
func (s *Session) Processing() bool {
	return s.processing.Load()
}

// Close tears the session down. Pending remote syncs are drained; any reply
// still in flight is discarded on arrival.
func (s *Session) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.store.Flush()
	}
}
