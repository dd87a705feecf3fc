package conversation

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harborlight/henry/backend/internal/model/chat"
)

// CacheKey is the local store key holding the serialized conversation log.
const CacheKey = "henryConversationContext"

const (
	// syncBatch batches remote writes: a sync runs only when the log length
	// is a non-zero multiple of this, and ships exactly this many trailing
	// messages. A crash between appends can therefore under-persist up to
	// syncBatch-1 messages remotely; that loss is accepted.
	syncBatch = 3

	// remoteLoadLimit bounds how much history is pulled on load.
	remoteLoadLimit = 20
)

// Record mirrors one remote conversation row. MessageCount is a cache of the
// local count at last sync, not a server-side aggregate, so it can drift.
type Record struct {
	ID            string
	OwnerID       string
	LastMessageAt time.Time
	MessageCount  int
}

// Archive is the durable remote conversation repository port.
type Archive interface {
	LatestByOwner(ctx context.Context, ownerID string) (*Record, error)
	Create(ctx context.Context, ownerID string) (*Record, error)
	Touch(ctx context.Context, id string, lastMessageAt time.Time, messageCount int) error
	InsertMessages(ctx context.Context, conversationID string, msgs []chat.Message) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error)
}

// Cache is the fast local key-value port. It matches kv.Store; redeclared
// here so the facade depends only on what it uses.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Store is the append-only ordered conversation log, dual-persisted to a fast
// local cache and a durable remote archive. The local write happens
// synchronously on every append; the remote sync is batched and
// fire-and-forget. Remote calls are no-ops without an owner identity.
type Store struct {
	mu      sync.Mutex
	cache   Cache
	archive Archive
	ownerID string
	logbook []chat.Message

	syncing sync.WaitGroup
}

// NewStore builds a Store. archive may be nil and ownerID may be empty; both
// degrade the store to local-only persistence.
func NewStore(cache Cache, archive Archive, ownerID string) *Store {
	return &Store{cache: cache, archive: archive, ownerID: ownerID}
}

// Load hydrates the in-memory log. Remote history wins when present; the
// local cache is the fallback; a corrupt cache counts as absent. Load never
// fails; every error degrades to a smaller (possibly empty) log.
func (s *Store) Load(ctx context.Context) []chat.Message {
	if msgs := s.loadRemote(ctx); len(msgs) > 0 {
		s.replace(msgs)
		return s.Messages()
	}
	if msgs := s.loadLocal(ctx); len(msgs) > 0 {
		s.replace(msgs)
	}
	return s.Messages()
}

func (s *Store) loadRemote(ctx context.Context) []chat.Message {
	if s.archive == nil || s.ownerID == "" {
		return nil
	}

	record, err := s.archive.LatestByOwner(ctx, s.ownerID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to look up remote conversation, falling back to cache")
		return nil
	}
	if record == nil {
		return nil
	}

	msgs, err := s.archive.RecentMessages(ctx, record.ID, remoteLoadLimit)
	if err != nil {
		log.Warn().Err(err).Str("conversation", record.ID).Msg("failed to load remote messages, falling back to cache")
		return nil
	}
	return msgs
}

func (s *Store) loadLocal(ctx context.Context) []chat.Message {
	raw, ok, err := s.cache.Get(ctx, CacheKey)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read conversation cache")
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	var msgs []chat.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		log.Warn().Err(err).Msg("conversation cache is corrupt, treating as empty")
		return nil
	}
	return msgs
}

// Append adds msg to the log, rewrites the full log to the local cache and
// triggers a remote sync when one is due. The in-memory append is atomic with
// respect to concurrent readers; persistence failures are logged, never
// returned.
func (s *Store) Append(ctx context.Context, msg chat.Message) {
	s.mu.Lock()
	s.logbook = append(s.logbook, msg)
	snapshot := make([]chat.Message, len(s.logbook))
	copy(snapshot, s.logbook)
	s.mu.Unlock()

	raw, err := json.Marshal(snapshot)
	if err != nil {
		log.Error().Err(err).Msg("failed to serialize conversation log")
	} else if err := s.cache.Set(ctx, CacheKey, string(raw)); err != nil {
		log.Warn().Err(err).Msg("failed to write conversation cache")
	}

	if len(snapshot)%syncBatch != 0 {
		return
	}

	s.syncing.Add(1)
	go func() {
		defer s.syncing.Done()
		// Detached from the request context so teardown can't cancel a sync
		// that the user-facing flow has already moved past.
		s.syncRemote(context.Background(), snapshot)
	}()
}

func (s *Store) syncRemote(ctx context.Context, snapshot []chat.Message) {
	if s.archive == nil || s.ownerID == "" {
		return
	}

	record, err := s.archive.LatestByOwner(ctx, s.ownerID)
	if err != nil {
		log.Warn().Err(err).Msg("remote sync: conversation lookup failed")
		return
	}
	if record == nil {
		record, err = s.archive.Create(ctx, s.ownerID)
		if err != nil {
			log.Warn().Err(err).Msg("remote sync: conversation create failed")
			return
		}
	}

	last := snapshot[len(snapshot)-1]
	if err := s.archive.Touch(ctx, record.ID, last.Timestamp, len(snapshot)); err != nil {
		log.Warn().Err(err).Str("conversation", record.ID).Msg("remote sync: record update failed")
		return
	}

	tail := snapshot[len(snapshot)-syncBatch:]
	if err := s.archive.InsertMessages(ctx, record.ID, tail); err != nil {
		log.Warn().Err(err).Str("conversation", record.ID).Msg("remote sync: message insert failed")
	}
}

// Flush blocks until in-flight remote syncs finish. Used on shutdown and in
// tests; the user-facing flow never waits on it.
func (s *Store) Flush() {
	s.syncing.Wait()
}

// Messages returns a copy of the ordered log.
func (s *Store) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.logbook))
	copy(out, s.logbook)
	return out
}

// Len reports the current log length.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logbook)
}

func (s *Store) replace(msgs []chat.Message) {
	s.mu.Lock()
	s.logbook = msgs
	s.mu.Unlock()
}
