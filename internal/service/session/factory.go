package session

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/harborlight/henry/backend/internal/service/ai"
	"github.com/harborlight/henry/backend/internal/service/conversation"
	"github.com/harborlight/henry/backend/internal/storage/kv"
)

// Factory bundles the process-wide collaborators and stamps out sessions.
type Factory struct {
	Cache       kv.Store
	Archive     conversation.Archive
	AI          ai.Client
	TypingDelay time.Duration
}

// Open builds a session for the given owner. An empty ownerID degrades the
// conversation store to local-only persistence.
func (f *Factory) Open(ownerID string, cfg Config) *Session {
	if cfg.TypingDelay == 0 {
		cfg.TypingDelay = f.TypingDelay
	}
	if cfg.RNG == nil {
		cfg.RNG = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	store := conversation.NewStore(f.Cache, f.Archive, ownerID)
	return New(uuid.NewString(), store, f.Cache, f.AI, cfg)
}
