package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// File is a Store backed by a single JSON document on disk. It needs no
// external service, so cached context survives restarts even when redis and
// the remote store are unavailable.
type File struct {
	mu      sync.Mutex
	path    string
	entries map[string]string
}

// NewFile opens or creates the store at path. A corrupt document is logged
// and treated as empty rather than failing startup.
func NewFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	entries := make(map[string]string)
	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// first run
	case err != nil:
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	default:
		if err := json.Unmarshal(raw, &entries); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("cache file is corrupt, starting empty")
			entries = make(map[string]string)
		}
	}

	return &File{path: path, entries: entries}, nil
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.entries[key]
	return value, ok, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries[key] = value
	raw, err := json.MarshalIndent(f.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache entries: %w", err)
	}
	if err := os.WriteFile(f.path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}
