// Package kv provides the durable key-value store backing the conversation
// cache and the user profile. Both adapters keep the same contract: Get
// reports presence explicitly, Set overwrites.
package kv

import "context"

// Store is the local persistence port.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}
