// Package cache provides a pluggable key→bytes store with per-entry TTLs and
// tag-based bulk eviction. Two interchangeable backends implement the same
// contract: an in-process store backed by ristretto and a distributed store
// backed by Redis.
package cache

import (
	"context"
	"time"
)

// Store is the caching contract the rest of the module builds on.
//
// All implementations are fail-soft: a missing key is a normal outcome, and
// backend trouble (unreachable Redis, oversized value) is logged and absorbed
// rather than surfaced, because caching must never fail an otherwise
// successful request.
type Store interface {
	// Get retrieves a value by key. The boolean indicates a cache hit. An
	// entry past its TTL is never returned, even if the backend has not yet
	// physically evicted it.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value under key with the given TTL and associates it with
	// every tag in tags. Whole-value replacement: there are no partial
	// updates. A non-positive TTL drops the write.
	Set(ctx context.Context, key string, val []byte, tags []string, ttl time.Duration) error

	// EvictByTag removes every entry associated with tag. Evicting a tag
	// that has no members is a no-op, not an error.
	EvictByTag(ctx context.Context, tag string) error
}

// Closer is implemented by stores holding external connections.
type Closer interface {
	Close() error
}
