package cache

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog"
)

// memEntry wraps a stored value with its absolute deadline. Ristretto evicts
// expired entries lazily, so Get re-checks the deadline before serving.
type memEntry struct {
	val       []byte
	expiresAt time.Time
}

// Memory is an in-process Store backed by ristretto. Entry cost is the value
// size in bytes, accounted against a configured total ceiling. Tag membership
// is kept in an auxiliary map guarded by a mutex.
type Memory struct {
	rc  *ristretto.Cache[string, memEntry]
	log zerolog.Logger
	now func() time.Time

	maxEntryBytes int

	mu   sync.Mutex
	tags map[string]map[string]struct{}
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithMemoryLogger sets the logger used for skipped writes.
func WithMemoryLogger(log zerolog.Logger) MemoryOption {
	return func(m *Memory) { m.log = log }
}

// WithMemoryClock overrides the time source used for expiry checks.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithMaxEntryBytes caps the size of a single cached value. Larger values are
// skipped on Set. Zero means no per-entry cap.
func WithMaxEntryBytes(n int) MemoryOption {
	return func(m *Memory) { m.maxEntryBytes = n }
}

// NewMemory creates a Memory store holding at most maxBytes of cached values.
func NewMemory(maxBytes int64, opts ...MemoryOption) (*Memory, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, memEntry]{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	m := &Memory{
		rc:   rc,
		log:  zerolog.Nop(),
		now:  time.Now,
		tags: make(map[string]map[string]struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Get retrieves a value by key. Entries whose deadline has passed are treated
// as misses and deleted, regardless of whether ristretto has swept them yet.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := m.rc.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		m.rc.Del(key)
		return nil, false, nil
	}
	return bytes.Clone(e.val), true, nil
}

// Set stores a value under key. Values above the per-entry cap are skipped:
// the response is still served, it just isn't cached.
func (m *Memory) Set(_ context.Context, key string, val []byte, tags []string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if m.maxEntryBytes > 0 && len(val) > m.maxEntryBytes {
		m.log.Debug().Str("key", key).Int("size", len(val)).Msg("cache: value exceeds per-entry cap, not cached")
		return nil
	}

	// Register tag membership before the entry becomes visible so an eviction
	// racing this Set can only over-evict, never miss the new key.
	if len(tags) > 0 {
		m.mu.Lock()
		for _, tag := range tags {
			set, ok := m.tags[tag]
			if !ok {
				set = make(map[string]struct{})
				m.tags[tag] = set
			}
			set[key] = struct{}{}
		}
		m.mu.Unlock()
	}

	e := memEntry{val: bytes.Clone(val), expiresAt: m.now().Add(ttl)}
	admitted := m.rc.SetWithTTL(key, e, int64(len(val)), ttl)
	if admitted {
		m.rc.Wait()
		// Admission can still reject the write during Wait; re-check so the
		// tag index never references a key that was not admitted.
		_, admitted = m.rc.Get(key)
	}
	if !admitted {
		m.log.Debug().Str("key", key).Msg("cache: value rejected by admission policy, not cached")
		m.dropTagMembership(key, tags)
	}
	return nil
}

// dropTagMembership unregisters key from each tag's member set.
func (m *Memory) dropTagMembership(key string, tags []string) {
	if len(tags) == 0 {
		return
	}
	m.mu.Lock()
	for _, tag := range tags {
		if set, ok := m.tags[tag]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(m.tags, tag)
			}
		}
	}
	m.mu.Unlock()
}

// EvictByTag removes every entry carrying tag. Deleting keys ristretto has
// already swept is harmless, which is also how the index sheds members that
// expired before their tag was evicted.
func (m *Memory) EvictByTag(_ context.Context, tag string) error {
	m.mu.Lock()
	set := m.tags[tag]
	delete(m.tags, tag)
	m.mu.Unlock()

	for key := range set {
		m.rc.Del(key)
	}
	return nil
}

// Close releases ristretto's internal goroutines.
func (m *Memory) Close() error {
	m.rc.Close()
	return nil
}
