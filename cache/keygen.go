package cache

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator delimits cache key segments.
const KeySeparator = "::"

// maxKeyLen is the longest key emitted verbatim; anything longer collapses to
// a digest so backends never see unbounded key sizes.
const maxKeyLen = 200

// KeyGenerator maps a logical request to a stable string key. It is a pure
// function of its inputs: identical inputs always yield identical keys, and
// distinct parameter values yield distinct keys (xxhash digests for long
// inputs, collision-resistant rather than cryptographic).
type KeyGenerator struct {
	prefix string
}

// NewKeyGenerator creates a KeyGenerator. The optional prefix namespaces all
// keys, which keeps instances sharing a Redis database out of each other's way.
func NewKeyGenerator(prefix string) *KeyGenerator {
	return &KeyGenerator{prefix: prefix}
}

// ForRequest builds a key from the request type, its parameters (sorted for
// determinism) and, when non-empty, the caller's identity. Caller identity
// belongs in the key whenever the same logical query returns caller-specific
// results; leaving it out keeps the cache shared across callers.
func (g *KeyGenerator) ForRequest(requestType string, params map[string]string, caller string) string {
	parts := make([]string, 0, len(params)+3)
	if g.prefix != "" {
		parts = append(parts, g.prefix)
	}
	parts = append(parts, requestType)

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, name+"="+params[name])
	}

	if caller != "" {
		parts = append(parts, "caller="+caller)
	}

	key := strings.Join(parts, KeySeparator)
	if len(key) <= maxKeyLen {
		return key
	}

	short := parts[:0]
	if g.prefix != "" {
		short = append(short, g.prefix)
	}
	short = append(short, requestType, fmt.Sprintf("%016x", xxhash.Sum64String(key)))
	return strings.Join(short, KeySeparator)
}
