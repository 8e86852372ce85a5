// Package gorawrcache wires a two-tier response caching and invalidation
// pipeline around net/http handlers: a whole-response cache with named
// per-resource policies, a query-result cache for individual read
// operations, conditional GET evaluation, and tag-based invalidation driven
// by mutations. Backends are pluggable: in-process (ristretto) or
// distributed (Redis) with automatic fallback.
package gorawrcache

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the environment-driven configuration surface.
type Config struct {
	// Distributed selects the Redis backend. When Redis is unreachable at
	// startup the in-process backend is used instead.
	Distributed   bool   `env:"CACHE_DISTRIBUTED" envDefault:"false"`
	RedisAddr     string `env:"CACHE_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"CACHE_REDIS_PASSWORD"`
	RedisDB       int    `env:"CACHE_REDIS_DB" envDefault:"0"`

	// MaxBytes is the global cache size ceiling for the in-process backend.
	MaxBytes int64 `env:"CACHE_MAX_BYTES" envDefault:"67108864"`

	// MaxEntryBytes caps a single cached response; larger responses are
	// served but not cached.
	MaxEntryBytes int `env:"CACHE_MAX_ENTRY_BYTES" envDefault:"1048576"`

	// DefaultTTLSeconds applies to policies that declare no TTL of their own.
	DefaultTTLSeconds int `env:"CACHE_DEFAULT_TTL_SECONDS" envDefault:"60"`

	// DisableResponseCache bypasses the HTTP response cache layer entirely,
	// for deterministic testing without cache interference.
	DisableResponseCache bool `env:"CACHE_DISABLE_RESPONSE_CACHE" envDefault:"false"`

	// KeyPrefix namespaces all cache keys.
	KeyPrefix string `env:"CACHE_KEY_PREFIX" envDefault:"rawrcache"`
}

// DefaultConfig returns the configuration used when the environment supplies
// nothing.
func DefaultConfig() Config {
	return Config{
		RedisAddr:         "localhost:6379",
		MaxBytes:          64 << 20,
		MaxEntryBytes:     1 << 20,
		DefaultTTLSeconds: 60,
		KeyPrefix:         "rawrcache",
	}
}

// LoadConfig parses the configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultTTL returns the default TTL as a duration.
func (c Config) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}
