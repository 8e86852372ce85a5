package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// BackendConfig selects and sizes a Store backend.
type BackendConfig struct {
	// Distributed requests the Redis backend. When Redis does not answer a
	// bounded probe the in-process backend is used instead.
	Distributed   bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// MaxBytes is the total size ceiling for the in-process backend.
	MaxBytes int64
	// MaxEntryBytes caps a single cached value in the in-process backend.
	MaxEntryBytes int

	// ProbeTimeout bounds the startup reachability check. Defaults to 2s.
	ProbeTimeout time.Duration
}

// NewStore constructs the configured backend. When distributed mode is
// requested but Redis is unreachable it logs a warning and returns the
// in-process store: backend selection must never block startup or requests.
func NewStore(cfg BackendConfig, log zerolog.Logger) (Store, error) {
	if cfg.Distributed {
		rs := NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, WithRedisLogger(log))

		timeout := cfg.ProbeTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		err := rs.Ping(ctx)
		if err == nil {
			return rs, nil
		}
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).
			Msg("cache: distributed backend unreachable, falling back to in-process store")
		_ = rs.Close()
	}

	return NewMemory(cfg.MaxBytes,
		WithMemoryLogger(log),
		WithMaxEntryBytes(cfg.MaxEntryBytes),
	)
}
