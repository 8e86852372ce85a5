package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Keksclan/goRawrCache/internal/breaker"
)

// tagKeyPrefix namespaces the per-tag member sets so they can never collide
// with entry keys.
const tagKeyPrefix = "tag:"

// Redis is a Store shared across instances, backed by a Redis server. Tag
// membership is a server-side set per tag.
//
// All operations fail soft and make a single attempt with bounded timeouts;
// a circuit breaker skips Redis entirely for a cool-down period after
// consecutive failures so a dead backend stops costing dial latency.
type Redis struct {
	rdb *redis.Client
	log zerolog.Logger
	br  *breaker.Breaker
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithRedisLogger sets the logger used for backend failures.
func WithRedisLogger(log zerolog.Logger) RedisOption {
	return func(s *Redis) { s.log = log }
}

// WithRedisBreaker replaces the default circuit breaker.
func WithRedisBreaker(br *breaker.Breaker) RedisOption {
	return func(s *Redis) { s.br = br }
}

// NewRedis creates a Redis-backed store. Timeouts are fixed and short: the
// cache sits on the request path, so blocking on a slow backend is worse
// than recomputing.
func NewRedis(addr, password string, db int, opts ...RedisOption) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaxRetries:   -1, // single attempt; fallback-to-miss beats retrying
	})
	s := &Redis{
		rdb: rdb,
		log: zerolog.Nop(),
		br:  breaker.New(breaker.Config{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get retrieves a value by key. Returns (nil, false, nil) on a miss or when
// Redis is unreachable.
func (s *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !s.br.Allow() {
		return nil, false, nil
	}
	val, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.br.OnSuccess()
			return nil, false, nil
		}
		s.br.OnFailure()
		s.log.Debug().Err(err).Str("key", key).Msg("cache: redis get failed, treating as miss")
		return nil, false, nil
	}
	s.br.OnSuccess()
	return val, true, nil
}

// Set stores a value and registers it in each tag's member set before
// returning. Every tag set's expiry is refreshed to the longer of its
// remaining TTL and the new member's TTL, so a short-lived Set can never
// shorten the invalidation reach of a longer-lived member, while the set
// still dies with its last member instead of growing forever.
func (s *Redis) Set(ctx context.Context, key string, val []byte, tags []string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if !s.br.Allow() {
		return nil
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key, val, ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, tagKeyPrefix+tag, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.br.OnFailure()
		s.log.Warn().Err(err).Str("key", key).Msg("cache: redis set failed, value not cached")
		return nil
	}

	for _, tag := range tags {
		tk := tagKeyPrefix + tag
		remaining, err := s.rdb.PTTL(ctx, tk).Result()
		if err != nil {
			s.log.Debug().Err(err).Str("tag", tag).Msg("cache: tag ttl lookup failed")
			continue
		}
		// Negative remaining covers both "no expiry set" and "key vanished".
		if remaining < ttl {
			s.rdb.PExpire(ctx, tk, ttl)
		}
	}

	s.br.OnSuccess()
	return nil
}

// EvictByTag reads the tag's member set, bulk-deletes all members, then
// deletes the set itself. Safe to call for tags with no members.
func (s *Redis) EvictByTag(ctx context.Context, tag string) error {
	if !s.br.Allow() {
		return nil
	}
	tk := tagKeyPrefix + tag

	members, err := s.rdb.SMembers(ctx, tk).Result()
	if err != nil {
		s.br.OnFailure()
		s.log.Warn().Err(err).Str("tag", tag).Msg("cache: redis tag lookup failed, eviction skipped")
		return nil
	}
	if len(members) > 0 {
		if err := s.rdb.Del(ctx, members...).Err(); err != nil {
			s.br.OnFailure()
			s.log.Warn().Err(err).Str("tag", tag).Msg("cache: redis bulk delete failed")
			return nil
		}
	}
	if err := s.rdb.Del(ctx, tk).Err(); err != nil {
		s.log.Debug().Err(err).Str("tag", tag).Msg("cache: tag set delete failed")
	}

	s.br.OnSuccess()
	return nil
}

// Ping checks the Redis connection.
func (s *Redis) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (s *Redis) Close() error {
	return s.rdb.Close()
}
