// Package query caches the results of individual logical read operations.
//
// Request types opt in by implementing [Cacheable]; anything else passes
// through the stage untouched. This replaces metadata-attribute lookups with
// an explicit capability check resolved by a plain type assertion.
package query

import (
	"context"
	"reflect"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Keksclan/goRawrCache/cache"
)

// Policy describes how a cacheable request's results are stored.
type Policy struct {
	// TTL bounds the staleness of a cached result. Non-positive disables
	// caching for the request.
	TTL time.Duration

	// Tags name the invalidation groups the result belongs to, typically the
	// resource type and, for detail lookups, "type:id".
	Tags []string

	// PerCaller folds the caller's identity into the cache key. Required
	// whenever the same request returns caller-specific (role-filtered)
	// results; leaving it off keeps the cache shared across callers.
	PerCaller bool
}

// Cacheable marks a request type as eligible for result caching and declares
// how to cache it.
type Cacheable interface {
	// CachePolicy returns the TTL, tags and key variation for this request.
	CachePolicy() Policy

	// CacheKeyParams returns the parameter values that identify this request.
	// Identical params must describe an identical logical request.
	CacheKeyParams() map[string]string
}

// Handler executes one logical read operation.
type Handler[Req, Res any] func(ctx context.Context, req Req) (Res, error)

// Option configures a cached stage.
type Option func(*options)

type options struct {
	log zerolog.Logger
}

// WithLogger sets the logger for codec failures.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// Cached wraps next with result caching. name identifies the logical
// operation inside cache keys (e.g. "People.List").
//
// Requests that do not implement [Cacheable] invoke next directly with no
// cache interaction. For cacheable requests a hit returns the stored result
// without invoking next; a miss invokes next and stores any non-nil result.
// Errors from next propagate unchanged and are never cached: caching a
// failure would make it sticky for the TTL. Store or codec trouble always
// degrades to a miss.
func Cached[Req, Res any](name string, store cache.Store, keys *cache.KeyGenerator, next Handler[Req, Res], opts ...Option) Handler[Req, Res] {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	return func(ctx context.Context, req Req) (Res, error) {
		c, ok := any(req).(Cacheable)
		if !ok {
			return next(ctx, req)
		}
		pol := c.CachePolicy()
		if pol.TTL <= 0 {
			return next(ctx, req)
		}

		var callerID string
		if pol.PerCaller {
			if caller, ok := CallerFrom(ctx); ok {
				callerID = caller.cacheKey()
			}
		}
		key := keys.ForRequest(name, c.CacheKeyParams(), callerID)

		if raw, hit, err := store.Get(ctx, key); err == nil && hit {
			var res Res
			if err := msgpack.Unmarshal(raw, &res); err == nil {
				return res, nil
			}
			o.log.Debug().Str("key", key).Msg("query: cached result undecodable, treating as miss")
		}

		res, err := next(ctx, req)
		if err != nil {
			return res, err
		}
		if isNil(res) {
			// Absence of data is not a fact worth remembering: the record
			// may exist a millisecond later.
			return res, nil
		}

		raw, err := msgpack.Marshal(res)
		if err != nil {
			o.log.Debug().Err(err).Str("key", key).Msg("query: result not serializable, write skipped")
			return res, nil
		}
		_ = store.Set(ctx, key, raw, pol.Tags, pol.TTL)
		return res, nil
	}
}

// isNil reports whether res boxes a nil pointer, map, slice or interface.
func isNil(res any) bool {
	if res == nil {
		return true
	}
	rv := reflect.ValueOf(res)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
