package httpcache

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Keksclan/goRawrCache/cache"
)

// envelope is the stored form of a response: enough to replay it verbatim.
type envelope struct {
	Status int
	Header map[string][]string
	Body   []byte
}

// hop-by-hop headers never belong in a stored response.
var skipHeaders = map[string]struct{}{
	"Connection":        {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},
	"Upgrade":           {},
}

// Option configures the middleware.
type Option func(*middleware)

// WithLogger sets the logger for codec failures.
func WithLogger(log zerolog.Logger) Option {
	return func(m *middleware) { m.log = log }
}

// WithMaxEntryBytes caps the size of a cacheable response body. Larger
// responses are served but not cached. Zero means no cap here (the store may
// still enforce its own).
func WithMaxEntryBytes(n int) Option {
	return func(m *middleware) { m.maxEntryBytes = n }
}

// WithDefaultTTL applies ttl to matched policies that declare none of their
// own. Zero leaves such policies uncached.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(m *middleware) { m.defaultTTL = ttl }
}

// Disabled bypasses the layer entirely, for deterministic tests of the
// handlers underneath.
func Disabled() Option {
	return func(m *middleware) { m.disabled = true }
}

type middleware struct {
	store    cache.Store
	keys     *cache.KeyGenerator
	resolver *Resolver
	log      zerolog.Logger

	maxEntryBytes int
	defaultTTL    time.Duration
	disabled      bool
}

// New returns middleware that caches whole responses for GET/HEAD requests
// matching a resolver group. A hit replays the stored status, headers and
// body with no further processing; a miss records the downstream response
// and, when it is a 200 within the size cap, stores it under the policy's
// tag and TTL.
//
// Entries vary only by the matched rule and the attributes the policy
// declares (VaryByQuery, VaryByRoute): requests differing in anything else
// share one entry.
func New(store cache.Store, keys *cache.KeyGenerator, resolver *Resolver, opts ...Option) func(http.Handler) http.Handler {
	m := &middleware{
		store:    store,
		keys:     keys,
		resolver: resolver,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(m)
	}

	return func(next http.Handler) http.Handler {
		if m.disabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			mt, ok := m.resolver.ResolveMatch(r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			pol := mt.Policy
			if pol.TTL <= 0 {
				pol.TTL = m.defaultTTL
			}
			if pol.TTL <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := m.keys.ForRequest(mt.Group, m.varyParams(r, pol, mt), "")

			if raw, hit, err := m.store.Get(r.Context(), key); err == nil && hit {
				var env envelope
				if err := msgpack.Unmarshal(raw, &env); err == nil {
					m.replay(w, r, env, pol)
					return
				}
				m.log.Debug().Str("key", key).Msg("httpcache: stored response undecodable, treating as miss")
			}

			rec := newRecorder(w, pol.TTL)
			next.ServeHTTP(rec, r)

			if rec.status != http.StatusOK {
				return
			}
			if m.maxEntryBytes > 0 && rec.buf.Len() > m.maxEntryBytes {
				m.log.Debug().Str("key", key).Int("size", rec.buf.Len()).
					Msg("httpcache: response exceeds per-entry cap, not cached")
				return
			}

			env := envelope{Status: rec.status, Header: copyHeader(rec.Header()), Body: rec.buf.Bytes()}
			raw, err := msgpack.Marshal(&env)
			if err != nil {
				m.log.Debug().Err(err).Str("key", key).Msg("httpcache: response not serializable, write skipped")
				return
			}
			_ = m.store.Set(r.Context(), key, raw, []string{pol.Tag}, pol.TTL)
		})
	}
}

// varyParams collects the attributes that participate in the cache key: the
// matched rule's pattern, the method, and the query parameters and route
// values the policy declares. Undeclared attributes do not create distinct
// entries.
func (m *middleware) varyParams(r *http.Request, pol Policy, mt Match) map[string]string {
	params := map[string]string{
		"route":  mt.Pattern,
		"method": r.Method,
	}
	q := r.URL.Query()
	for _, name := range pol.VaryByQuery {
		if v := q.Get(name); v != "" {
			params["q:"+name] = v
		}
	}
	for _, name := range pol.VaryByRoute {
		if v := mt.Values[name]; v != "" {
			params["r:"+name] = v
		}
	}
	return params
}

// replay writes a stored response verbatim.
func (m *middleware) replay(w http.ResponseWriter, r *http.Request, env envelope, pol Policy) {
	h := w.Header()
	for name, vals := range env.Header {
		h[name] = vals
	}
	setCacheControl(h, pol.TTL)
	h.Set("Content-Length", strconv.Itoa(len(env.Body)))
	w.WriteHeader(env.Status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(env.Body)
	}
}

func copyHeader(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for name, vals := range h {
		if _, skip := skipHeaders[name]; skip {
			continue
		}
		out[name] = append([]string(nil), vals...)
	}
	return out
}
