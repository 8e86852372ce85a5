package gorawrcache_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gorawrcache "github.com/Keksclan/goRawrCache"
	"github.com/Keksclan/goRawrCache/cache"
	"github.com/Keksclan/goRawrCache/conditional"
	"github.com/Keksclan/goRawrCache/httpcache"
)

type role struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Created time.Time `json:"createdAt"`
	Updated time.Time `json:"updatedAt"`
}

func (r role) CreatedTime() time.Time { return r.Created }
func (r role) UpdatedTime() time.Time { return r.Updated }

// rolesApp is a minimal CRUD backend: one resource type, one record,
// hand-controlled timestamps so validator comparisons are deterministic.
type rolesApp struct {
	mu        sync.Mutex
	current   *role
	listCalls atomic.Int32
}

func (a *rolesApp) router() http.Handler {
	mux := chi.NewRouter()
	mux.Get("/api/roles", func(w http.ResponseWriter, r *http.Request) {
		a.listCalls.Add(1)
		a.mu.Lock()
		var roles []role
		if a.current != nil {
			roles = append(roles, *a.current)
		}
		a.mu.Unlock()

		conditional.SetLastModified(w, conditional.LastModified(time.Now(), roles...))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(roles)
	})
	mux.Post("/api/roles", func(w http.ResponseWriter, r *http.Request) {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		a.mu.Lock()
		a.current = &role{ID: "1", Name: "admin", Created: now, Updated: now}
		a.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	mux.Put("/api/roles/{id}", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		if a.current != nil {
			a.current.Name = "superadmin"
			a.current.Updated = a.current.Updated.Add(time.Hour)
		}
		a.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func rolesPolicies() []*httpcache.RouteBuilder {
	return []*httpcache.RouteBuilder{
		httpcache.Route("Roles").Prefix("/api/roles").Policy(httpcache.Policy{
			TTL: time.Minute,
			Tag: "Roles",
		}),
	}
}

func newPipeline(t *testing.T, opts ...gorawrcache.Option) *gorawrcache.Pipeline {
	t.Helper()
	store, err := cache.NewMemory(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	p, err := gorawrcache.New(append([]gorawrcache.Option{
		gorawrcache.WithStore(store),
		gorawrcache.WithPolicies(rolesPolicies()...),
	}, opts...)...)
	require.NoError(t, err)
	return p
}

func do(h http.Handler, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// Scenario A: create → list (miss) → list (hit) → mutate → list (miss again).
func TestPipeline_MutationInvalidatesListViews(t *testing.T) {
	app := &rolesApp{}
	h := newPipeline(t).Handler(app.router())

	require.Equal(t, http.StatusCreated, do(h, http.MethodPost, "/api/roles", nil).Code)

	first := do(h, http.MethodGet, "/api/roles", nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.EqualValues(t, 1, app.listCalls.Load())

	second := do(h, http.MethodGet, "/api/roles", nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String(), "cached list is byte-identical")
	assert.EqualValues(t, 1, app.listCalls.Load(), "second list served from cache")

	require.Equal(t, http.StatusNoContent, do(h, http.MethodPut, "/api/roles/1", nil).Code)

	third := do(h, http.MethodGet, "/api/roles", nil)
	require.Equal(t, http.StatusOK, third.Code)
	assert.EqualValues(t, 2, app.listCalls.Load(), "mutation evicted the cached list")
	assert.Contains(t, third.Body.String(), "superadmin")
}

// Scenario B: a matching If-None-Match yields 304 with no body and an
// unchanged ETag.
func TestPipeline_ConditionalGetWithETag(t *testing.T) {
	app := &rolesApp{}
	h := newPipeline(t).Handler(app.router())
	do(h, http.MethodPost, "/api/roles", nil)

	first := do(h, http.MethodGet, "/api/roles", nil)
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	second := do(h, http.MethodGet, "/api/roles", map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, second.Code)
	assert.Zero(t, second.Body.Len())
	assert.Equal(t, etag, second.Header().Get("ETag"))
	assert.EqualValues(t, 1, app.listCalls.Load(), "304 came from the response cache")
}

// Scenario C: after a mutation the old If-Modified-Since no longer holds and
// the full response carries a newer Last-Modified.
func TestPipeline_ConditionalGetWithLastModified(t *testing.T) {
	app := &rolesApp{}
	h := newPipeline(t).Handler(app.router())
	do(h, http.MethodPost, "/api/roles", nil)

	first := do(h, http.MethodGet, "/api/roles", nil)
	lastMod := first.Header().Get("Last-Modified")
	require.NotEmpty(t, lastMod)

	unchanged := do(h, http.MethodGet, "/api/roles", map[string]string{"If-Modified-Since": lastMod})
	assert.Equal(t, http.StatusNotModified, unchanged.Code)

	do(h, http.MethodPut, "/api/roles/1", nil)

	changed := do(h, http.MethodGet, "/api/roles", map[string]string{"If-Modified-Since": lastMod})
	assert.Equal(t, http.StatusOK, changed.Code, "stale validator gets the full response")
	newLastMod := changed.Header().Get("Last-Modified")
	assert.NotEqual(t, lastMod, newLastMod)
	assert.NotZero(t, changed.Body.Len())
}

// Scenario D: with the distributed backend configured but unreachable,
// requests still succeed with no error surfaced.
func TestPipeline_UnreachableDistributedBackendDegrades(t *testing.T) {
	cfg := gorawrcache.DefaultConfig()
	cfg.Distributed = true
	cfg.RedisAddr = "127.0.0.1:1"

	app := &rolesApp{}
	p, err := gorawrcache.New(
		gorawrcache.WithConfig(cfg),
		gorawrcache.WithPolicies(rolesPolicies()...),
	)
	require.NoError(t, err, "fallback selection must not fail startup")
	t.Cleanup(func() { _ = p.Close() })
	h := p.Handler(app.router())

	do(h, http.MethodPost, "/api/roles", nil)
	first := do(h, http.MethodGet, "/api/roles", nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := do(h, http.MethodGet, "/api/roles", nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.EqualValues(t, 1, app.listCalls.Load(), "fallback store still caches")
}

func TestPipeline_ConfigDefaultTTLAppliesToPolicies(t *testing.T) {
	app := &rolesApp{}
	p, err := gorawrcache.New(
		gorawrcache.WithPolicies(
			httpcache.Route("Roles").Prefix("/api/roles").Policy(httpcache.Policy{Tag: "Roles"}),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	h := p.Handler(app.router())

	do(h, http.MethodPost, "/api/roles", nil)
	first := do(h, http.MethodGet, "/api/roles", nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "max-age=60", first.Header().Get("Cache-Control"))

	do(h, http.MethodGet, "/api/roles", nil)
	assert.EqualValues(t, 1, app.listCalls.Load(), "a policy without a TTL uses the configured default")
}

func TestPipeline_ResponseCacheDisabled(t *testing.T) {
	app := &rolesApp{}
	h := newPipeline(t, gorawrcache.WithoutResponseCache()).Handler(app.router())
	do(h, http.MethodPost, "/api/roles", nil)

	do(h, http.MethodGet, "/api/roles", nil)
	do(h, http.MethodGet, "/api/roles", nil)
	assert.EqualValues(t, 2, app.listCalls.Load(), "every request reaches the handler")

	// Conditional evaluation still works without the response cache.
	first := do(h, http.MethodGet, "/api/roles", nil)
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)
	rr := do(h, http.MethodGet, "/api/roles", map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, rr.Code)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("CACHE_DISTRIBUTED", "true")
	t.Setenv("CACHE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("CACHE_MAX_ENTRY_BYTES", "2048")
	t.Setenv("CACHE_DISABLE_RESPONSE_CACHE", "true")

	cfg, err := gorawrcache.LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Distributed)
	assert.Equal(t, "redis.internal:6380", cfg.RedisAddr)
	assert.Equal(t, 2048, cfg.MaxEntryBytes)
	assert.True(t, cfg.DisableResponseCache)
	assert.Equal(t, 60*time.Second, cfg.DefaultTTL(), "unset values keep their defaults")
}
