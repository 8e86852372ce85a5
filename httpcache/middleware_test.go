package httpcache

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Keksclan/goRawrCache/cache"
)

func newStore(t *testing.T) cache.Store {
	t.Helper()
	s, err := cache.NewMemory(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func peopleResolver() *Resolver {
	return NewResolver(
		Route("People").
			Path("/api/people").
			Path("/api/people/{id}").
			Policy(Policy{
				TTL:         time.Minute,
				VaryByQuery: []string{"page"},
				VaryByRoute: []string{"id"},
				Tag:         "People",
			}),
	)
}

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func TestMiddleware_HitReplaysVerbatim(t *testing.T) {
	store := newStore(t)
	keys := cache.NewKeyGenerator("t")

	var calls atomic.Int32
	mux := chi.NewRouter()
	mux.Use(New(store, keys, peopleResolver()))
	mux.Get("/api/people", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[{"id":"1"}]`))
	})

	first := serve(t, mux, http.MethodGet, "/api/people")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "max-age=60", first.Header().Get("Cache-Control"))

	second := serve(t, mux, http.MethodGet, "/api/people")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes(), "replayed body must be byte-identical")
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, "max-age=60", second.Header().Get("Cache-Control"))

	assert.EqualValues(t, 1, calls.Load(), "second request must not reach the handler")
}

func TestMiddleware_VariesByListedQueryParamOnly(t *testing.T) {
	store := newStore(t)
	keys := cache.NewKeyGenerator("t")

	var calls atomic.Int32
	mux := chi.NewRouter()
	mux.Use(New(store, keys, peopleResolver()))
	mux.Get("/api/people", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("page " + r.URL.Query().Get("page")))
	})

	serve(t, mux, http.MethodGet, "/api/people?page=1")
	serve(t, mux, http.MethodGet, "/api/people?page=2")
	assert.EqualValues(t, 2, calls.Load(), "listed params create distinct entries")

	// An unlisted parameter does not fragment the cache.
	rr := serve(t, mux, http.MethodGet, "/api/people?page=1&trace=on")
	assert.Equal(t, "page 1", rr.Body.String())
	assert.EqualValues(t, 2, calls.Load())
}

func TestMiddleware_VariesByRouteValue(t *testing.T) {
	store := newStore(t)
	keys := cache.NewKeyGenerator("t")

	var calls atomic.Int32
	mux := chi.NewRouter()
	mux.Use(New(store, keys, peopleResolver()))
	mux.Get("/api/people/{id}", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("person " + chi.URLParam(r, "id")))
	})

	assert.Equal(t, "person 1", serve(t, mux, http.MethodGet, "/api/people/1").Body.String())
	assert.Equal(t, "person 2", serve(t, mux, http.MethodGet, "/api/people/2").Body.String())
	assert.Equal(t, "person 1", serve(t, mux, http.MethodGet, "/api/people/1").Body.String())
	assert.EqualValues(t, 2, calls.Load())
}

func TestMiddleware_UndeclaredRouteValueSharesEntry(t *testing.T) {
	store := newStore(t)
	keys := cache.NewKeyGenerator("t")

	res := NewResolver(
		Route("People").Path("/api/people/{id}").Policy(Policy{
			TTL: time.Minute,
			Tag: "People",
		}),
	)

	var calls atomic.Int32
	mux := chi.NewRouter()
	mux.Use(New(store, keys, res))
	mux.Get("/api/people/{id}", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("person " + chi.URLParam(r, "id")))
	})

	assert.Equal(t, "person 1", serve(t, mux, http.MethodGet, "/api/people/1").Body.String())
	assert.Equal(t, "person 1", serve(t, mux, http.MethodGet, "/api/people/2").Body.String(),
		"values not listed in VaryByRoute do not create distinct entries")
	assert.EqualValues(t, 1, calls.Load())
}

func TestMiddleware_DefaultTTLAppliesToPoliciesWithoutOne(t *testing.T) {
	store := newStore(t)
	keys := cache.NewKeyGenerator("t")

	res := NewResolver(
		Route("People").Path("/api/people").Policy(Policy{Tag: "People"}),
	)

	var calls atomic.Int32
	mux := chi.NewRouter()
	mux.Use(New(store, keys, res, WithDefaultTTL(30*time.Second)))
	mux.Get("/api/people", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("[]"))
	})

	first := serve(t, mux, http.MethodGet, "/api/people")
	assert.Equal(t, "max-age=30", first.Header().Get("Cache-Control"))
	serve(t, mux, http.MethodGet, "/api/people")
	assert.EqualValues(t, 1, calls.Load(), "default TTL makes the policy cacheable")

	// Without a default, a policy that declares no TTL stays uncached.
	var bare atomic.Int32
	mux2 := chi.NewRouter()
	mux2.Use(New(newStore(t), keys, res))
	mux2.Get("/api/people", func(w http.ResponseWriter, r *http.Request) {
		bare.Add(1)
	})
	serve(t, mux2, http.MethodGet, "/api/people")
	serve(t, mux2, http.MethodGet, "/api/people")
	assert.EqualValues(t, 2, bare.Load())
}

func TestMiddleware_MutatingMethodsBypass(t *testing.T) {
	store := newStore(t)
	keys := cache.NewKeyGenerator("t")

	var calls atomic.Int32
	mux := chi.NewRouter()
	mux.Use(New(store, keys, peopleResolver()))
	mux.Post("/api/people", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusCreated)
	})

	serve(t, mux, http.MethodPost, "/api/people")
	serve(t, mux, http.MethodPost, "/api/people")
	assert.EqualValues(t, 2, calls.Load())
}

func TestMiddleware_FailuresNotCached(t *testing.T) {
	store := newStore(t)
	keys := cache.NewKeyGenerator("t")

	var calls atomic.Int32
	mux := chi.NewRouter()
	mux.Use(New(store, keys, peopleResolver()))
	mux.Get("/api/people", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	serve(t, mux, http.MethodGet, "/api/people")
	serve(t, mux, http.MethodGet, "/api/people")
	assert.EqualValues(t, 2, calls.Load(), "a failure cached would be sticky for the TTL")
}

func TestMiddleware_OversizedResponseServedNotCached(t *testing.T) {
	store := newStore(t)
	keys := cache.NewKeyGenerator("t")

	var calls atomic.Int32
	mux := chi.NewRouter()
	mux.Use(New(store, keys, peopleResolver(), WithMaxEntryBytes(16)))
	mux.Get("/api/people", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write(make([]byte, 64))
	})

	first := serve(t, mux, http.MethodGet, "/api/people")
	assert.Equal(t, 64, first.Body.Len(), "oversized response is still served")
	serve(t, mux, http.MethodGet, "/api/people")
	assert.EqualValues(t, 2, calls.Load())
}

func TestMiddleware_DisabledIsTransparent(t *testing.T) {
	store := newStore(t)
	keys := cache.NewKeyGenerator("t")

	var calls atomic.Int32
	mux := chi.NewRouter()
	mux.Use(New(store, keys, peopleResolver(), Disabled()))
	mux.Get("/api/people", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	serve(t, mux, http.MethodGet, "/api/people")
	serve(t, mux, http.MethodGet, "/api/people")
	assert.EqualValues(t, 2, calls.Load(), "disabled layer must not cache anything")
}

func TestMiddleware_UnmatchedRouteBypasses(t *testing.T) {
	store := newStore(t)
	keys := cache.NewKeyGenerator("t")

	var calls atomic.Int32
	mux := chi.NewRouter()
	mux.Use(New(store, keys, peopleResolver()))
	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	serve(t, mux, http.MethodGet, "/healthz")
	serve(t, mux, http.MethodGet, "/healthz")
	assert.EqualValues(t, 2, calls.Load())
}
