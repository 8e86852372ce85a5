package invalidate

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Keksclan/goRawrCache/httpcache"
)

// Option configures the mutation middleware.
type Option func(*mutationHook)

// WithIDParam names the chi route parameter carrying the resource id.
// Defaults to "id".
func WithIDParam(name string) Option {
	return func(h *mutationHook) { h.idParam = name }
}

type mutationHook struct {
	svc      *Service
	resolver *httpcache.Resolver
	idParam  string
}

var mutating = map[string]struct{}{
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// Middleware invalidates a resource's cache entries after each successful
// mutating request on a route covered by a cache policy. The eviction runs
// only when the handler reported success (2xx): a failed mutation changed
// nothing, so the cache is still right.
func Middleware(svc *Service, resolver *httpcache.Resolver, opts ...Option) func(http.Handler) http.Handler {
	h := &mutationHook{svc: svc, resolver: resolver, idParam: "id"}
	for _, o := range opts {
		o(h)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := mutating[r.Method]; !ok {
				next.ServeHTTP(w, r)
				return
			}
			_, pol, ok := h.resolver.Resolve(r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			if sw.status < 200 || sw.status > 299 {
				return
			}
			var ids []string
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if id := rctx.URLParam(h.idParam); id != "" {
					ids = append(ids, id)
				}
			}
			h.svc.InvalidateEntity(r.Context(), pol.Tag, ids...)
		})
	}
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
