// Package conditional serves HTTP conditional requests: it fingerprints
// response bodies with an ETag, derives a Last-Modified timestamp from the
// entities in the response, and short-circuits to 304 Not Modified when the
// caller's cached copy is still valid.
package conditional

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Timestamped is implemented by response entities carrying audit timestamps.
// The evaluator reads these through the interface instead of probing fields
// at runtime, so the dependency is visible at compile time.
type Timestamped interface {
	CreatedTime() time.Time
	UpdatedTime() time.Time
}

// LastModified returns the freshest created/updated timestamp across items.
// When no item carries a usable timestamp it falls back to now, which makes
// the response validate as "just changed".
func LastModified[T Timestamped](now time.Time, items ...T) time.Time {
	var latest time.Time
	for _, item := range items {
		if t := item.UpdatedTime(); t.After(latest) {
			latest = t
		}
		if t := item.CreatedTime(); t.After(latest) {
			latest = t
		}
	}
	if latest.IsZero() {
		return now
	}
	return latest
}

// SetLastModified stamps the Last-Modified response header. Handlers call it
// before writing the body; the middleware picks the value up when evaluating
// If-Modified-Since.
func SetLastModified(w http.ResponseWriter, t time.Time) {
	w.Header().Set("Last-Modified", t.UTC().Format(http.TimeFormat))
}

// Option configures the middleware.
type Option func(*evaluator)

// WithClock overrides the time source used when no Last-Modified is present.
func WithClock(now func() time.Time) Option {
	return func(e *evaluator) { e.now = now }
}

type evaluator struct {
	now func() time.Time
}

// Middleware returns the conditional request evaluator. It runs on the
// response path of successful GET/HEAD requests: the downstream body is
// buffered, fingerprinted, and either replaced by an empty 304 (when the
// request's validators still match) or sent out with ETag and Last-Modified
// attached.
func Middleware(opts ...Option) func(http.Handler) http.Handler {
	e := &evaluator{now: time.Now}
	for _, o := range opts {
		o(e)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			bw := &bufferedWriter{ResponseWriter: w}
			next.ServeHTTP(bw, r)
			if bw.status != http.StatusOK {
				bw.flush()
				return
			}

			etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(bw.body.Bytes()))
			lastMod := e.lastModified(bw.Header())

			h := w.Header()
			h.Set("ETag", etag)
			h.Set("Last-Modified", lastMod.UTC().Format(http.TimeFormat))

			if notModified(r, etag, lastMod) {
				// Zero content length, validators attached.
				h.Del("Content-Length")
				h.Del("Content-Type")
				w.WriteHeader(http.StatusNotModified)
				return
			}
			bw.flush()
		})
	}
}

// lastModified reads the handler-provided Last-Modified header, defaulting
// to the current time when the handler set none.
func (e *evaluator) lastModified(h http.Header) time.Time {
	if v := h.Get("Last-Modified"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			return t
		}
	}
	return e.now()
}

// notModified evaluates the request validators against the computed ones.
// If-None-Match takes precedence over If-Modified-Since.
func notModified(r *http.Request, etag string, lastMod time.Time) bool {
	if inm := r.Header.Get("If-None-Match"); inm != "" {
		return etagMatches(inm, etag)
	}
	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		if since, err := http.ParseTime(ims); err == nil {
			// HTTP dates have second precision.
			return !lastMod.Truncate(time.Second).After(since)
		}
	}
	return false
}

// etagMatches reports whether any value in an If-None-Match header matches
// the computed ETag. Weak-validator prefixes and quoting are ignored; the
// wildcard matches anything.
func etagMatches(headerVal, etag string) bool {
	want := unquoteETag(etag)
	for _, candidate := range strings.Split(headerVal, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if unquoteETag(candidate) == want {
			return true
		}
	}
	return false
}

func unquoteETag(v string) string {
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`)
}
