package httpcache

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

// recorder is a write-through http.ResponseWriter: the response streams to
// the client as normal while status and body are kept for caching.
type recorder struct {
	http.ResponseWriter

	ttl         time.Duration
	status      int
	wroteHeader bool
	buf         bytes.Buffer
}

func newRecorder(w http.ResponseWriter, ttl time.Duration) *recorder {
	return &recorder{ResponseWriter: w, ttl: ttl, status: http.StatusOK}
}

func (r *recorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = code
	if code == http.StatusOK {
		setCacheControl(r.Header(), r.ttl)
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

func setCacheControl(h http.Header, ttl time.Duration) {
	if h.Get("Cache-Control") == "" {
		h.Set("Cache-Control", fmt.Sprintf("max-age=%d", int(ttl.Seconds())))
	}
}
