package conditional

import (
	"bytes"
	"net/http"
	"strconv"
)

// bufferedWriter holds the downstream response back until the evaluator has
// decided between a full response and a 304. Unlike a write-through recorder
// nothing reaches the client before flush.
type bufferedWriter struct {
	http.ResponseWriter

	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (b *bufferedWriter) WriteHeader(code int) {
	if b.wroteHeader {
		return
	}
	b.wroteHeader = true
	b.status = code
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	return b.body.Write(p)
}

// flush releases the buffered response to the client.
func (b *bufferedWriter) flush() {
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	if b.body.Len() > 0 && b.Header().Get("Content-Length") == "" {
		b.Header().Set("Content-Length", strconv.Itoa(b.body.Len()))
	}
	b.ResponseWriter.WriteHeader(status)
	_, _ = b.ResponseWriter.Write(b.body.Bytes())
}
