package httpcache

import (
	"bytes"
	"net/http"
)

// bufferedWriter holds the downstream handler's response until the cache
// stage has stored it, then flushes it to the real writer.
type bufferedWriter struct {
	header      http.Header
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{header: make(http.Header), status: http.StatusOK}
}

func (b *bufferedWriter) Header() http.Header {
	return b.header
}

func (b *bufferedWriter) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.status = status
	b.wroteHeader = true
}

func (b *bufferedWriter) Write(data []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	return b.body.Write(data)
}

func (b *bufferedWriter) Status() int {
	return b.status
}

func (b *bufferedWriter) Body() []byte {
	return b.body.Bytes()
}

// flush copies the buffered response to w. Headers already present on w are
// kept unless the handler set the same name.
func (b *bufferedWriter) flush(w http.ResponseWriter) error {
	dst := w.Header()
	for name, values := range b.header {
		dst[name] = append([]string(nil), values...)
	}
	w.WriteHeader(b.status)
	_, err := w.Write(b.body.Bytes())
	return err
}

// StatusRecorder tracks the status and size of a pass-through response for
// access logging and metrics.
type StatusRecorder struct {
	writer       http.ResponseWriter
	status       int
	bytesWritten int64
	wroteHeader  bool
}

func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{writer: w, status: http.StatusOK}
}

func (r *StatusRecorder) Header() http.Header {
	return r.writer.Header()
}

func (r *StatusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.writer.WriteHeader(status)
}

func (r *StatusRecorder) Write(data []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.writer.Write(data)
	r.bytesWritten += int64(n)
	return n, err
}

func (r *StatusRecorder) Status() int {
	return r.status
}

func (r *StatusRecorder) BytesWritten() int64 {
	return r.bytesWritten
}

func (r *StatusRecorder) Unwrap() http.ResponseWriter {
	return r.writer
}
