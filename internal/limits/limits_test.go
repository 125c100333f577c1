package limits

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental_dashboard/internal/config"
)

func TestFromConfig(t *testing.T) {
	l, err := FromConfig(config.ServerConfig{MaxBodyBytes: 512, WriteTimeout: 3 * time.Second, ReadTimeout: -time.Second})
	require.NoError(t, err)
	assert.Equal(t, int64(512), l.MaxBodyBytes)
	assert.Equal(t, defaultMaxHeaderBytes, l.MaxHeaderBytes)
	assert.Equal(t, 3*time.Second, l.WriteTimeout)
	assert.Zero(t, l.ReadTimeout)

	_, err = FromConfig(config.ServerConfig{MaxBodyBytes: -1})
	assert.Error(t, err)

	srv := &http.Server{}
	l.Apply(srv)
	assert.Equal(t, defaultReadHeaderTimeout, srv.ReadHeaderTimeout)
}

func TestLimitBody(t *testing.T) {
	l := Limits{MaxBodyBytes: 8}
	h := l.LimitBody(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small")))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("this is far too long")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader("0123456789")))
	req.ContentLength = -1
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
