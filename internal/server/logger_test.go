package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	h := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/legend", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	out := buf.String()
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"bytes":15`)
	assert.Contains(t, out, `"path":"/api/legend"`)
	assert.Contains(t, out, `"level":"info"`)
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, requestLevel("/", http.StatusBadGateway))
	assert.Equal(t, zerolog.DebugLevel, requestLevel("/tiles/light/0/0/0.webp", http.StatusOK))
	assert.Equal(t, zerolog.DebugLevel, requestLevel("/metrics", http.StatusOK))
	assert.Equal(t, zerolog.InfoLevel, requestLevel("/", http.StatusOK))
}
