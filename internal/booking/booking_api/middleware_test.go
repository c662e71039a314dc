package booking_api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"ms-booking/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(RequestLogger(logger.NewWriterLogger(&buf)))
	r.Get("/api/ok", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })
	r.Get("/api/missing", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "nope", http.StatusNotFound) })

	do(t, r, http.MethodGet, "/api/ok", "")
	do(t, r, http.MethodGet, "/api/missing?x=1", "")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry logger.LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "API", entry.Category)
	assert.True(t, strings.HasPrefix(entry.Message, "GET /api/ok - 200 ("), entry.Message)

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.True(t, strings.HasPrefix(entry.Message, "GET /api/missing - 404 ("), entry.Message)
}
