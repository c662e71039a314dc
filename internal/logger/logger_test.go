package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLogger_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)

	l.Info("booking", "reserved 2 seats")
	l.LogPayment("INITIATE", "ref-1", "session created")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "BOOKING", entry.Category)
	assert.Equal(t, "reserved 2 seats", entry.Message)
	assert.Equal(t, "logger_test.go", entry.File)

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "PAYMENT", entry.Category)
	assert.Equal(t, "[INITIATE] ref-1 - session created", entry.Message)
}

func TestDiscardLogger_IsSilent(t *testing.T) {
	l := NewDiscardLogger()
	assert.NotPanics(t, func() {
		l.Error("DATABASE", "boom")
		l.LogSecurity("TOKEN", "rejected")
	})
}

func TestNilLogger_IsSilent(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.Warn("X", "y") })
}
