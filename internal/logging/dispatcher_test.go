package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/OCAP2/vehicledyn/internal/dispatcher"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ dispatcher.Logger = (*DispatcherLogger)(nil)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestDispatcherLogger_Levels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(l *DispatcherLogger)
		level string
		msg   string
		field string
		value any
	}{
		{
			name:  "debug",
			log:   func(l *DispatcherLogger) { l.Debug("queued", "command", "car:sample", "depth", 42) },
			level: "debug",
			msg:   "queued",
			field: "depth",
			value: float64(42),
		},
		{
			name:  "info",
			log:   func(l *DispatcherLogger) { l.Info("handled", "status", "ok") },
			level: "info",
			msg:   "handled",
			field: "status",
			value: "ok",
		},
		{
			name:  "error",
			log:   func(l *DispatcherLogger) { l.Error("handler failed", "code", 500) },
			level: "error",
			msg:   "handler failed",
			field: "code",
			value: float64(500),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			dl := NewDispatcherLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

			tt.log(dl)

			entry := decode(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, tt.msg, entry["message"])
			assert.Equal(t, tt.value, entry[tt.field])
		})
	}
}

func TestDispatcherLogger_OddKeyValues(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Info("dangling", "key", "value", "orphan")

	entry := decode(t, &buf)
	assert.Equal(t, "value", entry["key"])
	assert.NotContains(t, entry, "orphan")
}

func TestNewZerolog(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerolog(&buf, "warn", "database")

	l.Info().Msg("filtered")
	assert.Zero(t, buf.Len())

	l.Warn().Msg("kept")
	entry := decode(t, &buf)
	assert.Equal(t, "database", entry["component"])
	assert.Contains(t, entry, "time")
}

func TestNewZerolog_DefaultLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerolog(&buf, "", "influx")

	l.Debug().Msg("filtered")
	assert.Zero(t, buf.Len())
	l.Info().Msg("kept")
	assert.NotZero(t, buf.Len())
}
