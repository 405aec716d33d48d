package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// swapStdout redirects the console sink for the duration of the test.
func swapStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = orig })
	return &buf
}

func TestSetup_Destination(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		console := swapStdout(t)
		var file bytes.Buffer
		m := NewSlogManager()
		m.Setup(&file, "info", nil)
		m.Logger().Info("lap complete")

		assert.Contains(t, file.String(), "lap complete")
		assert.Contains(t, file.String(), "Logging initialized")
		assert.Empty(t, console.String())
	})

	t.Run("console", func(t *testing.T) {
		console := swapStdout(t)
		m := NewSlogManager()
		m.Setup(nil, "info", nil)
		m.Logger().Info("lap complete")

		assert.Contains(t, console.String(), "lap complete")
	})
}

func TestSetup_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager()
			m.Setup(&buf, tt.level, nil)
			m.Logger().Debug("debug line")
			m.Logger().Info("info line")

			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("debug line")))
			assert.Equal(t, tt.wantInfo, bytes.Contains(buf.Bytes(), []byte("info line")))
		})
	}
}

func TestSetup_Twice(t *testing.T) {
	var before, after bytes.Buffer
	m := NewSlogManager()

	m.Setup(&before, "info", nil)
	m.Logger().Info("early")
	m.Setup(&after, "info", nil)
	m.Logger().Info("late")

	assert.Contains(t, before.String(), "early")
	assert.NotContains(t, before.String(), "late")
	assert.Contains(t, after.String(), "late")
}

func TestSetup_OTelProvider(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&buf, "info", sdklog.NewLoggerProvider())

	m.Logger().Info("bridged")
	assert.Contains(t, buf.String(), "bridged")
	assert.NoError(t, m.Flush(context.Background()))
}

func TestLogger_BeforeSetup(t *testing.T) {
	m := NewSlogManager()
	assert.Same(t, slog.Default(), m.Logger())
	assert.NoError(t, m.Flush(context.Background()))
	m.WriteLog("noop", "dropped", "info")
}

func TestWriteLog(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"debug", "level=DEBUG"},
		{"INFO", "level=INFO"},
		{"warn", "level=WARN"},
		{"error", "level=ERROR"},
		{"bogus", "level=INFO"},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager()
			m.Setup(&buf, "debug", nil)
			buf.Reset()

			m.WriteLog(":STORAGE:", "flushed", tt.level)
			assert.Contains(t, buf.String(), tt.want)
			assert.Contains(t, buf.String(), "function=:STORAGE:")
		})
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"Info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	} {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestAddWriter_JSON(t *testing.T) {
	var file, sink bytes.Buffer
	m := NewSlogManager()
	m.Setup(&file, "info", nil)
	m.AddWriter(&sink)

	m.Logger().Info("shifted", "gear", 3)

	assert.Contains(t, file.String(), "shifted")
	assert.Contains(t, sink.String(), `"msg":"shifted"`)
	assert.Contains(t, sink.String(), `"gear":3`)
}

func TestSetContextProvider(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&buf, "info", nil)

	tick := 0
	m.SetContextProvider(func() []slog.Attr {
		tick++
		return []slog.Attr{slog.Int("tick", tick)}
	})
	m.Logger().Info("first")
	m.Logger().Info("second")

	assert.Contains(t, buf.String(), "tick=1")
	assert.Contains(t, buf.String(), "tick=2")
}
