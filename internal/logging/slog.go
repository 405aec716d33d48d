package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ServiceName is the instrumentation scope of the otel log bridge.
const ServiceName = "vehiclesim"

// stdout is swapped by tests.
var stdout io.Writer = os.Stdout

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	mu       sync.Mutex
	logger   *slog.Logger
	opts     *slog.HandlerOptions
	handlers []slog.Handler
	context  ContextProvider

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel accepts the slog level names in any case. Anything else is
// info.
func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Setup initializes the logging system. Records go to file when it is set and
// to stdout otherwise. If provider is nil, OTel logging is disabled.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logProvider = provider
	m.opts = &slog.HandlerOptions{
		Level: parseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	m.handlers = m.handlers[:0]
	if file != nil {
		m.handlers = append(m.handlers, slog.NewTextHandler(file, m.opts))
	} else {
		m.handlers = append(m.handlers, slog.NewTextHandler(stdout, m.opts))
	}
	if provider != nil {
		m.handlers = append(m.handlers, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(provider)))
	}

	m.rebuild()
	m.logger.Info("Logging initialized", "level", level)
}

// AddWriter attaches another sink, such as a Graylog writer, that receives
// JSON records at the configured level.
func (m *SlogManager) AddWriter(w io.Writer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opts == nil {
		m.opts = &slog.HandlerOptions{Level: slog.LevelInfo}
	}
	m.handlers = append(m.handlers, slog.NewJSONHandler(w, m.opts))
	m.rebuild()
}

// SetContextProvider injects dynamic attributes, such as the running session,
// into every record.
func (m *SlogManager) SetContextProvider(p ContextProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.context = p
	m.rebuild()
}

func (m *SlogManager) rebuild() {
	if len(m.handlers) == 0 {
		return
	}
	var h slog.Handler = NewMultiHandler(m.handlers...)
	if m.context != nil {
		h = NewContextHandler(h, m.context)
	}
	m.logger = slog.New(h)
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

// WriteLog logs data at the named level, tagged with the calling function.
func (m *SlogManager) WriteLog(functionName, data, level string) {
	m.mu.Lock()
	logger := m.logger
	m.mu.Unlock()
	if logger == nil {
		return
	}
	logger.Log(context.Background(), parseLevel(level), data, "function", functionName)
}
