package logging

import (
	"io"

	"github.com/rs/zerolog"
)

// NewZerolog returns a timestamped JSON logger for the given component.
// Unknown or empty levels fall back to info.
func NewZerolog(w io.Writer, level string, component string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("component", component).Logger()
}

// DispatcherLogger lets the command dispatcher log through zerolog.
type DispatcherLogger struct {
	logger zerolog.Logger
}

func NewDispatcherLogger(logger zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger}
}

func (l *DispatcherLogger) Debug(msg string, keysAndValues ...any) {
	emit(l.logger.Debug(), msg, keysAndValues)
}

func (l *DispatcherLogger) Info(msg string, keysAndValues ...any) {
	emit(l.logger.Info(), msg, keysAndValues)
}

func (l *DispatcherLogger) Error(msg string, keysAndValues ...any) {
	emit(l.logger.Error(), msg, keysAndValues)
}

// emit writes alternating key/value pairs. zerolog drops a trailing key
// with no value.
func emit(e *zerolog.Event, msg string, keysAndValues []any) {
	if len(keysAndValues) > 0 {
		e = e.Fields(keysAndValues)
	}
	e.Msg(msg)
}
