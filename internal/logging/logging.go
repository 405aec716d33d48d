package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LogFilePath is <logsDir>/<name>.<yyyymmdd_hhmmss>.log.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", name, sessionStart.Format("20060102_150405")),
	)
}

// OpenLogFile creates logsDir if needed and opens the session log for
// appending. A log left at the same path by an earlier run is moved to
// <path>.old first.
func OpenLogFile(logsDir, name string, sessionStart time.Time) (*os.File, string, error) {
	path := LogFilePath(logsDir, name, sessionStart)
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, path, fmt.Errorf("failed to create logs directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".old"); err != nil {
			return nil, path, fmt.Errorf("failed to rotate log file: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, path, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, path, nil
}
