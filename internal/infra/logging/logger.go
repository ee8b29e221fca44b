// Package logging provides file-based logging for termux-tasker.
// It outputs logs to both a global log file (<data>/logs/tasker.log)
// and request-specific log files (<data>/logs/request-N.log).
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/runoshun/termux-tasker/internal/domain"
)

// LevelOff disables logging entirely.
const LevelOff = slog.LevelError + 4

// Ensure Logger implements domain.Logger interface.
var _ domain.Logger = (*Logger)(nil)

// Logger writes formatted entries to log files and an optional mirror.
// Fields are ordered to minimize memory padding.
type Logger struct {
	mirror       io.Writer
	globalFile   *os.File
	requestFiles map[int]*os.File
	dataDir      string
	mu           sync.Mutex
	level        slog.Level
}

// New creates a new Logger that writes under dataDir/logs.
// If dataDir is empty, file output is disabled.
func New(dataDir string, level slog.Level) *Logger {
	return &Logger{
		dataDir:      dataDir,
		level:        level,
		requestFiles: make(map[int]*os.File),
	}
}

// SetMirror copies every written entry to w (nil disables).
func (l *Logger) SetMirror(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mirror = w
}

// ParseLevel parses a log level string into slog.Level.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "off":
		return LevelOff
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ensureGlobalFile opens or returns the global log file.
func (l *Logger) ensureGlobalFile() (*os.File, error) {
	if l.globalFile != nil {
		return l.globalFile, nil
	}
	f, err := openLogFile(domain.GlobalLogPath(l.dataDir))
	if err != nil {
		return nil, fmt.Errorf("open global log file: %w", err)
	}
	l.globalFile = f
	return f, nil
}

// ensureRequestFile opens or returns the log file of one request.
func (l *Logger) ensureRequestFile(requestCode int) (*os.File, error) {
	if f, ok := l.requestFiles[requestCode]; ok {
		return f, nil
	}
	f, err := openLogFile(domain.RequestLogPath(l.dataDir, requestCode))
	if err != nil {
		return nil, fmt.Errorf("open request log file: %w", err)
	}
	l.requestFiles[requestCode] = f
	return f, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // Log file readable by owner and group
}

// Close closes all open log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var lastErr error
	if l.globalFile != nil {
		if err := l.globalFile.Close(); err != nil {
			lastErr = err
		}
		l.globalFile = nil
	}
	for code, f := range l.requestFiles {
		if err := f.Close(); err != nil {
			lastErr = err
		}
		delete(l.requestFiles, code)
	}
	return lastErr
}

// formatLog formats a log entry.
// Format: [2025-12-30 09:32:51] [INFO] [request-1] [category] message
func formatLog(t time.Time, level slog.Level, requestCode int, category, msg string) string {
	scope := "global"
	if requestCode > 0 {
		scope = fmt.Sprintf("request-%d", requestCode)
	}
	return fmt.Sprintf("[%s] [%s] [%s] [%s] %s\n",
		t.Format("2006-01-02 15:04:05"),
		levelToString(level),
		scope,
		category,
		msg,
	)
}

func levelToString(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelWarn:
		return "WARN"
	case slog.LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// log writes an entry to the global log and, for request codes above 0,
// to the request's own log.
func (l *Logger) log(level slog.Level, requestCode int, category, msg string) {
	if level < l.level || l.level >= LevelOff {
		return
	}

	entry := formatLog(time.Now(), level, requestCode, category, msg)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mirror != nil {
		_, _ = io.WriteString(l.mirror, entry)
	}
	if l.dataDir == "" {
		return
	}
	if gf, err := l.ensureGlobalFile(); err == nil {
		_, _ = io.WriteString(gf, entry)
	}
	if requestCode > 0 {
		if rf, err := l.ensureRequestFile(requestCode); err == nil {
			_, _ = io.WriteString(rf, entry)
		}
	}
}

// Info logs an info message.
func (l *Logger) Info(requestCode int, category, msg string) {
	l.log(slog.LevelInfo, requestCode, category, msg)
}

// Debug logs a debug message.
func (l *Logger) Debug(requestCode int, category, msg string) {
	l.log(slog.LevelDebug, requestCode, category, msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(requestCode int, category, msg string) {
	l.log(slog.LevelWarn, requestCode, category, msg)
}

// Error logs an error message.
func (l *Logger) Error(requestCode int, category, msg string) {
	l.log(slog.LevelError, requestCode, category, msg)
}
