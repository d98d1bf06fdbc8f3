// Package logger provides the structured logging engine for Warden.
// Uses log/slog with stderr plus an optional size-rotated log file, and an
// append-only JSON-line audit log of failover records.
package logger

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	v1 "github.com/f9-o/warden/api/v1"
)

// ─────────────────────────────────────────────────────────────────────────────
// Logger
// ─────────────────────────────────────────────────────────────────────────────

// Logger wraps slog.Logger with Warden-specific utilities.
type Logger struct {
	*slog.Logger

	auditMu sync.Mutex
	auditW  io.Writer // append-only audit log writer (nil = disabled)
	closers []io.Closer
}

// Init builds the process logger and installs it as the slog default.
// logFile and auditFile are optional; an empty path disables that sink.
func Init(level, format, logFile, auditFile string, debug bool) (*Logger, error) {
	lvl := ParseLevel(level)
	if debug {
		lvl = slog.LevelDebug
	}

	writers := []io.Writer{os.Stderr}
	var closers []io.Closer

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0750); err != nil {
			return nil, err
		}
		rotating := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // megabytes
			MaxAge:     7,   // days
			MaxBackups: 7,
			Compress:   true,
		}
		writers = append(writers, rotating)
		closers = append(closers, rotating)
	}

	l := New(io.MultiWriter(writers...), lvl, format, debug)
	slog.SetDefault(l.Logger)

	if auditFile != "" {
		if err := os.MkdirAll(filepath.Dir(auditFile), 0750); err != nil {
			return nil, err
		}
		af, err := os.OpenFile(auditFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
		if err != nil {
			return nil, err
		}
		l.auditW = af
		closers = append(closers, af)
	}
	l.closers = closers
	return l, nil
}

// New builds a Logger writing to w without touching the slog default.
func New(w io.Writer, lvl slog.Level, format string, addSource bool) *Logger {
	opts := &slog.HandlerOptions{Level: lvl, AddSource: addSource}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return New(io.Discard, slog.LevelError+1, "text", false)
}

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetAuditWriter redirects audit lines to w. A nil writer disables the audit log.
func (l *Logger) SetAuditWriter(w io.Writer) {
	l.auditMu.Lock()
	l.auditW = w
	l.auditMu.Unlock()
}

// Close flushes and closes the log file and audit log.
func (l *Logger) Close() error {
	var first error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.closers = nil
	return first
}

// ─────────────────────────────────────────────────────────────────────────────
// Audit logging
// ─────────────────────────────────────────────────────────────────────────────

// AuditEntry is one line of the append-only audit log.
type AuditEntry struct {
	Service   string    `json:"service"`
	Action    v1.Action `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}

// Audit records a failover outcome in the log and the audit file.
func (l *Logger) Audit(rec v1.FailoverRecord) {
	l.Info("audit",
		"service", rec.Service,
		"action", rec.Action,
		"success", rec.Success,
		"manual", rec.Manual,
		"id", rec.ID,
	)

	l.auditMu.Lock()
	defer l.auditMu.Unlock()
	if l.auditW == nil {
		return
	}
	line, err := json.Marshal(AuditEntry{
		Service:   rec.Service,
		Action:    rec.Action,
		Timestamp: rec.Timestamp.UTC(),
		Success:   rec.Success,
	})
	if err != nil {
		return
	}
	_, _ = l.auditW.Write(append(line, '\n'))
}
