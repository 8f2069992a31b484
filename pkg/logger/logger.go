// Package logger owns the process-wide structured loggers: the application
// log and a separate append-only audit trail for permission and export
// decisions.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// RedactedPlaceholder replaces logged field values when redaction is on.
const RedactedPlaceholder = "[redacted]"

// Config describes the application logger.
type Config struct {
	Level string
	// Format is "json" or "text".
	Format      string
	OutputPaths []string
	// RedactValues masks collected field values in log attributes. Health
	// entries are user data; the default keeps them out of the logs.
	RedactValues bool
	Audit        AuditConfig
}

// AuditConfig controls the audit trail output. The audit log records
// permission grants, revocations, denials and exports, never entry values.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu       sync.Mutex
	appLog   *slog.Logger
	auditLog *slog.Logger
	closers  []io.Closer
)

// Init configures the global loggers. Calling it again replaces them, so
// tests can point the output wherever they need.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.RedactValues {
		opts.ReplaceAttr = redactValues
	}
	handler, err := buildHandler(cfg.Format, cfg.OutputPaths, opts)
	if err != nil {
		return err
	}
	appLog = slog.New(handler)

	auditLog = appLog
	if cfg.Audit.Enabled {
		audit, err := buildAuditLogger(cfg.Audit)
		if err != nil {
			return err
		}
		auditLog = audit
	}
	return nil
}

// redactValues masks attributes that carry collected entry values. Keys are
// matched by convention: code logging user data uses "value" or "fields".
func redactValues(groups []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case "value", "values", "fields":
		return slog.String(a.Key, RedactedPlaceholder)
	}
	return a
}

func buildHandler(format string, outputs []string, opts *slog.HandlerOptions) (slog.Handler, error) {
	var writers []io.Writer
	if len(outputs) == 0 {
		writers = []io.Writer{os.Stdout}
	}
	for _, out := range outputs {
		writer, closer, err := openWriter(out)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		writers = append(writers, writer)
	}

	writer := writers[0]
	if len(writers) > 1 {
		writer = io.MultiWriter(writers...)
	}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(writer, opts), nil
	}
	return slog.NewJSONHandler(writer, opts), nil
}

func buildAuditLogger(cfg AuditConfig) (*slog.Logger, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit log path cannot be empty when enabled")
	}
	writer, err := newRotatingWriter(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	if err != nil {
		return nil, err
	}
	closers = append(closers, writer)
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler), nil
}

func openWriter(path string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(path) {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		return file, file, nil
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the application logger, initialising a stdout default on first
// use so library code can always log.
func L() *slog.Logger {
	mu.Lock()
	l := appLog
	mu.Unlock()
	if l != nil {
		return l
	}
	_ = Init(Config{})
	mu.Lock()
	defer mu.Unlock()
	return appLog
}

// Audit returns the audit trail logger.
func Audit() *slog.Logger {
	mu.Lock()
	a := auditLog
	mu.Unlock()
	if a != nil {
		return a
	}
	return L()
}

// Named returns a child logger grouped under a component name.
func Named(name string) *slog.Logger {
	return L().WithGroup(name)
}

// WithPlugin returns a logger carrying the plugin id on every entry.
func WithPlugin(id string) *slog.Logger {
	return L().With(slog.String("plugin_id", id))
}

// Sync closes any file-backed outputs.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	var err error
	for _, closer := range closers {
		err = errors.Join(err, closer.Close())
	}
	closers = nil
	return err
}
