package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/worldbeesion/beecareful-backend/config"
)

// LevelCritical marks failures that leave persisted state inconsistent and
// need an operator.
const LevelCritical = slog.Level(12)

var levelNames = map[slog.Leveler]string{
	LevelCritical: "CRITICAL",
}

type ctxKey struct{}

// New builds the process logger from config. The returned close func flushes
// the rotating file sink when one is configured.
func New(cfg config.LoggingConfig, service string) (*slog.Logger, func() error, error) {
	var out io.Writer = os.Stdout
	closeFn := func() error { return nil }

	if cfg.File != "" {
		if dir := filepath.Dir(cfg.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create log directory %s: %w", dir, err)
			}
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closeFn = rotator.Close
	}

	return NewWithWriter(out, cfg.Format, ParseLevel(cfg.Level)).With("service", service), closeFn, nil
}

// NewWithWriter returns a logger writing JSON (or text when format is "text") to w.
func NewWithWriter(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevelName,
	}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Discard returns a logger that drops everything. Used by tests and as the
// fallback for components constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// WithLogger attaches l to ctx.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request scoped logger, or fallback if none was attached.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	if fallback == nil {
		return slog.Default()
	}
	return fallback
}

// Critical logs at LevelCritical.
func Critical(ctx context.Context, l *slog.Logger, msg string, args ...any) {
	l.Log(ctx, LevelCritical, msg, args...)
}

func replaceLevelName(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level, ok := a.Value.Any().(slog.Level)
		if !ok {
			return a
		}
		label, exists := levelNames[level]
		if !exists {
			label = level.String()
		}
		a.Value = slog.StringValue(label)
	}
	return a
}
