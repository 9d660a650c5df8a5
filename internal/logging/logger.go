// Package logging builds the leveled slog logger used by the commands.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// LevelTrace sits below Debug and enables per-sweep diagnostics.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps "trace", "debug", "info", "warn" and "error"
// (case-insensitive) to a slog.Level. Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
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

// ValidLevel reports whether s names a known level. Empty means the default.
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// NewLogger creates a leveled text logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
