package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

func NewJSONLogger(service, level string) *slog.Logger {
	return NewJSONLoggerTo(os.Stdout, service, level)
}

// NewJSONLoggerTo is used by commands whose stdout carries protocol or
// answer output, such as the stdio MCP server.
func NewJSONLoggerTo(w io.Writer, service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler).With("service", service)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
