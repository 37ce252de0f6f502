package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":    slog.LevelDebug,
		" WARN ":   slog.LevelWarn,
		"warning":  slog.LevelWarn,
		"error":    slog.LevelError,
		"":         slog.LevelInfo,
		"verbose?": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONLoggerAddsServiceAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLoggerTo(&buf, "ragctl", "warn")
	logger.Info("hidden")
	logger.Warn("index_open_failed_rebuilding", "error", "corrupt")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "ragctl" || entry["msg"] != "index_open_failed_rebuilding" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}
