package logging

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewReturnsUsableLogger(t *testing.T) {
	logger := New("debug")
	if logger == nil || logger.Logger == nil {
		t.Fatal("expected non-nil logger")
	}
	logger.Debug("debug message", "key", "value")
}

func TestWithAttachesAttributes(t *testing.T) {
	logger := Default().With("session_id", "abc")
	if logger == nil || logger.Logger == nil {
		t.Fatal("expected non-nil derived logger")
	}
	logger.Info("hello")
}
