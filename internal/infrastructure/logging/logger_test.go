package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/nerrad567/shelly-fleet-core/internal/infrastructure/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggingConfig
	}{
		{name: "json to stdout", cfg: config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}},
		{name: "text to stderr", cfg: config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}},
		{name: "empty config uses defaults", cfg: config.LoggingConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if logger := New(tt.cfg, "1.0.0"); logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{input: "debug", expected: slog.LevelDebug},
		{input: "info", expected: slog.LevelInfo},
		{input: "warn", expected: slog.LevelWarn},
		{input: "warning", expected: slog.LevelWarn},
		{input: "error", expected: slog.LevelError},
		{input: "ERROR", expected: slog.LevelError},
		{input: "loud", expected: slog.LevelInfo},
		{input: "", expected: slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

// captureLogger builds a Logger over a buffer so tests can inspect entries.
func captureLogger(buf *bytes.Buffer) *Logger {
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	base := slog.New(handler).With(
		slog.String("service", serviceName),
		slog.String("version", "test"),
	)
	return &Logger{Logger: base}
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parsing log entry: %v", err)
	}
	return entry
}

func TestLogger_DefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := captureLogger(&buf)

	logger.Info("scan started", "networks", 2)

	entry := decodeEntry(t, &buf)
	if entry["service"] != serviceName {
		t.Errorf("expected service=%s, got %v", serviceName, entry["service"])
	}
	if entry["version"] != "test" {
		t.Errorf("expected version=test, got %v", entry["version"])
	}
	if entry["msg"] != "scan started" {
		t.Errorf("expected msg, got %v", entry["msg"])
	}
	if entry["networks"] != float64(2) {
		t.Errorf("expected networks=2, got %v", entry["networks"])
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := captureLogger(&buf).Component("discovery")

	logger.Info("probe finished")

	entry := decodeEntry(t, &buf)
	if entry["component"] != "discovery" {
		t.Errorf("expected component=discovery, got %v", entry["component"])
	}
}

func TestLogger_Device(t *testing.T) {
	var buf bytes.Buffer
	logger := captureLogger(&buf).Component("parameter").Device("E868E7EA6333")

	logger.Warn("write clamped")

	entry := decodeEntry(t, &buf)
	if entry["component"] != "parameter" {
		t.Errorf("expected component preserved, got %v", entry["component"])
	}
	if entry["mac"] != "E868E7EA6333" {
		t.Errorf("expected mac attr, got %v", entry["mac"])
	}
}

func TestLogger_WithReturnsDistinctLogger(t *testing.T) {
	logger := Default()
	child := logger.With("run_id", "abc")

	if child == logger {
		t.Error("expected child logger to be distinct from parent")
	}
}

func TestDefault(t *testing.T) {
	if logger := Default(); logger == nil {
		t.Fatal("expected non-nil default logger")
	}
}
