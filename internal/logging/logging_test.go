package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"digiscope-client/internal/config"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "digiscope.log")

	logger, err := New(config.LoggingConfig{Level: "debug", File: path, Format: "json"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	logger.Named("connection").Info("connected")
	if err := Sync(logger); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"connected"`) {
		t.Fatalf("log file missing message: %s", data)
	}
	if !strings.Contains(string(data), `"logger":"connection"`) {
		t.Fatalf("log file missing logger name: %s", data)
	}
}

func TestNewRejectsBadSettings(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
	if _, err := New(config.LoggingConfig{Level: "info", Format: "xml"}); err == nil {
		t.Fatal("expected error for invalid format")
	}
}
