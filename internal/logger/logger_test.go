package logger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInit_StderrOnly(t *testing.T) {
	if err := Init(Config{Level: "warn"}); err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}
	if Logger == nil {
		t.Fatal("Logger is nil after initialization")
	}
	if got := Logger.GetLevel().String(); got != "warn" {
		t.Errorf("Expected warn level, got %s", got)
	}

	Debug("suppressed")
	Warn("visible")
}

func TestInit_WithDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	if err := Init(Config{Level: "info", Dir: dir}); err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}
	Info("written to file", "user", "me@school.jp")

	if _, err := os.Stat(filepath.Join(dir, "tsureben.log")); err != nil {
		t.Errorf("Expected log file to exist: %v", err)
	}
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	if err := Init(Config{Level: "chatty"}); err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}
	if got := Logger.GetLevel().String(); got != "info" {
		t.Errorf("Expected info level, got %s", got)
	}
}

func TestHelpersWithoutInit(t *testing.T) {
	Logger = nil

	Debug("no-op")
	Info("no-op")
	Warn("no-op")
	Error("no-op")
	With("k", "v").Info("discarded")
}
