package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewWritesFile(t *testing.T) {
	dir := t.TempDir()
	log, err := New(Options{Level: "debug", Dir: dir})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Info("hello")
	_ = log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "rvl-week.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected log line in file")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
