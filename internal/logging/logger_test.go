package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDisabledLoggingWritesNothing(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(Settings{Enabled: false, Dir: dir}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	Worker("should not appear")
	Get(CategoryStore).Error("not even errors")

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no log files, found %d", len(entries))
	}
}

func TestCategoryFileCreated(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(Settings{Enabled: true, Dir: dir, Level: "debug"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	Queue("claimed task %s", "task_123")

	matches, err := filepath.Glob(filepath.Join(dir, "*_queue.log"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one queue log file, got %d", len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "task_123") {
		t.Errorf("log file missing message, got: %s", data)
	}
}

func TestCategoryFilter(t *testing.T) {
	dir := t.TempDir()
	err := Initialize(Settings{
		Enabled:    true,
		Dir:        dir,
		Level:      "debug",
		Categories: map[string]bool{"tools": false},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	if IsCategoryEnabled(CategoryTools) {
		t.Error("tools category should be disabled")
	}
	if !IsCategoryEnabled(CategoryWorld) {
		t.Error("world category should default to enabled")
	}

	Tools("suppressed")
	matches, _ := filepath.Glob(filepath.Join(dir, "*_tools.log"))
	if len(matches) != 0 {
		t.Errorf("disabled category produced a file: %v", matches)
	}
}

func TestLevelFilter(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(Settings{Enabled: true, Dir: dir, Level: "warn"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	l := Get(CategoryBackend)
	l.Info("filtered out")
	l.Warn("kept")

	matches, _ := filepath.Glob(filepath.Join(dir, "*_backend.log"))
	if len(matches) != 1 {
		t.Fatalf("expected backend log file, got %d", len(matches))
	}
	data, _ := os.ReadFile(matches[0])
	if strings.Contains(string(data), "filtered out") {
		t.Error("info message should have been filtered at warn level")
	}
	if !strings.Contains(string(data), "kept") {
		t.Error("warn message missing")
	}
}
