package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetState() {
	Close()
	settingsMu.Lock()
	logsDir = ""
	debugMode = false
	logLevel = LevelInfo
	settingsMu.Unlock()
}

func TestConfigureDisabledIsNoOp(t *testing.T) {
	resetState()
	dir := t.TempDir()

	if err := Configure(dir, false, "debug"); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if IsDebugMode() {
		t.Error("expected debug mode disabled")
	}

	// Logging must not create any files in production mode.
	API("call to %s", "gemini-2.5-pro")
	StoreDebug("should vanish")
	if _, err := os.Stat(filepath.Join(dir, "logs")); !os.IsNotExist(err) {
		t.Errorf("logs directory should not exist, stat err=%v", err)
	}
}

func TestCategoriesWriteSeparateFiles(t *testing.T) {
	resetState()
	dir := t.TempDir()

	if err := Configure(dir, true, "debug"); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	defer resetState()

	API("primary model call")
	Pipeline("stage %s started", "planner")
	Store("saved session %s", "abc")

	date := time.Now().Format("2006-01-02")
	for _, cat := range []Category{CategoryAPI, CategoryPipeline, CategoryStore} {
		path := filepath.Join(dir, "logs", date+"_"+string(cat)+".log")
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("expected log file for %s: %v", cat, err)
		}
		if !strings.Contains(string(data), "[INFO]") {
			t.Errorf("%s log missing INFO line: %q", cat, data)
		}
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	resetState()
	dir := t.TempDir()

	if err := Configure(dir, true, "info"); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	defer resetState()

	APIDebug("too detailed")
	API("kept")

	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(dir, "logs", date+"_api.log"))
	if err != nil {
		t.Fatalf("read api log: %v", err)
	}
	if strings.Contains(string(data), "too detailed") {
		t.Error("debug line should be filtered at info level")
	}
	if !strings.Contains(string(data), "kept") {
		t.Error("info line missing")
	}
}

func TestTimerLogsDuration(t *testing.T) {
	resetState()
	dir := t.TempDir()

	if err := Configure(dir, true, "debug"); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	defer resetState()

	timer := StartTimer(CategoryPipeline, "deep_workflow")
	time.Sleep(5 * time.Millisecond)
	if d := timer.Stop(); d < 5*time.Millisecond {
		t.Errorf("timer measured %v, want >= 5ms", d)
	}

	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(dir, "logs", date+"_pipeline.log"))
	if err != nil {
		t.Fatalf("read pipeline log: %v", err)
	}
	if !strings.Contains(string(data), "deep_workflow completed in") {
		t.Errorf("timer line missing from log: %q", data)
	}
}

func TestGetReturnsNoOpWithoutConfigure(t *testing.T) {
	resetState()

	l := Get(CategoryAPI)
	// Must not panic and must not write anywhere.
	l.Info("ignored")
	l.Error("ignored")
}
