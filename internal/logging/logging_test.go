package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetup_FileAndConsole(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	var console bytes.Buffer

	logger, f, err := Setup(Options{Dir: dir, Name: "test", Level: slog.LevelInfo, Console: &console})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	defer f.Close()

	logger.Debug("hidden")
	logger.With("component", "grader").Info("graded", "verdict", "Accepted")

	data, err := os.ReadFile(filepath.Join(dir, "test.log"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("file has %d lines, want 1: %q", len(lines), data)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if rec["component"] != "grader" || rec["verdict"] != "Accepted" {
		t.Errorf("record = %v", rec)
	}

	if !strings.Contains(console.String(), "verdict=Accepted") {
		t.Errorf("console = %q", console.String())
	}
	if strings.Contains(console.String(), "hidden") {
		t.Error("debug record should be filtered")
	}
}

func TestSetup_NoOutputs(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger, f, err := Setup(Options{})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if f != nil {
		t.Error("no file expected")
	}
	logger.Info("dropped")
}

func TestMultiHandler_Enabled(t *testing.T) {
	var a, b bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	logger := slog.New(h).WithGroup("req")
	logger.Info("hello", "id", 1)

	if a.Len() != 0 {
		t.Errorf("error-level handler got %q", a.String())
	}
	if !strings.Contains(b.String(), "req.id=1") {
		t.Errorf("debug handler got %q", b.String())
	}
}
