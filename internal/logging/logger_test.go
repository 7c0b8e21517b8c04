package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readEntries(t *testing.T, dir string) []map[string]any {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, DebugLogName))
	if err != nil {
		t.Fatalf("failed to open log: %v", err)
	}
	defer f.Close()

	var entries []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("invalid JSON line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLogger(t *testing.T) {
	t.Run("creates log file in directory", func(t *testing.T) {
		dir := t.TempDir()

		logger, err := NewLogger(dir, LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if _, err := os.Stat(filepath.Join(dir, DebugLogName)); os.IsNotExist(err) {
			t.Error("log file was not created")
		}
		if logger.Dir() != dir {
			t.Errorf("Dir() = %q, want %q", logger.Dir(), dir)
		}
	})

	t.Run("writes to stderr when dir is empty", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if logger.file != nil {
			t.Error("expected file to be nil when dir is empty")
		}
		if logger.Transcript("m1") != nil {
			t.Error("expected no transcript without a directory")
		}
	})
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelWarn)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
	logger.Close()

	entries := readEntries(t, dir)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0]["msg"] != "warn message" {
		t.Errorf("first entry msg = %v", entries[0]["msg"])
	}
}

func TestContextPropagation(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.WithSession("7").WithPhase("stage1").WithMember("openai/gpt-5").
		With("attempt", 2).
		Info("invocation finished", "success", true)
	logger.Close()

	entries := readEntries(t, dir)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	checks := map[string]any{
		"session_id": "7",
		"phase":      "stage1",
		"member":     "openai/gpt-5",
		"attempt":    float64(2),
		"success":    true,
	}
	for k, want := range checks {
		if e[k] != want {
			t.Errorf("%s = %v, want %v", k, e[k], want)
		}
	}
}

func TestWithDoesNotMutateParent(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, "INFO")
	if err != nil {
		t.Fatal(err)
	}
	parent := logger.WithSession("1")
	child := parent.With("k", "v")
	parent.Info("from parent")
	child.Info("from child")
	logger.Close()

	entries := readEntries(t, dir)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if _, ok := entries[0]["k"]; ok {
		t.Error("parent entry carries the child's attribute")
	}
	if entries[1]["k"] != "v" || entries[1]["session_id"] != "1" {
		t.Errorf("child entry = %v", entries[1])
	}
	if parent.With() != parent {
		t.Error("With() without args should return the receiver")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"Warn", LevelWarn},
		{"error", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTranscriptName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"openai/gpt-5", "openai_gpt-5.log"},
		{"anthropic/claude-sonnet-4.5", "anthropic_claude-sonnet-4.5.log"},
		{"///", "member.log"},
	}
	for _, tt := range tests {
		if got := TranscriptName(tt.in); got != tt.want {
			t.Errorf("TranscriptName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTranscriptRecord(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	tr := logger.Transcript("openai/gpt-5")
	if err := tr.Record("stage1", "the prompt", "the answer", true, 1500*time.Millisecond); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := tr.Record("stage2", "rank", "", false, time.Second); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	data, err := os.ReadFile(tr.Path())
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	content := string(data)
	for _, want := range []string{"stage1 (ok, 1.5s)", "the prompt", "the answer", "stage2 (failed, 1s)"} {
		if !strings.Contains(content, want) {
			t.Errorf("transcript missing %q:\n%s", want, content)
		}
	}

	var nilTranscript *Transcript
	if err := nilTranscript.Record("x", "y", "z", true, 0); err != nil {
		t.Errorf("nil transcript Record() = %v", err)
	}
}
