package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// TranscriptDir is the subdirectory holding one transcript per member.
const TranscriptDir = "members"

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// TranscriptName converts a member identifier such as "openai/gpt-5" into a
// file name safe on every platform ("openai_gpt-5.log").
func TranscriptName(memberID string) string {
	name := strings.Trim(unsafeNameChars.ReplaceAllString(memberID, "_"), "_")
	if name == "" {
		name = "member"
	}
	return name + ".log"
}

// Transcript appends human-readable exchange records for one member.
// A nil *Transcript is valid and discards everything.
type Transcript struct {
	mu   sync.Mutex
	path string
}

// Transcript returns the transcript writer for a member, creating
// {dir}/members/ on first use. Returns nil when the logger writes to stderr.
func (l *Logger) Transcript(memberID string) *Transcript {
	if l.dir == "" {
		return nil
	}
	dir := filepath.Join(l.dir, TranscriptDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		l.Warn("failed to create transcript directory", "error", err.Error())
		return nil
	}
	return &Transcript{path: filepath.Join(dir, TranscriptName(memberID))}
}

// Path returns the transcript file path.
func (t *Transcript) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

// Record appends one prompt/response exchange.
func (t *Transcript) Record(stage, prompt, response string, success bool, elapsed time.Duration) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()

	status := "ok"
	if !success {
		status = "failed"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== %s %s (%s, %s)\n", time.Now().Format(time.RFC3339), stage, status, elapsed.Round(time.Millisecond))
	b.WriteString("--- prompt\n")
	b.WriteString(prompt)
	b.WriteString("\n--- response\n")
	b.WriteString(response)
	b.WriteString("\n\n")

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}
