package workspace

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// CommandExecutor abstracts command execution for testability.
type CommandExecutor interface {
	// Run executes a command and returns combined output.
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)

	// Output executes a command and returns stdout only. Stderr is folded
	// into the returned error.
	Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// CLICommandExecutor executes commands using os/exec.
type CLICommandExecutor struct{}

// NewCLICommandExecutor creates a new CLI command executor.
func NewCLICommandExecutor() *CLICommandExecutor {
	return &CLICommandExecutor{}
}

// Run executes a command and returns combined output.
func (e *CLICommandExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Output executes a command and returns stdout.
func (e *CLICommandExecutor) Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return out, &commandError{err: err, stderr: strings.TrimSpace(stderr.String())}
	}
	return out, err
}

type commandError struct {
	err    error
	stderr string
}

func (e *commandError) Error() string { return e.err.Error() + ": " + e.stderr }
func (e *commandError) Unwrap() error { return e.err }

// git runs a git subcommand with combined output.
func (m *Manager) git(ctx context.Context, dir string, args ...string) ([]byte, error) {
	return m.executor.Run(ctx, dir, "git", args...)
}

// gitOutput runs a git subcommand and returns stdout.
func (m *Manager) gitOutput(ctx context.Context, dir string, args ...string) ([]byte, error) {
	return m.executor.Output(ctx, dir, "git", args...)
}

// statusEntry is one line of `git status --porcelain=v1 -z`.
type statusEntry struct {
	Index    byte
	Worktree byte
	Path     string
}

func (s statusEntry) untracked() bool { return s.Index == '?' && s.Worktree == '?' }

// parsePorcelainZ parses NUL-separated porcelain v1 status output. Rename
// entries carry a second path, which is skipped.
func parsePorcelainZ(out []byte) []statusEntry {
	var entries []statusEntry
	fields := strings.Split(string(out), "\x00")
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if len(f) < 4 {
			continue
		}
		e := statusEntry{Index: f[0], Worktree: f[1], Path: f[3:]}
		entries = append(entries, e)
		if e.Index == 'R' || e.Index == 'C' {
			i++
		}
	}
	return entries
}
