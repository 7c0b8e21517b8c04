// Package testutil provides testing utilities for council tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// SetupTestRepo creates a temporary git repository on branch main with one
// commit. The repository is removed when the test completes. Tests are
// skipped when git is not installed.
func SetupTestRepo(t *testing.T) string {
	t.Helper()
	SkipIfNoGit(t)

	dir := t.TempDir()
	// Resolve symlinked temp dirs (macOS /var -> /private/var) so paths
	// compare equal to what git reports.
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	RunGit(t, dir, "init")
	RunGit(t, dir, "config", "user.email", "test@council.dev")
	RunGit(t, dir, "config", "user.name", "Council Test")
	RunGit(t, dir, "config", "commit.gpgsign", "false")

	// git worktree requires at least one commit
	WriteFile(t, dir, "README.md", "# Test Repository\n")
	RunGit(t, dir, "add", ".")
	RunGit(t, dir, "commit", "-m", "Initial commit")
	RunGit(t, dir, "branch", "-M", "main")

	return dir
}

// SetupTestRepoWithContent creates a test repository with the given files
// committed. The files map holds relative paths to contents.
func SetupTestRepoWithContent(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := SetupTestRepo(t)
	for path, content := range files {
		WriteFile(t, dir, path, content)
	}
	RunGit(t, dir, "add", ".")
	RunGit(t, dir, "commit", "-m", "Add test files")
	return dir
}

// WriteFile writes a file relative to dir without staging it.
func WriteFile(t *testing.T, dir, path, content string) {
	t.Helper()

	full := filepath.Join(dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
}

// ReadFile reads a file relative to dir.
func ReadFile(t *testing.T, dir, path string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, path))
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// CommitFile creates or updates a file and commits it.
func CommitFile(t *testing.T, repoDir, path, content, message string) {
	t.Helper()

	WriteFile(t, repoDir, path, content)
	RunGit(t, repoDir, "add", path)
	RunGit(t, repoDir, "commit", "-m", message)
}

// RunGit runs git in dir and returns trimmed stdout. It fails the test on
// error.
func RunGit(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Council Test",
		"GIT_AUTHOR_EMAIL=test@council.dev",
		"GIT_COMMITTER_NAME=Council Test",
		"GIT_COMMITTER_EMAIL=test@council.dev",
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, output)
	}
	return strings.TrimSpace(string(output))
}

// HeadRevision returns the full hash of HEAD.
func HeadRevision(t *testing.T, repoDir string) string {
	t.Helper()
	return RunGit(t, repoDir, "rev-parse", "HEAD")
}

// GetCommitCount returns the number of commits reachable from HEAD.
func GetCommitCount(t *testing.T, repoDir string) int {
	t.Helper()

	out := RunGit(t, repoDir, "rev-list", "--count", "HEAD")
	n := 0
	for _, c := range out {
		if c < '0' || c > '9' {
			t.Fatalf("unexpected commit count %q", out)
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// Status returns `git status --porcelain` output, ignoring council's own
// state directory.
func Status(t *testing.T, repoDir string) string {
	t.Helper()

	var kept []string
	for _, line := range strings.Split(RunGit(t, repoDir, "status", "--porcelain"), "\n") {
		if line == "" || strings.Contains(line, ".council/") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// ListWorktrees returns the paths of all worktrees in the repository.
func ListWorktrees(t *testing.T, repoDir string) []string {
	t.Helper()

	var worktrees []string
	for _, line := range strings.Split(RunGit(t, repoDir, "worktree", "list", "--porcelain"), "\n") {
		if path, ok := strings.CutPrefix(line, "worktree "); ok {
			worktrees = append(worktrees, path)
		}
	}
	return worktrees
}

// ListBranches returns local branch names.
func ListBranches(t *testing.T, repoDir string) []string {
	t.Helper()

	out := RunGit(t, repoDir, "branch", "--format=%(refname:short)")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// SkipIfNoGit skips the test if git is not installed.
func SkipIfNoGit(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH, skipping test")
	}
}
