// Package workspace gives each council member an isolated git worktree of
// the shared repository, computes each member's diff against the common
// baseline, and applies one selected diff back to the shared tree.
package workspace

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"

	"github.com/Iron-Ham/council/internal/errors"
	"github.com/Iron-Ham/council/internal/logging"
)

// StateDir holds council's own files in the shared tree (lock, patches,
// default worktrees). It is never treated as user state.
const StateDir = ".council"

// Defaults used when options are not supplied.
const (
	DefaultDir          = ".council/worktrees"
	DefaultBranchPrefix = "council"
)

// Workspace is one member's isolated working copy for one session.
type Workspace struct {
	// ID distinguishes concurrent workspaces: "<session>/<token>". The
	// token is random so neither the path nor the branch names the member.
	ID           string
	SessionID    string
	MemberID     string
	Path         string
	Branch       string
	BaseRevision string
	CreatedAt    time.Time

	// Seeded lists untracked files copied in from the shared tree. They
	// are excluded from the diff.
	Seeded []string
	// SeededChanged lists seeded files the member edited or removed, as
	// of the last Diff. Those edits never reach the shared tree.
	SeededChanged []string

	mutated   atomic.Bool
	destroyed atomic.Bool
}

// Mutated reports whether the last diff found changes.
func (w *Workspace) Mutated() bool { return w.mutated.Load() }

// Destroyed reports whether the workspace has been torn down.
func (w *Workspace) Destroyed() bool { return w.destroyed.Load() }

// Baseline describes the shared tree at session start.
type Baseline struct {
	Revision string
	Branch   string
	// Included untracked files are copied into every workspace.
	Included []string
	// Excluded untracked files stay behind.
	Excluded []string
}

// ApplyOptions controls how a patch lands in the shared tree.
type ApplyOptions struct {
	// Commit records the change in history. Without it the change is
	// staged in the index only.
	Commit  bool
	Message string
}

// ApplyResult describes a successful apply.
type ApplyResult struct {
	Files     []string
	Committed bool
	Commit    string
}

// Option configures a Manager.
type Option func(*Manager)

// WithDir sets where worktrees are created. Relative paths are resolved
// against the repository root.
func WithDir(dir string) Option {
	return func(m *Manager) {
		if dir != "" {
			m.dir = dir
		}
	}
}

// WithBranchPrefix sets the prefix for workspace branches.
func WithBranchPrefix(prefix string) Option {
	return func(m *Manager) {
		if prefix != "" {
			m.branchPrefix = prefix
		}
	}
}

// WithPolicy sets the untracked file policy.
func WithPolicy(p *UntrackedPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithExecutor replaces the command executor.
func WithExecutor(e CommandExecutor) Option {
	return func(m *Manager) { m.executor = e }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager handles workspace lifecycle for one repository.
type Manager struct {
	repoDir      string
	dir          string
	branchPrefix string
	policy       *UntrackedPolicy
	executor     CommandExecutor
	logger       *logging.Logger

	baseline atomic.Pointer[Baseline]
}

// FindGitRoot finds the root of the git repository by traversing up from startDir.
func FindGitRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			// .git is a directory in a normal repo and a file in a worktree
			if info.IsDir() || info.Mode().IsRegular() {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.ErrNotGitRepository
		}
		dir = parent
	}
}

// New creates a Manager rooted at the repository containing repoDir.
func New(repoDir string, opts ...Option) (*Manager, error) {
	root, err := FindGitRoot(repoDir)
	if err != nil {
		return nil, errors.NewWorkspaceError("cannot open shared tree", errors.ErrNotGitRepository).
			WithOperation("open").
			WithPath(repoDir)
	}
	m := &Manager{
		repoDir:      root,
		dir:          DefaultDir,
		branchPrefix: DefaultBranchPrefix,
		executor:     NewCLICommandExecutor(),
		logger:       logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.policy == nil {
		m.policy, _ = NewUntrackedPolicy(nil, []string{".council/**"})
	}
	return m, nil
}

// RepoDir returns the shared tree's root.
func (m *Manager) RepoDir() string { return m.repoDir }

// WorktreeDir returns the absolute directory holding workspaces.
func (m *Manager) WorktreeDir() string {
	if filepath.IsAbs(m.dir) {
		return m.dir
	}
	return filepath.Join(m.repoDir, m.dir)
}

// ValidateBaseline checks that the shared tree can be isolated and records
// its HEAD as the baseline for every workspace. Tracked modifications fail
// fast. Untracked files are classified by the policy and any path the
// policy does not classify is reported as an error, never dropped.
func (m *Manager) ValidateBaseline(ctx context.Context) (*Baseline, error) {
	repo, err := git.PlainOpenWithOptions(m.repoDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, errors.NewWorkspaceError("cannot open shared tree", errors.ErrNotGitRepository).
			WithOperation("validate").
			WithPath(m.repoDir)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, errors.NewWorkspaceError("shared tree has no commits", err).
			WithOperation("validate").
			WithPath(m.repoDir)
	}

	out, err := m.gitOutput(ctx, m.repoDir, "status", "--porcelain=v1", "-z", "--untracked-files=all")
	if err != nil {
		return nil, errors.NewWorkspaceError("failed to read status", err).
			WithOperation("validate").
			WithPath(m.repoDir)
	}

	var dirty, untracked []string
	for _, e := range parsePorcelainZ(out) {
		if strings.HasPrefix(e.Path, StateDir+"/") || e.Path == StateDir+"/" {
			continue
		}
		if e.untracked() {
			untracked = append(untracked, e.Path)
		} else {
			dirty = append(dirty, e.Path)
		}
	}
	if len(dirty) > 0 {
		return nil, errors.NewWorkspaceError(
			fmt.Sprintf("commit or stash %d modified path(s) first: %s", len(dirty), summarize(dirty)),
			errors.ErrDirtyTree,
		).WithOperation("validate").WithPath(m.repoDir)
	}

	included, excluded, unclassified := m.policy.Partition(untracked)
	if len(unclassified) > 0 {
		return nil, errors.NewWorkspaceError(
			fmt.Sprintf("add include or exclude rules for: %s", summarize(unclassified)),
			errors.ErrUntrackedUnclassified,
		).WithOperation("validate").WithPath(m.repoDir)
	}
	if len(excluded) > 0 {
		m.logger.Info("untracked files left out of workspaces", "count", len(excluded), "paths", summarize(excluded))
	}

	b := &Baseline{
		Revision: head.Hash().String(),
		Included: included,
		Excluded: excluded,
	}
	if head.Name().IsBranch() {
		b.Branch = head.Name().Short()
	}
	m.baseline.Store(b)
	m.logger.Debug("baseline validated", "revision", b.Revision, "branch", b.Branch, "included", len(included))
	return b, nil
}

func summarize(paths []string) string {
	const limit = 5
	if len(paths) <= limit {
		return strings.Join(paths, ", ")
	}
	return fmt.Sprintf("%s (and %d more)", strings.Join(paths[:limit], ", "), len(paths)-limit)
}

var slugRegex = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Slug converts a member identifier into a path and branch safe component.
func Slug(memberID string) string {
	s := strings.Trim(slugRegex.ReplaceAllString(memberID, "-"), "-.")
	if s == "" {
		return "member"
	}
	return s
}

// Create allocates a worktree for one member from the validated baseline.
// The shared tree's working files are not touched.
func (m *Manager) Create(ctx context.Context, sessionID, memberID string) (*Workspace, error) {
	b := m.baseline.Load()
	if b == nil {
		var err error
		if b, err = m.ValidateBaseline(ctx); err != nil {
			return nil, err
		}
	}

	token := isolationToken()
	ws := &Workspace{
		ID:           sessionID + "/" + token,
		SessionID:    sessionID,
		MemberID:     memberID,
		Path:         filepath.Join(m.WorktreeDir(), sessionID, token),
		Branch:       fmt.Sprintf("%s/%s/%s", m.branchPrefix, sessionID, token),
		BaseRevision: b.Revision,
		CreatedAt:    time.Now(),
	}
	wsErr := func(msg string, cause error) *errors.WorkspaceError {
		return errors.NewWorkspaceError(msg, cause).
			WithMember(memberID).
			WithOperation("create").
			WithPath(ws.Path)
	}

	if _, err := os.Stat(ws.Path); err == nil {
		return nil, wsErr("workspace path is in use", errors.ErrWorkspaceExists)
	}
	if err := m.ensureWorktreeDir(); err != nil {
		return nil, wsErr("failed to prepare worktree directory", err)
	}
	if err := os.MkdirAll(filepath.Dir(ws.Path), 0o755); err != nil {
		return nil, wsErr("failed to prepare worktree directory", err)
	}

	out, err := m.git(ctx, m.repoDir, "worktree", "add", "-b", ws.Branch, ws.Path, ws.BaseRevision)
	if err != nil {
		return nil, wsErr("failed to create worktree", err).WithGitOutput(string(out))
	}

	for _, rel := range b.Included {
		if err := copyFile(filepath.Join(m.repoDir, rel), filepath.Join(ws.Path, rel)); err != nil {
			_ = m.Destroy(context.WithoutCancel(ctx), ws)
			return nil, wsErr(fmt.Sprintf("failed to copy untracked file %s", rel), err)
		}
		ws.Seeded = append(ws.Seeded, rel)
	}

	m.logger.Info("workspace created",
		"session_id", sessionID,
		"member", memberID,
		"path", ws.Path,
		"branch", ws.Branch,
	)
	return ws, nil
}

func isolationToken() string {
	return "ws-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// ensureWorktreeDir creates the worktree directory and, when it lives inside
// the repository, an ignore file so workspaces never show up as untracked.
func (m *Manager) ensureWorktreeDir() error {
	dir := m.WorktreeDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	rel, err := filepath.Rel(m.repoDir, dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil
	}
	ignore := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(ignore); err == nil {
		return nil
	}
	return os.WriteFile(ignore, []byte("*\n"), 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Diff computes the workspace's changes against its baseline. Untracked
// files the member created are included; seeded files are not. Returns
// nil when nothing changed. Commits the member made inside the workspace
// are folded into the diff because it is taken against the baseline
// revision rather than the worktree's HEAD.
func (m *Manager) Diff(ctx context.Context, ws *Workspace) (*Patch, error) {
	if ws == nil || ws.Destroyed() {
		return nil, errors.NewWorkspaceError("workspace is not available", nil).WithOperation("diff")
	}
	wsErr := func(msg string, cause error, out []byte) *errors.WorkspaceError {
		return errors.NewWorkspaceError(msg, cause).
			WithMember(ws.MemberID).
			WithOperation("diff").
			WithPath(ws.Path).
			WithGitOutput(string(out))
	}

	pathspec := append([]string{"--", "."}, excludeSpecs(ws.Seeded)...)

	addArgs := append([]string{"add", "--intent-to-add"}, pathspec...)
	if out, err := m.git(ctx, ws.Path, addArgs...); err != nil {
		return nil, wsErr("failed to register new files", err, out)
	}

	diffArgs := append([]string{"diff", "--binary", "--no-color", "--no-ext-diff", "--full-index", ws.BaseRevision}, pathspec...)
	out, err := m.gitOutput(ctx, ws.Path, diffArgs...)
	if err != nil {
		return nil, wsErr("failed to compute diff", err, nil)
	}

	ws.SeededChanged = m.seededChanges(ws)
	if len(ws.SeededChanged) > 0 {
		m.logger.Warn("seeded files changed in workspace; edits are not part of the diff",
			"session_id", ws.SessionID,
			"member", ws.MemberID,
			"files", ws.SeededChanged,
		)
	}

	if strings.TrimSpace(string(out)) == "" {
		ws.mutated.Store(false)
		return nil, nil
	}
	ws.mutated.Store(true)
	return newPatch(ws, string(out)), nil
}

// seededChanges returns the seeded files whose workspace copy no longer
// matches the shared tree.
func (m *Manager) seededChanges(ws *Workspace) []string {
	var changed []string
	for _, rel := range ws.Seeded {
		got, err := os.ReadFile(filepath.Join(ws.Path, rel))
		if err != nil {
			changed = append(changed, rel)
			continue
		}
		want, err := os.ReadFile(filepath.Join(m.repoDir, rel))
		if err != nil || !bytes.Equal(got, want) {
			changed = append(changed, rel)
		}
	}
	return changed
}

func excludeSpecs(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, ":(exclude,literal)"+p)
	}
	return out
}

// ApplyDiff applies a patch to the shared tree atomically. The patch is
// checked first; if it no longer applies, a MergeConflictError is returned
// and the shared tree is unchanged. With Commit the change is recorded;
// if the commit fails the apply is reversed.
func (m *Manager) ApplyDiff(ctx context.Context, patch *Patch, opts ApplyOptions) (*ApplyResult, error) {
	if patch.Empty() {
		return &ApplyResult{}, nil
	}

	f, err := os.CreateTemp("", "council-*.patch")
	if err != nil {
		return nil, errors.NewWorkspaceError("failed to stage patch", err).WithOperation("apply")
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(patch.Content); err != nil {
		_ = f.Close()
		return nil, errors.NewWorkspaceError("failed to stage patch", err).WithOperation("apply")
	}
	if err := f.Close(); err != nil {
		return nil, errors.NewWorkspaceError("failed to stage patch", err).WithOperation("apply")
	}

	if out, err := m.git(ctx, m.repoDir, "apply", "--check", "--index", f.Name()); err != nil {
		return nil, errors.NewMergeConflictError("patch does not apply to the shared tree", err).
			WithMember(patch.MemberID).
			WithPatch(patch.Content).
			WithOutput(string(out))
	}

	if out, err := m.git(ctx, m.repoDir, "apply", "--index", f.Name()); err != nil {
		// --check passed, so a failure here is environmental. git apply is
		// all-or-nothing, so the tree is still unchanged.
		return nil, errors.NewWorkspaceError("failed to apply patch", err).
			WithMember(patch.MemberID).
			WithOperation("apply").
			WithPath(m.repoDir).
			WithGitOutput(string(out))
	}

	result := &ApplyResult{Files: slices.Clone(patch.Files)}
	if !opts.Commit {
		m.logger.Info("patch staged", "member", patch.MemberID, "files", len(result.Files))
		return result, nil
	}

	msg := opts.Message
	if msg == "" {
		msg = fmt.Sprintf("Apply council proposal from %s", patch.MemberID)
	}
	if out, err := m.git(ctx, m.repoDir, "commit", "--no-verify", "-m", msg); err != nil {
		rollbackCtx := context.WithoutCancel(ctx)
		if rbOut, rbErr := m.git(rollbackCtx, m.repoDir, "apply", "-R", "--index", f.Name()); rbErr != nil {
			m.logger.Error("rollback after failed commit did not complete",
				"error", rbErr,
				"output", string(rbOut),
			)
		}
		return nil, errors.NewWorkspaceError("failed to commit applied patch", err).
			WithMember(patch.MemberID).
			WithOperation("commit").
			WithPath(m.repoDir).
			WithGitOutput(string(out))
	}

	head, err := m.gitOutput(ctx, m.repoDir, "rev-parse", "HEAD")
	if err == nil {
		result.Commit = strings.TrimSpace(string(head))
	}
	result.Committed = true
	m.logger.Info("patch committed", "member", patch.MemberID, "commit", result.Commit, "files", len(result.Files))
	return result, nil
}

// Destroy removes the workspace's worktree and branch. It is safe to call
// more than once; calls after the first are no-ops.
func (m *Manager) Destroy(ctx context.Context, ws *Workspace) error {
	if ws == nil || !ws.destroyed.CompareAndSwap(false, true) {
		return nil
	}

	var firstErr error
	if out, err := m.git(ctx, m.repoDir, "worktree", "remove", "--force", ws.Path); err != nil {
		// Fall back to manual cleanup so nothing is leaked
		_ = os.RemoveAll(ws.Path)
		_, _ = m.git(ctx, m.repoDir, "worktree", "prune")
		if _, statErr := os.Stat(ws.Path); statErr == nil {
			firstErr = errors.NewWorkspaceError("failed to remove worktree", err).
				WithMember(ws.MemberID).
				WithOperation("destroy").
				WithPath(ws.Path).
				WithGitOutput(string(out))
		}
	}

	if out, err := m.git(ctx, m.repoDir, "branch", "-D", ws.Branch); err != nil && firstErr == nil {
		if !strings.Contains(string(out), "not found") {
			firstErr = errors.NewWorkspaceError("failed to delete branch", err).
				WithMember(ws.MemberID).
				WithOperation("destroy").
				WithGitOutput(string(out))
		}
	}

	// Remove the session directory once its last workspace is gone
	_ = os.Remove(filepath.Dir(ws.Path))

	m.logger.Info("workspace destroyed", "session_id", ws.SessionID, "member", ws.MemberID)
	return firstErr
}

// StaleReport lists what CleanupStale removed.
type StaleReport struct {
	Branches []string
	Dirs     []string
}

// CleanupStale removes leftovers from sessions that did not exit cleanly:
// branches under the workspace prefix and directories in the worktree
// directory. It must not run while a session is active.
func (m *Manager) CleanupStale(ctx context.Context) (*StaleReport, error) {
	report := &StaleReport{}

	if entries, err := os.ReadDir(m.WorktreeDir()); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			path := filepath.Join(m.WorktreeDir(), e.Name())
			if err := os.RemoveAll(path); err != nil {
				return report, errors.NewWorkspaceError("failed to remove stale workspace", err).
					WithOperation("cleanup").
					WithPath(path)
			}
			report.Dirs = append(report.Dirs, path)
		}
	}
	if out, err := m.git(ctx, m.repoDir, "worktree", "prune"); err != nil {
		return report, errors.NewWorkspaceError("failed to prune worktrees", err).
			WithOperation("cleanup").
			WithGitOutput(string(out))
	}

	branches, err := m.staleBranches()
	if err != nil {
		return report, err
	}
	for _, branch := range branches {
		if out, err := m.git(ctx, m.repoDir, "branch", "-D", branch); err != nil {
			m.logger.Warn("failed to delete stale branch", "branch", branch, "output", string(out))
			continue
		}
		report.Branches = append(report.Branches, branch)
	}

	m.logger.Info("stale workspaces cleaned", "branches", len(report.Branches), "dirs", len(report.Dirs))
	return report, nil
}

// FindStale reports what CleanupStale would remove without removing it.
func (m *Manager) FindStale() (*StaleReport, error) {
	report := &StaleReport{}
	if entries, err := os.ReadDir(m.WorktreeDir()); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				report.Dirs = append(report.Dirs, filepath.Join(m.WorktreeDir(), e.Name()))
			}
		}
	}
	branches, err := m.staleBranches()
	if err != nil {
		return report, err
	}
	report.Branches = branches
	return report, nil
}

// Empty reports whether nothing was found.
func (r *StaleReport) Empty() bool {
	return r == nil || (len(r.Branches) == 0 && len(r.Dirs) == 0)
}

// staleBranches lists local branches under the workspace prefix.
func (m *Manager) staleBranches() ([]string, error) {
	repo, err := git.PlainOpenWithOptions(m.repoDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, errors.NewWorkspaceError("cannot open shared tree", errors.ErrNotGitRepository).
			WithOperation("cleanup").
			WithPath(m.repoDir)
	}
	iter, err := repo.Branches()
	if err != nil {
		return nil, errors.NewWorkspaceError("failed to list branches", err).WithOperation("cleanup")
	}
	defer iter.Close()

	prefix := m.branchPrefix + "/"
	var out []string
	_ = iter.ForEach(func(ref *plumbing.Reference) error {
		if name := ref.Name().Short(); strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
		return nil
	})
	slices.Sort(out)
	return out, nil
}
