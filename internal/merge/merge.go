// Package merge selects one council member's proposal and lands it in the
// shared tree. At most one proposal is merged per session, conflicts never
// partially mutate the tree, and nothing is applied without approval when
// confirmation is requested.
package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/Iron-Ham/council/internal/errors"
	"github.com/Iron-Ham/council/internal/event"
	"github.com/Iron-Ham/council/internal/logging"
	"github.com/Iron-Ham/council/internal/record"
	"github.com/Iron-Ham/council/internal/workspace"
)

// Mode selects how the proposal is chosen and whether it is applied.
type Mode string

const (
	// ModeAuto applies the top-ranked proposal, or the override if given.
	ModeAuto Mode = "auto"
	// ModeManual applies only an explicitly chosen proposal.
	ModeManual Mode = "manual"
	// ModeDryRun selects and previews without touching the shared tree.
	ModeDryRun Mode = "dry-run"
)

// Status is the outcome of a merge attempt.
type Status string

const (
	StatusMerged    Status = "merged"
	StatusStaged    Status = "staged"
	StatusDryRun    Status = "dry_run"
	StatusCancelled Status = "cancelled"
	StatusNoChanges Status = "no_changes"
	StatusConflict  Status = "conflict"
	StatusError     Status = "error"
)

// Landed reports whether the shared tree was changed.
func (s Status) Landed() bool { return s == StatusMerged || s == StatusStaged }

// DefaultPatchDir keeps conflicting patches, relative to the repository root.
var DefaultPatchDir = filepath.Join(workspace.StateDir, "patches")

// Options control one merge.
type Options struct {
	Mode Mode
	// MemberID overrides the ranking. It is a roster member identifier or
	// a 1-based position in the final ranking ("2" is the runner-up).
	MemberID string
	// Confirm requires the Confirmer to approve before applying.
	Confirm bool
	// NoCommit stages the change without recording a commit.
	NoCommit bool
	// CommitMessage may contain {member} and {session}.
	CommitMessage string
}

// Validate checks the options without reference to a session.
func (o Options) Validate() error {
	switch o.Mode {
	case ModeAuto, ModeDryRun, "":
	case ModeManual:
		if strings.TrimSpace(o.MemberID) == "" {
			return errors.NewValidationError("manual merge requires a member").
				WithField("merge.member")
		}
	default:
		return errors.NewValidationError("unknown merge mode").
			WithField("merge.mode").
			WithValue(string(o.Mode))
	}
	return nil
}

// Result describes a merge attempt.
type Result struct {
	Status   Status
	MemberID string
	Files    []string
	Commit   string
	// Patch is the selected proposal. It is kept on conflict for manual
	// resolution and on dry run for preview.
	Patch *workspace.Patch
	// PatchPath is where a conflicting patch was saved.
	PatchPath string
	// Candidates lists every non-empty proposal in ranking order (dry run).
	Candidates []*workspace.Patch
	Err        error
}

// Summary converts the result into its persisted form.
func (r *Result) Summary() *record.MergeSummary {
	if r == nil {
		return nil
	}
	s := &record.MergeSummary{
		Status:    string(r.Status),
		MemberID:  r.MemberID,
		Files:     slices.Clone(r.Files),
		Commit:    r.Commit,
		PatchPath: r.PatchPath,
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}

// Applier lands a patch in the shared tree. workspace.Manager implements it.
type Applier interface {
	ApplyDiff(ctx context.Context, patch *workspace.Patch, opts workspace.ApplyOptions) (*workspace.ApplyResult, error)
	RepoDir() string
}

var _ Applier = (*workspace.Manager)(nil)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConfirmer sets the approval gate used when Options.Confirm is set.
func WithConfirmer(c Confirmer) Option {
	return func(co *Coordinator) { co.confirmer = c }
}

// WithPatchDir sets where conflicting patches are saved. Relative paths
// are resolved against the repository root.
func WithPatchDir(dir string) Option {
	return func(co *Coordinator) {
		if dir != "" {
			co.patchDir = dir
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(co *Coordinator) {
		if l != nil {
			co.logger = l
		}
	}
}

// WithPublisher reports merge outcomes as events.
func WithPublisher(p event.Publisher) Option {
	return func(co *Coordinator) { co.bus = p }
}

// Coordinator selects and applies proposals.
type Coordinator struct {
	applier   Applier
	confirmer Confirmer
	patchDir  string
	logger    *logging.Logger
	bus       event.Publisher

	mu     sync.Mutex
	merged map[string]string // session -> member
}

// NewCoordinator creates a Coordinator. Without a Confirmer every
// confirmation is declined.
func NewCoordinator(applier Applier, opts ...Option) *Coordinator {
	c := &Coordinator{
		applier:   applier,
		confirmer: DeclineConfirmer{},
		patchDir:  DefaultPatchDir,
		logger:    logging.NopLogger(),
		merged:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Merge selects a proposal from rec and applies it according to opts.
// The returned Result is always non-nil. The error is non-nil for
// rejected options (ValidationError), a repeated merge
// (ErrAlreadyMerged), a conflict (MergeConflictError) or an apply
// failure; a declined confirmation or an empty proposal is not an error.
func (c *Coordinator) Merge(ctx context.Context, sessionID string, rec *record.SessionRecord, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return &Result{Status: StatusError, Err: err}, err
	}
	if rec == nil || rec.Mode != record.ModeCode {
		err := errors.NewValidationError("only code-mode sessions can be merged").WithField("mode")
		return &Result{Status: StatusError, Err: err}, err
	}
	if rec.Merge != nil && Status(rec.Merge.Status).Landed() {
		err := fmt.Errorf("%w: %s", errors.ErrAlreadyMerged, sessionID)
		return &Result{Status: StatusError, Err: err}, err
	}

	logger := c.logger.WithSession(sessionID).WithPhase("merge")

	memberID, patch, err := Select(rec, opts.MemberID)
	if err != nil {
		return &Result{Status: StatusError, Err: err}, err
	}
	res := &Result{MemberID: memberID, Patch: patch}
	if patch.Empty() {
		res.Status = StatusNoChanges
		logger.Info("no proposal to merge", "member", memberID)
		c.publish(sessionID, res)
		return res, nil
	}
	res.Files = slices.Clone(patch.Files)

	if opts.Mode == ModeDryRun {
		res.Status = StatusDryRun
		res.Candidates = Candidates(rec)
		logger.Info("dry run", "member", memberID, "files", len(patch.Files))
		c.publish(sessionID, res)
		return res, nil
	}

	if opts.Confirm {
		ok, err := c.confirmer.Confirm(ctx, Prompt{SessionID: sessionID, MemberID: memberID, Patch: patch})
		if err != nil {
			res.Status = StatusError
			res.Err = err
			return res, err
		}
		if !ok {
			res.Status = StatusCancelled
			logger.Info("merge declined", "member", memberID)
			c.publish(sessionID, res)
			return res, nil
		}
	}

	// Claim the session before touching the tree so a concurrent second
	// call cannot apply another patch.
	if err := c.claim(sessionID, memberID); err != nil {
		res.Status = StatusError
		res.Err = err
		return res, err
	}

	applied, err := c.applier.ApplyDiff(ctx, patch, workspace.ApplyOptions{
		Commit:  !opts.NoCommit,
		Message: commitMessage(opts.CommitMessage, memberID, sessionID),
	})
	if err != nil {
		c.unclaim(sessionID)
		res.Err = err
		if errors.Is(err, errors.ErrMergeConflict) {
			res.Status = StatusConflict
			if path, saveErr := c.savePatch(sessionID, memberID, patch); saveErr != nil {
				logger.Warn("failed to save conflicting patch", "error", saveErr)
			} else {
				res.PatchPath = path
			}
			logger.Warn("merge conflict", "member", memberID, "patch", res.PatchPath)
		} else {
			res.Status = StatusError
			logger.Error("merge failed", "member", memberID, "error", err)
		}
		c.publish(sessionID, res)
		return res, err
	}

	res.Files = applied.Files
	res.Commit = applied.Commit
	if applied.Committed {
		res.Status = StatusMerged
	} else {
		res.Status = StatusStaged
	}
	logger.Info("proposal merged", "member", memberID, "status", string(res.Status), "commit", res.Commit)
	c.publish(sessionID, res)
	return res, nil
}

// Merged returns the member whose proposal was merged for a session.
func (c *Coordinator) Merged(sessionID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.merged[sessionID]
	return m, ok
}

func (c *Coordinator) claim(sessionID, memberID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.merged[sessionID]; ok {
		return fmt.Errorf("%w: session %s already merged %s", errors.ErrAlreadyMerged, sessionID, prev)
	}
	c.merged[sessionID] = memberID
	return nil
}

func (c *Coordinator) unclaim(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.merged, sessionID)
}

func (c *Coordinator) savePatch(sessionID, memberID string, patch *workspace.Patch) (string, error) {
	dir := c.patchDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(c.applier.RepoDir(), dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.patch", sessionID, workspace.Slug(memberID)))
	if err := os.WriteFile(path, []byte(patch.Content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (c *Coordinator) publish(sessionID string, res *Result) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(event.NewMergeEvent(sessionID, res.MemberID, string(res.Status), res.Files))
}

func commitMessage(template, memberID, sessionID string) string {
	if template == "" {
		return ""
	}
	return strings.NewReplacer("{member}", memberID, "{session}", sessionID).Replace(template)
}

// Select picks the proposal to merge. A non-empty override must name a
// roster member that produced a response, or be a 1-based position in the
// final ranking. Without an override the top-ranked member with a
// non-empty diff wins; when no ranked member changed anything the top
// member is returned with a nil patch.
func Select(rec *record.SessionRecord, override string) (string, *workspace.Patch, error) {
	override = strings.TrimSpace(override)
	if override != "" {
		memberID, err := resolveOverride(rec, override)
		if err != nil {
			return "", nil, err
		}
		resp, _ := rec.Response(memberID)
		return memberID, resp.Diff, nil
	}

	ordered := rec.Ranking.OrderedMembers()
	for _, memberID := range ordered {
		if resp, ok := rec.Response(memberID); ok && !resp.Diff.Empty() {
			return memberID, resp.Diff, nil
		}
	}
	if len(ordered) > 0 {
		return ordered[0], nil, nil
	}
	return "", nil, nil
}

func resolveOverride(rec *record.SessionRecord, override string) (string, error) {
	if resp, ok := rec.Response(override); ok {
		if !resp.Success {
			return "", errors.NewValidationError("member has no successful proposal in this session").
				WithField("merge.member").
				WithValue(override)
		}
		return override, nil
	}
	if n, err := strconv.Atoi(override); err == nil {
		ordered := rec.Ranking.OrderedMembers()
		if n >= 1 && n <= len(ordered) {
			return ordered[n-1], nil
		}
		return "", errors.NewValidationError(fmt.Sprintf("ranking position out of range (1-%d)", len(ordered))).
			WithField("merge.member").
			WithValue(override)
	}
	return "", errors.NewValidationError("member is not part of this session").
		WithField("merge.member").
		WithValue(override)
}

// Candidates returns every non-empty proposal in ranking order.
func Candidates(rec *record.SessionRecord) []*workspace.Patch {
	var out []*workspace.Patch
	for _, memberID := range rec.Ranking.OrderedMembers() {
		if resp, ok := rec.Response(memberID); ok && !resp.Diff.Empty() {
			out = append(out, resp.Diff)
		}
	}
	return out
}
