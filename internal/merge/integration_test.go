package merge

import (
	"context"
	"testing"

	"github.com/Iron-Ham/council/internal/errors"
	"github.com/Iron-Ham/council/internal/testutil"
	"github.com/Iron-Ham/council/internal/workspace"
)

// proposeIn creates a workspace for member, writes content to path and
// returns the resulting diff.
func proposeIn(t *testing.T, m *workspace.Manager, session, member, path, content string) (*workspace.Workspace, *workspace.Patch) {
	t.Helper()
	ctx := context.Background()
	ws, err := m.Create(ctx, session, member)
	if err != nil {
		t.Fatalf("Create(%s): %v", member, err)
	}
	t.Cleanup(func() { _ = m.Destroy(context.Background(), ws) })
	testutil.WriteFile(t, ws.Path, path, content)
	patch, err := m.Diff(ctx, ws)
	if err != nil {
		t.Fatalf("Diff(%s): %v", member, err)
	}
	return ws, patch
}

func TestCoordinator_WithWorkspaceManager(t *testing.T) {
	repo := testutil.SetupTestRepo(t)
	m, err := workspace.New(repo)
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	ctx := context.Background()
	if _, err := m.ValidateBaseline(ctx); err != nil {
		t.Fatalf("ValidateBaseline: %v", err)
	}

	_, pa := proposeIn(t, m, "s1", "A", "README.md", "# from A\n")
	_, pb := proposeIn(t, m, "s1", "B", "README.md", "# from B\n")
	rec := codeRecord(map[string]*workspace.Patch{"A": pa, "B": pb})

	before := testutil.GetCommitCount(t, repo)
	c := NewCoordinator(m)

	t.Run("dry run leaves the tree alone", func(t *testing.T) {
		res, err := c.Merge(ctx, "s1", rec, Options{Mode: ModeDryRun})
		if err != nil || res.Status != StatusDryRun {
			t.Fatalf("Merge() = %+v, %v", res, err)
		}
		if testutil.GetCommitCount(t, repo) != before || testutil.Status(t, repo) != "" {
			t.Error("dry run mutated the shared tree")
		}
	})

	t.Run("winner is committed", func(t *testing.T) {
		res, err := c.Merge(ctx, "s1", rec, Options{Mode: ModeAuto})
		if err != nil {
			t.Fatalf("Merge() error = %v", err)
		}
		if res.Status != StatusMerged || res.MemberID != "B" {
			t.Fatalf("Merge() = %+v", res)
		}
		if got := testutil.ReadFile(t, repo, "README.md"); got != "# from B\n" {
			t.Errorf("README.md = %q", got)
		}
		if testutil.GetCommitCount(t, repo) != before+1 {
			t.Error("expected exactly one new commit")
		}
	})

	t.Run("losing proposal now conflicts and tree is unchanged", func(t *testing.T) {
		head := testutil.HeadRevision(t, repo)
		res, err := NewCoordinator(m).Merge(ctx, "s2", rec, Options{MemberID: "A"})
		if !errors.Is(err, errors.ErrMergeConflict) {
			t.Fatalf("Merge() error = %v, want conflict", err)
		}
		if res.Status != StatusConflict || res.PatchPath == "" {
			t.Errorf("Merge() = %+v", res)
		}
		if testutil.HeadRevision(t, repo) != head || testutil.Status(t, repo) != "" {
			t.Error("conflict mutated the shared tree")
		}
	})
}
