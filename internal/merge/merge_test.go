package merge

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Iron-Ham/council/internal/errors"
	"github.com/Iron-Ham/council/internal/event"
	"github.com/Iron-Ham/council/internal/ranking"
	"github.com/Iron-Ham/council/internal/record"
	"github.com/Iron-Ham/council/internal/workspace"
)

type fakeApplier struct {
	mu      sync.Mutex
	repoDir string
	calls   []*workspace.Patch
	opts    []workspace.ApplyOptions
	err     error
}

func (f *fakeApplier) ApplyDiff(_ context.Context, p *workspace.Patch, opts workspace.ApplyOptions) (*workspace.ApplyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &workspace.ApplyResult{Files: p.Files, Committed: opts.Commit, Commit: "abc123"}, nil
}

func (f *fakeApplier) RepoDir() string { return f.repoDir }

func (f *fakeApplier) applied() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func patchFor(member, file string) *workspace.Patch {
	return &workspace.Patch{
		MemberID:  member,
		Content:   "diff --git a/" + file + " b/" + file + "\n+change\n",
		Files:     []string{file},
		Additions: 1,
	}
}

// codeRecord builds the worked example: A, B, C with B ranked first.
func codeRecord(diffs map[string]*workspace.Patch) *record.SessionRecord {
	labels := []string{"Response A", "Response B", "Response C"}
	r := ranking.Aggregate(labels, [][]string{
		{"Response B", "Response A", "Response C"},
		{"Response B", "Response C", "Response A"},
		{"Response A", "Response B", "Response C"},
	}).WithMembers(map[string]string{"Response A": "A", "Response B": "B", "Response C": "C"})

	rec := &record.SessionRecord{Mode: record.ModeCode, Roster: []string{"A", "B", "C"}, Chairman: "D", Ranking: r}
	for i, m := range []string{"A", "B", "C"} {
		rec.Responses = append(rec.Responses, record.Response{
			MemberID: m,
			Label:    labels[i],
			Success:  true,
			Diff:     diffs[m],
		})
	}
	return rec
}

func allDiffs() map[string]*workspace.Patch {
	return map[string]*workspace.Patch{
		"A": patchFor("A", "a.go"),
		"B": patchFor("B", "b.go"),
		"C": patchFor("C", "c.go"),
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name     string
		diffs    map[string]*workspace.Patch
		override string
		want     string
		wantNil  bool
		wantErr  bool
	}{
		{name: "top ranked", diffs: allDiffs(), want: "B"},
		{name: "override by id", diffs: allDiffs(), override: "C", want: "C"},
		{name: "override by position", diffs: allDiffs(), override: "2", want: "A"},
		{name: "falls back past empty diff", diffs: map[string]*workspace.Patch{"A": patchFor("A", "a.go")}, want: "A"},
		{name: "no diffs anywhere", diffs: nil, want: "B", wantNil: true},
		{name: "unknown override", diffs: allDiffs(), override: "Z", wantErr: true},
		{name: "position out of range", diffs: allDiffs(), override: "4", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			member, patch, err := Select(codeRecord(tt.diffs), tt.override)
			if tt.wantErr {
				if !errors.Is(err, &errors.ValidationError{}) {
					t.Fatalf("Select() error = %v, want ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if member != tt.want {
				t.Errorf("Select() member = %q, want %q", member, tt.want)
			}
			if tt.wantNil != patch.Empty() {
				t.Errorf("Select() patch empty = %v, want %v", patch.Empty(), tt.wantNil)
			}
		})
	}
}

func TestSelect_RejectsFailedMember(t *testing.T) {
	rec := codeRecord(allDiffs())
	rec.Responses[2].Success = false
	if _, _, err := Select(rec, "C"); !errors.Is(err, &errors.ValidationError{}) {
		t.Errorf("Select() error = %v, want ValidationError", err)
	}
}

func TestCoordinator_AutoMergeWorkedExample(t *testing.T) {
	applier := &fakeApplier{repoDir: t.TempDir()}
	bus := event.NewBus()
	var got []event.MergeEvent
	bus.Subscribe(event.TypeMerge, func(e event.Event) { got = append(got, e.(event.MergeEvent)) })

	c := NewCoordinator(applier, WithPublisher(bus))
	res, err := c.Merge(context.Background(), "s1", codeRecord(allDiffs()), Options{
		Mode:          ModeAuto,
		CommitMessage: "council: {member} in {session}",
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if res.Status != StatusMerged || res.MemberID != "B" || res.Commit != "abc123" {
		t.Errorf("Merge() = %+v", res)
	}
	if applier.opts[0].Message != "council: B in s1" || !applier.opts[0].Commit {
		t.Errorf("apply options = %+v", applier.opts[0])
	}
	if len(got) != 1 || got[0].Status != string(StatusMerged) {
		t.Errorf("merge events = %+v", got)
	}
	if m, ok := c.Merged("s1"); !ok || m != "B" {
		t.Errorf("Merged() = %q, %v", m, ok)
	}
}

func TestCoordinator_AtMostOncePerSession(t *testing.T) {
	applier := &fakeApplier{repoDir: t.TempDir()}
	c := NewCoordinator(applier)
	ctx := context.Background()

	if _, err := c.Merge(ctx, "s1", codeRecord(allDiffs()), Options{Mode: ModeAuto}); err != nil {
		t.Fatalf("first Merge() error = %v", err)
	}
	res, err := c.Merge(ctx, "s1", codeRecord(allDiffs()), Options{Mode: ModeAuto, MemberID: "A"})
	if !errors.Is(err, errors.ErrAlreadyMerged) {
		t.Fatalf("second Merge() error = %v, want ErrAlreadyMerged", err)
	}
	if res.Status.Landed() {
		t.Error("second merge must not land")
	}
	if applier.applied() != 1 {
		t.Errorf("ApplyDiff called %d times, want 1", applier.applied())
	}

	// A record that already carries a landed merge is rejected too
	rec := codeRecord(allDiffs())
	rec.Merge = &record.MergeSummary{Status: string(StatusStaged)}
	if _, err := NewCoordinator(applier).Merge(ctx, "s2", rec, Options{}); !errors.Is(err, errors.ErrAlreadyMerged) {
		t.Errorf("Merge() on merged record error = %v", err)
	}
}

func TestCoordinator_DryRunNeverApplies(t *testing.T) {
	applier := &fakeApplier{repoDir: t.TempDir()}
	c := NewCoordinator(applier, WithConfirmer(ConfirmFunc(func(context.Context, Prompt) (bool, error) {
		t.Error("dry run must not ask for confirmation")
		return true, nil
	})))

	res, err := c.Merge(context.Background(), "s1", codeRecord(allDiffs()), Options{Mode: ModeDryRun, Confirm: true})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if res.Status != StatusDryRun || res.MemberID != "B" {
		t.Errorf("Merge() = %+v", res)
	}
	if len(res.Candidates) != 3 || res.Candidates[0].MemberID != "B" {
		t.Errorf("Candidates = %d, first %+v", len(res.Candidates), res.Candidates)
	}
	if applier.applied() != 0 {
		t.Error("dry run applied a patch")
	}
	if _, ok := c.Merged("s1"); ok {
		t.Error("dry run must not count as a merge")
	}
}

func TestCoordinator_Confirmation(t *testing.T) {
	tests := []struct {
		name       string
		confirmer  Confirmer
		wantStatus Status
		wantApply  int
	}{
		{"approved", ConfirmFunc(func(context.Context, Prompt) (bool, error) { return true, nil }), StatusMerged, 1},
		{"declined", ConfirmFunc(func(context.Context, Prompt) (bool, error) { return false, nil }), StatusCancelled, 0},
		{"default declines", nil, StatusCancelled, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applier := &fakeApplier{repoDir: t.TempDir()}
			var opts []Option
			if tt.confirmer != nil {
				opts = append(opts, WithConfirmer(tt.confirmer))
			}
			res, err := NewCoordinator(applier, opts...).Merge(context.Background(), "s1", codeRecord(allDiffs()), Options{Confirm: true})
			if err != nil {
				t.Fatalf("Merge() error = %v", err)
			}
			if res.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", res.Status, tt.wantStatus)
			}
			if applier.applied() != tt.wantApply {
				t.Errorf("applied %d, want %d", applier.applied(), tt.wantApply)
			}
		})
	}
}

func TestTerminalConfirmer_NotATerminal(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	var out bytes.Buffer
	applier := &fakeApplier{repoDir: t.TempDir()}
	c := NewCoordinator(applier, WithConfirmer(&TerminalConfirmer{In: r, Out: &out}))

	res, err := c.Merge(context.Background(), "s1", codeRecord(allDiffs()), Options{Confirm: true})
	if !errors.Is(err, &errors.ValidationError{}) {
		t.Fatalf("Merge() error = %v, want ValidationError", err)
	}
	if res.Status != StatusError {
		t.Errorf("Status = %q, want %q", res.Status, StatusError)
	}
	if applier.applied() != 0 {
		t.Error("nothing may be applied without an answer")
	}
	if out.Len() != 0 {
		t.Errorf("no prompt should be printed, got %q", out.String())
	}
}

func TestCoordinator_NoCommitStages(t *testing.T) {
	applier := &fakeApplier{repoDir: t.TempDir()}
	res, err := NewCoordinator(applier).Merge(context.Background(), "s1", codeRecord(allDiffs()), Options{NoCommit: true})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if res.Status != StatusStaged || applier.opts[0].Commit {
		t.Errorf("Merge() = %+v, opts %+v", res, applier.opts[0])
	}
}

func TestCoordinator_NoChanges(t *testing.T) {
	applier := &fakeApplier{repoDir: t.TempDir()}
	res, err := NewCoordinator(applier).Merge(context.Background(), "s1", codeRecord(nil), Options{})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if res.Status != StatusNoChanges || applier.applied() != 0 {
		t.Errorf("Merge() = %+v", res)
	}
}

func TestCoordinator_ConflictSavesPatch(t *testing.T) {
	repo := t.TempDir()
	conflict := errors.NewMergeConflictError("patch does not apply", nil).WithMember("B")
	applier := &fakeApplier{repoDir: repo, err: conflict}
	c := NewCoordinator(applier)

	res, err := c.Merge(context.Background(), "s1", codeRecord(allDiffs()), Options{})
	if !errors.Is(err, &errors.MergeConflictError{}) {
		t.Fatalf("Merge() error = %v, want MergeConflictError", err)
	}
	if res.Status != StatusConflict || res.Patch == nil {
		t.Fatalf("Merge() = %+v", res)
	}
	want := filepath.Join(repo, DefaultPatchDir, "s1-B.patch")
	if res.PatchPath != want {
		t.Errorf("PatchPath = %q, want %q", res.PatchPath, want)
	}
	data, readErr := os.ReadFile(want)
	if readErr != nil || string(data) != res.Patch.Content {
		t.Errorf("saved patch = %q, %v", data, readErr)
	}
	if _, ok := c.Merged("s1"); ok {
		t.Error("a conflict must not count as the session's merge")
	}
	if s := res.Summary(); s.Status != "conflict" || s.PatchPath != want || s.Error == "" {
		t.Errorf("Summary() = %+v", s)
	}
}

func TestCoordinator_RejectsInvalidOptions(t *testing.T) {
	c := NewCoordinator(&fakeApplier{repoDir: t.TempDir()})
	ctx := context.Background()

	tests := []struct {
		name string
		rec  *record.SessionRecord
		opts Options
	}{
		{"manual without member", codeRecord(allDiffs()), Options{Mode: ModeManual}},
		{"unknown mode", codeRecord(allDiffs()), Options{Mode: "yolo"}},
		{"text session", &record.SessionRecord{Mode: record.ModeText}, Options{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Merge(ctx, "s1", tt.rec, tt.opts)
			if !errors.Is(err, &errors.ValidationError{}) {
				t.Errorf("Merge() error = %v, want ValidationError", err)
			}
			if res == nil || res.Status != StatusError {
				t.Errorf("Merge() result = %+v", res)
			}
		})
	}
}

func TestConfirmFrom(t *testing.T) {
	p := Prompt{SessionID: "s1", MemberID: "B", Patch: patchFor("B", "b.go")}
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			got, err := confirmFrom(context.Background(), strings.NewReader(tt.input), &out, p, false)
			if err != nil {
				t.Fatalf("confirmFrom() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("confirmFrom(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "Apply proposal from B (1 files, +1 -0)? [y/N]") {
				t.Errorf("prompt = %q", out.String())
			}
		})
	}
}
