package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// InvocationError Tests
// -----------------------------------------------------------------------------

func TestInvocationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *InvocationError
		want string
	}{
		{
			name: "message only",
			err:  NewInvocationError("call failed", nil),
			want: "invocation error: call failed",
		},
		{
			name: "member and stage",
			err:  NewInvocationError("call failed", nil).WithMember("m1").WithStage("stage1"),
			want: "invocation error [member=m1, stage=stage1]: call failed",
		},
		{
			name: "timeout with cause",
			err:  NewInvocationError("call failed", ErrTimeout).WithMember("m1").WithTimeout(true),
			want: "invocation error [member=m1, timeout]: call failed: operation timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInvocationError_Is(t *testing.T) {
	err := NewInvocationError("call failed", nil).WithTimeout(true)

	if !errors.Is(err, &InvocationError{}) {
		t.Error("errors.Is(err, &InvocationError{}) = false, want true")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Error("timed-out invocation should match ErrTimeout")
	}
	if errors.Is(NewInvocationError("x", nil), ErrTimeout) {
		t.Error("non-timeout invocation should not match ErrTimeout")
	}
	if errors.Is(err, &WorkspaceError{}) {
		t.Error("invocation error should not match WorkspaceError")
	}
}

// -----------------------------------------------------------------------------
// WorkspaceError Tests
// -----------------------------------------------------------------------------

func TestWorkspaceError_Error(t *testing.T) {
	err := NewWorkspaceError("failed to create worktree", ErrNotGitRepository).
		WithMember("m2").
		WithOperation("create").
		WithPath("/tmp/ws").
		WithGitOutput("fatal: not a git repository\n")

	got := err.Error()
	want := "workspace error [member=m2, op=create, path=/tmp/ws]: failed to create worktree: not a git repository\nfatal: not a git repository"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrNotGitRepository) {
		t.Error("WorkspaceError should unwrap to its cause")
	}
}

// -----------------------------------------------------------------------------
// MergeConflictError Tests
// -----------------------------------------------------------------------------

func TestMergeConflictError(t *testing.T) {
	patch := "diff --git a/x b/x\n"
	err := NewMergeConflictError("patch does not apply", nil).
		WithMember("m1").
		WithPatch(patch).
		WithOutput("error: patch failed")

	if !errors.Is(err, ErrMergeConflict) {
		t.Error("MergeConflictError should match ErrMergeConflict")
	}
	if err.Patch != patch {
		t.Errorf("Patch = %q, want %q", err.Patch, patch)
	}
	if got := err.Error(); got != "merge conflict [member=m1]: patch does not apply" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := fmt.Errorf("merge: %w", err)
	var mc *MergeConflictError
	if !errors.As(wrapped, &mc) {
		t.Fatal("errors.As should find MergeConflictError through wrapping")
	}
	if mc.MemberID != "m1" {
		t.Errorf("MemberID = %q, want m1", mc.MemberID)
	}
}

// -----------------------------------------------------------------------------
// PersistenceError Tests
// -----------------------------------------------------------------------------

func TestPersistenceError_Error(t *testing.T) {
	err := NewPersistenceError("failed to write record", errors.New("disk full")).
		WithRecord("7").
		WithOperation("save")

	want := "persistence error [record=7, op=save]: failed to write record: disk full"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

// -----------------------------------------------------------------------------
// Semantic Error Tests
// -----------------------------------------------------------------------------

func TestValidationError(t *testing.T) {
	err := NewValidationError("query must not be empty").WithField("query").WithValue("")

	if !errors.Is(err, ErrInvalidInput) {
		t.Error("ValidationError should match ErrInvalidInput")
	}
	if !strings.HasPrefix(err.Error(), "validation error [field=query, value=]") {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.Severity() != SeverityWarning {
		t.Errorf("Severity() = %v, want warning", err.Severity())
	}
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("session", "42")
	if err.Error() != "session not found: 42" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("council session", 10*time.Minute)
	if err.Error() != "timeout error: council session (timeout: 10m0s)" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !IsRetryable(err) {
		t.Error("timeouts should be retryable")
	}
}

// -----------------------------------------------------------------------------
// Classification Tests
// -----------------------------------------------------------------------------

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), ""},
		{"invocation", NewInvocationError("x", nil), "InvocationFailure"},
		{"workspace", NewWorkspaceError("x", nil), "WorkspaceFailure"},
		{"conflict", NewMergeConflictError("x", nil), "MergeConflict"},
		{"validation", NewValidationError("x"), "ValidationFailure"},
		{"persistence", NewPersistenceError("x", nil), "PersistenceFailure"},
		{"wrapped", fmt.Errorf("run: %w", NewValidationError("x")), "ValidationFailure"},
		{"timeout", NewTimeoutError("op", time.Second), "Timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("nil should not be user facing")
	}
	if IsUserFacing(errors.New("internal")) {
		t.Error("plain errors should not be user facing")
	}
	if !IsUserFacing(fmt.Errorf("ctx: %w", NewWorkspaceError("x", nil))) {
		t.Error("wrapped WorkspaceError should be user facing")
	}
}

func TestGetSeverity(t *testing.T) {
	if got := GetSeverity(nil); got != SeverityDebug {
		t.Errorf("GetSeverity(nil) = %v", got)
	}
	if got := GetSeverity(errors.New("x")); got != SeverityError {
		t.Errorf("GetSeverity(plain) = %v", got)
	}
	err := NewInvocationError("x", nil).WithSeverity(SeverityCritical)
	if got := GetSeverity(err); got != SeverityCritical {
		t.Errorf("GetSeverity() = %v, want critical", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), false},
		{"sentinel timeout", fmt.Errorf("stage1: %w", ErrTimeout), true},
		{"invocation", NewInvocationError("x", nil), true},
		{"invocation marked permanent", NewInvocationError("x", ErrEmptyPrompt).WithRetryable(false), false},
		{"merge conflict", NewMergeConflictError("x", nil), false},
		{"timeout", NewTimeoutError("council session", time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "x") != nil || Wrapf(nil, "x %d", 1) != nil {
		t.Error("wrapping nil should give nil")
	}
	err := Wrapf(ErrAlreadyMerged, "session %d", 3)
	if err.Error() != "session 3: session already merged" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
	if !errors.Is(err, ErrAlreadyMerged) {
		t.Error("Wrapf should preserve the chain")
	}
}
