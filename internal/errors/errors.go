// Package errors provides centralized error definitions and error handling utilities
// for the council engine. It defines the failure taxonomy surfaced to callers,
// semantic error types, builder-style context wrapping, and classification helpers.
//
// # Error Types
//
// Domain-specific errors map one-to-one to the ways a council session can fail:
//   - InvocationError: a member or chairman call failed or timed out
//   - WorkspaceError: isolated workspace creation, teardown, or diffing failed
//   - MergeConflictError: a proposal no longer applies to the shared tree
//   - PersistenceError: a session record could not be saved or loaded
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - AlreadyExistsError: resource already exists
//   - ValidationError: malformed roster, empty query, inconsistent mode
//   - TimeoutError: operation timed out
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewInvocationError("chairman call failed", cause).
//		WithMember("openai/gpt-5").WithStage("stage3")
//
//	err := errors.NewMergeConflictError("patch does not apply", cause).
//		WithMember("anthropic/claude").WithPatch(patch)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrMergeConflict) { ... }
//
//	var invErr *errors.InvocationError
//	if errors.As(err, &invErr) { retry(invErr.MemberID, invErr.Stage) }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Invocation-related sentinel errors
var (
	// ErrEmptyPrompt indicates an invocation was attempted without a prompt.
	ErrEmptyPrompt = New("prompt is empty")
	// ErrChairmanFailed indicates the stage 3 synthesis could not be produced.
	ErrChairmanFailed = New("chairman synthesis failed")
	// ErrNoBackend indicates no backend is configured for a member.
	ErrNoBackend = New("no backend for member")
)

// Workspace-related sentinel errors
var (
	// ErrNotGitRepository indicates that the directory is not a git repository.
	ErrNotGitRepository = New("not a git repository")
	// ErrDirtyTree indicates the shared tree has state that cannot be isolated.
	ErrDirtyTree = New("shared tree has uncommitted changes")
	// ErrUntrackedUnclassified indicates untracked files matched no policy rule.
	ErrUntrackedUnclassified = New("untracked files are neither included nor excluded")
	// ErrWorkspaceExists indicates a workspace for the member is already allocated.
	ErrWorkspaceExists = New("workspace already exists")
	// ErrRepositoryLocked indicates another session is active in the repository.
	ErrRepositoryLocked = New("repository is locked by another session")
)

// Merge-related sentinel errors
var (
	// ErrMergeConflict indicates that a patch no longer applies cleanly.
	ErrMergeConflict = New("merge conflict")
	// ErrAlreadyMerged indicates a merge was already performed for the session.
	ErrAlreadyMerged = New("session already merged")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrNotFound indicates a requested resource does not exist.
	ErrNotFound = New("not found")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// CouncilError is the base interface for all council errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type CouncilError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	// This is used by errors.Is() for error comparison.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// format renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// InvocationError represents a failed or timed-out model invocation.
//
// Example:
//
//	err := errors.NewInvocationError("process exited with status 1", cause)
//	err = err.WithMember("openai/gpt-5").WithStage("stage1")
//	fmt.Println(err) // "invocation error [member=openai/gpt-5, stage=stage1]: process exited with status 1: ..."
type InvocationError struct {
	baseError
	MemberID string
	Stage    string
	Timeout  bool
}

// NewInvocationError creates a new InvocationError.
func NewInvocationError(message string, cause error) *InvocationError {
	return &InvocationError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithMember adds the member identifier to the error context.
func (e *InvocationError) WithMember(id string) *InvocationError {
	e.MemberID = id
	return e
}

// WithStage adds the session stage to the error context.
func (e *InvocationError) WithStage(stage string) *InvocationError {
	e.Stage = stage
	return e
}

// WithTimeout marks the invocation as having exceeded its deadline.
func (e *InvocationError) WithTimeout(timedOut bool) *InvocationError {
	e.Timeout = timedOut
	return e
}

// WithSeverity sets the error severity.
func (e *InvocationError) WithSeverity(s Severity) *InvocationError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *InvocationError) WithRetryable(r bool) *InvocationError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *InvocationError) Error() string {
	var parts []string
	if e.MemberID != "" {
		parts = append(parts, fmt.Sprintf("member=%s", e.MemberID))
	}
	if e.Stage != "" {
		parts = append(parts, fmt.Sprintf("stage=%s", e.Stage))
	}
	if e.Timeout {
		parts = append(parts, "timeout")
	}
	return e.format("invocation error", parts)
}

// Is checks if this error matches the target.
func (e *InvocationError) Is(target error) bool {
	if _, ok := target.(*InvocationError); ok {
		return true
	}
	if e.Timeout && errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// WorkspaceError represents errors creating, diffing, or destroying an
// isolated workspace, or applying a patch to the shared tree.
//
// Example:
//
//	err := errors.NewWorkspaceError("failed to create worktree", cause).
//		WithMember("m1").WithOperation("create").WithPath(path).WithGitOutput(out)
type WorkspaceError struct {
	baseError
	MemberID  string
	Operation string
	Path      string
	GitOutput string
}

// NewWorkspaceError creates a new WorkspaceError.
func NewWorkspaceError(message string, cause error) *WorkspaceError {
	return &WorkspaceError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithMember adds the owning member to the error context.
func (e *WorkspaceError) WithMember(id string) *WorkspaceError {
	e.MemberID = id
	return e
}

// WithOperation adds the failed operation name to the error context.
func (e *WorkspaceError) WithOperation(op string) *WorkspaceError {
	e.Operation = op
	return e
}

// WithPath adds the workspace or repository path to the error context.
func (e *WorkspaceError) WithPath(path string) *WorkspaceError {
	e.Path = path
	return e
}

// WithGitOutput adds git command output to the error context.
func (e *WorkspaceError) WithGitOutput(output string) *WorkspaceError {
	e.GitOutput = output
	return e
}

// WithSeverity sets the error severity.
func (e *WorkspaceError) WithSeverity(s Severity) *WorkspaceError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *WorkspaceError) Error() string {
	var parts []string
	if e.MemberID != "" {
		parts = append(parts, fmt.Sprintf("member=%s", e.MemberID))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Operation))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	msg := e.format("workspace error", parts)
	if e.GitOutput != "" {
		msg += "\n" + strings.TrimSpace(e.GitOutput)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *WorkspaceError) Is(target error) bool {
	if _, ok := target.(*WorkspaceError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// MergeConflictError represents a patch that no longer applies cleanly
// against the shared tree. The patch is preserved for manual resolution.
type MergeConflictError struct {
	baseError
	MemberID string
	Patch    string
	Output   string
}

// NewMergeConflictError creates a new MergeConflictError.
func NewMergeConflictError(message string, cause error) *MergeConflictError {
	return &MergeConflictError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithMember adds the member whose proposal conflicted.
func (e *MergeConflictError) WithMember(id string) *MergeConflictError {
	e.MemberID = id
	return e
}

// WithPatch preserves the conflicting patch.
func (e *MergeConflictError) WithPatch(patch string) *MergeConflictError {
	e.Patch = patch
	return e
}

// WithOutput adds the apply tool output.
func (e *MergeConflictError) WithOutput(output string) *MergeConflictError {
	e.Output = output
	return e
}

// Error returns the formatted error message.
func (e *MergeConflictError) Error() string {
	var parts []string
	if e.MemberID != "" {
		parts = append(parts, fmt.Sprintf("member=%s", e.MemberID))
	}
	return e.format("merge conflict", parts)
}

// Is checks if this error matches the target.
func (e *MergeConflictError) Is(target error) bool {
	if _, ok := target.(*MergeConflictError); ok {
		return true
	}
	if errors.Is(target, ErrMergeConflict) {
		return true
	}
	return e.baseError.Is(target)
}

// PersistenceError represents a session record that could not be saved or loaded.
type PersistenceError struct {
	baseError
	RecordID  string
	Operation string
	Path      string
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(message string, cause error) *PersistenceError {
	return &PersistenceError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithRecord adds the record identifier to the error context.
func (e *PersistenceError) WithRecord(id string) *PersistenceError {
	e.RecordID = id
	return e
}

// WithOperation adds the failed operation name.
func (e *PersistenceError) WithOperation(op string) *PersistenceError {
	e.Operation = op
	return e
}

// WithPath adds the storage path.
func (e *PersistenceError) WithPath(path string) *PersistenceError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *PersistenceError) Error() string {
	var parts []string
	if e.RecordID != "" {
		parts = append(parts, fmt.Sprintf("record=%s", e.RecordID))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Operation))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	return e.format("persistence error", parts)
}

// Is checks if this error matches the target.
func (e *PersistenceError) Is(target error) bool {
	if _, ok := target.(*PersistenceError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("session", "42")
//	fmt.Println(err) // "session not found: 42"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s not found", resourceType),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("%s not found: %s", e.ResourceType, e.ResourceID)
	}
	return fmt.Sprintf("%s not found", e.ResourceType)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if errors.Is(target, ErrNotFound) {
		return true
	}
	return e.baseError.Is(target)
}

// AlreadyExistsError represents a resource that already exists.
type AlreadyExistsError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(resourceType, resourceID string) *AlreadyExistsError {
	return &AlreadyExistsError{
		baseError: baseError{
			message:    fmt.Sprintf("%s already exists", resourceType),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// Error returns the formatted error message.
func (e *AlreadyExistsError) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("%s already exists: %s", e.ResourceType, e.ResourceID)
	}
	return fmt.Sprintf("%s already exists", e.ResourceType)
}

// Is checks if this error matches the target.
func (e *AlreadyExistsError) Is(target error) bool {
	if _, ok := target.(*AlreadyExistsError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("chairman must not sit on the council")
//	err = err.WithField("chairman").WithValue("openai/gpt-5")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("council session", 10*time.Minute)
//	fmt.Println(err) // "timeout error: council session (timeout: 10m0s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true, // Timeouts are generally retryable
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing CouncilError with IsRetryable() returning true
//   - Errors wrapping ErrTimeout
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var councilErr CouncilError
	if As(err, &councilErr) {
		return councilErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var councilErr CouncilError
	if As(err, &councilErr) {
		return councilErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement CouncilError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var councilErr CouncilError
	if As(err, &councilErr) {
		return councilErr.Severity()
	}

	// Default to Error severity for unknown errors
	return SeverityError
}

// Kind names the taxonomy bucket an error falls into, for reporting.
// Returns "" for errors outside the taxonomy.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, &MergeConflictError{}):
		return "MergeConflict"
	case Is(err, &InvocationError{}):
		return "InvocationFailure"
	case Is(err, &WorkspaceError{}):
		return "WorkspaceFailure"
	case Is(err, &ValidationError{}):
		return "ValidationFailure"
	case Is(err, &PersistenceError{}):
		return "PersistenceFailure"
	case Is(err, ErrTimeout):
		return "Timeout"
	default:
		return ""
	}
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap adds context to err, returning nil for a nil err.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
