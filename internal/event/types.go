// Package event defines the progress events a council session emits and the
// bus that carries them to observers. Events are notifications only: the
// engine never waits on an observer and never reads anything back.
package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "session.started", "member.status").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Event type identifiers.
const (
	TypeSessionStarted   = "session.started"
	TypePhaseChanged     = "session.phase"
	TypeSessionCompleted = "session.completed"
	TypeMemberStatus     = "member.status"
	TypeWorkspace        = "workspace.changed"
	TypeRanking          = "ranking.computed"
	TypeMerge            = "merge.completed"
)

// Member status values reported in MemberStatusEvent.
const (
	MemberWaiting   = "waiting"
	MemberActive    = "active"
	MemberCompleted = "completed"
	MemberError     = "error"
)

// -----------------------------------------------------------------------------
// Session Lifecycle Events
// -----------------------------------------------------------------------------

// SessionStartedEvent is emitted once validation passes, before stage 1.
type SessionStartedEvent struct {
	baseEvent
	SessionID string
	Query     string
	Mode      string
	Members   []string
	Chairman  string
	ParentID  uint64 // non-zero for continued sessions
}

// NewSessionStartedEvent creates a SessionStartedEvent.
func NewSessionStartedEvent(sessionID, query, mode string, members []string, chairman string, parentID uint64) SessionStartedEvent {
	return SessionStartedEvent{
		baseEvent: newBaseEvent(TypeSessionStarted),
		SessionID: sessionID,
		Query:     query,
		Mode:      mode,
		Members:   append([]string(nil), members...),
		Chairman:  chairman,
		ParentID:  parentID,
	}
}

// PhaseChangedEvent is emitted on every state machine transition.
type PhaseChangedEvent struct {
	baseEvent
	SessionID  string
	Phase      string
	Previous   string
	Step       int // 1-based position of Phase in the pipeline
	TotalSteps int
	Message    string
}

// NewPhaseChangedEvent creates a PhaseChangedEvent.
func NewPhaseChangedEvent(sessionID, previous, phase string, step, total int, message string) PhaseChangedEvent {
	return PhaseChangedEvent{
		baseEvent:  newBaseEvent(TypePhaseChanged),
		SessionID:  sessionID,
		Phase:      phase,
		Previous:   previous,
		Step:       step,
		TotalSteps: total,
		Message:    message,
	}
}

// SessionCompletedEvent is emitted when a session reaches a terminal state.
type SessionCompletedEvent struct {
	baseEvent
	SessionID string
	RecordID  uint64
	Success   bool
	Error     string
	Duration  time.Duration
}

// NewSessionCompletedEvent creates a SessionCompletedEvent.
func NewSessionCompletedEvent(sessionID string, recordID uint64, err error, duration time.Duration) SessionCompletedEvent {
	e := SessionCompletedEvent{
		baseEvent: newBaseEvent(TypeSessionCompleted),
		SessionID: sessionID,
		RecordID:  recordID,
		Success:   err == nil,
		Duration:  duration,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// -----------------------------------------------------------------------------
// Member Events
// -----------------------------------------------------------------------------

// MemberStatusEvent reports one member's progress within a stage.
type MemberStatusEvent struct {
	baseEvent
	SessionID string
	MemberID  string
	Stage     string
	Status    string // one of the Member* constants
	Detail    string
	Duration  time.Duration
}

// NewMemberStatusEvent creates a MemberStatusEvent.
func NewMemberStatusEvent(sessionID, memberID, stage, status, detail string, duration time.Duration) MemberStatusEvent {
	return MemberStatusEvent{
		baseEvent: newBaseEvent(TypeMemberStatus),
		SessionID: sessionID,
		MemberID:  memberID,
		Stage:     stage,
		Status:    status,
		Detail:    detail,
		Duration:  duration,
	}
}

// WorkspaceEvent reports creation or removal of a member's isolated tree.
type WorkspaceEvent struct {
	baseEvent
	SessionID string
	MemberID  string
	Path      string
	Action    string // "created" or "destroyed"
}

// NewWorkspaceEvent creates a WorkspaceEvent.
func NewWorkspaceEvent(sessionID, memberID, path, action string) WorkspaceEvent {
	return WorkspaceEvent{
		baseEvent: newBaseEvent(TypeWorkspace),
		SessionID: sessionID,
		MemberID:  memberID,
		Path:      path,
		Action:    action,
	}
}

// -----------------------------------------------------------------------------
// Outcome Events
// -----------------------------------------------------------------------------

// RankingEvent carries the aggregate ordering. Only labels are included so
// observers cannot correlate reviewers with members mid-session.
type RankingEvent struct {
	baseEvent
	SessionID string
	Labels    []string
	Scores    []int
	Reviews   int // number of reviews that were aggregated
}

// NewRankingEvent creates a RankingEvent.
func NewRankingEvent(sessionID string, labels []string, scores []int, reviews int) RankingEvent {
	return RankingEvent{
		baseEvent: newBaseEvent(TypeRanking),
		SessionID: sessionID,
		Labels:    append([]string(nil), labels...),
		Scores:    append([]int(nil), scores...),
		Reviews:   reviews,
	}
}

// MergeEvent reports the outcome of the merge coordinator.
type MergeEvent struct {
	baseEvent
	SessionID string
	MemberID  string
	Status    string
	Files     []string
}

// NewMergeEvent creates a MergeEvent.
func NewMergeEvent(sessionID, memberID, status string, files []string) MergeEvent {
	return MergeEvent{
		baseEvent: newBaseEvent(TypeMerge),
		SessionID: sessionID,
		MemberID:  memberID,
		Status:    status,
		Files:     append([]string(nil), files...),
	}
}
