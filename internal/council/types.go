package council

import (
	"github.com/Iron-Ham/council/internal/merge"
	"github.com/Iron-Ham/council/internal/record"
)

// Role distinguishes reviewers from the synthesizer.
type Role string

const (
	RoleCouncil  Role = "council"
	RoleChairman Role = "chairman"
)

// Member is one model identity taking part in a session.
type Member struct {
	ID   string
	Role Role
}

// Members expands a roster and chairman into Members, council first.
func Members(roster []string, chairman string) []Member {
	out := make([]Member, 0, len(roster)+1)
	for _, id := range roster {
		out = append(out, Member{ID: id, Role: RoleCouncil})
	}
	return append(out, Member{ID: chairman, Role: RoleChairman})
}

// Phase is a state of the session state machine.
type Phase string

const (
	PhaseInit      Phase = "init"
	PhaseStage1    Phase = "stage1"
	PhaseAnonymize Phase = "anonymize"
	PhaseStage2    Phase = "stage2"
	PhaseAggregate Phase = "aggregate"
	PhaseStage3    Phase = "stage3"
	PhaseFinalize  Phase = "finalize"
	PhaseMerging   Phase = "merging"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
)

// pipeline is the ordered list of non-terminal phases, used for progress.
var pipeline = []Phase{
	PhaseInit, PhaseStage1, PhaseAnonymize, PhaseStage2,
	PhaseAggregate, PhaseStage3, PhaseFinalize, PhaseMerging,
}

// IsTerminal returns true if this phase represents a final state.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

// Step returns the 1-based position of p in the pipeline, or the total
// for terminal phases.
func (p Phase) Step() int {
	for i, q := range pipeline {
		if q == p {
			return i + 1
		}
	}
	return len(pipeline)
}

// SessionRequest is the input to RunSession.
type SessionRequest struct {
	Query    string
	Roster   []string
	Chairman string
	Mode     record.Mode
	// Merge requests a merge of the winning proposal (code mode only).
	Merge *merge.Options
}

// Type aliases keep callers from importing record for the common types.
type (
	Response  = record.Response
	Review    = record.Review
	Synthesis = record.Synthesis
)
