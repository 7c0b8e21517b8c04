// Package record defines the durable shape of a council session and the
// stores that persist it. Records are append-only: a follow-up round is a
// new record linked to its parent, never an edit of the parent.
package record

import (
	"time"

	"github.com/Iron-Ham/council/internal/ranking"
	"github.com/Iron-Ham/council/internal/workspace"
)

// Mode selects how members answer.
type Mode string

const (
	// ModeText asks members for text answers.
	ModeText Mode = "text"
	// ModeCode gives each member an isolated workspace to change.
	ModeCode Mode = "code"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeText || m == ModeCode }

// Status is a session's terminal outcome.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Response is one member's stage 1 output.
type Response struct {
	MemberID string `json:"member_id"`
	// Label is the anonymized label, empty when the response failed.
	Label    string           `json:"label,omitempty"`
	Content  string           `json:"content"`
	Diff     *workspace.Patch `json:"diff,omitempty"`
	Success  bool             `json:"success"`
	Error    string           `json:"error,omitempty"`
	TimedOut bool             `json:"timed_out,omitempty"`
	Duration time.Duration    `json:"duration"`
}

// Review is one member's stage 2 ranking of the anonymized responses.
type Review struct {
	ReviewerID string            `json:"reviewer_id"`
	Ranking    []string          `json:"ranking,omitempty"`
	Commentary map[string]string `json:"commentary,omitempty"`
	Raw        string            `json:"raw,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	TimedOut   bool              `json:"timed_out,omitempty"`
	Duration   time.Duration     `json:"duration"`
}

// Synthesis is the chairman's stage 3 output.
type Synthesis struct {
	ChairmanID string        `json:"chairman_id"`
	Content    string        `json:"content"`
	Duration   time.Duration `json:"duration"`
	// Order is the ranking (member ids, best first) the chairman was given.
	Order []string `json:"order"`
	// Responses and Reviewers name the stage 1 and 2 artifacts consumed.
	Responses []string `json:"responses"`
	Reviewers []string `json:"reviewers"`
}

// MergeSummary records what happened to the winning proposal.
type MergeSummary struct {
	Status    string   `json:"status"`
	MemberID  string   `json:"member_id,omitempty"`
	Files     []string `json:"files,omitempty"`
	Commit    string   `json:"commit,omitempty"`
	PatchPath string   `json:"patch_path,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// SessionRecord is one complete deliberation.
type SessionRecord struct {
	ID             uint64 `json:"id"`
	ParentID       uint64 `json:"parent_id,omitempty"`
	ConversationID string `json:"conversation_id"`

	Query    string   `json:"query"`
	Mode     Mode     `json:"mode"`
	Roster   []string `json:"roster"`
	Chairman string   `json:"chairman"`
	RepoDir  string   `json:"repo_dir,omitempty"`

	Responses []Response      `json:"responses"`
	Reviews   []Review        `json:"reviews"`
	Ranking   ranking.Ranking `json:"ranking"`
	Synthesis *Synthesis      `json:"synthesis,omitempty"`
	Merge     *MergeSummary   `json:"merge,omitempty"`

	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Response returns the stage 1 response of a member.
func (r *SessionRecord) Response(memberID string) (Response, bool) {
	for _, resp := range r.Responses {
		if resp.MemberID == memberID {
			return resp, true
		}
	}
	return Response{}, false
}

// Winner returns the top-ranked member, if any.
func (r *SessionRecord) Winner() (string, bool) {
	top, ok := r.Ranking.Top()
	if !ok {
		return "", false
	}
	return r.Ranking.MemberFor(top.Label)
}

// Summary is the listing view of a record.
type Summary struct {
	ID             uint64    `json:"id"`
	ParentID       uint64    `json:"parent_id,omitempty"`
	ConversationID string    `json:"conversation_id"`
	Query          string    `json:"query"`
	Mode           Mode      `json:"mode"`
	Status         Status    `json:"status"`
	Winner         string    `json:"winner,omitempty"`
	StartedAt      time.Time `json:"started_at"`
}

// Summarize builds the listing view.
func (r *SessionRecord) Summarize() Summary {
	winner, _ := r.Winner()
	return Summary{
		ID:             r.ID,
		ParentID:       r.ParentID,
		ConversationID: r.ConversationID,
		Query:          r.Query,
		Mode:           r.Mode,
		Status:         r.Status,
		Winner:         winner,
		StartedAt:      r.StartedAt,
	}
}

// Conversation groups a root session and its follow-ups.
type Conversation struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	SessionIDs []uint64  `json:"session_ids"`
}
