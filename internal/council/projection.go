package council

import (
	"maps"

	"github.com/Iron-Ham/council/internal/ranking"
	"github.com/Iron-Ham/council/internal/record"
	"github.com/Iron-Ham/council/internal/workspace"
)

// AnonymizedResponse is what reviewers see: a label and content, nothing
// that names the member.
type AnonymizedResponse struct {
	Label   string
	Content string
	// Diff is the anonymized patch in code mode.
	Diff string
	// Files, Additions and Deletions summarize Diff.
	Files     []string
	Additions int
	Deletions int
}

// Projection is the one-way view built once per session. Reviewers are
// given Views; the label to member mapping stays private until Reveal.
type Projection struct {
	views   []AnonymizedResponse
	reverse map[string]string
}

// Project labels successful responses in input order and writes each
// label back onto its response. Failed responses are left unlabeled and
// excluded from the projection. Each member's identity, taken from ids
// when present, is scrubbed from the content and diff reviewers see.
func Project(responses []record.Response, ids map[string]workspace.Identity) *Projection {
	p := &Projection{reverse: make(map[string]string)}
	for i := range responses {
		r := &responses[i]
		if !r.Success {
			r.Label = ""
			continue
		}
		label := ranking.Label(len(p.views))
		r.Label = label
		id, ok := ids[r.MemberID]
		if !ok {
			id = workspace.Identity{MemberID: r.MemberID}
		}
		view := AnonymizedResponse{Label: label, Content: id.Scrub(r.Content, label)}
		if r.Diff != nil {
			view.Diff = r.Diff.Anonymize(label)
			view.Files = append([]string(nil), r.Diff.Files...)
			view.Additions = r.Diff.Additions
			view.Deletions = r.Diff.Deletions
		}
		p.views = append(p.views, view)
		p.reverse[label] = r.MemberID
	}
	return p
}

// Len returns the number of labeled responses.
func (p *Projection) Len() int { return len(p.views) }

// Labels returns the labels in input order.
func (p *Projection) Labels() []string {
	out := make([]string, len(p.views))
	for i, v := range p.views {
		out[i] = v.Label
	}
	return out
}

// Views returns a copy of the anonymized responses.
func (p *Projection) Views() []AnonymizedResponse {
	out := make([]AnonymizedResponse, len(p.views))
	copy(out, p.views)
	return out
}

// Reveal returns a copy of the label to member mapping.
func (p *Projection) Reveal() map[string]string {
	return maps.Clone(p.reverse)
}
