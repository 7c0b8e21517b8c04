// Package ranking reduces peer reviews to one consensus ordering.
//
// Each reviewer submits a ballot: a permutation of the anonymized labels,
// most preferred first. A label earns (N - position) points per ballot,
// where N is the number of labels, so first place is worth N and last place
// is worth 1. Totals are sorted descending. Equal totals are broken by
// fewer last-place votes, then by the label's stage 1 input order, so the
// result is always a strict total order and fully deterministic.
package ranking

import (
	"fmt"
	"slices"
)

// Entry is one label's aggregate standing.
type Entry struct {
	Label           string  `json:"label"`
	Score           int     `json:"score"`
	Position        int     `json:"position"` // 1-based final position
	InputOrder      int     `json:"input_order"`
	FirstPlaceVotes int     `json:"first_place_votes"`
	LastPlaceVotes  int     `json:"last_place_votes"`
	AverageRank     float64 `json:"average_rank"` // mean 1-based position across ballots; 0 without ballots
}

// Ranking is the aggregator's output. Members holds the label to member
// reverse mapping; it is attached by the engine after peer review and is
// never shown to reviewers.
type Ranking struct {
	Entries []Entry           `json:"entries"`
	Ballots int               `json:"ballots"`
	Members map[string]string `json:"members,omitempty"`
}

// Aggregate converts ballots into one ranking over labels. labels must be
// in stage 1 input order. Ballots that are not a permutation of labels are
// skipped; callers exclude failed reviewers before calling. With zero
// ballots the ranking falls back to input order with zero scores.
func Aggregate(labels []string, ballots [][]string) Ranking {
	n := len(labels)
	entries := make([]Entry, n)
	index := make(map[string]int, n)
	positionSums := make([]int, n)
	for i, label := range labels {
		entries[i] = Entry{Label: label, InputOrder: i}
		index[label] = i
	}

	counted := 0
	for _, ballot := range ballots {
		if ValidatePermutation(ballot, labels) != nil {
			continue
		}
		counted++
		for pos, label := range ballot {
			e := &entries[index[label]]
			e.Score += n - pos
			positionSums[index[label]] += pos + 1
			if pos == 0 {
				e.FirstPlaceVotes++
			}
			if pos == n-1 {
				e.LastPlaceVotes++
			}
		}
	}

	if counted > 0 {
		for i := range entries {
			entries[i].AverageRank = float64(positionSums[i]) / float64(counted)
		}
	}

	slices.SortStableFunc(entries, compareEntries)
	for i := range entries {
		entries[i].Position = i + 1
	}

	return Ranking{Entries: entries, Ballots: counted}
}

func compareEntries(a, b Entry) int {
	if a.Score != b.Score {
		return b.Score - a.Score
	}
	if a.LastPlaceVotes != b.LastPlaceVotes {
		return a.LastPlaceVotes - b.LastPlaceVotes
	}
	return a.InputOrder - b.InputOrder
}

// ValidatePermutation reports whether ballot contains exactly the given
// labels, each once.
func ValidatePermutation(ballot, labels []string) error {
	if len(ballot) != len(labels) {
		return fmt.Errorf("%w: ranked %d labels, expected %d", ErrNotPermutation, len(ballot), len(labels))
	}
	want := make(map[string]bool, len(labels))
	for _, l := range labels {
		want[l] = true
	}
	seen := make(map[string]bool, len(ballot))
	for _, l := range ballot {
		if !want[l] {
			return fmt.Errorf("%w: unknown label %q", ErrNotPermutation, l)
		}
		if seen[l] {
			return fmt.Errorf("%w: duplicate label %q", ErrNotPermutation, l)
		}
		seen[l] = true
	}
	return nil
}

// Labels returns the labels in final order.
func (r Ranking) Labels() []string {
	out := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Label
	}
	return out
}

// Scores returns the scores in final order.
func (r Ranking) Scores() []int {
	out := make([]int, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Score
	}
	return out
}

// Top returns the first-place entry.
func (r Ranking) Top() (Entry, bool) {
	if len(r.Entries) == 0 {
		return Entry{}, false
	}
	return r.Entries[0], true
}

// MemberFor resolves a label through the reverse mapping.
func (r Ranking) MemberFor(label string) (string, bool) {
	m, ok := r.Members[label]
	return m, ok
}

// OrderedMembers returns member identifiers in final order. Labels without
// a mapping are skipped.
func (r Ranking) OrderedMembers() []string {
	out := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		if m, ok := r.Members[e.Label]; ok {
			out = append(out, m)
		}
	}
	return out
}

// WithMembers returns a copy of r carrying the reverse mapping.
func (r Ranking) WithMembers(members map[string]string) Ranking {
	cp := make(map[string]string, len(members))
	for k, v := range members {
		cp[k] = v
	}
	r.Entries = slices.Clone(r.Entries)
	r.Members = cp
	return r
}
