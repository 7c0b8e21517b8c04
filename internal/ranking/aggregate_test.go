package ranking

import (
	"errors"
	"slices"
	"testing"
)

func TestAggregate_WorkedExample(t *testing.T) {
	// Three members, labels assigned in input order A, B, C.
	labels := []string{"Response A", "Response B", "Response C"}
	ballots := [][]string{
		{"Response B", "Response A", "Response C"}, // reviewer A
		{"Response B", "Response C", "Response A"}, // reviewer B
		{"Response A", "Response B", "Response C"}, // reviewer C
	}

	r := Aggregate(labels, ballots)

	wantLabels := []string{"Response B", "Response A", "Response C"}
	if !slices.Equal(r.Labels(), wantLabels) {
		t.Fatalf("Labels() = %v, want %v", r.Labels(), wantLabels)
	}
	wantScores := []int{8, 6, 4}
	if !slices.Equal(r.Scores(), wantScores) {
		t.Errorf("Scores() = %v, want %v", r.Scores(), wantScores)
	}
	if r.Ballots != 3 {
		t.Errorf("Ballots = %d, want 3", r.Ballots)
	}
	for i, e := range r.Entries {
		if e.Position != i+1 {
			t.Errorf("entry %d Position = %d", i, e.Position)
		}
	}

	withMembers := r.WithMembers(map[string]string{
		"Response A": "A",
		"Response B": "B",
		"Response C": "C",
	})
	top, ok := withMembers.Top()
	if !ok {
		t.Fatal("Top() returned no entry")
	}
	member, _ := withMembers.MemberFor(top.Label)
	if member != "B" {
		t.Errorf("top member = %q, want B", member)
	}
	if !slices.Equal(withMembers.OrderedMembers(), []string{"B", "A", "C"}) {
		t.Errorf("OrderedMembers() = %v", withMembers.OrderedMembers())
	}
	if r.Members != nil {
		t.Error("WithMembers must not mutate the receiver")
	}
}

func TestAggregate_TieBreaks(t *testing.T) {
	tests := []struct {
		name    string
		labels  []string
		ballots [][]string
		want    []string
	}{
		{
			name:   "highest score first",
			labels: []string{"Response A", "Response B", "Response C"},
			ballots: [][]string{
				{"Response A", "Response C", "Response B"},
				{"Response B", "Response A", "Response C"},
				{"Response C", "Response B", "Response A"},
				{"Response C", "Response A", "Response B"},
			},
			// scores: A=3+2+1+2=8, B=1+3+2+1=7, C=2+1+3+3=9
			want: []string{"Response C", "Response A", "Response B"},
		},
		{
			name:   "equal score, last-place count decides",
			labels: []string{"Response A", "Response B", "Response C", "Response D"},
			ballots: [][]string{
				{"Response A", "Response B", "Response C", "Response D"},
				{"Response B", "Response C", "Response D", "Response A"},
			},
			// A=4+1=5 (1 last), B=3+4=7, C=2+3=5 (0 last), D=1+2=3
			want: []string{"Response B", "Response C", "Response A", "Response D"},
		},
		{
			name:   "complete disagreement falls back to input order",
			labels: []string{"Response A", "Response B"},
			ballots: [][]string{
				{"Response B", "Response A"},
				{"Response A", "Response B"},
			},
			want: []string{"Response A", "Response B"},
		},
		{
			name:   "cyclic preferences still total",
			labels: []string{"Response A", "Response B", "Response C"},
			ballots: [][]string{
				{"Response A", "Response B", "Response C"},
				{"Response B", "Response C", "Response A"},
				{"Response C", "Response A", "Response B"},
			},
			want: []string{"Response A", "Response B", "Response C"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate(tt.labels, tt.ballots).Labels()
			if !slices.Equal(got, tt.want) {
				t.Errorf("Labels() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAggregate_Deterministic(t *testing.T) {
	labels := []string{"Response A", "Response B", "Response C", "Response D"}
	ballots := [][]string{
		{"Response D", "Response A", "Response C", "Response B"},
		{"Response A", "Response D", "Response B", "Response C"},
	}

	first := Aggregate(labels, ballots)
	for range 20 {
		again := Aggregate(labels, ballots)
		if !slices.Equal(first.Entries, again.Entries) {
			t.Fatalf("non-deterministic result: %v vs %v", first.Entries, again.Entries)
		}
	}
}

func TestAggregate_SingleMember(t *testing.T) {
	r := Aggregate([]string{"Response A"}, nil)

	if len(r.Entries) != 1 {
		t.Fatalf("Entries = %d, want 1", len(r.Entries))
	}
	if r.Entries[0].Label != "Response A" || r.Entries[0].Position != 1 {
		t.Errorf("unexpected entry: %+v", r.Entries[0])
	}
	if r.Ballots != 0 || r.Entries[0].AverageRank != 0 {
		t.Errorf("degenerate ranking should have no ballots: %+v", r)
	}
}

func TestAggregate_SkipsInvalidBallots(t *testing.T) {
	labels := []string{"Response A", "Response B"}
	ballots := [][]string{
		{"Response B", "Response A"},
		{"Response A"},                             // omission
		{"Response A", "Response A"},               // duplicate
		{"Response A", "Response Z"},               // foreign
		{"Response A", "Response B", "Response C"}, // extra
	}

	r := Aggregate(labels, ballots)
	if r.Ballots != 1 {
		t.Errorf("Ballots = %d, want 1", r.Ballots)
	}
	if !slices.Equal(r.Labels(), []string{"Response B", "Response A"}) {
		t.Errorf("Labels() = %v", r.Labels())
	}
}

func TestAggregate_VoteCounts(t *testing.T) {
	labels := []string{"Response A", "Response B", "Response C"}
	ballots := [][]string{
		{"Response A", "Response B", "Response C"},
		{"Response A", "Response C", "Response B"},
	}
	r := Aggregate(labels, ballots)

	top, _ := r.Top()
	if top.FirstPlaceVotes != 2 || top.AverageRank != 1 {
		t.Errorf("top entry = %+v", top)
	}
	for _, e := range r.Entries {
		if e.Label == "Response B" && (e.LastPlaceVotes != 1 || e.AverageRank != 2.5) {
			t.Errorf("Response B = %+v", e)
		}
	}
}

func TestValidatePermutation(t *testing.T) {
	labels := []string{"Response A", "Response B"}
	tests := []struct {
		name    string
		ballot  []string
		wantErr bool
	}{
		{"exact", []string{"Response A", "Response B"}, false},
		{"reordered", []string{"Response B", "Response A"}, false},
		{"missing", []string{"Response A"}, true},
		{"duplicate", []string{"Response A", "Response A"}, true},
		{"foreign", []string{"Response A", "Response C"}, true},
		{"empty", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePermutation(tt.ballot, labels)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePermutation() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrNotPermutation) {
				t.Errorf("error should wrap ErrNotPermutation: %v", err)
			}
		})
	}
}

func TestRanking_EmptyTop(t *testing.T) {
	if _, ok := (Ranking{}).Top(); ok {
		t.Error("Top() on empty ranking should report false")
	}
}
