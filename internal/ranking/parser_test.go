package ranking

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestLabel(t *testing.T) {
	tests := []struct {
		i    int
		want string
	}{
		{0, "Response A"},
		{1, "Response B"},
		{25, "Response Z"},
		{26, "Response AA"},
		{27, "Response AB"},
		{51, "Response AZ"},
		{52, "Response BA"},
	}
	for _, tt := range tests {
		if got := Label(tt.i); got != tt.want {
			t.Errorf("Label(%d) = %q, want %q", tt.i, got, tt.want)
		}
	}
}

func TestParseRanking(t *testing.T) {
	labels := []string{"Response A", "Response B", "Response C"}

	tests := []struct {
		name    string
		text    string
		want    []string
		wantErr error
	}{
		{
			name: "numbered list after marker",
			text: `Response A is thorough. Response C misses edge cases.

FINAL RANKING:
1. Response B
2. Response A
3. Response C`,
			want: []string{"Response B", "Response A", "Response C"},
		},
		{
			name: "markdown decorations",
			text: `**Final Ranking:**
- 1) **Response C**
- 2) **Response A**
- 3) **Response B**`,
			want: []string{"Response C", "Response A", "Response B"},
		},
		{
			name: "body mentions ignored after marker",
			text: `I think Response C is best but Response A is close.
FINAL RANKING:
1. Response A
2. Response C
3. Response B`,
			want: []string{"Response A", "Response C", "Response B"},
		},
		{
			name: "unnumbered fallback",
			text: "FINAL RANKING: Response C > Response B > Response A",
			want: []string{"Response C", "Response B", "Response A"},
		},
		{
			name: "no marker uses whole text",
			text: "Best is Response B, then Response A, then Response C.",
			want: []string{"Response B", "Response A", "Response C"},
		},
		{
			name:    "nothing to parse",
			text:    "I refuse to rank these.",
			wantErr: ErrNoRanking,
		},
		{
			name: "omission is rejected",
			text: `FINAL RANKING:
1. Response B
2. Response A`,
			wantErr: ErrNotPermutation,
		},
		{
			name: "duplicate is rejected",
			text: `FINAL RANKING:
1. Response B
2. Response B
3. Response A`,
			wantErr: ErrNotPermutation,
		},
		{
			name: "foreign label is rejected",
			text: `FINAL RANKING:
1. Response D
2. Response B
3. Response A`,
			wantErr: ErrNotPermutation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRanking(tt.text, labels)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseRanking() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRanking() unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("ParseRanking() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseCommentary(t *testing.T) {
	labels := []string{"Response A", "Response B"}

	t.Run("critique tags", func(t *testing.T) {
		text := `<critique label="Response A">Clear but slow.</critique>
<critique label="Response B">Fast, misses nil check.</critique>
<critique label="Response Q">ignored</critique>
FINAL RANKING:
1. Response B
2. Response A`
		got := ParseCommentary(text, labels)
		if got["Response A"] != "Clear but slow." || got["Response B"] != "Fast, misses nil check." {
			t.Errorf("ParseCommentary() = %v", got)
		}
		if _, ok := got["Response Q"]; ok {
			t.Error("unknown labels must be ignored")
		}
	})

	t.Run("paragraphs", func(t *testing.T) {
		text := `Overall both are reasonable.

## Response A:
Handles errors well.
Verbose.

**Response B** - concise
but untested.

FINAL RANKING:
1. Response A
2. Response B`
		got := ParseCommentary(text, labels)
		if !strings.Contains(got["Response A"], "Handles errors well.") || !strings.Contains(got["Response A"], "Verbose.") {
			t.Errorf("Response A commentary = %q", got["Response A"])
		}
		if !strings.HasPrefix(got["Response B"], "concise") || !strings.Contains(got["Response B"], "untested") {
			t.Errorf("Response B commentary = %q", got["Response B"])
		}
		if strings.Contains(got["Response B"], "FINAL") {
			t.Error("commentary must stop at the ranking marker")
		}
	})
}
