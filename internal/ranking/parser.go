package ranking

import (
	"errors"
	"regexp"
	"strings"
)

// Ranking parse errors
var (
	ErrNoRanking      = errors.New("no ranking found in review")
	ErrNotPermutation = errors.New("ranking is not a permutation of the candidate labels")
)

// FinalRankingMarker introduces the machine-readable ranking in a review.
const FinalRankingMarker = "FINAL RANKING:"

// LabelPrefix precedes the letter in every anonymized label.
const LabelPrefix = "Response "

var (
	// numberedLabelRegex matches "1. Response A", "2) Response B", "- 3. **Response C**".
	numberedLabelRegex = regexp.MustCompile(`(?m)^[\s>*-]*\d+\s*[.)]\s*\**\s*(Response [A-Z]+)\b`)
	// labelRegex matches any label mention.
	labelRegex = regexp.MustCompile(`\bResponse [A-Z]+\b`)
	// markerRegex matches the FINAL RANKING marker in any case.
	markerRegex = regexp.MustCompile(`(?i)final\s+ranking\s*:`)
	// critiqueTagRegex matches <critique label="Response A">...</critique> blocks.
	critiqueTagRegex = regexp.MustCompile(`(?s)<critique\s+label="(Response [A-Z]+)"\s*>\s*(.*?)\s*</critique>`)
)

// Label returns the anonymized label for the i-th (0-based) response:
// Response A ... Response Z, Response AA, Response AB, ...
func Label(i int) string {
	var letters []byte
	for n := i; ; n = n/26 - 1 {
		letters = append([]byte{byte('A' + n%26)}, letters...)
		if n < 26 {
			break
		}
	}
	return LabelPrefix + string(letters)
}

// ParseRanking extracts the ordered labels from a review. It reads the
// numbered list after the FINAL RANKING marker; if the list is missing it
// falls back to the order labels are first mentioned after the marker (or
// in the whole text when there is no marker). The result is validated
// against labels and must be an exact permutation.
func ParseRanking(text string, labels []string) ([]string, error) {
	section := text
	if _, end, ok := lastMarker(text); ok {
		section = text[end:]
	}

	var ordered []string
	for _, m := range numberedLabelRegex.FindAllStringSubmatch(section, -1) {
		ordered = append(ordered, m[1])
	}
	if len(ordered) == 0 {
		ordered = dedupe(labelRegex.FindAllString(section, -1))
	}
	if len(ordered) == 0 {
		return nil, ErrNoRanking
	}

	if err := ValidatePermutation(ordered, labels); err != nil {
		return ordered, err
	}
	return ordered, nil
}

// ParseCommentary extracts per-label commentary from the body of a review
// (the text before the FINAL RANKING marker). Explicit <critique> tags are
// preferred. Otherwise each label's paragraph runs from its first mention
// at the start of a line to the next such mention.
func ParseCommentary(text string, labels []string) map[string]string {
	known := make(map[string]bool, len(labels))
	for _, l := range labels {
		known[l] = true
	}

	out := make(map[string]string)
	for _, m := range critiqueTagRegex.FindAllStringSubmatch(text, -1) {
		if known[m[1]] && m[2] != "" {
			out[m[1]] = m[2]
		}
	}
	if len(out) > 0 {
		return out
	}

	body := text
	if start, _, ok := lastMarker(text); ok {
		body = text[:start]
	}

	var current string
	var buf strings.Builder
	flush := func() {
		if current != "" {
			if s := strings.TrimSpace(buf.String()); s != "" {
				if _, exists := out[current]; !exists {
					out[current] = s
				}
			}
		}
		buf.Reset()
	}

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimLeft(line, " #*->")
		if label := labelRegex.FindString(trimmed); label != "" && strings.HasPrefix(trimmed, label) && known[label] {
			flush()
			current = label
			rest := strings.TrimLeft(strings.TrimPrefix(trimmed, label), "*:- ")
			buf.WriteString(rest)
			buf.WriteString("\n")
			continue
		}
		if current != "" {
			buf.WriteString(line)
			buf.WriteString("\n")
		}
	}
	flush()

	return out
}

// lastMarker locates the final occurrence of the ranking marker.
func lastMarker(text string) (start, end int, ok bool) {
	locs := markerRegex.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return 0, 0, false
	}
	last := locs[len(locs)-1]
	return last[0], last[1], true
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
