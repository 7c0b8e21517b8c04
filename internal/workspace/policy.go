package workspace

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Classification is the policy decision for one untracked path.
type Classification int

const (
	// Unclassified paths match no rule and block the session.
	Unclassified Classification = iota
	// Included paths are copied into every workspace.
	Included
	// Excluded paths are left in the shared tree and not seen by members.
	Excluded
)

// String returns a short name for logs.
func (c Classification) String() string {
	switch c {
	case Included:
		return "included"
	case Excluded:
		return "excluded"
	default:
		return "unclassified"
	}
}

// UntrackedPolicy classifies untracked files in the shared tree with glob
// patterns. Patterns use '/' as the separator, so "*" stays within one
// directory and "**" crosses directories. Exclude rules win over include
// rules.
type UntrackedPolicy struct {
	include []compiledPattern
	exclude []compiledPattern
}

type compiledPattern struct {
	raw string
	g   glob.Glob
}

// NewUntrackedPolicy compiles the include and exclude patterns.
func NewUntrackedPolicy(include, exclude []string) (*UntrackedPolicy, error) {
	p := &UntrackedPolicy{}
	var err error
	if p.include, err = compilePatterns(include); err != nil {
		return nil, err
	}
	if p.exclude, err = compilePatterns(exclude); err != nil {
		return nil, err
	}
	return p, nil
}

func compilePatterns(patterns []string) ([]compiledPattern, error) {
	out := make([]compiledPattern, 0, len(patterns))
	for _, raw := range patterns {
		g, err := glob.Compile(raw, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid untracked pattern %q: %w", raw, err)
		}
		out = append(out, compiledPattern{raw: raw, g: g})
	}
	return out, nil
}

// Classify decides what happens to one untracked path. Directory entries
// (trailing slash) are matched with and without the slash.
func (p *UntrackedPolicy) Classify(path string) Classification {
	if p == nil {
		return Unclassified
	}
	candidates := []string{path}
	if trimmed := strings.TrimSuffix(path, "/"); trimmed != path {
		candidates = append(candidates, trimmed)
	}
	if matchAny(p.exclude, candidates) {
		return Excluded
	}
	if matchAny(p.include, candidates) {
		return Included
	}
	return Unclassified
}

func matchAny(patterns []compiledPattern, candidates []string) bool {
	for _, pat := range patterns {
		for _, c := range candidates {
			if pat.g.Match(c) {
				return true
			}
		}
	}
	return false
}

// Partition splits paths by classification, preserving input order.
func (p *UntrackedPolicy) Partition(paths []string) (included, excluded, unclassified []string) {
	for _, path := range paths {
		switch p.Classify(path) {
		case Included:
			included = append(included, path)
		case Excluded:
			excluded = append(excluded, path)
		default:
			unclassified = append(unclassified, path)
		}
	}
	return included, excluded, unclassified
}
