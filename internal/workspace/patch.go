package workspace

import (
	"slices"
	"strings"
)

// Patch is a workspace's mutations relative to its baseline, in git's
// binary-safe unified diff format.
type Patch struct {
	MemberID     string   `json:"member_id"`
	BaseRevision string   `json:"base_revision"`
	Content      string   `json:"content"`
	Files        []string `json:"files"`
	Additions    int      `json:"additions"`
	Deletions    int      `json:"deletions"`

	// Identifying details stripped by Anonymize.
	path   string
	branch string
}

// Empty reports whether the patch carries no changes.
func (p *Patch) Empty() bool {
	return p == nil || strings.TrimSpace(p.Content) == ""
}

// newPatch parses file names and line counts from diff output.
func newPatch(ws *Workspace, content string) *Patch {
	p := &Patch{
		MemberID:     ws.MemberID,
		BaseRevision: ws.BaseRevision,
		Content:      content,
		path:         ws.Path,
		branch:       ws.Branch,
	}
	seen := make(map[string]bool)
	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			if f := diffTarget(line); f != "" && !seen[f] {
				seen[f] = true
				p.Files = append(p.Files, f)
			}
		case strings.HasPrefix(line, "+++ "), strings.HasPrefix(line, "--- "):
		case strings.HasPrefix(line, "+"):
			p.Additions++
		case strings.HasPrefix(line, "-"):
			p.Deletions++
		}
	}
	slices.Sort(p.Files)
	return p
}

// diffTarget extracts the b/ path from a "diff --git a/x b/y" header.
func diffTarget(header string) string {
	rest := strings.TrimPrefix(header, "diff --git ")
	if i := strings.LastIndex(rest, " b/"); i >= 0 {
		return rest[i+3:]
	}
	return ""
}

// anonymizedHeaders are patch header lines that can identify an author.
var anonymizedHeaders = []string{"From ", "From: ", "Author:", "Date:", "Committer:", "Signed-off-by:"}

// Anonymize returns the patch content with identifying details removed:
// author and date headers are dropped and the member's identity is
// replaced with label.
func (p *Patch) Anonymize(label string) string {
	if p == nil {
		return ""
	}
	lines := strings.Split(p.Content, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if isIdentifyingHeader(line) {
			continue
		}
		out = append(out, line)
	}
	return p.Identity().Scrub(strings.Join(out, "\n"), label)
}

// Identity returns the strings that tie this patch to its author.
func (p *Patch) Identity() Identity {
	return Identity{MemberID: p.MemberID, Path: p.path, Branch: p.branch}
}

// Identity lists the strings that tie text to one member's workspace.
type Identity struct {
	MemberID string
	Path     string
	Branch   string
}

// Identity returns the workspace's identifying strings.
func (w *Workspace) Identity() Identity {
	return Identity{MemberID: w.MemberID, Path: w.Path, Branch: w.Branch}
}

// Scrub replaces the identity in text with label. Path and branch are
// replaced wherever they occur. The member ID and its slug are replaced
// only where they stand alone, so "gpt" is left inside "chatgpt" or
// "gpt_client".
func (id Identity) Scrub(text, label string) string {
	var pairs []string
	for _, s := range []string{id.Path, id.Branch} {
		if s != "" {
			pairs = append(pairs, s, label)
		}
	}
	if len(pairs) > 0 {
		text = strings.NewReplacer(pairs...).Replace(text)
	}
	if id.MemberID == "" {
		return text
	}
	text = replaceWord(text, id.MemberID, label)
	if slug := Slug(id.MemberID); slug != id.MemberID {
		text = replaceWord(text, slug, label)
	}
	return text
}

// replaceWord replaces occurrences of word not adjacent to an identifier
// character.
func replaceWord(text, word, repl string) string {
	if word == "" {
		return text
	}
	var b strings.Builder
	for {
		i := strings.Index(text, word)
		if i < 0 {
			b.WriteString(text)
			return b.String()
		}
		end := i + len(word)
		alone := (i == 0 || !isIdentByte(text[i-1])) &&
			(end == len(text) || !isIdentByte(text[end]))
		b.WriteString(text[:i])
		if alone {
			b.WriteString(repl)
		} else {
			b.WriteString(word)
		}
		text = text[end:]
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '-' ||
		('0' <= c && c <= '9') ||
		('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z')
}

func isIdentifyingHeader(line string) bool {
	for _, h := range anonymizedHeaders {
		if strings.HasPrefix(line, h) {
			return true
		}
	}
	return false
}
