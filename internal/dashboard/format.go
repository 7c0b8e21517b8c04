package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/council/internal/errors"
	"github.com/Iron-Ham/council/internal/record"
)

// Format selects how records are printed.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ValidFormats returns the accepted format names.
func ValidFormats() []string {
	return []string{string(FormatText), string(FormatJSON), string(FormatYAML)}
}

// ParseFormat validates a format name. An empty name means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", errors.NewValidationError("unknown output format; expected " + strings.Join(ValidFormats(), ", ")).
			WithField("format").
			WithValue(s)
	}
}

// Printer writes records and listings in one format.
type Printer struct {
	Format Format
	Styles Styles
	// Width bounds text-mode lines that are truncated, such as previews.
	Width int
	// Full prints every stage 1 response and review in text mode.
	Full bool
}

// NewPrinter returns a printer with plain styles and a default width.
func NewPrinter(f Format) *Printer {
	return &Printer{Format: f, Styles: PlainStyles(), Width: defaultWidth}
}

// ListEntry is one conversation with its sessions, oldest first.
type ListEntry struct {
	Conversation record.Conversation `json:"conversation"`
	Sessions     []record.Summary    `json:"sessions"`
}

// BuildList groups summaries under their conversations. Conversations
// keep their given order.
func BuildList(convs []record.Conversation, summaries []record.Summary) []ListEntry {
	byConv := make(map[string][]record.Summary)
	for _, s := range summaries {
		byConv[s.ConversationID] = append(byConv[s.ConversationID], s)
	}
	out := make([]ListEntry, 0, len(convs))
	for _, c := range convs {
		sessions := byConv[c.ID]
		slices.SortFunc(sessions, func(a, b record.Summary) int {
			switch {
			case a.ID < b.ID:
				return -1
			case a.ID > b.ID:
				return 1
			}
			return 0
		})
		out = append(out, ListEntry{Conversation: c, Sessions: sessions})
	}
	return out
}

// PrintRecord writes one session record.
func (p *Printer) PrintRecord(w io.Writer, rec *record.SessionRecord) error {
	switch p.Format {
	case FormatJSON:
		return writeJSON(w, rec)
	case FormatYAML:
		return writeYAML(w, rec)
	}

	var b strings.Builder
	s := p.Styles

	header := fmt.Sprintf("Session #%d", rec.ID)
	if rec.ParentID != 0 {
		header += fmt.Sprintf(" (follows #%d)", rec.ParentID)
	}
	b.WriteString(s.Title.Render(header) + "\n")
	fmt.Fprintf(&b, "%s %s\n", s.Muted.Render("Query:"), rec.Query)
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
		s.Muted.Render("Mode:"), rec.Mode,
		s.Muted.Render("Status:"), rec.Status,
		s.Muted.Render("Duration:"), rec.CompletedAt.Sub(rec.StartedAt).Round(time.Second))
	fmt.Fprintf(&b, "%s %s   %s %s\n",
		s.Muted.Render("Council:"), strings.Join(rec.Roster, ", "),
		s.Muted.Render("Chairman:"), rec.Chairman)
	if rec.Error != "" {
		b.WriteString(s.Error.Render("Error: "+rec.Error) + "\n")
	}

	b.WriteString("\n" + s.Label.Render("Responses") + "\n")
	for _, r := range rec.Responses {
		status := s.Completed.Render("ok")
		if !r.Success {
			status = s.Failed.Render("failed")
			if r.TimedOut {
				status = s.Failed.Render("timed out")
			}
		}
		label := r.Label
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(&b, "  %-12s %s  %s  %s", label, r.MemberID, status, r.Duration.Round(100*time.Millisecond))
		if !r.Diff.Empty() {
			fmt.Fprintf(&b, "  %d files +%d -%d", len(r.Diff.Files), r.Diff.Additions, r.Diff.Deletions)
		}
		b.WriteString("\n")
		switch {
		case !r.Success && r.Error != "":
			b.WriteString("    " + s.Error.Render(p.truncate(r.Error)) + "\n")
		case p.Full:
			b.WriteString(indent(r.Content, "    ") + "\n")
		case r.Content != "":
			b.WriteString("    " + s.Muted.Render(p.truncate(r.Content)) + "\n")
		}
	}

	if len(rec.Ranking.Entries) > 0 {
		b.WriteString("\n" + s.Label.Render(fmt.Sprintf("Ranking (%d reviews)", rec.Ranking.Ballots)) + "\n")
		for _, e := range rec.Ranking.Entries {
			member, _ := rec.Ranking.MemberFor(e.Label)
			fmt.Fprintf(&b, "  %d. %-28s %-12s %3d pts", e.Position, member, e.Label, e.Score)
			if rec.Ranking.Ballots > 0 {
				fmt.Fprintf(&b, "  avg %.2f", e.AverageRank)
			}
			b.WriteString("\n")
		}
	}

	if p.Full && len(rec.Reviews) > 0 {
		b.WriteString("\n" + s.Label.Render("Reviews") + "\n")
		for _, r := range rec.Reviews {
			if !r.Success {
				fmt.Fprintf(&b, "  %s  %s\n", r.ReviewerID, s.Failed.Render(r.Error))
				continue
			}
			fmt.Fprintf(&b, "  %s: %s\n", r.ReviewerID, strings.Join(r.Ranking, " > "))
			for _, label := range r.Ranking {
				if c := r.Commentary[label]; c != "" {
					fmt.Fprintf(&b, "    %s: %s\n", label, p.truncate(c))
				}
			}
		}
	}

	if rec.Synthesis != nil {
		b.WriteString("\n" + s.Label.Render("Synthesis by "+rec.Synthesis.ChairmanID) + "\n")
		b.WriteString(rec.Synthesis.Content + "\n")
	}

	if m := rec.Merge; m != nil {
		b.WriteString("\n" + s.Label.Render("Merge") + "\n")
		line := "  " + m.Status
		if m.MemberID != "" {
			line += " from " + m.MemberID
		}
		if m.Commit != "" {
			line += " at " + m.Commit
		}
		b.WriteString(line + "\n")
		for _, f := range m.Files {
			b.WriteString("    " + f + "\n")
		}
		if m.PatchPath != "" {
			b.WriteString("  " + s.Warning.Render("patch saved to "+m.PatchPath) + "\n")
		}
		if m.Error != "" {
			b.WriteString("  " + s.Error.Render(m.Error) + "\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// PrintList writes conversations with their sessions.
func (p *Printer) PrintList(w io.Writer, entries []ListEntry) error {
	switch p.Format {
	case FormatJSON:
		return writeJSON(w, entries)
	case FormatYAML:
		return writeYAML(w, entries)
	}

	if len(entries) == 0 {
		_, err := io.WriteString(w, "No sessions yet.\n")
		return err
	}

	var b strings.Builder
	s := p.Styles
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		title := e.Conversation.Title
		if title == "" {
			title = e.Conversation.ID
		}
		b.WriteString(s.Title.Render(ansi.Truncate(title, p.width(), "...")))
		b.WriteString("  " + s.Muted.Render(e.Conversation.UpdatedAt.Local().Format("2006-01-02 15:04")) + "\n")
		for _, sum := range e.Sessions {
			line := fmt.Sprintf("  #%-4d %-4s %-9s", sum.ID, sum.Mode, sum.Status)
			if sum.Winner != "" {
				line += " winner " + sum.Winner
			}
			rest := p.width() - len(line) - 2
			if rest > 10 {
				line += "  " + s.Muted.Render(ansi.Truncate(oneLine(sum.Query), rest, "..."))
			}
			b.WriteString(line + "\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (p *Printer) width() int {
	if p.Width <= 0 {
		return defaultWidth
	}
	return p.Width
}

func (p *Printer) truncate(s string) string {
	return ansi.Truncate(oneLine(s), p.width()-4, "...")
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML emits v with the same field names and order as its JSON form.
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	clearStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// clearStyle drops the flow and quoting styles inherited from JSON so the
// output reads as block YAML.
func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		clearStyle(c)
	}
}
