package merge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/Iron-Ham/council/internal/errors"
	"github.com/Iron-Ham/council/internal/workspace"
)

// Prompt is what a Confirmer is asked to approve.
type Prompt struct {
	SessionID string
	MemberID  string
	Patch     *workspace.Patch
}

// String renders the question shown to the user.
func (p Prompt) String() string {
	return fmt.Sprintf("Apply proposal from %s (%d files, +%d -%d)?",
		p.MemberID, len(p.Patch.Files), p.Patch.Additions, p.Patch.Deletions)
}

// Confirmer is the yes/no gate in front of an apply.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p Prompt) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, p Prompt) (bool, error) { return f(ctx, p) }

// DeclineConfirmer declines everything.
type DeclineConfirmer struct{}

// Confirm implements Confirmer.
func (DeclineConfirmer) Confirm(context.Context, Prompt) (bool, error) { return false, nil }

// TerminalConfirmer asks on a terminal. When In is not a terminal it
// refuses with a ValidationError rather than answering for the user.
type TerminalConfirmer struct {
	In  *os.File
	Out io.Writer
	// ShowDiff prints the patch before asking.
	ShowDiff bool
}

// NewTerminalConfirmer confirms on stdin and stdout.
func NewTerminalConfirmer(showDiff bool) *TerminalConfirmer {
	return &TerminalConfirmer{In: os.Stdin, Out: os.Stdout, ShowDiff: showDiff}
}

// Confirm implements Confirmer.
func (t *TerminalConfirmer) Confirm(ctx context.Context, p Prompt) (bool, error) {
	if t.In == nil || !term.IsTerminal(int(t.In.Fd())) {
		return false, errors.NewValidationError("cannot ask for merge confirmation: stdin is not a terminal").
			WithField("confirm")
	}
	return confirmFrom(ctx, t.In, t.Out, p, t.ShowDiff)
}

// confirmFrom reads a y/N answer from r. Anything but y or yes is no.
func confirmFrom(ctx context.Context, r io.Reader, w io.Writer, p Prompt, showDiff bool) (bool, error) {
	if showDiff && p.Patch != nil {
		fmt.Fprintln(w, p.Patch.Content)
	}
	for _, f := range p.Patch.Files {
		fmt.Fprintf(w, "  %s\n", f)
	}
	fmt.Fprintf(w, "%s [y/N] ", p)

	answer := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(r).ReadString('\n')
		answer <- line
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(w)
		return false, ctx.Err()
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
