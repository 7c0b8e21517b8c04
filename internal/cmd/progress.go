package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Iron-Ham/council/internal/event"
)

// progressPrinter writes one line per phase change and member outcome.
// It is the non-interactive counterpart of the dashboard.
type progressPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *progressPrinter) handle(ev event.Event) {
	var line string
	switch e := ev.(type) {
	case event.PhaseChangedEvent:
		line = fmt.Sprintf("[%d/%d] %s", e.Step, e.TotalSteps, e.Phase)
		if e.Message != "" {
			line += ": " + e.Message
		}
	case event.MemberStatusEvent:
		switch e.Status {
		case event.MemberCompleted:
			line = fmt.Sprintf("  %s %s done (%s)", e.Stage, e.MemberID, e.Duration.Round(100*time.Millisecond))
		case event.MemberError:
			line = fmt.Sprintf("  %s %s failed: %s", e.Stage, e.MemberID, e.Detail)
		}
	case event.MergeEvent:
		line = fmt.Sprintf("merge %s (%s)", e.Status, e.MemberID)
	}
	if line == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

// attach subscribes p to bus and returns the unsubscribe func.
func (p *progressPrinter) attach(bus *event.Bus) func() {
	id := bus.SubscribeAll(p.handle)
	return func() { bus.Unsubscribe(id) }
}
