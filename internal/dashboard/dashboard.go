package dashboard

import (
	"context"
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/council/internal/event"
	"github.com/Iron-Ham/council/internal/logging"
)

// relayBuffer is how many events may wait for the renderer.
const relayBuffer = 256

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithPalette sets the colors.
func WithPalette(p *Palette) Option {
	return func(d *Dashboard) {
		if p != nil {
			d.styles = NewStyles(p)
		}
	}
}

// WithIO overrides the terminal streams.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(d *Dashboard) {
		d.in = in
		d.out = out
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dashboard) {
		if l != nil {
			d.logger = l
		}
	}
}

// Dashboard runs a session while showing its progress.
type Dashboard struct {
	bus    *event.Bus
	styles Styles
	in     io.Reader
	out    io.Writer
	logger *logging.Logger
}

// New creates a dashboard that listens on bus.
func New(bus *event.Bus, opts ...Option) *Dashboard {
	palette, _ := LoadTheme(ThemeDefault)
	d := &Dashboard{
		bus:    bus,
		styles: NewStyles(palette),
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run calls session in the background and renders its events until it
// returns. Cancelling from the keyboard cancels the context passed to
// session. Run returns session's error.
func (d *Dashboard) Run(ctx context.Context, session func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var opts []tea.ProgramOption
	if d.in != nil {
		opts = append(opts, tea.WithInput(d.in))
	}
	if d.out != nil {
		opts = append(opts, tea.WithOutput(d.out))
	}
	p := tea.NewProgram(NewModel(d.styles, cancel), opts...)

	// The relay keeps rendering off the publishing goroutine.
	relay := event.NewAsyncBus(relayBuffer)
	relay.SubscribeAll(func(ev event.Event) {
		p.Send(eventMsg{event: ev})
	})
	subID := d.bus.SubscribeAll(relay.Publish)
	defer func() {
		d.bus.Unsubscribe(subID)
		relay.Close()
		if n := relay.Dropped(); n > 0 {
			d.logger.Warn("dashboard dropped events", "count", n)
		}
	}()

	done := make(chan error, 1)
	go func() {
		err := session(ctx)
		done <- err
		// deliver the session's last events before the final message
		relay.Close()
		p.Send(finishedMsg{err: err})
	}()

	_, runErr := p.Run()
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		d.logger.Warn("dashboard exited with error", "error", runErr)
	}
	// A forced quit leaves the session running; stop it and wait.
	cancel()
	return <-done
}
