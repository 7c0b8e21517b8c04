// Package dashboard renders a live view of a council session from its
// event stream, and formats finished session records for the terminal.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/council/internal/event"
)

// defaultWidth is used until the terminal reports its size.
const defaultWidth = 80

// eventMsg carries a bus event into the program.
type eventMsg struct {
	event event.Event
}

// finishedMsg reports that the session function returned.
type finishedMsg struct {
	err error
}

type memberRow struct {
	id       string
	chairman bool
	stage    string
	status   string
	detail   string
	duration time.Duration
}

// Model is the bubbletea model for one session.
type Model struct {
	keys    KeyMap
	styles  Styles
	spinner spinner.Model
	cancel  func()

	sessionID string
	query     string
	mode      string
	parentID  uint64
	order     []string
	rows      map[string]*memberRow

	phase   string
	step    int
	total   int
	message string

	workspaces int
	ranking    *event.RankingEvent
	merge      *event.MergeEvent
	completed  *event.SessionCompletedEvent

	details    bool
	cancelling bool
	finished   bool
	err        error
	width      int
}

// NewModel creates a model. cancel is called when the user cancels the
// session; it may be nil.
func NewModel(styles Styles, cancel func()) Model {
	s := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Active))
	return Model{
		keys:    NewKeyMap(),
		styles:  styles,
		spinner: s,
		cancel:  cancel,
		rows:    make(map[string]*memberRow),
		width:   defaultWidth,
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(msg.event)
		return m, nil

	case finishedMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Cancel):
			if m.cancelling {
				return m, tea.Quit
			}
			m.cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
		case key.Matches(msg, m.keys.Details):
			m.details = !m.details
		}
	}
	return m, nil
}

// apply folds one event into the model.
func (m *Model) apply(ev event.Event) {
	switch e := ev.(type) {
	case event.SessionStartedEvent:
		m.sessionID = e.SessionID
		m.query = e.Query
		m.mode = e.Mode
		m.parentID = e.ParentID
		m.order = m.order[:0]
		m.rows = make(map[string]*memberRow)
		for _, id := range e.Members {
			m.addRow(id, false)
		}
		m.addRow(e.Chairman, true)

	case event.PhaseChangedEvent:
		m.phase = e.Phase
		m.step = e.Step
		m.total = e.TotalSteps
		m.message = e.Message

	case event.MemberStatusEvent:
		row, ok := m.rows[e.MemberID]
		if !ok {
			row = m.addRow(e.MemberID, false)
		}
		row.stage = e.Stage
		row.status = e.Status
		row.detail = e.Detail
		row.duration = e.Duration

	case event.WorkspaceEvent:
		switch e.Action {
		case "created":
			m.workspaces++
		case "destroyed":
			m.workspaces--
		}

	case event.RankingEvent:
		m.ranking = &e

	case event.MergeEvent:
		m.merge = &e

	case event.SessionCompletedEvent:
		m.completed = &e
	}
}

func (m *Model) addRow(id string, chairman bool) *memberRow {
	row := &memberRow{id: id, chairman: chairman, status: event.MemberWaiting}
	m.rows[id] = row
	m.order = append(m.order, id)
	return row
}

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder
	width := max(m.width, 20)

	title := "Council"
	if m.sessionID != "" {
		title = fmt.Sprintf("Council session %s (%s)", m.sessionID, m.mode)
	}
	b.WriteString(m.styles.Title.Render(title))
	b.WriteString("\n")
	if m.query != "" {
		b.WriteString(m.styles.Subtitle.Render(ansi.Truncate(oneLine(m.query), width-2, "...")))
		b.WriteString("\n")
	}
	if m.parentID != 0 {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf("continuing session #%d", m.parentID)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.phase != "" {
		phase := fmt.Sprintf("[%d/%d] %s", m.step, m.total, m.phase)
		if m.message != "" {
			phase += "  " + m.message
		}
		b.WriteString(m.styles.Label.Render(ansi.Truncate(phase, width, "...")))
		b.WriteString("\n\n")
	}

	for _, id := range m.order {
		b.WriteString(m.renderRow(m.rows[id], width))
		b.WriteString("\n")
	}

	if m.workspaces > 0 {
		b.WriteString("\n")
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf("%d workspaces active", m.workspaces)))
		b.WriteString("\n")
	}

	if m.ranking != nil {
		b.WriteString("\n")
		b.WriteString(m.styles.Label.Render(fmt.Sprintf("Ranking (%d reviews)", m.ranking.Reviews)))
		b.WriteString("\n")
		for i, label := range m.ranking.Labels {
			fmt.Fprintf(&b, "  %d. %s  %s\n", i+1, label, m.styles.Muted.Render(fmt.Sprintf("%d pts", m.ranking.Scores[i])))
		}
	}

	if m.merge != nil {
		b.WriteString("\n")
		line := fmt.Sprintf("Merge: %s", m.merge.Status)
		if m.merge.MemberID != "" {
			line += " (" + m.merge.MemberID + ")"
		}
		if len(m.merge.Files) > 0 {
			line += fmt.Sprintf(", %d files", len(m.merge.Files))
		}
		b.WriteString(m.styles.Text.Render(line))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.footer())
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderRow(row *memberRow, width int) string {
	var icon string
	style := m.styles.Waiting
	switch row.status {
	case event.MemberActive:
		icon = m.spinner.View()
		style = m.styles.Active
	case event.MemberCompleted:
		icon = "✓"
		style = m.styles.Completed
	case event.MemberError:
		icon = "✗"
		style = m.styles.Failed
	default:
		icon = "○"
	}

	name := row.id
	if row.chairman {
		name += " (chairman)"
	}
	line := fmt.Sprintf("%s %-28s %-7s %-9s", icon, ansi.Truncate(name, 28, "..."), row.stage, row.status)
	if row.duration > 0 {
		line += " " + row.duration.Round(100*time.Millisecond).String()
	}
	line = style.Render(line)
	if row.detail != "" && (m.details || row.status == event.MemberError) {
		rest := width - lipgloss.Width(line) - 3
		if rest > 10 {
			line += "  " + m.styles.Muted.Render(ansi.Truncate(oneLine(row.detail), rest, "..."))
		}
	}
	return line
}

func (m Model) footer() string {
	switch {
	case m.finished && m.err != nil:
		return m.styles.Error.Render("Session failed: " + m.err.Error())
	case m.finished:
		msg := "Session completed"
		if m.completed != nil && m.completed.RecordID != 0 {
			msg += fmt.Sprintf(", saved as #%d", m.completed.RecordID)
		}
		return m.styles.Success.Render(msg)
	case m.cancelling:
		return m.styles.Warning.Render("Cancelling... press q again to quit immediately")
	}
	help := []string{m.keys.Cancel.Help().Key + " " + m.keys.Cancel.Help().Desc}
	help = append(help, m.keys.Details.Help().Key+" "+m.keys.Details.Help().Desc)
	return m.styles.Muted.Render(strings.Join(help, " • "))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
