package dashboard

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/council/internal/event"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func feed(t *testing.T, m Model, events ...event.Event) Model {
	t.Helper()
	for _, ev := range events {
		m, _ = update(t, m, eventMsg{event: ev})
	}
	return m
}

func TestModel_TracksSession(t *testing.T) {
	m := NewModel(PlainStyles(), nil)
	m = feed(t, m,
		event.NewSessionStartedEvent("s1", "Explain goroutines", "text", []string{"alpha", "beta"}, "chair", 3),
		event.NewPhaseChangedEvent("s1", "init", "stage1", 2, 8, "collecting responses"),
		event.NewMemberStatusEvent("s1", "alpha", "stage1", event.MemberCompleted, "", 1500*time.Millisecond),
		event.NewMemberStatusEvent("s1", "beta", "stage1", event.MemberError, "rate limited", 0),
	)

	if len(m.order) != 3 || m.order[2] != "chair" || !m.rows["chair"].chairman {
		t.Fatalf("rows = %v", m.order)
	}
	if m.rows["alpha"].status != event.MemberCompleted || m.rows["beta"].status != event.MemberError {
		t.Errorf("statuses = %s/%s", m.rows["alpha"].status, m.rows["beta"].status)
	}

	view := m.View()
	for _, want := range []string{"Council session s1 (text)", "Explain goroutines", "continuing session #3", "[2/8] stage1", "alpha", "chair (chairman)", "rate limited"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModel_RankingAndMerge(t *testing.T) {
	m := NewModel(PlainStyles(), nil)
	m = feed(t, m,
		event.NewSessionStartedEvent("s1", "q", "code", []string{"a", "b"}, "c", 0),
		event.NewWorkspaceEvent("s1", "a", "/tmp/a", "created"),
		event.NewWorkspaceEvent("s1", "b", "/tmp/b", "created"),
		event.NewRankingEvent("s1", []string{"Response B", "Response A"}, []int{4, 2}, 2),
		event.NewMergeEvent("s1", "b", "merged", []string{"main.go"}),
		event.NewWorkspaceEvent("s1", "a", "/tmp/a", "destroyed"),
	)

	if m.workspaces != 1 {
		t.Errorf("workspaces = %d, want 1", m.workspaces)
	}
	view := m.View()
	for _, want := range []string{"Ranking (2 reviews)", "1. Response B", "4 pts", "Merge: merged (b), 1 files", "1 workspaces active"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModel_CancelKey(t *testing.T) {
	cancelled := 0
	m := NewModel(PlainStyles(), func() { cancelled++ })

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cancelled != 1 || !m.cancelling || cmd != nil {
		t.Fatalf("first press: cancelled=%d cancelling=%v cmd=%v", cancelled, m.cancelling, cmd)
	}
	if !strings.Contains(m.View(), "Cancelling") {
		t.Error("view should show cancellation")
	}

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("second press should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("second press should return tea.Quit")
	}
	if cancelled != 1 {
		t.Errorf("cancel called %d times", cancelled)
	}
}

func TestModel_DetailsToggle(t *testing.T) {
	m := NewModel(PlainStyles(), nil)
	m = feed(t, m,
		event.NewSessionStartedEvent("s1", "q", "text", []string{"a"}, "c", 0),
		event.NewMemberStatusEvent("s1", "a", "stage2", event.MemberCompleted, "ranked 3 responses", time.Second),
	)
	if strings.Contains(m.View(), "ranked 3 responses") {
		t.Error("details should be hidden by default")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	if !strings.Contains(m.View(), "ranked 3 responses") {
		t.Error("details should show after toggling")
	}
}

func TestModel_Finished(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, "Session completed, saved as #7"},
		{"failure", errors.New("chairman down"), "Session failed: chairman down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel(PlainStyles(), nil)
			m = feed(t, m, event.NewSessionCompletedEvent("s1", 7, tt.err, time.Second))
			m, cmd := update(t, m, finishedMsg{err: tt.err})
			if cmd == nil {
				t.Fatal("finishing should quit the program")
			}
			if !strings.Contains(m.View(), tt.want) {
				t.Errorf("view missing %q:\n%s", tt.want, m.View())
			}
		})
	}
}

func TestModel_TruncatesToWidth(t *testing.T) {
	m := NewModel(PlainStyles(), nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 30, Height: 10})
	m = feed(t, m, event.NewSessionStartedEvent("s1", strings.Repeat("long query ", 20), "text", []string{"a"}, "c", 0))

	for _, line := range strings.Split(m.View(), "\n") {
		if strings.Contains(line, "long query") && len([]rune(line)) > 30 {
			t.Errorf("line exceeds width: %q", line)
		}
	}
}
