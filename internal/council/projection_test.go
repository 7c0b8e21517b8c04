package council

import (
	"slices"
	"strings"
	"testing"

	"github.com/Iron-Ham/council/internal/record"
	"github.com/Iron-Ham/council/internal/workspace"
)

func TestProject(t *testing.T) {
	responses := []record.Response{
		{MemberID: "openai/gpt", Content: "first", Success: true},
		{MemberID: "anthropic/claude", Error: "timeout"},
		{MemberID: "google/gemini", Content: "third", Success: true},
	}

	p := Project(responses, nil)

	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
	if !slices.Equal(p.Labels(), []string{"Response A", "Response B"}) {
		t.Errorf("Labels() = %v", p.Labels())
	}
	if responses[0].Label != "Response A" || responses[1].Label != "" || responses[2].Label != "Response B" {
		t.Errorf("labels not written back: %q %q %q", responses[0].Label, responses[1].Label, responses[2].Label)
	}

	reveal := p.Reveal()
	if reveal["Response A"] != "openai/gpt" || reveal["Response B"] != "google/gemini" {
		t.Errorf("Reveal() = %v", reveal)
	}
	reveal["Response A"] = "tampered"
	if p.Reveal()["Response A"] != "openai/gpt" {
		t.Error("Reveal() must return a copy")
	}

	views := p.Views()
	views[0].Content = "tampered"
	if p.Views()[0].Content != "first" {
		t.Error("Views() must return a copy")
	}
}

func TestProject_Empty(t *testing.T) {
	p := Project([]record.Response{{MemberID: "a"}, {MemberID: "b"}}, nil)
	if p.Len() != 0 || len(p.Labels()) != 0 || len(p.Reveal()) != 0 {
		t.Errorf("expected an empty projection, got %d labels", p.Len())
	}
}

func TestProject_AnonymizesDiffs(t *testing.T) {
	diff := &workspace.Patch{
		MemberID:  "model-x",
		Content:   "diff --git a/main.go b/main.go\n+// written by model-x\n",
		Files:     []string{"main.go"},
		Additions: 1,
	}
	p := Project([]record.Response{{MemberID: "model-x", Content: "done", Success: true, Diff: diff}}, nil)

	v := p.Views()[0]
	if strings.Contains(v.Diff, "model-x") {
		t.Errorf("view diff leaks the member: %q", v.Diff)
	}
	if !slices.Equal(v.Files, []string{"main.go"}) || v.Additions != 1 {
		t.Errorf("view summary = %+v", v)
	}
}

func TestProject_ScrubsContent(t *testing.T) {
	ids := map[string]workspace.Identity{
		"openai/gpt-4o": {
			MemberID: "openai/gpt-4o",
			Path:     "/repo/.council/worktrees/s1/ws-1111111111",
			Branch:   "council/s1/ws-1111111111",
		},
	}
	responses := []record.Response{
		{MemberID: "openai/gpt-4o", Content: "I edited /repo/.council/worktrees/s1/ws-1111111111/x.txt on council/s1/ws-1111111111", Success: true},
		{MemberID: "anthropic/claude", Content: "anthropic/claude here, see anthropic-claude.md", Success: true},
	}

	views := Project(responses, ids).Views()

	for _, v := range views {
		for _, leak := range []string{"openai", "gpt-4o", "ws-1111111111", "anthropic", "claude"} {
			if strings.Contains(v.Content, leak) {
				t.Errorf("%s content leaks %q: %q", v.Label, leak, v.Content)
			}
		}
	}
	if responses[0].Content == views[0].Content {
		t.Error("stored response content must keep the original text")
	}
}
