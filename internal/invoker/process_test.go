package invoker

import (
	"context"
	"errors"
	"os"
	"slices"
	"strings"
	"testing"
)

// recordingRunner captures the command line and the prompt file contents.
type recordingRunner struct {
	dir        string
	name       string
	args       []string
	promptFile string
	fileBody   string
	stdout     string
	stderr     string
	err        error
}

func (r *recordingRunner) Run(_ context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	r.dir, r.name, r.args = dir, name, args
	if i := slices.Index(args, "-f"); i >= 0 && i+1 < len(args) {
		r.promptFile = args[i+1]
		b, _ := os.ReadFile(r.promptFile)
		r.fileBody = string(b)
	}
	return []byte(r.stdout), []byte(r.stderr), r.err
}

func TestProcessBackend_InlinePrompt(t *testing.T) {
	runner := &recordingRunner{stdout: "\n  done  \n"}
	p := NewProcessBackend("")
	p.Runner = runner

	out, err := p.Complete(context.Background(), Request{MemberID: "openai/gpt-5", Prompt: "fix the bug", WorkDir: "/tmp/ws"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "done" {
		t.Errorf("output = %q, want trimmed %q", out, "done")
	}
	if runner.name != "opencode" || runner.dir != "/tmp/ws" {
		t.Errorf("ran %q in %q", runner.name, runner.dir)
	}
	want := []string{"run", "-m", "openai/gpt-5", "fix the bug"}
	if !slices.Equal(runner.args, want) {
		t.Errorf("args = %v, want %v", runner.args, want)
	}
}

func TestProcessBackend_LongPromptUsesFile(t *testing.T) {
	runner := &recordingRunner{stdout: "ok"}
	p := NewProcessBackend("opencode")
	p.Runner = runner
	prompt := strings.Repeat("x", DefaultPromptFileThreshold+1)

	if _, err := p.Complete(context.Background(), Request{MemberID: "m", Prompt: prompt}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if runner.promptFile == "" {
		t.Fatalf("expected -f flag, args = %v", runner.args)
	}
	if runner.fileBody != prompt {
		t.Errorf("prompt file holds %d bytes, want %d", len(runner.fileBody), len(prompt))
	}
	if last := runner.args[len(runner.args)-1]; last != promptFileInstruction {
		t.Errorf("last arg = %q, want instruction", last)
	}
	if _, err := os.Stat(runner.promptFile); !os.IsNotExist(err) {
		t.Error("prompt file should be removed after the call")
	}
}

func TestProcessBackend_ThresholdBoundary(t *testing.T) {
	runner := &recordingRunner{stdout: "ok"}
	p := NewProcessBackend("opencode")
	p.Runner = runner

	prompt := strings.Repeat("y", DefaultPromptFileThreshold)
	if _, err := p.Complete(context.Background(), Request{MemberID: "m", Prompt: prompt}); err != nil {
		t.Fatal(err)
	}
	if runner.promptFile != "" {
		t.Error("a prompt exactly at the threshold stays inline")
	}
}

func TestProcessBackend_Failure(t *testing.T) {
	tests := []struct {
		name    string
		runner  *recordingRunner
		wantMsg string
	}{
		{
			name:    "stderr preferred",
			runner:  &recordingRunner{stderr: "model not found\n", err: errors.New("exit status 1")},
			wantMsg: "model not found",
		},
		{
			name:    "exit error when stderr empty",
			runner:  &recordingRunner{err: errors.New("exit status 2")},
			wantMsg: "exit status 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProcessBackend("opencode")
			p.Runner = tt.runner
			_, err := p.Complete(context.Background(), Request{MemberID: "m", Prompt: "q"})
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %v, want substring %q", err, tt.wantMsg)
			}
		})
	}
}

func TestProcessBackend_SystemPromptPrepended(t *testing.T) {
	runner := &recordingRunner{stdout: "ok"}
	p := NewProcessBackend("opencode")
	p.Runner = runner

	_, _ = p.Complete(context.Background(), Request{MemberID: "m", System: "be brief", Prompt: "q"})
	if got := runner.args[len(runner.args)-1]; got != "be brief\n\nq" {
		t.Errorf("prompt arg = %q", got)
	}
}
