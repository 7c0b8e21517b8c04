package invoker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultPromptFileThreshold is the prompt length above which
// ProcessBackend passes the prompt through a temp file.
const DefaultPromptFileThreshold = 6000

// promptFileInstruction replaces the inline prompt when a prompt file is
// attached.
const promptFileInstruction = "Execute the task described in the attached file."

// CommandRunner runs an external command. It exists so tests can
// substitute a fake for the agent CLI.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// WaitDelay bounds how long output pipes may stay open after ctx
	// kills the process.
	WaitDelay time.Duration
}

// Run implements CommandRunner.
func (r ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 5 * time.Second
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// ProcessBackend runs a local agent CLI once per request, in the request's
// WorkDir. The invocation shape is:
//
//	<command> <args...> <modelFlag> <member> <prompt>
//
// Prompts longer than the threshold are written to a temp file and passed
// with the prompt-file flag followed by a short instruction.
type ProcessBackend struct {
	Command        string
	Args           []string
	ModelFlag      string
	PromptFileFlag string
	// PromptFileThreshold of 0 always passes the prompt inline.
	PromptFileThreshold int
	Runner              CommandRunner
}

var _ Backend = (*ProcessBackend)(nil)

// NewProcessBackend creates a backend for the opencode CLI defaults.
func NewProcessBackend(command string) *ProcessBackend {
	if command == "" {
		command = "opencode"
	}
	return &ProcessBackend{
		Command:             command,
		Args:                []string{"run"},
		ModelFlag:           "-m",
		PromptFileFlag:      "-f",
		PromptFileThreshold: DefaultPromptFileThreshold,
		Runner:              ExecRunner{},
	}
}

// Name implements Backend.
func (p *ProcessBackend) Name() string { return p.Command }

// Complete implements Backend.
func (p *ProcessBackend) Complete(ctx context.Context, req Request) (string, error) {
	args, cleanup, err := p.buildArgs(req)
	if err != nil {
		return "", err
	}
	defer cleanup()

	runner := p.Runner
	if runner == nil {
		runner = ExecRunner{}
	}

	stdout, stderr, err := runner.Run(ctx, req.WorkDir, p.Command, args...)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s: %w", p.Command, ctx.Err())
		}
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s exited with error: %s", p.Command, msg)
	}
	return strings.TrimSpace(string(stdout)), nil
}

// buildArgs assembles the argument list. The returned cleanup removes any
// temp file and is always safe to call.
func (p *ProcessBackend) buildArgs(req Request) ([]string, func(), error) {
	args := append([]string{}, p.Args...)
	if p.ModelFlag != "" {
		args = append(args, p.ModelFlag, req.MemberID)
	}

	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + prompt
	}

	if p.PromptFileThreshold <= 0 || len(prompt) <= p.PromptFileThreshold || p.PromptFileFlag == "" {
		return append(args, prompt), func() {}, nil
	}

	f, err := os.CreateTemp("", "council_prompt_*.txt")
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to create prompt file: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.WriteString(prompt); err != nil {
		_ = f.Close()
		cleanup()
		return nil, func() {}, fmt.Errorf("failed to write prompt file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("failed to close prompt file: %w", err)
	}

	return append(args, p.PromptFileFlag, f.Name(), promptFileInstruction), cleanup, nil
}
