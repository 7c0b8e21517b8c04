package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/council/internal/config"
	"github.com/Iron-Ham/council/internal/council"
	"github.com/Iron-Ham/council/internal/dashboard"
	"github.com/Iron-Ham/council/internal/errors"
	"github.com/Iron-Ham/council/internal/merge"
	"github.com/Iron-Ham/council/internal/record"
)

var runCmd = &cobra.Command{
	Use:   "run [query]",
	Short: "Put a question to the council",
	Long: `Run sends the query to every council member, collects anonymous peer
rankings, and prints the chairman's synthesis. The query is read from
standard input when no argument is given.

With --code, each member works in its own git worktree of the current
repository. Their changes are ranked like any other response, and
--auto-merge lands the top-ranked change in your working tree.

Examples:
  council run "How do I profile a Go service?"
  council run --members openai/gpt-5,anthropic/claude-sonnet-4.5 --chairman google/gemini-2.5-pro "..."
  council run --code --auto-merge "Add a /healthz endpoint"
  council run --code --merge 2 --no-commit "Refactor the config loader"`,
	RunE: runRun,
}

var (
	runCode     bool
	runMembers  []string
	runChairman string
	runTimeout  time.Duration
	runMerge    mergeFlags
	runOutput   outputFlags
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runCode, "code", false, "Run in code mode: one git worktree per member")
	runCmd.Flags().StringSliceVarP(&runMembers, "members", "m", nil, "Council members (overrides council.members)")
	runCmd.Flags().StringVar(&runChairman, "chairman", "", "Chairman model (overrides council.chairman)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Session timeout (overrides timeouts.session_minutes)")
	runMerge.register(runCmd)
	runOutput.register(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	query, err := readQuery(args, os.Stdin)
	if err != nil {
		return err
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	mergeOpts, err := runMerge.options(cmd, rt.cfg)
	if err != nil {
		return err
	}

	mode := record.ModeText
	if runCode {
		mode = record.ModeCode
	}

	var extra []council.Option
	if runTimeout > 0 {
		extra = append(extra, council.WithSessionTimeout(runTimeout))
	}
	engine, err := rt.engine(runCode, extra...)
	if err != nil {
		return err
	}

	req := council.SessionRequest{
		Query:    query,
		Roster:   rt.cfg.Council.Members,
		Chairman: rt.cfg.Council.Chairman,
		Mode:     mode,
		Merge:    mergeOpts,
	}
	if len(runMembers) > 0 {
		req.Roster = runMembers
	}
	if runChairman != "" {
		req.Chairman = runChairman
	}
	if err := engine.Validate(req); err != nil {
		return err
	}

	return runSession(cmd, rt, &runOutput, mergeOpts, func(ctx context.Context) (*record.SessionRecord, error) {
		return engine.RunSession(ctx, req)
	})
}

// readQuery joins the arguments, or reads stdin when there are none and it
// is not a terminal.
func readQuery(args []string, stdin *os.File) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if isTerminal(stdin) {
		return "", fmt.Errorf("no query given; pass it as an argument or on standard input")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read query: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// mergeFlags are the merge controls shared by run and continue.
type mergeFlags struct {
	auto     bool
	member   string
	dryRun   bool
	confirm  bool
	noCommit bool
	message  string
}

func (f *mergeFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.auto, "auto-merge", false, "Merge the top-ranked change (code mode)")
	cmd.Flags().StringVar(&f.member, "merge", "", "Merge a specific member's change, by id or ranking position (code mode)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Show which change would be merged without applying it")
	cmd.Flags().BoolVar(&f.confirm, "confirm", false, "Ask before applying a change (overrides merge.confirm)")
	cmd.Flags().BoolVar(&f.noCommit, "no-commit", false, "Stage the merged change without committing")
	cmd.Flags().StringVar(&f.message, "commit-message", "", "Commit message template; {member} and {session} are replaced")
	cmd.MarkFlagsMutuallyExclusive("auto-merge", "merge", "dry-run")
}

// options translates the flags into merge options. It returns nil when no
// merge was requested.
func (f *mergeFlags) options(cmd *cobra.Command, cfg *config.Config) (*merge.Options, error) {
	opts := &merge.Options{
		Confirm:       cfg.Merge.Confirm,
		NoCommit:      f.noCommit,
		CommitMessage: cfg.Merge.CommitMessage,
	}
	switch {
	case f.auto:
		opts.Mode = merge.ModeAuto
	case f.member != "":
		opts.Mode = merge.ModeManual
		opts.MemberID = f.member
	case f.dryRun:
		opts.Mode = merge.ModeDryRun
	default:
		return nil, nil
	}
	if cmd.Flags().Changed("confirm") {
		opts.Confirm = f.confirm
	}
	if f.message != "" {
		opts.CommitMessage = f.message
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Confirm && opts.Mode != merge.ModeDryRun && !interactive(cmd) {
		return nil, errors.NewValidationError("merge confirmation needs a terminal on stdin; pass --confirm=false to merge without asking").
			WithField("confirm")
	}
	return opts, nil
}

// interactive reports whether the command's input is a terminal.
func interactive(cmd *cobra.Command) bool {
	f, ok := cmd.InOrStdin().(*os.File)
	return ok && isTerminal(f)
}

// outputFlags control how the finished record is shown.
type outputFlags struct {
	format    string
	full      bool
	dashboard bool
	quiet     bool
}

func (f *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.format, "format", "o", "text", "Output format: "+strings.Join(dashboard.ValidFormats(), ", "))
	cmd.Flags().BoolVar(&f.full, "full", false, "Print every response and review, not just the synthesis")
	cmd.Flags().BoolVar(&f.dashboard, "dashboard", false, "Show a live dashboard (overrides dashboard.enabled)")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Do not print progress")
}

// useDashboard decides whether the live dashboard can own the terminal.
func (f *outputFlags) useDashboard(cmd *cobra.Command, cfg *config.Config, format dashboard.Format, mergeOpts *merge.Options) bool {
	enabled := cfg.Dashboard.Enabled
	if cmd.Flags().Changed("dashboard") {
		enabled = f.dashboard
	}
	if !enabled || format != dashboard.FormatText || !isTerminal(os.Stdout) {
		return false
	}
	// The merge prompt reads the terminal the dashboard would be holding
	return mergeOpts == nil || !mergeOpts.Confirm || mergeOpts.Mode == merge.ModeDryRun
}

// runSession runs fn with interrupt handling, live progress, and final output.
func runSession(cmd *cobra.Command, rt *runtime, out *outputFlags, mergeOpts *merge.Options, fn func(context.Context) (*record.SessionRecord, error)) error {
	format, err := dashboard.ParseFormat(out.format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rec *record.SessionRecord
	session := func(ctx context.Context) error {
		var err error
		rec, err = fn(ctx)
		return err
	}

	palette, err := dashboard.LoadTheme(rt.cfg.Dashboard.Theme)
	if err != nil {
		return err
	}

	if out.useDashboard(cmd, rt.cfg, format, mergeOpts) {
		err = dashboard.New(rt.bus,
			dashboard.WithPalette(palette),
			dashboard.WithLogger(rt.logger),
		).Run(ctx, session)
	} else {
		if !out.quiet {
			p := &progressPrinter{out: cmd.ErrOrStderr()}
			detach := p.attach(rt.bus)
			err = session(ctx)
			detach()
		} else {
			err = session(ctx)
		}
	}

	if rec != nil {
		printer := dashboard.NewPrinter(format)
		printer.Full = out.full
		if format == dashboard.FormatText && isTerminal(os.Stdout) {
			printer.Styles = dashboard.NewStyles(palette)
		}
		if perr := printer.PrintRecord(cmd.OutOrStdout(), rec); perr != nil && err == nil {
			err = perr
		}
	}
	if hint := failureHint(err, ctx.Err()); hint != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), hint)
	}
	return err
}

// failureHint suggests a next step for a failed session. ctxErr is the
// session context's error; an interrupted session gets no hint.
func failureHint(err, ctxErr error) string {
	switch {
	case err == nil || ctxErr != nil:
		return ""
	case errors.Is(err, errors.ErrTimeout):
		return "A model call timed out; raise --timeout or the timeouts.* settings and try again."
	case errors.IsRetryable(err):
		return "The failure looks transient; running the same command again may succeed."
	}
	return ""
}
