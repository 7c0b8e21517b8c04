package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/council/internal/errors"
	"github.com/Iron-Ham/council/internal/record"
)

var continueCmd = &cobra.Command{
	Use:   "continue <session> [query]",
	Short: "Ask a follow-up question in an earlier session's conversation",
	Long: `Continue runs a new session that follows an earlier one. The earlier
session's roster, chairman, and mode are reused, and the last rounds of
the conversation are given to every member as context.

<session> is a session id, "latest", or ~N for the Nth most recent.

Examples:
  council continue latest "What about error handling?"
  council continue 12 --code --auto-merge "Now add tests for it"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runContinue,
}

var (
	continueMerge  mergeFlags
	continueOutput outputFlags
)

func init() {
	rootCmd.AddCommand(continueCmd)
	continueMerge.register(continueCmd)
	continueOutput.register(continueCmd)
}

func runContinue(cmd *cobra.Command, args []string) error {
	query, err := readQuery(args[1:], os.Stdin)
	if err != nil {
		return err
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	parent, err := record.Resolve(cmdContext(cmd), rt.store, args[0])
	if err != nil {
		return errors.Wrapf(err, "cannot continue %q", args[0])
	}

	mergeOpts, err := continueMerge.options(cmd, rt.cfg)
	if err != nil {
		return err
	}

	engine, err := rt.engine(parent.Mode == record.ModeCode)
	if err != nil {
		return err
	}

	return runSession(cmd, rt, &continueOutput, mergeOpts, func(ctx context.Context) (*record.SessionRecord, error) {
		return engine.ContinueSession(ctx, parent.ID, query, mergeOpts)
	})
}
