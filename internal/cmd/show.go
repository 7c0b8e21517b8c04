package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/council/internal/dashboard"
	"github.com/Iron-Ham/council/internal/errors"
	"github.com/Iron-Ham/council/internal/record"
)

var showCmd = &cobra.Command{
	Use:   "show [session]",
	Short: "Show a saved session",
	Long: `Show prints a saved session: its responses, the aggregate ranking, the
chairman's synthesis, and the merge outcome for code sessions.

[session] is a session id, "latest" (the default), or ~N for the Nth most
recent.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShow,
}

var (
	showFormat string
	showFull   bool
)

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().StringVarP(&showFormat, "format", "o", "text", "Output format: "+strings.Join(dashboard.ValidFormats(), ", "))
	showCmd.Flags().BoolVar(&showFull, "full", false, "Print every response and review in full")
}

func runShow(cmd *cobra.Command, args []string) error {
	format, err := dashboard.ParseFormat(showFormat)
	if err != nil {
		return err
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ref := "latest"
	if len(args) == 1 {
		ref = args[0]
	}
	rec, err := record.Resolve(cmdContext(cmd), rt.store, ref)
	if errors.Is(err, errors.ErrNotFound) {
		return errors.Wrap(err, "nothing to show ('council list' shows stored sessions)")
	}
	if err != nil {
		return err
	}

	printer := dashboard.NewPrinter(format)
	printer.Full = showFull
	if format == dashboard.FormatText && isTerminal(os.Stdout) {
		if palette, err := dashboard.LoadTheme(rt.cfg.Dashboard.Theme); err == nil {
			printer.Styles = dashboard.NewStyles(palette)
		}
	}
	return printer.PrintRecord(cmd.OutOrStdout(), rec)
}
