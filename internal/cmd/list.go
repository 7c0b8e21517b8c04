package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/council/internal/dashboard"
	"github.com/Iron-Ham/council/internal/record"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List past sessions grouped by conversation",
	Long: `List shows every saved conversation, most recently updated first, with
its sessions in the order they ran.

Use --watch to keep the listing open and refresh it whenever a session
is saved, for example from another terminal.`,
	RunE: runList,
}

var (
	listFormat string
	listWatch  bool
)

const clearScreen = "\x1b[H\x1b[2J"

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listFormat, "format", "o", "text", "Output format: "+strings.Join(dashboard.ValidFormats(), ", "))
	listCmd.Flags().BoolVarP(&listWatch, "watch", "w", false, "Refresh the listing when sessions are saved")
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := dashboard.ParseFormat(listFormat)
	if err != nil {
		return err
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	printer := dashboard.NewPrinter(format)
	if format == dashboard.FormatText && isTerminal(os.Stdout) {
		if palette, err := dashboard.LoadTheme(rt.cfg.Dashboard.Theme); err == nil {
			printer.Styles = dashboard.NewStyles(palette)
		}
	}

	ctx := cmdContext(cmd)
	out := cmd.OutOrStdout()
	if !listWatch {
		return printList(ctx, out, rt.store, printer)
	}

	w, err := record.Watch(rt.store)
	if err != nil {
		if errors.Is(err, record.ErrNotWatchable) {
			return fmt.Errorf("--watch is not supported by the %q storage backend", rt.cfg.Storage.Backend)
		}
		return fmt.Errorf("failed to watch sessions: %w", err)
	}
	defer w.Stop()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		if format == dashboard.FormatText && isTerminal(os.Stdout) {
			fmt.Fprint(out, clearScreen)
		}
		if err := printList(ctx, out, rt.store, printer); err != nil {
			return err
		}
		if !w.Wait(ctx) {
			return nil
		}
	}
}

func printList(ctx context.Context, w io.Writer, store record.Store, printer *dashboard.Printer) error {
	convs, err := store.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	summaries, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	return printer.PrintList(w, dashboard.BuildList(convs, summaries))
}
