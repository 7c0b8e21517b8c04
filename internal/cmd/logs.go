package cmd

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/council/internal/config"
	"github.com/Iron-Ham/council/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View council debug logs",
	Long: `View and filter the structured debug log written by council sessions.

Rotated logs are read together with the current one, oldest first.

Examples:
  # Show the last 50 entries
  council logs

  # Everything from one session
  council logs -s 3f2a9c1e -n 0

  # Warnings and errors from the last hour
  council logs --level warn --since 1h

  # One member's peer review, exported as CSV
  council logs --member openai/gpt-5 --phase stage2 -o csv`,
	RunE: runLogs,
}

var (
	logsSessionID string
	logsMember    string
	logsPhase     string
	logsLevel     string
	logsSince     time.Duration
	logsGrep      string
	logsTail      int
	logsFormat    string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVarP(&logsSessionID, "session", "s", "", "Only entries for this session ID")
	logsCmd.Flags().StringVar(&logsMember, "member", "", "Only entries for this member")
	logsCmd.Flags().StringVar(&logsPhase, "phase", "", "Only entries for this phase (e.g. stage1, merge)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Minimum level: debug, info, warn, error")
	logsCmd.Flags().DurationVar(&logsSince, "since", 0, "Only entries newer than this (e.g. 30m, 2h)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Only entries whose message contains this text")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().StringVarP(&logsFormat, "format", "o", "text", "Output format: "+strings.Join(logging.ExportFormats(), ", "))
}

func runLogs(cmd *cobra.Command, args []string) error {
	if logsLevel != "" && !slices.Contains(config.ValidLogLevels(), strings.ToLower(logsLevel)) {
		return fmt.Errorf("invalid level %q (valid: %s)", logsLevel, strings.Join(config.ValidLogLevels(), ", "))
	}
	if !slices.Contains(logging.ExportFormats(), strings.ToLower(logsFormat)) {
		return fmt.Errorf("invalid format %q (valid: %s)", logsFormat, strings.Join(logging.ExportFormats(), ", "))
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dir := cfg.Logging.ResolveLogDir()
	if len(logging.LogFiles(dir)) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No logs in %s\n", dir)
		return nil
	}

	entries, err := logging.ReadEntries(dir)
	if err != nil {
		return err
	}

	filter := logging.Filter{
		Level:     logsLevel,
		SessionID: logsSessionID,
		Member:    logsMember,
		Phase:     logsPhase,
		Contains:  logsGrep,
	}
	if logsSince > 0 {
		filter.Since = time.Now().Add(-logsSince)
	}

	entries = logging.Tail(logging.FilterEntries(entries, filter), logsTail)
	return logging.WriteEntries(cmd.OutOrStdout(), entries, logsFormat)
}
