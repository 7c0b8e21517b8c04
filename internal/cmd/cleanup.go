package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/council/internal/config"
	"github.com/Iron-Ham/council/internal/logging"
	"github.com/Iron-Ham/council/internal/workspace"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove worktrees and branches left by interrupted code sessions",
	Long: `Cleanup removes resources a code session leaves behind when it is killed
before it can tear down:

- Worktrees: directories under the configured workspace.dir
- Branches: <prefix>/* branches (prefix is workspace.branch_prefix,
  default: "council")

Nothing is removed while a session holds the repository lock.
Use --dry-run to see what would be removed without changing anything.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

var (
	cleanupDryRun bool
	cleanupForce  bool
)

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be cleaned up without making changes")
	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "Skip confirmation prompt")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	mgr, err := openWorkspaces(cfg, logging.NopLogger())
	if err != nil {
		return err
	}

	if lock, held := workspace.IsLocked(mgr.RepoDir()); held {
		return fmt.Errorf("session %s (pid %d) is still running; wait for it to finish", lock.SessionID, lock.PID)
	}

	out := cmd.OutOrStdout()
	found, err := mgr.FindStale()
	if err != nil {
		return fmt.Errorf("failed to discover stale resources: %w", err)
	}
	if found.Empty() {
		fmt.Fprintln(out, "Nothing to clean up.")
		return nil
	}

	printStale(out, found)
	if cleanupDryRun {
		fmt.Fprintln(out, "\nDry run: nothing was removed.")
		return nil
	}

	if !cleanupForce {
		fmt.Fprint(out, "\nRemove these? [y/N] ")
		if !readYes(os.Stdin) {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	report, err := mgr.CleanupStale(cmdContext(cmd))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Removed %d worktree directories and %d branches.\n", len(report.Dirs), len(report.Branches))
	return nil
}

func printStale(w io.Writer, r *workspace.StaleReport) {
	if len(r.Dirs) > 0 {
		fmt.Fprintf(w, "Worktree directories (%d):\n", len(r.Dirs))
		for _, d := range r.Dirs {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
	if len(r.Branches) > 0 {
		fmt.Fprintf(w, "Branches (%d):\n", len(r.Branches))
		for _, b := range r.Branches {
			fmt.Fprintf(w, "  %s\n", b)
		}
	}
}

func readYes(r io.Reader) bool {
	line, _ := bufio.NewReader(r).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
