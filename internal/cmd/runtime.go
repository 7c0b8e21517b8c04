package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/council/internal/config"
	"github.com/Iron-Ham/council/internal/council"
	"github.com/Iron-Ham/council/internal/event"
	"github.com/Iron-Ham/council/internal/invoker"
	"github.com/Iron-Ham/council/internal/logging"
	"github.com/Iron-Ham/council/internal/merge"
	"github.com/Iron-Ham/council/internal/record"
	"github.com/Iron-Ham/council/internal/workspace"
)

// runtime holds the collaborators shared by the session commands.
type runtime struct {
	cfg    *config.Config
	logger *logging.Logger
	store  record.Store
	bus    *event.Bus
}

func newRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		logger, err = logging.NewLoggerWithRotation(cfg.Logging.ResolveLogDir(), cfg.Logging.Level, logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		})
		if err != nil {
			// Logging is best-effort; a session still runs without it
			fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
			logger = logging.NopLogger()
		}
	}

	store, err := record.NewFromConfig(&cfg.Storage)
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	bus := event.NewBus()
	bus.SetLogger(logger)

	return &runtime{cfg: cfg, logger: logger, store: store, bus: bus}, nil
}

func (r *runtime) Close() {
	r.bus.Close()
	if err := r.store.Close(); err != nil {
		r.logger.Warn("failed to close session store", "error", err)
	}
	_ = r.logger.Close()
}

// engine wires a council engine. code adds the workspace manager and merge
// coordinator rooted at the repository containing the working directory.
func (r *runtime) engine(code bool, extra ...council.Option) (*council.Engine, error) {
	router, err := invoker.NewFromConfig(r.cfg, nil)
	if err != nil {
		return nil, err
	}
	client := invoker.ClientFromConfig(r.cfg, router, invoker.WithLogger(r.logger))

	opts := []council.Option{
		council.WithStore(r.store),
		council.WithPublisher(r.bus),
		council.WithLogger(r.logger),
		council.WithTitleModel(r.cfg.Council.TitleModel),
		council.WithHistoryRounds(r.cfg.Council.HistoryRounds),
		council.WithSessionTimeout(r.cfg.Timeouts.SessionTimeout()),
		council.WithChairmanTimeout(r.cfg.Timeouts.ChairmanTimeout()),
	}

	if code {
		mgr, err := r.workspaces()
		if err != nil {
			return nil, err
		}
		coordinator := merge.NewCoordinator(mgr,
			merge.WithConfirmer(merge.NewTerminalConfirmer(true)),
			merge.WithPatchDir(r.cfg.Merge.PatchDir),
			merge.WithLogger(r.logger),
			merge.WithPublisher(r.bus),
		)
		opts = append(opts, council.WithWorkspaces(mgr), council.WithMerger(coordinator))
	}

	return council.New(client, append(opts, extra...)...), nil
}

// workspaces opens the workspace manager for the current repository.
func (r *runtime) workspaces() (*workspace.Manager, error) {
	return openWorkspaces(r.cfg, r.logger)
}

func openWorkspaces(cfg *config.Config, logger *logging.Logger) (*workspace.Manager, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	root, err := workspace.FindGitRoot(cwd)
	if err != nil {
		return nil, err
	}
	policy, err := workspace.NewUntrackedPolicy(cfg.Workspace.Untracked.Include, cfg.Workspace.Untracked.Exclude)
	if err != nil {
		return nil, err
	}
	return workspace.New(root,
		workspace.WithDir(cfg.Workspace.ResolveWorktreeDir(root)),
		workspace.WithBranchPrefix(cfg.Workspace.BranchPrefix),
		workspace.WithPolicy(policy),
		workspace.WithLogger(logger),
	)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
