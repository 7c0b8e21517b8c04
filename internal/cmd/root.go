package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/council/internal/config"
	"github.com/Iron-Ham/council/internal/errors"
	"github.com/Iron-Ham/council/internal/workspace"
)

var rootCmd = &cobra.Command{
	Use:   "council",
	Short: "Ask a council of models, let them rank each other, get one answer",
	Long: `Council sends a question to several models at once, has every model
rank the others' anonymized answers, and asks a chairman model to
synthesize a final answer from the responses and the rankings.

With --code, each member works in its own git worktree and the winning
change can be merged back into your working tree.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	reportInternal(rootCmd.ErrOrStderr(), err)
	return err
}

// ExitCode maps an error from Execute to a process exit status: 0 on
// success, 2 for rejected input, 1 otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errors.ErrInvalidInput):
		return 2
	}
	return 1
}

// reportInternal points at the debug log when err is not one the user can
// act on from its message alone.
func reportInternal(w io.Writer, err error) {
	if err != nil && !errors.IsUserFacing(err) {
		fmt.Fprintln(w, "Run 'council logs --level error' for details.")
	}
}

func flagError(_ *cobra.Command, err error) error {
	return errors.NewValidationError(err.Error())
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.SetFlagErrorFunc(flagError)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/council/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	// .env in the repository root (or the working directory outside a
	// repository) predates the config file and is still honored
	if cwd, err := os.Getwd(); err == nil {
		dir := cwd
		if root, err := workspace.FindGitRoot(cwd); err == nil {
			dir = root
		}
		_ = config.LoadDotEnv(dir)
	}

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("COUNCIL")
	// Replace dots with underscores for nested keys in env vars
	// e.g., COUNCIL_STORAGE_BACKEND for storage.backend
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.BindLegacyEnv()

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
