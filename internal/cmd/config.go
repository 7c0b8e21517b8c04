package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/council/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify council configuration",
	Long: `View or modify council configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  council config set council.members openai/gpt-5,anthropic/claude-sonnet-4.5
  council config set council.chairman google/gemini-2.5-pro
  council config set storage.backend sqlite

Valid keys:
  council.members            - Comma separated roster
  council.chairman           - Chairman model
  council.title_model        - Model used for conversation titles
  council.history_rounds     - Prior rounds replayed on continue
  timeouts.invocation_seconds
  timeouts.chairman_seconds
  timeouts.session_minutes
  backend.provider           - Options: opencode, openrouter, openai, anthropic
  backend.base_url
  backend.api_key_env
  backend.use_keyring        - true/false
  backend.max_concurrency    - 0 means unlimited
  workspace.dir
  workspace.branch_prefix
  storage.backend            - Options: file, sqlite
  storage.dir
  merge.confirm              - true/false
  merge.commit_message
  logging.enabled            - true/false
  logging.level              - Options: debug, info, warn, error
  logging.max_size_mb        - Rotate debug.log past this size (0 disables)
  logging.max_backups        - Rotated logs to keep
  dashboard.enabled          - true/false
  dashboard.theme            - Built-in name or path to a theme file`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/council/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file location",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "# Config file: (none - using defaults)\n")
	}

	settings := viper.AllSettings()
	delete(settings, "config")
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	_, err = out.Write(data)
	if err != nil {
		return err
	}

	if _, err := config.Load(); err != nil {
		fmt.Fprintf(out, "\n# Invalid configuration:\n# %s\n", strings.ReplaceAll(err.Error(), "\n", "\n# "))
	}
	return nil
}

// configKeys maps settable keys to their value kind.
var configKeys = map[string]string{
	"council.members":             "list",
	"council.chairman":            "string",
	"council.title_model":         "string",
	"council.history_rounds":      "int",
	"timeouts.invocation_seconds": "int",
	"timeouts.chairman_seconds":   "int",
	"timeouts.session_minutes":    "int",
	"backend.provider":            "string",
	"backend.base_url":            "string",
	"backend.api_key_env":         "string",
	"backend.use_keyring":         "bool",
	"backend.max_concurrency":     "int",
	"workspace.dir":               "string",
	"workspace.branch_prefix":     "string",
	"storage.backend":             "string",
	"storage.dir":                 "string",
	"merge.confirm":               "bool",
	"merge.commit_message":        "string",
	"logging.enabled":             "bool",
	"logging.level":               "string",
	"logging.max_size_mb":         "int",
	"logging.max_backups":         "int",
	"dashboard.enabled":           "bool",
	"dashboard.theme":             "string",
}

// parseConfigValue converts a command-line value for key into its typed form.
func parseConfigValue(key, value string) (any, error) {
	kind, ok := configKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'council config set --help' to see valid keys", key)
	}

	switch kind {
	case "list":
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	case "bool":
		if value != "true" && value != "false" {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return value == "true", nil
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		return n, nil
	}

	var valid []string
	switch key {
	case "backend.provider":
		valid = config.ValidProviders()
	case "storage.backend":
		valid = config.ValidStorageBackends()
	case "logging.level":
		valid = config.ValidLogLevels()
	}
	if valid != nil && !slices.Contains(valid, value) {
		return nil, fmt.Errorf("invalid value for %s: %s\nValid options: %s", key, value, strings.Join(valid, ", "))
	}
	return value, nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	typed, err := parseConfigValue(key, value)
	if err != nil {
		return err
	}

	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set(key, typed)

	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typed)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

const defaultConfigContent = `# Council configuration

council:
  # Models that answer and review. Order fixes the anonymous labels.
  members: []
  # Model that writes the final answer. It must not also be a member.
  chairman: ""
  # Model used to title new conversations; empty uses the query
  title_model: ""
  # Prior rounds given as context when continuing a session
  history_rounds: 3

timeouts:
  invocation_seconds: 300
  chairman_seconds: 300
  # 0 disables the session timeout
  session_minutes: 30

backend:
  # Provider for reviews and synthesis: opencode (no key), openrouter, openai, anthropic
  provider: opencode
  base_url: ""
  # Environment variable holding the API key; see also 'council setup'
  api_key_env: OPENROUTER_API_KEY
  use_keyring: true
  # Concurrent model calls; 0 means unlimited
  max_concurrency: 0
  # Agent CLI used in code mode, run inside each member's worktree
  process:
    command: opencode
    args: [run]
    model_flag: -m
    prompt_file_flag: -f
    prompt_file_threshold: 6000

workspace:
  # Relative paths are resolved against the repository root
  dir: .council/worktrees
  branch_prefix: council
  # Untracked files copied into each worktree
  untracked:
    include: []
    exclude: [".council/**", ".env"]

storage:
  # file or sqlite
  backend: file
  dir: ""

merge:
  confirm: false
  commit_message: "Apply council proposal from {member} (session {session})"
  patch_dir: .council/patches

logging:
  enabled: true
  level: info
  dir: ""
  # debug.log is rotated past max_size_mb; 0 disables rotation
  max_size_mb: 10
  max_backups: 3

dashboard:
  enabled: false
  theme: default
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'council config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to choose your council members and chairman.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: COUNCIL_* (e.g., COUNCIL_STORAGE_BACKEND)")
	fmt.Fprintln(out, "Also read: COUNCIL_MODELS, CHAIRMAN_MODEL, TITLE_MODEL and a .env file in the repository root")
	return nil
}
