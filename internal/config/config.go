package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete council configuration
type Config struct {
	Council   CouncilConfig   `mapstructure:"council"`
	Timeouts  TimeoutConfig   `mapstructure:"timeouts"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Merge     MergeConfig     `mapstructure:"merge"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// CouncilConfig names the models taking part in a session
type CouncilConfig struct {
	// Members is the ordered roster of council member identifiers.
	// Order matters: it fixes the anonymized labels (Response A, B, ...).
	// Env: COUNCIL_MODELS (comma separated)
	Members []string `mapstructure:"members"`

	// Chairman synthesizes the final answer in stage 3. It must not also
	// be a council member. Env: CHAIRMAN_MODEL
	Chairman string `mapstructure:"chairman"`

	// TitleModel generates conversation titles. Empty falls back to a
	// truncated query.
	TitleModel string `mapstructure:"title_model"`

	// HistoryRounds bounds how many prior rounds are replayed as context
	// when continuing a session (default: 3)
	HistoryRounds int `mapstructure:"history_rounds"`
}

// TimeoutConfig controls how long invocations and sessions may run
type TimeoutConfig struct {
	// InvocationSeconds bounds a single member call (default: 300)
	InvocationSeconds int `mapstructure:"invocation_seconds"`

	// ChairmanSeconds bounds the stage 3 synthesis call (default: 300)
	ChairmanSeconds int `mapstructure:"chairman_seconds"`

	// SessionMinutes bounds the whole session; workspaces are still
	// cleaned up when it fires. 0 disables (default: 30)
	SessionMinutes int `mapstructure:"session_minutes"`
}

// BackendConfig selects how members are reached
type BackendConfig struct {
	// Provider for calls without a workspace: "opencode" (the process
	// backend, no key needed), "openrouter", "openai", or "anthropic"
	Provider string `mapstructure:"provider"`

	// BaseURL overrides the provider's API endpoint
	BaseURL string `mapstructure:"base_url"`

	// APIKeyEnv names the environment variable holding the API key
	// (default: OPENROUTER_API_KEY)
	APIKeyEnv string `mapstructure:"api_key_env"`

	// UseKeyring falls back to the OS keyring when the env var is unset
	// (default: true)
	UseKeyring bool `mapstructure:"use_keyring"`

	// MaxConcurrency caps in-flight invocations. 0 means unlimited.
	MaxConcurrency int `mapstructure:"max_concurrency"`

	// Process configures the local agent CLI used in code mode
	Process ProcessConfig `mapstructure:"process"`
}

// ProcessConfig describes the agent command run inside each workspace
type ProcessConfig struct {
	// Command is the executable (default: "opencode")
	Command string `mapstructure:"command"`

	// Args precede the model flag and prompt (default: ["run"])
	Args []string `mapstructure:"args"`

	// ModelFlag passes the member identifier (default: "-m")
	ModelFlag string `mapstructure:"model_flag"`

	// PromptFileFlag passes a prompt file instead of an inline prompt
	// (default: "-f")
	PromptFileFlag string `mapstructure:"prompt_file_flag"`

	// PromptFileThreshold is the prompt length above which the prompt is
	// written to a temp file (default: 6000)
	PromptFileThreshold int `mapstructure:"prompt_file_threshold"`
}

// WorkspaceConfig controls isolated per-member working copies
type WorkspaceConfig struct {
	// Dir holds member worktrees, relative to the repository root
	// (default: ".council/worktrees")
	Dir string `mapstructure:"dir"`

	// BranchPrefix prefixes worktree branches (default: "council")
	BranchPrefix string `mapstructure:"branch_prefix"`

	// Untracked decides what happens to untracked files in the shared tree
	Untracked UntrackedConfig `mapstructure:"untracked"`
}

// UntrackedConfig classifies untracked files with glob patterns. Files
// matching neither list make the session fail fast.
type UntrackedConfig struct {
	// Include patterns are copied into every workspace
	Include []string `mapstructure:"include"`

	// Exclude patterns are left behind (default: [".council/**", ".env"])
	Exclude []string `mapstructure:"exclude"`
}

// StorageConfig selects where session records live
type StorageConfig struct {
	// Backend is "file" (JSON per conversation) or "sqlite"
	Backend string `mapstructure:"backend"`

	// Dir holds records. Empty uses {ConfigDir}/conversations.
	Dir string `mapstructure:"dir"`
}

// MergeConfig provides defaults for the merge coordinator
type MergeConfig struct {
	// Confirm asks before applying a proposal (default: false)
	Confirm bool `mapstructure:"confirm"`

	// CommitMessage is the template for merge commits. "{member}" and
	// "{session}" are substituted.
	CommitMessage string `mapstructure:"commit_message"`

	// PatchDir keeps conflicting patches for manual resolution
	// (default: ".council/patches")
	PatchDir string `mapstructure:"patch_dir"`
}

// LoggingConfig controls debug logging
type LoggingConfig struct {
	// Enabled writes a JSON debug log and per-member transcripts
	Enabled bool `mapstructure:"enabled"`

	// Level is one of debug, info, warn, error (default: info)
	Level string `mapstructure:"level"`

	// Dir holds logs. Empty uses {ConfigDir}/logs.
	Dir string `mapstructure:"dir"`

	// MaxSizeMB rotates debug.log past this size; 0 disables (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`

	// MaxBackups is the number of rotated logs kept (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// DashboardConfig controls the live terminal view
type DashboardConfig struct {
	// Enabled shows the dashboard by default when stdout is a terminal
	Enabled bool `mapstructure:"enabled"`

	// Theme is a built-in theme name or a path to a YAML theme file
	Theme string `mapstructure:"theme"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Council: CouncilConfig{
			Members:       []string{},
			Chairman:      "",
			TitleModel:    "",
			HistoryRounds: 3,
		},
		Timeouts: TimeoutConfig{
			InvocationSeconds: 300,
			ChairmanSeconds:   300,
			SessionMinutes:    30,
		},
		Backend: BackendConfig{
			Provider:       "opencode",
			BaseURL:        "",
			APIKeyEnv:      "OPENROUTER_API_KEY",
			UseKeyring:     true,
			MaxConcurrency: 0,
			Process: ProcessConfig{
				Command:             "opencode",
				Args:                []string{"run"},
				ModelFlag:           "-m",
				PromptFileFlag:      "-f",
				PromptFileThreshold: 6000,
			},
		},
		Workspace: WorkspaceConfig{
			Dir:          filepath.Join(".council", "worktrees"),
			BranchPrefix: "council",
			Untracked: UntrackedConfig{
				Include: []string{},
				Exclude: []string{".council/**", ".env"},
			},
		},
		Storage: StorageConfig{
			Backend: "file",
			Dir:     "",
		},
		Merge: MergeConfig{
			Confirm:       false,
			CommitMessage: "Apply council proposal from {member} (session {session})",
			PatchDir:      filepath.Join(".council", "patches"),
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Dashboard: DashboardConfig{
			Enabled: false,
			Theme:   "default",
		},
	}
}

// InvocationTimeout returns the per-member timeout as a time.Duration
func (c *TimeoutConfig) InvocationTimeout() time.Duration {
	return time.Duration(c.InvocationSeconds) * time.Second
}

// ChairmanTimeout returns the stage 3 timeout as a time.Duration
func (c *TimeoutConfig) ChairmanTimeout() time.Duration {
	return time.Duration(c.ChairmanSeconds) * time.Second
}

// SessionTimeout returns the session timeout (0 means disabled)
func (c *TimeoutConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionMinutes) * time.Minute
}

// ResolveStorageDir returns the record directory, defaulting under ConfigDir
func (s *StorageConfig) ResolveStorageDir() string {
	if s.Dir != "" {
		return expandHome(s.Dir)
	}
	return filepath.Join(ConfigDir(), "conversations")
}

// ResolveLogDir returns the log directory, defaulting under ConfigDir
func (l *LoggingConfig) ResolveLogDir() string {
	if l.Dir != "" {
		return expandHome(l.Dir)
	}
	return filepath.Join(ConfigDir(), "logs")
}

// ResolveWorktreeDir returns the worktree directory for a repository
func (w *WorkspaceConfig) ResolveWorktreeDir(repoDir string) string {
	dir := expandHome(w.Dir)
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(repoDir, dir)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Council defaults
	viper.SetDefault("council.members", defaults.Council.Members)
	viper.SetDefault("council.chairman", defaults.Council.Chairman)
	viper.SetDefault("council.title_model", defaults.Council.TitleModel)
	viper.SetDefault("council.history_rounds", defaults.Council.HistoryRounds)

	// Timeout defaults
	viper.SetDefault("timeouts.invocation_seconds", defaults.Timeouts.InvocationSeconds)
	viper.SetDefault("timeouts.chairman_seconds", defaults.Timeouts.ChairmanSeconds)
	viper.SetDefault("timeouts.session_minutes", defaults.Timeouts.SessionMinutes)

	// Backend defaults
	viper.SetDefault("backend.provider", defaults.Backend.Provider)
	viper.SetDefault("backend.base_url", defaults.Backend.BaseURL)
	viper.SetDefault("backend.api_key_env", defaults.Backend.APIKeyEnv)
	viper.SetDefault("backend.use_keyring", defaults.Backend.UseKeyring)
	viper.SetDefault("backend.max_concurrency", defaults.Backend.MaxConcurrency)
	viper.SetDefault("backend.process.command", defaults.Backend.Process.Command)
	viper.SetDefault("backend.process.args", defaults.Backend.Process.Args)
	viper.SetDefault("backend.process.model_flag", defaults.Backend.Process.ModelFlag)
	viper.SetDefault("backend.process.prompt_file_flag", defaults.Backend.Process.PromptFileFlag)
	viper.SetDefault("backend.process.prompt_file_threshold", defaults.Backend.Process.PromptFileThreshold)

	// Workspace defaults
	viper.SetDefault("workspace.dir", defaults.Workspace.Dir)
	viper.SetDefault("workspace.branch_prefix", defaults.Workspace.BranchPrefix)
	viper.SetDefault("workspace.untracked.include", defaults.Workspace.Untracked.Include)
	viper.SetDefault("workspace.untracked.exclude", defaults.Workspace.Untracked.Exclude)

	// Storage defaults
	viper.SetDefault("storage.backend", defaults.Storage.Backend)
	viper.SetDefault("storage.dir", defaults.Storage.Dir)

	// Merge defaults
	viper.SetDefault("merge.confirm", defaults.Merge.Confirm)
	viper.SetDefault("merge.commit_message", defaults.Merge.CommitMessage)
	viper.SetDefault("merge.patch_dir", defaults.Merge.PatchDir)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Dashboard defaults
	viper.SetDefault("dashboard.enabled", defaults.Dashboard.Enabled)
	viper.SetDefault("dashboard.theme", defaults.Dashboard.Theme)
}

// BindLegacyEnv maps the historical .env variable names onto config keys.
// COUNCIL_MODELS and CHAIRMAN_MODEL predate the COUNCIL_ prefix scheme.
func BindLegacyEnv() {
	_ = viper.BindEnv("council.members", "COUNCIL_COUNCIL_MEMBERS", "COUNCIL_MODELS")
	_ = viper.BindEnv("council.chairman", "COUNCIL_COUNCIL_CHAIRMAN", "CHAIRMAN_MODEL")
	_ = viper.BindEnv("council.title_model", "COUNCIL_COUNCIL_TITLE_MODEL", "TITLE_MODEL")
}

// LoadDotEnv loads KEY=VALUE pairs from {dir}/.env into the process
// environment. Variables already set are not overridden. A missing file is
// not an error.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Council.Members = splitMembers(cfg.Council.Members)

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// splitMembers normalizes a roster that may have arrived as one
// comma-separated string (from the environment) into trimmed identifiers.
func splitMembers(members []string) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		for _, part := range strings.Split(m, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "council")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".council"
	}
	return filepath.Join(home, ".config", "council")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidProviders returns the list of valid backend providers
func ValidProviders() []string {
	return []string{"opencode", "openrouter", "openai", "anthropic"}
}

// ValidStorageBackends returns the list of valid storage backends
func ValidStorageBackends() []string {
	return []string{"file", "sqlite"}
}
