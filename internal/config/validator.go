package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "timeouts.invocation_seconds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// branchPrefixRegex validates branch prefix characters
var branchPrefixRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_/-]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateCouncil()...)
	errors = append(errors, c.validateTimeouts()...)
	errors = append(errors, c.validateBackend()...)
	errors = append(errors, c.validateWorkspace()...)
	errors = append(errors, c.validateStorage()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateCouncil checks roster shape. An empty roster is allowed here so
// read-only commands work unconfigured; sessions reject it at start.
func (c *Config) validateCouncil() []ValidationError {
	var errors []ValidationError

	seen := make(map[string]bool, len(c.Council.Members))
	for i, m := range c.Council.Members {
		if strings.TrimSpace(m) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("council.members[%d]", i),
				Value:   m,
				Message: "member identifier must not be empty",
			})
			continue
		}
		if seen[m] {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("council.members[%d]", i),
				Value:   m,
				Message: "duplicate member identifier",
			})
		}
		seen[m] = true
	}

	if c.Council.Chairman != "" && seen[c.Council.Chairman] {
		errors = append(errors, ValidationError{
			Field:   "council.chairman",
			Value:   c.Council.Chairman,
			Message: "chairman must not also be a council member",
		})
	}

	if c.Council.HistoryRounds < 0 {
		errors = append(errors, ValidationError{
			Field:   "council.history_rounds",
			Value:   c.Council.HistoryRounds,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateTimeouts() []ValidationError {
	var errors []ValidationError

	if c.Timeouts.InvocationSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "timeouts.invocation_seconds",
			Value:   c.Timeouts.InvocationSeconds,
			Message: "must be positive",
		})
	}
	if c.Timeouts.ChairmanSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "timeouts.chairman_seconds",
			Value:   c.Timeouts.ChairmanSeconds,
			Message: "must be positive",
		})
	}
	if c.Timeouts.SessionMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "timeouts.session_minutes",
			Value:   c.Timeouts.SessionMinutes,
			Message: "must be non-negative (0 disables)",
		})
	}

	return errors
}

func (c *Config) validateBackend() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidProviders(), c.Backend.Provider) {
		errors = append(errors, ValidationError{
			Field:   "backend.provider",
			Value:   c.Backend.Provider,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidProviders(), ", ")),
		})
	}
	if c.Backend.MaxConcurrency < 0 {
		errors = append(errors, ValidationError{
			Field:   "backend.max_concurrency",
			Value:   c.Backend.MaxConcurrency,
			Message: "must be non-negative (0 means unlimited)",
		})
	}
	if strings.TrimSpace(c.Backend.Process.Command) == "" {
		errors = append(errors, ValidationError{
			Field:   "backend.process.command",
			Value:   c.Backend.Process.Command,
			Message: "must not be empty",
		})
	}
	if c.Backend.Process.PromptFileThreshold < 0 {
		errors = append(errors, ValidationError{
			Field:   "backend.process.prompt_file_threshold",
			Value:   c.Backend.Process.PromptFileThreshold,
			Message: "must be non-negative (0 always passes the prompt inline)",
		})
	}

	return errors
}

func (c *Config) validateWorkspace() []ValidationError {
	var errors []ValidationError

	if c.Workspace.Dir == "" {
		errors = append(errors, ValidationError{
			Field:   "workspace.dir",
			Value:   c.Workspace.Dir,
			Message: "must not be empty",
		})
	}
	if !branchPrefixRegex.MatchString(c.Workspace.BranchPrefix) {
		errors = append(errors, ValidationError{
			Field:   "workspace.branch_prefix",
			Value:   c.Workspace.BranchPrefix,
			Message: "must start with a letter and contain only letters, digits, '-', '_' or '/'",
		})
	}

	check := func(field string, patterns []string) {
		for i, p := range patterns {
			if _, err := glob.Compile(p, '/'); err != nil {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("%s[%d]", field, i),
					Value:   p,
					Message: fmt.Sprintf("invalid glob: %v", err),
				})
			}
		}
	}
	check("workspace.untracked.include", c.Workspace.Untracked.Include)
	check("workspace.untracked.exclude", c.Workspace.Untracked.Exclude)

	return errors
}

func (c *Config) validateStorage() []ValidationError {
	if slices.Contains(ValidStorageBackends(), c.Storage.Backend) {
		return nil
	}
	return []ValidationError{{
		Field:   "storage.backend",
		Value:   c.Storage.Backend,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStorageBackends(), ", ")),
	}}
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError
	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}
	return errors
}
