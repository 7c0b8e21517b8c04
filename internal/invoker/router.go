package invoker

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/council/internal/config"
	"github.com/Iron-Ham/council/internal/errors"
)

// Provider names accepted in backend.provider.
const (
	// ProviderOpencode sends text calls through the process backend too,
	// so no API key is needed.
	ProviderOpencode   = "opencode"
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
)

// ErrUnknownProvider is returned when the configured provider is unsupported.
var ErrUnknownProvider = fmt.Errorf("unknown provider")

// ModeRouter sends requests with a WorkDir (code mode) to the process
// backend and everything else to the text backend, which is the process
// backend itself for the opencode provider.
type ModeRouter struct {
	Text Backend
	Code Backend
	// TextErr explains why Text is nil, usually a missing API key.
	TextErr error
}

var _ Router = (*ModeRouter)(nil)

// Route implements Router.
func (r *ModeRouter) Route(req Request) (Backend, error) {
	if req.WorkDir != "" {
		if r.Code == nil {
			return nil, fmt.Errorf("%w: code mode", errors.ErrNoBackend)
		}
		return r.Code, nil
	}
	if r.Text == nil {
		if r.TextErr != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrNoBackend, r.TextErr)
		}
		return nil, fmt.Errorf("%w: text mode", errors.ErrNoBackend)
	}
	return r.Text, nil
}

// NewFromConfig builds the router from configuration. With an HTTP
// provider a missing API key is not an error here; it is reported by the
// first request that needs the text backend.
func NewFromConfig(cfg *config.Config, keys KeySource) (*ModeRouter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("missing config")
	}
	if keys == nil {
		keys = DefaultKeySource(cfg)
	}

	proc := cfg.Backend.Process
	code := &ProcessBackend{
		Command:             proc.Command,
		Args:                append([]string{}, proc.Args...),
		ModelFlag:           proc.ModelFlag,
		PromptFileFlag:      proc.PromptFileFlag,
		PromptFileThreshold: proc.PromptFileThreshold,
		Runner:              ExecRunner{},
	}
	router := &ModeRouter{Code: code}

	provider := strings.ToLower(cfg.Backend.Provider)
	if provider == ProviderOpencode {
		router.Text = code
		return router, nil
	}
	key, keyErr := keys.Lookup(provider)

	switch provider {
	case ProviderOpenRouter, "":
		baseURL := cfg.Backend.BaseURL
		if baseURL == "" {
			baseURL = OpenRouterBaseURL
		}
		if keyErr == nil {
			router.Text = NewOpenAIBackend(ProviderOpenRouter, key, baseURL)
		}
	case ProviderOpenAI:
		if keyErr == nil {
			router.Text = NewOpenAIBackend(ProviderOpenAI, key, cfg.Backend.BaseURL)
		}
	case ProviderAnthropic:
		if keyErr == nil {
			router.Text = NewAnthropicBackend(key, cfg.Backend.BaseURL)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Backend.Provider)
	}
	router.TextErr = keyErr
	return router, nil
}

// DefaultKeySource reads the configured environment variable, then the OS
// keyring when enabled.
func DefaultKeySource(cfg *config.Config) KeySource {
	chain := ChainKeySource{EnvKeySource{Var: cfg.Backend.APIKeyEnv}}
	if cfg.Backend.UseKeyring {
		chain = append(chain, KeyringKeySource{})
	}
	return chain
}

// ClientFromConfig wires a Client with the configured timeout and
// concurrency cap.
func ClientFromConfig(cfg *config.Config, router Router, opts ...Option) *Client {
	base := []Option{
		WithTimeout(cfg.Timeouts.InvocationTimeout()),
		WithLimiter(NewLimiter(cfg.Backend.MaxConcurrency)),
	}
	return New(router, append(base, opts...)...)
}
