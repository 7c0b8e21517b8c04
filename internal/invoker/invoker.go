// Package invoker sends prompts to council members and captures the
// outcome. Every call returns a Result: model refusals, process crashes,
// network errors, and timeouts all become failed Results carrying a
// diagnostic, so one member's failure never aborts its siblings.
package invoker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/council/internal/errors"
	"github.com/Iron-Ham/council/internal/logging"
)

// DefaultTimeout bounds a single invocation when none is configured.
const DefaultTimeout = 5 * time.Minute

// Request is one prompt addressed to one member.
type Request struct {
	MemberID string
	Prompt   string
	// System is an optional system prompt for chat backends.
	System string
	// WorkDir is set in code mode: the member's isolated workspace.
	WorkDir string
	// Stage tags logs, transcripts, and errors ("stage1", "stage2", ...).
	Stage string
	// Timeout overrides the client default for this call when positive.
	Timeout time.Duration
}

// Result is the captured outcome of one invocation.
type Result struct {
	MemberID string
	Content  string
	Success  bool
	// Error is a human-readable diagnostic when Success is false.
	Error    string
	TimedOut bool
	Duration time.Duration
	// Err is the typed failure (*errors.InvocationError) when Success is false.
	Err error
}

// Backend reaches a model. Implementations return the model's text or an
// error; they do not need to handle timeouts beyond honoring ctx.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Invoker is the uniform contract the engine depends on.
type Invoker interface {
	Invoke(ctx context.Context, req Request) Result
}

// Router picks the backend for a request.
type Router interface {
	Route(req Request) (Backend, error)
}

// RouterFunc adapts a function to Router.
type RouterFunc func(req Request) (Backend, error)

// Route implements Router.
func (f RouterFunc) Route(req Request) (Backend, error) { return f(req) }

// Static routes every request to one backend.
func Static(b Backend) Router {
	return RouterFunc(func(Request) (Backend, error) { return b, nil })
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the default per-invocation timeout.
// A zero or negative value is replaced with DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLimiter bounds concurrent in-flight invocations.
func WithLimiter(l *Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithLogger sets the logger. Transcripts are written next to its log file.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client implements Invoker on top of a Router.
type Client struct {
	router  Router
	timeout time.Duration
	limiter *Limiter
	logger  *logging.Logger
}

var _ Invoker = (*Client)(nil)

// New creates a Client.
func New(router Router, opts ...Option) *Client {
	c := &Client{
		router:  router,
		timeout: DefaultTimeout,
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke sends the request and always returns a Result. It never panics on
// backend failure and returns within the timeout (plus the time spent
// waiting for a concurrency slot, which is bounded by ctx).
func (c *Client) Invoke(ctx context.Context, req Request) Result {
	start := time.Now()
	log := c.logger.WithMember(req.MemberID)
	if req.Stage != "" {
		log = log.WithPhase(req.Stage)
	}

	fail := func(cause error, timedOut bool) Result {
		invErr := errors.NewInvocationError("invocation failed", cause).
			WithMember(req.MemberID).
			WithStage(req.Stage).
			WithTimeout(timedOut).
			WithRetryable(!errors.Is(cause, errors.ErrEmptyPrompt))
		res := Result{
			MemberID: req.MemberID,
			Success:  false,
			Error:    diagnostic(cause, timedOut),
			TimedOut: timedOut,
			Duration: time.Since(start),
			Err:      invErr,
		}
		log.Warn("invocation failed",
			"error", res.Error,
			"timed_out", timedOut,
			"duration_ms", res.Duration.Milliseconds(),
		)
		_ = c.logger.Transcript(req.MemberID).Record(req.Stage, req.Prompt, res.Error, false, res.Duration)
		return res
	}

	if strings.TrimSpace(req.Prompt) == "" {
		return fail(errors.ErrEmptyPrompt, false)
	}

	backend, err := c.router.Route(req)
	if err != nil {
		return fail(err, false)
	}

	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Acquire(callCtx); err != nil {
			return fail(err, callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil)
		}
		defer c.limiter.Release()
	}

	log.Debug("invoking member",
		"backend", backend.Name(),
		"prompt_chars", len(req.Prompt),
		"workdir", req.WorkDir,
	)

	content, err := backend.Complete(callCtx, req)
	if err != nil {
		timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		if timedOut {
			err = errors.NewTimeoutError(fmt.Sprintf("%s invocation", req.MemberID), timeout).WithCause(err)
		}
		return fail(err, timedOut)
	}
	if strings.TrimSpace(content) == "" {
		return fail(fmt.Errorf("%s returned an empty response", backend.Name()), false)
	}

	res := Result{
		MemberID: req.MemberID,
		Content:  strings.TrimSpace(content),
		Success:  true,
		Duration: time.Since(start),
	}
	log.Info("invocation completed",
		"backend", backend.Name(),
		"response_chars", len(res.Content),
		"duration_ms", res.Duration.Milliseconds(),
	)
	_ = c.logger.Transcript(req.MemberID).Record(req.Stage, req.Prompt, res.Content, true, res.Duration)
	return res
}

func diagnostic(err error, timedOut bool) string {
	if err == nil {
		return "unknown failure"
	}
	if timedOut {
		return "timed out: " + err.Error()
	}
	return err.Error()
}
