package workspace

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/council/internal/errors"
	"github.com/Iron-Ham/council/internal/logging"
)

// releaseTimeout bounds teardown in ReleaseAll, which runs after the
// session context may already be done.
const releaseTimeout = time.Minute

// Lifecycle creates and destroys workspaces. Manager implements it.
type Lifecycle interface {
	Create(ctx context.Context, sessionID, memberID string) (*Workspace, error)
	Destroy(ctx context.Context, ws *Workspace) error
}

var _ Lifecycle = (*Manager)(nil)

// PoolStats counts lifecycle calls made through a Pool.
type PoolStats struct {
	Created   int
	Destroyed int
	Failed    int
}

// Pool is an arena of workspaces keyed by session and member. Every
// workspace acquired through the pool is destroyed exactly once, either by
// Release or by ReleaseAll, which callers defer on every exit path.
type Pool struct {
	lifecycle Lifecycle
	logger    *logging.Logger

	mu     sync.Mutex
	active map[string]*Workspace
	stats  PoolStats
}

// NewPool creates a pool over a lifecycle.
func NewPool(lifecycle Lifecycle, logger *logging.Logger) *Pool {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Pool{
		lifecycle: lifecycle,
		logger:    logger,
		active:    make(map[string]*Workspace),
	}
}

func poolKey(sessionID, memberID string) string {
	return sessionID + "\x00" + memberID
}

// Acquire allocates a workspace for a member. A member may hold at most
// one workspace per session.
func (p *Pool) Acquire(ctx context.Context, sessionID, memberID string) (*Workspace, error) {
	key := poolKey(sessionID, memberID)

	p.mu.Lock()
	if _, ok := p.active[key]; ok {
		p.mu.Unlock()
		return nil, errors.NewWorkspaceError("member already holds a workspace", errors.ErrWorkspaceExists).
			WithMember(memberID).
			WithOperation("acquire")
	}
	// Reserve the key so concurrent acquires for the same member fail
	p.active[key] = nil
	p.mu.Unlock()

	ws, err := p.lifecycle.Create(ctx, sessionID, memberID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		delete(p.active, key)
		p.stats.Failed++
		return nil, err
	}
	p.active[key] = ws
	p.stats.Created++
	return ws, nil
}

// Release destroys one workspace and forgets it. Releasing a workspace that
// is not held is a no-op.
func (p *Pool) Release(ctx context.Context, ws *Workspace) error {
	if ws == nil {
		return nil
	}
	key := poolKey(ws.SessionID, ws.MemberID)

	p.mu.Lock()
	held, ok := p.active[key]
	if !ok || held != ws {
		p.mu.Unlock()
		return nil
	}
	delete(p.active, key)
	p.stats.Destroyed++
	p.mu.Unlock()

	return p.lifecycle.Destroy(ctx, ws)
}

// ReleaseAll destroys every held workspace. It detaches from ctx's
// cancellation so teardown still runs after a session timeout, bounded by
// its own deadline. Errors are logged and the first is returned.
func (p *Pool) ReleaseAll(ctx context.Context) error {
	p.mu.Lock()
	held := make([]*Workspace, 0, len(p.active))
	for key, ws := range p.active {
		if ws != nil {
			held = append(held, ws)
			delete(p.active, key)
		}
	}
	p.stats.Destroyed += len(held)
	p.mu.Unlock()

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	// Serial: concurrent git worktree and branch edits contend for the
	// same repository locks.
	var firstErr error
	for _, ws := range held {
		if err := p.lifecycle.Destroy(cleanupCtx, ws); err != nil {
			p.logger.Warn("workspace teardown failed", "member", ws.MemberID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Held returns the number of live workspaces.
func (p *Pool) Held() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ws := range p.active {
		if ws != nil {
			n++
		}
	}
	return n
}

// Stats returns a snapshot of lifecycle counts.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
