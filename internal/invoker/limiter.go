package invoker

import (
	"context"
	"sync"
)

// Limiter is a context-aware, resizable cap on in-flight invocations.
//
// A limit of 0 means unlimited and Acquire always succeeds immediately.
// SetLimit adjusts capacity at runtime; blocked callers re-evaluate on
// every broadcast.
type Limiter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	limit    int // 0 = unlimited
	acquired int
}

// NewLimiter creates a limiter. Negative limits are clamped to 0.
func NewLimiter(limit int) *Limiter {
	if limit < 0 {
		limit = 0
	}
	l := &Limiter{limit: limit}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Acquire blocks until a slot is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limit == 0 {
		l.acquired++
		return nil
	}

	// Wake waiters when ctx is cancelled so they can return its error.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.cond.Broadcast()
			l.mu.Unlock()
		case <-done:
		}
	}()

	for l.limit > 0 && l.acquired >= l.limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.acquired++
	return nil
}

// Release frees a slot.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.acquired > 0 {
		l.acquired--
	}
	// Broadcast rather than Signal: a single woken waiter may be one whose
	// context is already done.
	l.cond.Broadcast()
}

// SetLimit adjusts the capacity. Negative values are clamped to 0.
func (l *Limiter) SetLimit(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n < 0 {
		n = 0
	}
	l.limit = n
	l.cond.Broadcast()
}

// Limit returns the current limit (0 = unlimited).
func (l *Limiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// Acquired returns the number of held slots.
func (l *Limiter) Acquired() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquired
}
