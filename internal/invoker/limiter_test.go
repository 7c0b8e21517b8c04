package invoker

import (
	"context"
	"os"
	"testing"
	"time"
)

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	return string(b), err
}

func TestLimiter_AcquireRelease(t *testing.T) {
	l := NewLimiter(2)
	ctx := context.Background()

	for range 2 {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire: %v", err)
		}
	}
	if l.Acquired() != 2 {
		t.Errorf("Acquired() = %d, want 2", l.Acquired())
	}

	l.Release()
	l.Release()
	l.Release() // extra release is a no-op
	if l.Acquired() != 0 {
		t.Errorf("Acquired() = %d, want 0", l.Acquired())
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(-3)
	if l.Limit() != 0 {
		t.Errorf("Limit() = %d, want 0", l.Limit())
	}
	for range 50 {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire: %v", err)
		}
	}
}

func TestLimiter_BlocksUntilRelease(t *testing.T) {
	l := NewLimiter(1)
	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	acquired := make(chan struct{})
	go func() {
		_ = l.Acquire(ctx)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire should block")
	case <-time.After(30 * time.Millisecond):
	}

	l.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Acquire did not unblock after Release")
	}
}

func TestLimiter_ContextCancel(t *testing.T) {
	l := NewLimiter(1)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx); err == nil {
		t.Fatal("Acquire should fail when the context expires")
	}
	if l.Acquired() != 1 {
		t.Errorf("failed Acquire must not take a slot: Acquired() = %d", l.Acquired())
	}
}

func TestLimiter_SetLimitWakesWaiters(t *testing.T) {
	l := NewLimiter(1)
	ctx := context.Background()
	_ = l.Acquire(ctx)

	acquired := make(chan struct{})
	go func() {
		_ = l.Acquire(ctx)
		close(acquired)
	}()

	time.Sleep(10 * time.Millisecond)
	l.SetLimit(2)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("raising the limit should unblock waiters")
	}
}
