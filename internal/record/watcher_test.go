package record

import (
	"context"
	"testing"
	"time"
)

func TestWatcher_SignalsOnSave(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	createConversation(t, s, "conv-1")

	w, err := Watch(s)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Stop()

	if err := s.Save(context.Background(), sampleRecord("conv-1", 0, "q")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !w.Wait(ctx) {
		t.Fatal("expected a change notification after Save")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.Stop()
	w.Stop()

	if w.Wait(context.Background()) {
		t.Error("Wait() after Stop should report no change")
	}
}

func TestWatcher_WaitHonorsContext(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if w.Wait(ctx) {
		t.Error("Wait() without writes should time out")
	}
}

type memoryStore struct{ Store }

func TestWatch_UnsupportedStore(t *testing.T) {
	if _, err := Watch(memoryStore{}); err != ErrNotWatchable {
		t.Errorf("Watch() error = %v, want ErrNotWatchable", err)
	}
}
