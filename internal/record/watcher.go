package record

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of filesystem events into one change.
const DefaultDebounce = 100 * time.Millisecond

// Watchable is implemented by stores whose writes land in one directory.
type Watchable interface {
	WatchDir() string
}

// WatchDir implements Watchable.
func (fs *FileStore) WatchDir() string { return fs.SessionsDir() }

// WatchDir implements Watchable. SQLite writes touch the database and its
// WAL file, both of which live here.
func (s *SQLiteStore) WatchDir() string { return filepath.Dir(s.path) }

// Watcher reports when new records may have been written to a store.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	changes  chan struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewWatcher starts watching dir. Changes are delivered on Changes(); a
// pending notification is never duplicated, so slow readers see one
// signal for many writes.
func NewWatcher(dir string, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		watcher:  fw,
		debounce: debounce,
		changes:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Changes delivers one value per debounced burst of writes.
func (w *Watcher) Changes() <-chan struct{} { return w.changes }

// Wait blocks until the next change, ctx is done, or the watcher stops.
// It reports whether a change was observed.
func (w *Watcher) Wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case _, ok := <-w.changes:
		return ok
	}
}

// Stop closes the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
		<-w.done
	})
}

func (w *Watcher) loop() {
	defer close(w.done)
	defer close(w.changes)

	timer := time.NewTimer(0)
	<-timer.C
	pending := false

	for {
		select {
		case <-w.stopCh:
			timer.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = true
			timer.Reset(w.debounce)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			select {
			case w.changes <- struct{}{}:
			default:
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Watch opens a Watcher on a store that supports it.
func Watch(store Store) (*Watcher, error) {
	ws, ok := store.(Watchable)
	if !ok {
		return nil, ErrNotWatchable
	}
	return NewWatcher(ws.WatchDir(), DefaultDebounce)
}
