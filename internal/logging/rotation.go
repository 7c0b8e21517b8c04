package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// RotationConfig bounds the size of debug.log.
type RotationConfig struct {
	// MaxSizeMB rotates the log once it would grow past this size.
	// 0 disables rotation.
	MaxSizeMB int
	// MaxBackups is how many rotated files (debug.log.1 ... debug.log.N)
	// are kept. 0 keeps none.
	MaxBackups int
}

// DefaultRotationConfig keeps up to 40MB of history.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{MaxSizeMB: 10, MaxBackups: 3}
}

// rotatingFile is an append-only log file that shifts itself to numbered
// backups when it grows past its limit.
type rotatingFile struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	backups  int
	file     *os.File
	size     int64
}

func openRotating(path string, cfg RotationConfig) (*rotatingFile, error) {
	r := &rotatingFile{
		path:     path,
		maxBytes: int64(cfg.MaxSizeMB) * 1024 * 1024,
		backups:  cfg.MaxBackups,
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotatingFile) open() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	r.file = f
	r.size = info.Size()
	return nil
}

// Write implements io.Writer. A single write is never split across files.
func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return 0, fmt.Errorf("log file is closed")
	}
	if r.maxBytes > 0 && r.size > 0 && r.size+int64(len(p)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: log rotation failed: %v\n", err)
			if r.file == nil {
				return 0, err
			}
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// rotate must be called with mu held.
func (r *rotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	r.file = nil

	if r.backups <= 0 {
		if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
			return r.reopen(err)
		}
		return r.open()
	}

	_ = os.Remove(backupPath(r.path, r.backups))
	for i := r.backups - 1; i >= 1; i-- {
		_ = os.Rename(backupPath(r.path, i), backupPath(r.path, i+1))
	}
	if err := os.Rename(r.path, backupPath(r.path, 1)); err != nil {
		return r.reopen(err)
	}
	return r.open()
}

// reopen restores the current file after a failed rotation.
func (r *rotatingFile) reopen(cause error) error {
	if err := r.open(); err != nil {
		return fmt.Errorf("rotation failed (%v) and reopen failed: %w", cause, err)
	}
	return fmt.Errorf("rotation failed: %w", cause)
}

// Close syncs and closes the file. It is safe to call more than once.
func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	if err := r.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	err := r.file.Close()
	r.file = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

func backupPath(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}

// LogFiles returns the debug log in dir and its rotated backups that exist,
// oldest first.
func LogFiles(dir string) []string {
	path := filepath.Join(dir, DebugLogName)
	var files []string
	for i := 1; ; i++ {
		if _, err := os.Stat(backupPath(path, i)); err != nil {
			break
		}
		files = append(files, backupPath(path, i))
	}
	// backups are numbered newest first
	slices.Reverse(files)
	if _, err := os.Stat(path); err == nil {
		files = append(files, path)
	}
	return files
}
