package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Iron-Ham/council/internal/errors"
	"github.com/Iron-Ham/council/internal/logging"
)

// LockFileName is the lock file inside the repository's .council directory.
const LockFileName = "council.lock"

// RepoLock marks a repository as having an active session. Concurrent
// sessions against one shared tree are not supported.
type RepoLock struct {
	SessionID string    `json:"session_id"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	lockFile string
	logger   *logging.Logger
}

// LockPath returns the lock file path for a repository root.
func LockPath(repoDir string) string {
	return filepath.Join(repoDir, ".council", LockFileName)
}

// AcquireLock takes the repository lock for a session. A lock held by a
// process that is no longer running is treated as stale and replaced.
func AcquireLock(repoDir, sessionID string, logger *logging.Logger) (*RepoLock, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	lockPath := LockPath(repoDir)

	if existing, err := ReadLock(lockPath); err == nil {
		if isProcessAlive(existing.PID) {
			logger.Error("failed to acquire repository lock",
				"session_id", sessionID,
				"holder", existing.SessionID,
				"pid", existing.PID,
			)
			return nil, lockedError(existing)
		}
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		logger.Warn("stale lock cleaned", "session_id", existing.SessionID, "old_pid", existing.PID)
	}

	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	lock := &RepoLock{
		SessionID: sessionID,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		lockFile:  lockPath,
		logger:    logger,
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	// O_EXCL fails if another process created the file since the check
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			if existing, readErr := ReadLock(lockPath); readErr == nil {
				return nil, lockedError(existing)
			}
			return nil, errors.ErrRepositoryLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		_ = os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	logger.Debug("repository lock acquired", "session_id", sessionID, "pid", lock.PID)
	return lock, nil
}

func lockedError(l *RepoLock) error {
	return fmt.Errorf("%w: session %s (PID %d on %s)", errors.ErrRepositoryLocked, l.SessionID, l.PID, l.Hostname)
}

// Release removes the lock file if this process owns it. Safe to call
// multiple times.
func (l *RepoLock) Release() error {
	if l == nil || l.lockFile == "" {
		return nil
	}
	existing, err := ReadLock(l.lockFile)
	if err != nil || existing.PID != l.PID || existing.SessionID != l.SessionID {
		return nil
	}
	if err := os.Remove(l.lockFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	if l.logger != nil {
		l.logger.Debug("repository lock released", "session_id", l.SessionID)
	}
	return nil
}

// ReadLock reads a lock file.
func ReadLock(lockPath string) (*RepoLock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}
	var lock RepoLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	lock.lockFile = lockPath
	return &lock, nil
}

// IsLocked reports whether a live session holds the repository.
func IsLocked(repoDir string) (*RepoLock, bool) {
	lock, err := ReadLock(LockPath(repoDir))
	if err != nil {
		return nil, false
	}
	return lock, isProcessAlive(lock.PID)
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks existence without affecting the process
	return process.Signal(syscall.Signal(0)) == nil
}
