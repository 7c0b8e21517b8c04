package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Iron-Ham/council/internal/errors"
	"github.com/Iron-Ham/council/internal/testutil"
)

func setupRepoOrSkip(t *testing.T) string {
	t.Helper()
	return testutil.SetupTestRepo(t)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func TestAcquireLock(t *testing.T) {
	repo := t.TempDir()

	lock, err := AcquireLock(repo, "s1", nil)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if lock.PID != os.Getpid() {
		t.Errorf("PID = %d", lock.PID)
	}

	if _, err := AcquireLock(repo, "s2", nil); !errors.Is(err, errors.ErrRepositoryLocked) {
		t.Fatalf("second AcquireLock error = %v, want ErrRepositoryLocked", err)
	}
	if held, locked := IsLocked(repo); !locked || held.SessionID != "s1" {
		t.Errorf("IsLocked() = %+v, %v", held, locked)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if _, locked := IsLocked(repo); locked {
		t.Error("lock still held after Release")
	}

	again, err := AcquireLock(repo, "s3", nil)
	if err != nil {
		t.Fatalf("AcquireLock after release: %v", err)
	}
	_ = again.Release()
}

func TestAcquireLock_StaleLockReplaced(t *testing.T) {
	repo := t.TempDir()
	path := LockPath(repo)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	// PID far above any real process id
	data, _ := json.Marshal(RepoLock{SessionID: "dead", PID: 1 << 30})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	lock, err := AcquireLock(repo, "fresh", nil)
	if err != nil {
		t.Fatalf("AcquireLock over stale lock: %v", err)
	}
	defer func() { _ = lock.Release() }()
	if lock.SessionID != "fresh" {
		t.Errorf("SessionID = %q", lock.SessionID)
	}
}

func TestRelease_DoesNotRemoveForeignLock(t *testing.T) {
	repo := t.TempDir()
	lock, err := AcquireLock(repo, "mine", nil)
	if err != nil {
		t.Fatal(err)
	}

	// Another session replaced the file
	data, _ := json.Marshal(RepoLock{SessionID: "theirs", PID: os.Getpid()})
	if err := os.WriteFile(LockPath(repo), data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(LockPath(repo)); err != nil {
		t.Error("foreign lock was removed")
	}
}
