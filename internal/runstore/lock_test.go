package runstore

import (
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireLock_BlocksConcurrentAcquire(t *testing.T) {
	dataDir := t.TempDir()

	lock, err := AcquireLock(dataDir, "watch", "watch job-1", DefaultLockTTL)
	if err != nil {
		t.Fatalf("acquire first lock: %v", err)
	}
	defer func() {
		_ = lock.Release()
	}()

	if _, err := AcquireLock(dataDir, "watch", "watch job-2", DefaultLockTTL); err == nil {
		t.Fatalf("expected second acquire to fail")
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("release lock: %v", err)
	}

	lock2, err := AcquireLock(dataDir, "watch", "watch job-2", DefaultLockTTL)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := lock2.Release(); err != nil {
		t.Fatalf("release second lock: %v", err)
	}
}

func TestAcquireLock_BreaksExpiredOwner(t *testing.T) {
	dataDir := t.TempDir()
	lockDir := filepath.Join(dataDir, ".watch.lock")
	if err := Mkdir(lockDir); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	stale := lockOwner{PID: 99999, CreatedAt: time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC3339)}
	if err := WriteJSON(filepath.Join(lockDir, lockOwnerFile), stale); err != nil {
		t.Fatalf("write owner: %v", err)
	}

	lock, err := AcquireLock(dataDir, "watch", "", DefaultLockTTL)
	if err != nil {
		t.Fatalf("expected stale lock to be broken: %v", err)
	}
	_ = lock.Release()
}

func TestAcquireLock_UnreadableOwnerCountsAsHeld(t *testing.T) {
	dataDir := t.TempDir()
	if err := Mkdir(filepath.Join(dataDir, ".watch.lock")); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := AcquireLock(dataDir, "watch", "", DefaultLockTTL); err == nil {
		t.Fatalf("expected lock without owner record to be held")
	}
}
