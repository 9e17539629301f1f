package runstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	lockOwnerFile = "owner.json"

	// DefaultLockTTL bounds how long a crashed owner can block the data dir.
	DefaultLockTTL = 12 * time.Hour
)

// Lock is a directory-based advisory lock inside the data dir.
type Lock struct {
	lockDir string
}

type lockOwner struct {
	PID       int    `json:"pid"`
	Purpose   string `json:"purpose,omitempty"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// AcquireLock takes the lock named name in dataDir. An existing lock whose
// owner record is older than ttl is broken and re-taken.
func AcquireLock(dataDir, name, purpose string, ttl time.Duration) (Lock, error) {
	target := strings.TrimSpace(dataDir)
	if target == "" {
		return Lock{}, fmt.Errorf("data directory is required")
	}
	if strings.TrimSpace(name) == "" {
		return Lock{}, fmt.Errorf("lock name is required")
	}
	if err := Mkdir(target); err != nil {
		return Lock{}, err
	}

	lockDir := filepath.Join(target, "."+name+".lock")
	ownerPath := filepath.Join(lockDir, lockOwnerFile)
	if err := os.Mkdir(lockDir, defaultDirMode); err != nil {
		if !os.IsExist(err) {
			return Lock{}, fmt.Errorf("acquire %s lock in %s: %w", name, target, err)
		}
		var owner lockOwner
		if err := ReadJSON(ownerPath, &owner); err != nil {
			return Lock{}, fmt.Errorf("%s lock is held: %s", name, target)
		}
		if !ownerExpired(owner, ttl) {
			return Lock{}, fmt.Errorf(
				"%s lock is held: %s (pid=%d purpose=%s created_at=%s host=%s)",
				name, target, owner.PID, owner.Purpose, owner.CreatedAt, owner.Hostname,
			)
		}
		_ = os.Remove(ownerPath)
		if err := os.Remove(lockDir); err != nil && !os.IsNotExist(err) {
			return Lock{}, fmt.Errorf("break stale %s lock in %s: %w", name, target, err)
		}
		if err := os.Mkdir(lockDir, defaultDirMode); err != nil {
			return Lock{}, fmt.Errorf("acquire %s lock in %s: %w", name, target, err)
		}
	}

	owner := lockOwner{
		PID:       os.Getpid(),
		Purpose:   purpose,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := WriteJSON(ownerPath, owner); err != nil {
		_ = os.Remove(lockDir)
		return Lock{}, fmt.Errorf("write %s lock owner in %s: %w", name, target, err)
	}
	return Lock{lockDir: lockDir}, nil
}

// An unreadable owner record counts as held: another acquirer may be
// between mkdir and writing owner.json.
func ownerExpired(owner lockOwner, ttl time.Duration) bool {
	if ttl <= 0 || owner.CreatedAt == "" {
		return false
	}
	created, err := time.Parse(time.RFC3339, owner.CreatedAt)
	if err != nil {
		return false
	}
	return time.Since(created) > ttl
}

func (l Lock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, lockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", l.lockDir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
