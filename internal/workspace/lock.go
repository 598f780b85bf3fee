package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrLocked means another run holds the workspace.
var ErrLocked = errors.New("workspace is locked by another run")

// Lock is an exclusive advisory lock on the status area.
type Lock struct {
	f *os.File
}

// Lock acquires the workspace lock without blocking.
func (l Layout) Lock() (*Lock, error) {
	if err := os.MkdirAll(l.Status, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dir %s: %w", l.Status, err)
	}
	lockPath := filepath.Join(l.Status, ".lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w (%s)", ErrLocked, lockPath)
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return &Lock{f: f}, nil
}

// Release drops the lock.
func (lk *Lock) Release() error {
	if lk == nil || lk.f == nil {
		return nil
	}
	defer func() { lk.f = nil }()
	_ = unix.Flock(int(lk.f.Fd()), unix.LOCK_UN)
	return lk.f.Close()
}
