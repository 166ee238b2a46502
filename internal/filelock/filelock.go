// Package filelock provides cross-process file locking and atomic write
// operations. The memory store uses it to guard its database against
// concurrent agent processes; report writers use it for safe exports.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock wraps a flock advisory lock for coordinating access to a file.
type Lock struct {
	flock *flock.Flock
	path  string
}

// New creates a lock for the given path. The lock file is created on first
// acquisition.
func New(path string) *Lock {
	return &Lock{
		flock: flock.New(path),
		path:  path,
	}
}

// Acquire takes an exclusive lock, blocking until it is available.
func (l *Lock) Acquire() error {
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}
	return nil
}

// TryAcquire attempts an exclusive lock without blocking. Returns true if
// the lock was taken, false if another process holds it.
func (l *Lock) TryAcquire() (bool, error) {
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to try lock on %s: %w", l.path, err)
	}
	return acquired, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// WithLock runs fn while holding an exclusive lock on lockPath.
func WithLock(lockPath string, fn func() error) error {
	lock := New(lockPath)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}

// AtomicWrite writes data to a file via a temp file and rename so readers
// never observe partial writes. The temp file lives in the target's
// directory, keeping the rename on one filesystem where it is atomic.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}

	tempFile = nil
	return nil
}

// LockAndWrite acquires the lock derived from path (path + ".lock"),
// performs an atomic write, and releases the lock.
func LockAndWrite(path string, data []byte) error {
	return WithLock(path+".lock", func() error {
		return AtomicWrite(path, data)
	})
}
