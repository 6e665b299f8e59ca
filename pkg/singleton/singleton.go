// Package singleton implements the Singleton Lock (C9): a file-based
// advisory lock so only one process on the host runs the background
// loops, while every process remains a live API server regardless of
// whether it holds the lock.
package singleton

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FileLock wraps a non-blocking flock(2) advisory lock. No pack example
// implements single-host process locking, and stdlib + golang.org/x/sys
// is the standard Go idiom for flock — there is no third-party advisory
// lock library in the example pack to prefer over it.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock builds a lock bound to path, without acquiring it.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// TryAcquire attempts a non-blocking acquisition. It returns (true, nil)
// if the lock was obtained, (false, nil) if another process holds it, and
// a non-nil error only on unexpected I/O failure.
func (l *FileLock) TryAcquire() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return false, fmt.Errorf("opening lock file %s: %w", l.path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return false, nil
		}
		return false, fmt.Errorf("flock %s: %w", l.path, err)
	}

	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteString(fmt.Sprintf("%d\n", os.Getpid()))
	}

	l.file = f
	return true, nil
}

// Release unlocks and closes the lock file. Safe to call even if
// TryAcquire never succeeded.
func (l *FileLock) Release() error {
	if l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return err
	}
	return closeErr
}
