package run

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Lock guards the data directory between executing runs and prune.
// Runs hold it shared; prune needs it exclusive.
type Lock struct {
	file *os.File
}

func openLockFile(dataDir string) (*os.File, error) {
	locksDir := filepath.Join(dataDir, "locks")
	if err := os.MkdirAll(locksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create locks dir: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(locksDir, "runs.lock"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return file, nil
}

// AcquireShared takes the lock in shared mode, blocking while prune holds it.
func AcquireShared(dataDir string) (*Lock, error) {
	file, err := openLockFile(dataDir)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_SH); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("lock runs.lock: %w", err)
	}
	return &Lock{file: file}, nil
}

// TryAcquireExclusive attempts to take the lock exclusively without blocking.
// It reports false while any run holds the lock.
func TryAcquireExclusive(dataDir string) (*Lock, bool, error) {
	file, err := openLockFile(dataDir)
	if err != nil {
		return nil, false, err
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		return nil, false, nil
	}
	return &Lock{file: file}, true, nil
}

// Release releases the lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}
