package cmd

import (
	"fmt"

	"github.com/gofrs/flock"
)

// InstanceLock wraps the file locking mechanism that keeps only one
// nzbgrabd daemon running against a given state directory at a time.
type InstanceLock struct {
	flock *flock.Flock
}

var instanceLock *InstanceLock

// AcquireLock attempts to acquire the single-instance lock for stateDir.
// Returns true if the lock was acquired (this process is the daemon).
// Returns false if another process already holds it.
func AcquireLock() (bool, error) {
	if err := ensureStateDirs(); err != nil {
		return false, fmt.Errorf("failed to ensure state dirs: %w", err)
	}

	fileLock := flock.New(lockPath())
	locked, err := fileLock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to try lock: %w", err)
	}
	if locked {
		instanceLock = &InstanceLock{flock: fileLock}
		return true, nil
	}
	return false, nil
}

// ReleaseLock releases the lock if this process holds it.
func ReleaseLock() error {
	if instanceLock != nil && instanceLock.flock != nil {
		return instanceLock.flock.Unlock()
	}
	return nil
}

// daemonRunning reports whether another process currently holds the lock,
// without taking ownership of it.
func daemonRunning() bool {
	fileLock := flock.New(lockPath())
	locked, err := fileLock.TryLock()
	if err != nil {
		return false
	}
	if locked {
		fileLock.Unlock()
		return false
	}
	return true
}
