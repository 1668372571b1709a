// Package platform holds OS-specific process helpers.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// ErrAlreadyRunning is returned when another process holds the instance lock
var ErrAlreadyRunning = errors.New("another focustrack process is already running")

// LockFileName is the lock file created in the data directory
const LockFileName = "focustrack.lock"

// InstanceLock is an exclusive advisory lock on a file, held for the life of
// the process so that only one process owns the timer state at a time.
type InstanceLock struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// AcquireInstanceLock takes the lock in dir without blocking
func AcquireInstanceLock(dir string) (*InstanceLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	path := filepath.Join(dir, LockFileName)

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(file); err != nil {
		file.Close()
		return nil, err
	}

	// record the owner for diagnostics
	if err := file.Truncate(0); err == nil {
		file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}

	return &InstanceLock{path: path, file: file}, nil
}

// Path returns the lock file path
func (l *InstanceLock) Path() string { return l.path }

// Release unlocks and closes the lock file. It is safe to call more than once.
func (l *InstanceLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	unlockErr := unlockFile(l.file)
	closeErr := l.file.Close()
	l.file = nil
	return errors.Join(unlockErr, closeErr)
}
