package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is the lock file guarding an output root
const LockFileName = ".portal-sync.lock"

// ErrLocked is returned when another process holds the output root
var ErrLocked = errors.New("output root is locked by another process")

// Lock is an exclusive claim on an output root
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes the output root's file lock without blocking
func AcquireLock(outputRoot string) (*Lock, error) {
	if err := os.MkdirAll(outputRoot, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output root %s: %w", outputRoot, err)
	}

	fl := flock.New(filepath.Join(outputRoot, LockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock output root %s: %w", outputRoot, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", outputRoot, ErrLocked)
	}
	return &Lock{fl: fl}, nil
}

// Path returns the lock file path
func (l *Lock) Path() string {
	return l.fl.Path()
}

// Release unlocks the output root
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
