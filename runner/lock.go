package runner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another run holds the run lock.
var ErrLocked = errors.New("another run is in progress")

const lockFile = "opsmail.lock"

// Lock is the run lock of a state directory. Take it before the ledger is
// loaded and hold it until every kind has run.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes the run lock in stateDir without waiting.
func AcquireLock(stateDir string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	fl := flock.New(filepath.Join(stateDir, lockFile))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("run lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}
	return &Lock{fl: fl}, nil
}

// Close releases the lock.
func (l *Lock) Close() error {
	return l.fl.Unlock()
}
