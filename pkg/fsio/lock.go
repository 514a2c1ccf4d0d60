package fsio

import (
	"fmt"

	"github.com/gofrs/flock"
)

// WriterLock is an advisory, process-wide file lock that enforces the
// single-writer discipline spec §5 requires across process restarts: two
// graphd processes pointed at the same data directory must not both think
// they hold the writer lock.
type WriterLock struct {
	fl *flock.Flock
}

// NewWriterLock returns a lock backed by the file at path (conventionally
// "<data_dir>/.writer.lock"). The file is created if it doesn't exist.
func NewWriterLock(path string) *WriterLock {
	return &WriterLock{fl: flock.New(path)}
}

// TryLock attempts to acquire the lock without blocking. It returns false,
// nil if another process already holds it.
func (w *WriterLock) TryLock() (bool, error) {
	ok, err := w.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("fsio: acquire writer lock: %w", err)
	}
	return ok, nil
}

// Unlock releases the lock.
func (w *WriterLock) Unlock() error {
	return w.fl.Unlock()
}
