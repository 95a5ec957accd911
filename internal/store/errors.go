package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced conversation, student, or
	// message does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalid is returned for arguments the store refuses before touching
	// the database (negative page, out-of-range pinned index).
	ErrInvalid = errors.New("store: invalid argument")
)

// StorageError wraps a driver-level failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// wrap classifies err for op. Sentinel and already-classified errors pass
// through unchanged; anything else becomes a *StorageError.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalid) || errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func notFound(kind, key string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, key)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
