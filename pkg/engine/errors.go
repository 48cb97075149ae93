package engine

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")
	// ErrCorruption reports a stored record that failed validation.
	ErrCorruption = errors.New("data corruption detected")
	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("invalid key")
	// ErrUnknownColumnFamily is returned for column families the engine
	// was not opened with.
	ErrUnknownColumnFamily = errors.New("unknown column family")
)

// Error is the failure type returned by every engine operation.
type Error struct {
	Op      string // "get", "put", "delete", "open" or "close"
	Backend string
	Key     []byte
	Err     error
}

// NewError wraps err, unless it is nil or already an *Error.
func NewError(op, backend string, key []byte, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Op: op, Backend: backend, Key: key, Err: err}
}

func (e *Error) Error() string {
	if len(e.Key) > 0 {
		return fmt.Sprintf("%s %s %q: %v", e.Backend, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCorruption reports whether err was caused by corrupted data.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrCorruption)
}
