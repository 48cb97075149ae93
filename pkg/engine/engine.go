// Package engine defines the boundary between pinkv and the storage engines
// it reads from without copying.
//
// An Engine hands out *pinned.Slice values from GetPinned. A nil slice with a
// nil error means the key is absent. Every non-nil slice borrows the engine,
// and the engine's Close fails with pinned.ErrPinsOutstanding until all of
// them have been closed.
package engine

import (
	"bytes"
	"context"

	"github.com/segmentio/ksuid"

	"github.com/ssargent/pinkv/pkg/pinned"
)

// Reader is the zero-copy read capability of an engine.
type Reader interface {
	// GetPinned returns the value stored under key. It returns (nil, nil)
	// when the key is absent and a *Error on failure. On failure nothing is
	// left for the caller to release.
	GetPinned(key []byte, opts ...ReadOption) (*pinned.Slice, error)
}

// Writer mutates an engine.
type Writer interface {
	Put(key, value []byte, opts ...WriteOption) error
	Delete(key []byte, opts ...WriteOption) error
}

// Engine is an open storage engine instance.
type Engine interface {
	Reader
	Writer

	// ID identifies this engine instance in logs and leak reports.
	ID() ksuid.KSUID
	// Backend names the implementation, e.g. "pebble".
	Backend() string
	// Close closes the engine. It fails while pinned slices are outstanding.
	Close() error
}

// Drainer is implemented by engines that can wait for their pinned slices
// to be closed.
type Drainer interface {
	Wait(ctx context.Context) error
}

// Drain blocks until e has no pinned slices outstanding or ctx is done. An
// engine that does not implement Drainer is treated as drained.
func Drain(ctx context.Context, e Engine) error {
	d, ok := e.(Drainer)
	if !ok {
		return nil
	}
	return d.Wait(ctx)
}

// View reads key and calls fn with the pinned value. The value is released
// when View returns, whether fn returns normally, returns an error or
// panics; fn must not retain it. found is false when the key is absent, in
// which case fn is not called.
func View(r Reader, key []byte, fn func(value []byte) error, opts ...ReadOption) (found bool, err error) {
	s, err := r.GetPinned(key, opts...)
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, nil
	}
	defer s.Close()

	return true, fn(s.Bytes())
}

// Get returns an owned copy of the value stored under key.
func Get(r Reader, key []byte, opts ...ReadOption) ([]byte, bool, error) {
	var value []byte
	found, err := View(r, key, func(v []byte) error {
		value = bytes.Clone(v)
		return nil
	}, opts...)
	return value, found, err
}
