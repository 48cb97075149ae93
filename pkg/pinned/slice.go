package pinned

import (
	"bytes"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
)

// Native is one engine-owned value buffer.
type Native interface {
	// Value returns the current view of the buffer. It is called on every
	// read and its result must not be cached by the caller.
	Value() []byte
	// Release hands the buffer back to the engine. It is called exactly once.
	Release() error
}

// noCopy lets go vet's copylocks check catch value copies of a Slice.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Slice is a read-only, zero-copy view over a Native buffer.
type Slice struct {
	_ noCopy

	native   Native
	borrow   *Borrow
	pinnedAt time.Time
	released atomic.Bool
}

// Adopt wraps a Native buffer produced by a successful engine read.
//
// This is the trusted boundary between an engine and the rest of the
// program: native must not have been released and must not be adopted
// twice, and borrow must come from the tracker of the engine that produced
// native. Ownership of both passes to the returned Slice.
func Adopt(native Native, borrow *Borrow) *Slice {
	if native == nil || borrow == nil {
		panic("pinned: Adopt requires a native buffer and a borrow")
	}
	s := &Slice{
		native:   native,
		borrow:   borrow,
		pinnedAt: time.Now(),
	}
	borrow.tracker.observer.Pinned()
	runtime.SetFinalizer(s, (*Slice).finalize)
	return s
}

// Bytes returns the pinned value. The result aliases engine memory: it must
// not be modified and must not be used after Close. Bytes panics with
// ErrReleased when called on a closed Slice.
func (s *Slice) Bytes() []byte {
	if s.released.Load() {
		panic(ErrReleased)
	}
	return s.native.Value()
}

// Len returns the length of the pinned value.
func (s *Slice) Len() int {
	return len(s.Bytes())
}

// String returns a copy of the pinned value as a string.
func (s *Slice) String() string {
	return string(s.Bytes())
}

// Equal reports whether the pinned value equals b.
func (s *Slice) Equal(b []byte) bool {
	return bytes.Equal(s.Bytes(), b)
}

// Clone returns an owned copy of the pinned value that stays valid after
// Close.
func (s *Slice) Clone() []byte {
	return bytes.Clone(s.Bytes())
}

// WriteTo writes the pinned value to w without an intermediate copy.
func (s *Slice) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(s.Bytes())
	return int64(n), err
}

// Close releases the value back to the engine. Only the first call has an
// effect. Release failures are logged and counted but never returned, so
// Close is safe in deferred calls on every exit path. Close on a nil Slice is
// a no-op.
func (s *Slice) Close() error {
	if s == nil {
		return nil
	}
	if !s.released.CompareAndSwap(false, true) {
		return nil
	}
	runtime.SetFinalizer(s, nil)
	s.release()
	return nil
}

func (s *Slice) release() {
	t := s.borrow.tracker
	defer s.borrow.Return()

	if err := callRelease(s.native); err != nil {
		t.logger.Errorf("pinned: release failed for %s: %v", t.owner, err)
		t.observer.ReleaseFailed()
	}
	t.observer.Released(time.Since(s.pinnedAt))
}

func callRelease(n Native) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic during release: %v", r)
		}
	}()
	return n.Release()
}

// finalize reports a Slice that became unreachable without Close. The native
// buffer and the borrow stay held: a []byte taken from Bytes may still be
// live, and the owning engine keeps refusing to close.
func (s *Slice) finalize() {
	if s.released.Load() {
		return
	}
	t := s.borrow.tracker
	t.logger.Errorf("pinned: slice from %s collected without Close (held %s)", t.owner, time.Since(s.pinnedAt))
	t.observer.Leaked()
}
