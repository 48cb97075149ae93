// Package enginetest provides an instrumented in-memory engine and a
// conformance suite shared by every engine backend.
package enginetest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/pinkv/pkg/engine"
	"github.com/ssargent/pinkv/pkg/pinned"
)

// BackendName is reported by Fake.Backend.
const BackendName = "fake"

// poison overwrites released buffers so reads after release are visible.
const poison = 0xDD

// FakeOption configures a Fake.
type FakeOption func(*fakeConfig)

type fakeConfig struct {
	families    []string
	trackerOpts []pinned.TrackerOption
}

// WithFamilies declares extra column families.
func WithFamilies(names ...string) FakeOption {
	return func(c *fakeConfig) {
		c.families = append(c.families, names...)
	}
}

// WithTrackerOptions passes options to the fake's pin tracker.
func WithTrackerOptions(opts ...pinned.TrackerOption) FakeOption {
	return func(c *fakeConfig) {
		c.trackerOpts = append(c.trackerOpts, opts...)
	}
}

// Fake is an in-memory engine that counts every native allocation and
// release. Each successful read allocates a fresh buffer, and releasing it
// poisons the buffer.
type Fake struct {
	id       ksuid.KSUID
	tracker  *pinned.Tracker
	families *engine.Families

	mu       sync.Mutex
	data     map[string][]byte
	corrupt  map[string]bool
	failNext error

	allocations    atomic.Int64
	releases       atomic.Int64
	doubleReleases atomic.Int64
}

var _ engine.Engine = (*Fake)(nil)

// NewFake creates an empty fake engine.
func NewFake(opts ...FakeOption) (*Fake, error) {
	var cfg fakeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	families, err := engine.NewFamilies(cfg.families...)
	if err != nil {
		return nil, err
	}
	id := ksuid.New()
	return &Fake{
		id:       id,
		tracker:  pinned.NewTracker(BackendName+"/"+id.String(), cfg.trackerOpts...),
		families: families,
		data:     make(map[string][]byte),
		corrupt:  make(map[string]bool),
	}, nil
}

func (f *Fake) ID() ksuid.KSUID { return f.id }

func (f *Fake) Backend() string { return BackendName }

// Tracker exposes the pin tracker for assertions.
func (f *Fake) Tracker() *pinned.Tracker { return f.tracker }

// Allocations is the number of native buffers handed out.
func (f *Fake) Allocations() int64 { return f.allocations.Load() }

// Releases is the number of native release calls.
func (f *Fake) Releases() int64 { return f.releases.Load() }

// DoubleReleases counts release calls on already released buffers. It must
// stay zero.
func (f *Fake) DoubleReleases() int64 { return f.doubleReleases.Load() }

// FailNext makes the next GetPinned fail with err before anything is allocated.
func (f *Fake) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = err
}

// Corrupt makes reads of key in the default family fail with engine.ErrCorruption.
func (f *Fake) Corrupt(key []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.corrupt[string(key)] = true
}

func (f *Fake) GetPinned(key []byte, opts ...engine.ReadOption) (*pinned.Slice, error) {
	o := engine.ApplyReadOptions(opts...)
	if len(key) == 0 {
		return nil, engine.NewError("get", BackendName, key, engine.ErrInvalidKey)
	}
	ik, err := f.families.Key(o.ColumnFamily, key)
	if err != nil {
		return nil, engine.NewError("get", BackendName, key, err)
	}

	borrow, err := f.tracker.Acquire()
	if err != nil {
		return nil, engine.NewError("get", BackendName, key, engine.ErrClosed)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		borrow.Return()
		return nil, engine.NewError("get", BackendName, key, err)
	}
	if o.ColumnFamily == engine.DefaultColumnFamily && f.corrupt[string(key)] {
		borrow.Return()
		return nil, engine.NewError("get", BackendName, key, errors.Wrap(engine.ErrCorruption, "checksum mismatch"))
	}

	value, ok := f.data[string(ik)]
	if !ok {
		borrow.Return()
		return nil, nil
	}

	buf := make([]byte, len(value))
	copy(buf, value)
	f.allocations.Add(1)
	return pinned.Adopt(&fakeNative{buf: buf, owner: f}, borrow), nil
}

func (f *Fake) Put(key, value []byte, opts ...engine.WriteOption) error {
	o := engine.ApplyWriteOptions(opts...)
	if len(key) == 0 {
		return engine.NewError("put", BackendName, key, engine.ErrInvalidKey)
	}
	if f.tracker.Closed() {
		return engine.NewError("put", BackendName, key, engine.ErrClosed)
	}
	ik, err := f.families.Key(o.ColumnFamily, key)
	if err != nil {
		return engine.NewError("put", BackendName, key, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[string(ik)] = append([]byte{}, value...)
	return nil
}

func (f *Fake) Delete(key []byte, opts ...engine.WriteOption) error {
	o := engine.ApplyWriteOptions(opts...)
	if len(key) == 0 {
		return engine.NewError("delete", BackendName, key, engine.ErrInvalidKey)
	}
	if f.tracker.Closed() {
		return engine.NewError("delete", BackendName, key, engine.ErrClosed)
	}
	ik, err := f.families.Key(o.ColumnFamily, key)
	if err != nil {
		return engine.NewError("delete", BackendName, key, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, string(ik))
	return nil
}

// Wait blocks until every pinned slice has been closed or ctx is done.
func (f *Fake) Wait(ctx context.Context) error { return f.tracker.Wait(ctx) }

func (f *Fake) Close() error {
	return engine.NewError("close", BackendName, nil, f.tracker.Close())
}

type fakeNative struct {
	buf      []byte
	owner    *Fake
	released atomic.Bool
}

func (n *fakeNative) Value() []byte {
	return n.buf
}

func (n *fakeNative) Release() error {
	if !n.released.CompareAndSwap(false, true) {
		n.owner.doubleReleases.Add(1)
		return errors.New("enginetest: buffer released twice")
	}
	for i := range n.buf {
		n.buf[i] = poison
	}
	n.owner.releases.Add(1)
	return nil
}
