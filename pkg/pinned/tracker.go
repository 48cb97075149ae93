package pinned

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrReleased is the panic value raised when a released Slice is read.
	ErrReleased = errors.New("pinned: use of released slice")
	// ErrPinsOutstanding is returned by Tracker.Close while slices are still open.
	ErrPinsOutstanding = errors.New("pinned: slices still outstanding")
	// ErrTrackerClosed is returned by Acquire once the tracker is closed.
	ErrTrackerClosed = errors.New("pinned: tracker closed")
)

// Logger receives release failures and leak reports.
type Logger interface {
	Errorf(format string, args ...interface{})
}

// Observer is notified about the lifecycle of every Slice of a Tracker.
type Observer interface {
	Pinned()
	Released(held time.Duration)
	ReleaseFailed()
	Leaked()
}

type nopObserver struct{}

func (nopObserver) Pinned() {}
func (nopObserver) Released(time.Duration) {}
func (nopObserver) ReleaseFailed() {}
func (nopObserver) Leaked() {}

type nopLogger struct{}

func (nopLogger) Errorf(string, ...interface{}) {}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithObserver attaches an Observer to the tracker.
func WithObserver(o Observer) TrackerOption {
	return func(t *Tracker) {
		if o != nil {
			t.observer = o
		}
	}
}

// WithLogger attaches a Logger to the tracker.
func WithLogger(l Logger) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// Tracker counts the borrows outstanding against one engine instance. An
// engine owns exactly one Tracker and closes it before closing itself.
type Tracker struct {
	owner    string
	observer Observer
	logger   Logger

	mu          sync.Mutex
	outstanding int
	closed      bool
	idle        chan struct{} // closed whenever outstanding is zero
}

// NewTracker creates a tracker. owner names the engine in log output.
func NewTracker(owner string, opts ...TrackerOption) *Tracker {
	idle := make(chan struct{})
	close(idle)
	t := &Tracker{
		owner:    owner,
		observer: nopObserver{},
		logger:   nopLogger{},
		idle:     idle,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Owner returns the name the tracker was created with.
func (t *Tracker) Owner() string {
	return t.owner
}

// Acquire takes a new borrow. It fails once the tracker has been closed.
func (t *Tracker) Acquire() (*Borrow, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTrackerClosed
	}
	if t.outstanding == 0 {
		t.idle = make(chan struct{})
	}
	t.outstanding++
	return &Borrow{tracker: t}, nil
}

func (t *Tracker) release() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.outstanding--
	if t.outstanding == 0 {
		close(t.idle)
	}
}

// Outstanding reports the number of borrows not yet returned.
func (t *Tracker) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outstanding
}

// Closed reports whether Close has succeeded.
func (t *Tracker) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close stops the tracker from handing out new borrows. It fails with
// ErrPinsOutstanding, leaving the tracker open, while any borrow is live.
// Closing an already closed tracker is a no-op.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	if t.outstanding > 0 {
		return errors.Wrapf(ErrPinsOutstanding, "%s has %d open", t.owner, t.outstanding)
	}
	t.closed = true
	return nil
}

// Wait blocks until no borrows are outstanding or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Borrow is one lease on a Tracker. It is returned exactly once.
type Borrow struct {
	tracker  *Tracker
	returned atomic.Bool
}

// Return gives the lease back to its tracker. Engines call it directly only
// on read paths that end without adopting a Slice.
func (b *Borrow) Return() {
	if b == nil {
		return
	}
	if b.returned.CompareAndSwap(false, true) {
		b.tracker.release()
	}
}
