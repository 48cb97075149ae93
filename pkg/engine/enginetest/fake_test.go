package enginetest

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/pinkv/pkg/engine"
	"github.com/ssargent/pinkv/pkg/pinned"
)

func openFake(t *testing.T, families ...string) engine.Engine {
	t.Helper()
	f, err := NewFake(WithFamilies(families...))
	require.NoError(t, err)
	return f
}

func TestFake_Conformance(t *testing.T) {
	RunConformance(t, openFake)
}

func TestFake_ReleaseCountMatchesReads(t *testing.T) {
	const reads = 1000

	f, err := NewFake()
	require.NoError(t, err)
	require.NoError(t, f.Put([]byte("k"), []byte("value")))

	for i := 0; i < reads; i++ {
		s, err := f.GetPinned([]byte("k"))
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, "value", s.String())
		s.Close()
		s.Close()
	}

	assert.Equal(t, int64(reads), f.Allocations())
	assert.Equal(t, int64(reads), f.Releases())
	assert.Zero(t, f.DoubleReleases())
	require.NoError(t, f.Close())
}

func TestFake_ReleasedBufferIsPoisoned(t *testing.T) {
	f, err := NewFake()
	require.NoError(t, err)
	require.NoError(t, f.Put([]byte("k"), []byte("secret")))

	s, err := f.GetPinned([]byte("k"))
	require.NoError(t, err)
	view := s.Bytes()
	s.Close()

	for _, b := range view {
		assert.Equal(t, byte(poison), b)
	}
}

func TestFake_FailureReleasesNothing(t *testing.T) {
	f, err := NewFake()
	require.NoError(t, err)
	require.NoError(t, f.Put([]byte("k"), []byte("v")))

	errIO := errors.New("simulated I/O error")
	f.FailNext(errIO)
	s, err := f.GetPinned([]byte("k"))
	assert.Nil(t, s)
	assert.ErrorIs(t, err, errIO)

	f.Corrupt([]byte("k"))
	s, err = f.GetPinned([]byte("k"))
	assert.Nil(t, s)
	assert.True(t, engine.IsCorruption(err))

	var engErr *engine.Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, "get", engErr.Op)
	assert.Equal(t, BackendName, engErr.Backend)

	assert.Zero(t, f.Allocations())
	assert.Zero(t, f.Releases())
	assert.Zero(t, f.Tracker().Outstanding())
}

type leakCounter struct {
	leaked atomic.Int64
}

func (c *leakCounter) Pinned()                {}
func (c *leakCounter) Released(time.Duration) {}
func (c *leakCounter) ReleaseFailed()         {}
func (c *leakCounter) Leaked()                { c.leaked.Add(1) }

func TestFake_LeakedSliceKeepsItsBuffer(t *testing.T) {
	obs := &leakCounter{}
	f, err := NewFake(WithTrackerOptions(pinned.WithObserver(obs)))
	require.NoError(t, err)
	require.NoError(t, f.Put([]byte("k"), []byte("secret")))

	var view []byte
	func() {
		s, err := f.GetPinned([]byte("k"))
		require.NoError(t, err)
		view = s.Bytes()
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return obs.leaked.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "secret", string(view))
	assert.Zero(t, f.Releases())
	assert.ErrorIs(t, f.Close(), pinned.ErrPinsOutstanding)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)
}

func TestFake_WaitReturnsOnceSlicesClose(t *testing.T) {
	f, err := NewFake()
	require.NoError(t, err)
	require.NoError(t, f.Put([]byte("k"), []byte("v")))

	s, err := f.GetPinned([]byte("k"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- engine.Drain(context.Background(), f) }()
	s.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Drain did not return after the slice closed")
	}
	require.NoError(t, f.Close())
}
