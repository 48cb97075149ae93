package engine_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/pinkv/pkg/engine"
	"github.com/ssargent/pinkv/pkg/engine/enginetest"
)

func TestView(t *testing.T) {
	f, err := enginetest.NewFake()
	require.NoError(t, err)
	require.NoError(t, f.Put([]byte("a"), []byte("hello")))

	var seen string
	found, err := engine.View(f, []byte("a"), func(v []byte) error {
		seen = string(v)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hello", seen)
	assert.Equal(t, int64(1), f.Releases())
	assert.Zero(t, f.Tracker().Outstanding())
}

func TestView_ReleasesOnEveryExit(t *testing.T) {
	f, err := enginetest.NewFake()
	require.NoError(t, err)
	require.NoError(t, f.Put([]byte("a"), []byte("hello")))

	errCallback := errors.New("callback failed")
	_, err = engine.View(f, []byte("a"), func([]byte) error { return errCallback })
	assert.ErrorIs(t, err, errCallback)

	assert.Panics(t, func() {
		_, _ = engine.View(f, []byte("a"), func([]byte) error { panic("boom") })
	})

	found, err := engine.View(f, []byte("missing"), func([]byte) error { return nil })
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, int64(2), f.Allocations())
	assert.Equal(t, int64(2), f.Releases())
	assert.Zero(t, f.DoubleReleases())
}

func TestView_EngineErrorSkipsCallback(t *testing.T) {
	f, err := enginetest.NewFake()
	require.NoError(t, err)
	require.NoError(t, f.Put([]byte("a"), []byte("hello")))
	f.Corrupt([]byte("a"))

	called := false
	found, err := engine.View(f, []byte("a"), func([]byte) error {
		called = true
		return nil
	})
	assert.False(t, found)
	assert.False(t, called)
	assert.True(t, engine.IsCorruption(err))
	assert.Zero(t, f.Releases())
}

func TestGet_ReturnsOwnedCopy(t *testing.T) {
	f, err := enginetest.NewFake()
	require.NoError(t, err)
	require.NoError(t, f.Put([]byte("a"), []byte("hello")))

	value, found, err := engine.Get(f, []byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("hello"), value, "copy survives the poisoned release")

	value, found, err = engine.Get(f, []byte("missing"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)
}
