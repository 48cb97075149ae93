package enginetest

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/pinkv/pkg/engine"
	"github.com/ssargent/pinkv/pkg/pinned"
)

// Opener opens a fresh, empty engine declaring the given extra column
// families. The suite closes it.
type Opener func(t *testing.T, families ...string) engine.Engine

// RunConformance runs the behaviour every engine backend must share.
func RunConformance(t *testing.T, open Opener) {
	t.Run("ReadYourWrites", func(t *testing.T) { testReadYourWrites(t, open) })
	t.Run("AbsentKey", func(t *testing.T) { testAbsentKey(t, open) })
	t.Run("IdempotentBytes", func(t *testing.T) { testIdempotentBytes(t, open) })
	t.Run("OverwriteScenario", func(t *testing.T) { testOverwriteScenario(t, open) })
	t.Run("PinSurvivesOverwrite", func(t *testing.T) { testPinSurvivesOverwrite(t, open) })
	t.Run("EmptyValueIsPresent", func(t *testing.T) { testEmptyValue(t, open) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, open) })
	t.Run("InvalidKey", func(t *testing.T) { testInvalidKey(t, open) })
	t.Run("ColumnFamilies", func(t *testing.T) { testColumnFamilies(t, open) })
	t.Run("CloseWithOutstandingPins", func(t *testing.T) { testCloseWithOutstandingPins(t, open) })
	t.Run("ViewReleasesOnPanic", func(t *testing.T) { testViewReleasesOnPanic(t, open) })
	t.Run("ConcurrentReaders", func(t *testing.T) { testConcurrentReaders(t, open) })
}

func openEngine(t *testing.T, open Opener, families ...string) engine.Engine {
	t.Helper()
	e := open(t, families...)
	t.Cleanup(func() {
		assert.NoError(t, e.Close())
	})
	return e
}

func mustGetPinned(t *testing.T, e engine.Reader, key string, opts ...engine.ReadOption) *pinned.Slice {
	t.Helper()
	s, err := e.GetPinned([]byte(key), opts...)
	require.NoError(t, err)
	require.NotNil(t, s, "key %q should be present", key)
	return s
}

func testReadYourWrites(t *testing.T, open Opener) {
	e := openEngine(t, open)

	want := make(map[string][]byte)
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key:%03d", i)
		value := bytes.Repeat([]byte{byte('a' + i%26)}, i+1)
		require.NoError(t, e.Put([]byte(key), value))
		want[key] = value
	}
	require.NoError(t, e.Put([]byte("key:007"), []byte("rewritten")))
	want["key:007"] = []byte("rewritten")

	for key, value := range want {
		s := mustGetPinned(t, e, key)
		assert.Equal(t, value, s.Bytes(), "key %s", key)
		s.Close()
	}
}

func testAbsentKey(t *testing.T, open Opener) {
	e := openEngine(t, open)
	require.NoError(t, e.Put([]byte("present"), []byte("v")))

	s, err := e.GetPinned([]byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, s)

	found, err := engine.View(e, []byte("missing"), func([]byte) error {
		t.Fatal("callback must not run for an absent key")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, found)
}

func testIdempotentBytes(t *testing.T, open Opener) {
	e := openEngine(t, open)
	require.NoError(t, e.Put([]byte("k"), []byte("stable value")))

	s := mustGetPinned(t, e, "k")
	defer s.Close()

	first := s.Bytes()
	for i := 0; i < 10; i++ {
		again := s.Bytes()
		assert.Equal(t, len(first), len(again))
		assert.Equal(t, first, again)
	}
}

func testOverwriteScenario(t *testing.T, open Opener) {
	e := openEngine(t, open)

	require.NoError(t, e.Put([]byte("a"), []byte("hello")))
	s := mustGetPinned(t, e, "a")
	assert.Equal(t, "hello", s.String())
	assert.Equal(t, 5, s.Len())
	s.Close()

	require.NoError(t, e.Put([]byte("a"), []byte("hi")))
	s = mustGetPinned(t, e, "a")
	assert.Equal(t, "hi", s.String())
	assert.Equal(t, 2, s.Len())
	s.Close()

	s, err := e.GetPinned([]byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, s)
}

func testPinSurvivesOverwrite(t *testing.T, open Opener) {
	e := openEngine(t, open)

	require.NoError(t, e.Put([]byte("a"), []byte("hello")))
	old := mustGetPinned(t, e, "a")
	defer old.Close()

	require.NoError(t, e.Put([]byte("a"), []byte("replacement")))
	require.NoError(t, e.Delete([]byte("a")))

	assert.Equal(t, "hello", old.String())
}

func testEmptyValue(t *testing.T, open Opener) {
	e := openEngine(t, open)
	require.NoError(t, e.Put([]byte("empty"), []byte{}))

	s := mustGetPinned(t, e, "empty")
	defer s.Close()
	assert.Equal(t, 0, s.Len())
}

func testDelete(t *testing.T, open Opener) {
	e := openEngine(t, open)
	require.NoError(t, e.Put([]byte("doomed"), []byte("v")))
	require.NoError(t, e.Delete([]byte("doomed")))
	require.NoError(t, e.Delete([]byte("never-existed")))

	s, err := e.GetPinned([]byte("doomed"))
	require.NoError(t, err)
	assert.Nil(t, s)
}

func testInvalidKey(t *testing.T, open Opener) {
	e := openEngine(t, open)

	_, err := e.GetPinned(nil)
	assert.ErrorIs(t, err, engine.ErrInvalidKey)
	var engErr *engine.Error
	assert.ErrorAs(t, err, &engErr)

	assert.ErrorIs(t, e.Put(nil, []byte("v")), engine.ErrInvalidKey)
	assert.ErrorIs(t, e.Delete([]byte{}), engine.ErrInvalidKey)
}

func testColumnFamilies(t *testing.T, open Opener) {
	e := openEngine(t, open, "users", "orders")

	require.NoError(t, e.Put([]byte("1"), []byte("default one")))
	require.NoError(t, e.Put([]byte("1"), []byte("alice"), engine.WithWriteColumnFamily("users")))

	s := mustGetPinned(t, e, "1")
	assert.Equal(t, "default one", s.String())
	s.Close()

	s = mustGetPinned(t, e, "1", engine.WithColumnFamily("users"))
	assert.Equal(t, "alice", s.String())
	s.Close()

	s, err := e.GetPinned([]byte("1"), engine.WithColumnFamily("orders"))
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = e.GetPinned([]byte("1"), engine.WithColumnFamily("nope"))
	assert.ErrorIs(t, err, engine.ErrUnknownColumnFamily)
	assert.ErrorIs(t, e.Put([]byte("1"), []byte("v"), engine.WithWriteColumnFamily("nope")), engine.ErrUnknownColumnFamily)
}

func testCloseWithOutstandingPins(t *testing.T, open Opener) {
	e := open(t)
	require.NoError(t, e.Put([]byte("k"), []byte("v")))

	s := mustGetPinned(t, e, "k")
	err := e.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, pinned.ErrPinsOutstanding)

	assert.Equal(t, "v", s.String(), "a failed close leaves the engine usable")
	s.Close()

	require.NoError(t, e.Close())
	require.NoError(t, e.Close(), "close is idempotent")

	_, err = e.GetPinned([]byte("k"))
	assert.ErrorIs(t, err, engine.ErrClosed)
	assert.ErrorIs(t, e.Put([]byte("k"), []byte("v")), engine.ErrClosed)
}

func testViewReleasesOnPanic(t *testing.T, open Opener) {
	e := open(t)
	require.NoError(t, e.Put([]byte("k"), []byte("v")))

	assert.Panics(t, func() {
		_, _ = engine.View(e, []byte("k"), func(v []byte) error {
			panic("reader blew up")
		})
	})

	errStop := fmt.Errorf("stop")
	found, err := engine.View(e, []byte("k"), func([]byte) error { return errStop })
	assert.True(t, found)
	assert.ErrorIs(t, err, errStop)

	value, found, err := engine.Get(e, []byte("k"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), value)

	require.NoError(t, e.Close(), "every View must have released its pin")
}

func testConcurrentReaders(t *testing.T, open Opener) {
	const (
		goroutines = 8
		perWorker  = 50
	)
	e := openEngine(t, open)

	for g := 0; g < goroutines; g++ {
		for i := 0; i < perWorker; i++ {
			key := fmt.Sprintf("g%d:k%d", g, i)
			require.NoError(t, e.Put([]byte(key), []byte(key+":value")))
		}
	}

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for round := 0; round < 3; round++ {
				for i := 0; i < perWorker; i++ {
					key := fmt.Sprintf("g%d:k%d", g, i)
					s, err := e.GetPinned([]byte(key))
					if !assert.NoError(t, err) || !assert.NotNil(t, s) {
						return
					}
					assert.Equal(t, key+":value", string(s.Bytes()))
					s.Close()
				}
			}
		}(g)
	}
	wg.Wait()
}
