// Package pebbleengine serves pinned reads straight out of pebble's block
// cache and memtables.
package pebbleengine

import (
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/pinkv/pkg/engine"
	"github.com/ssargent/pinkv/pkg/logging"
	"github.com/ssargent/pinkv/pkg/pinned"
)

// BackendName identifies this backend in config and errors.
const BackendName = "pebble"

// Options configures a pebble engine. Fields tagged with mapstructure can be
// set from the engine.options block of the config file.
type Options struct {
	// CacheSize is the block cache size in bytes. Zero uses pebble's default.
	CacheSize int64 `mapstructure:"cache_size"`
	// Sync makes every write durable unless the caller asks otherwise.
	Sync bool `mapstructure:"sync"`

	FS       vfs.FS          `mapstructure:"-"`
	Families []string        `mapstructure:"-"`
	Logger   *logging.Logger `mapstructure:"-"`
	Observer pinned.Observer `mapstructure:"-"`
}

// Engine is an open pebble database.
type Engine struct {
	id       ksuid.KSUID
	db       *pebble.DB
	tracker  *pinned.Tracker
	families *engine.Families
	logger   *logging.Logger
	sync     bool

	// mu guards db against writes racing Close. Reads are guarded by the
	// tracker instead.
	mu     sync.RWMutex
	closed bool
}

var _ engine.Engine = (*Engine)(nil)

// Open opens or creates the database in dir.
func Open(dir string, opts Options) (*Engine, error) {
	families, err := engine.NewFamilies(opts.Families...)
	if err != nil {
		return nil, engine.NewError("open", BackendName, nil, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	id := ksuid.New()
	logger = logger.With(BackendName + "/" + id.String())

	pebbleOpts := &pebble.Options{
		FS:     opts.FS,
		Logger: logger,
	}
	if opts.CacheSize > 0 {
		cache := pebble.NewCache(opts.CacheSize)
		defer cache.Unref()
		pebbleOpts.Cache = cache
	}

	db, err := pebble.Open(dir, pebbleOpts)
	if err != nil {
		return nil, engine.NewError("open", BackendName, nil, err)
	}
	logger.Infof("opened %s with families %v", dir, families.Names())

	return &Engine{
		id: id,
		db: db,
		tracker: pinned.NewTracker(
			BackendName+"/"+id.String(),
			pinned.WithObserver(opts.Observer),
			pinned.WithLogger(logger),
		),
		families: families,
		logger:   logger,
		sync:     opts.Sync,
	}, nil
}

func (e *Engine) ID() ksuid.KSUID { return e.id }

func (e *Engine) Backend() string { return BackendName }

// Outstanding reports the number of open pinned slices.
func (e *Engine) Outstanding() int { return e.tracker.Outstanding() }

// Wait blocks until every pinned slice has been closed or ctx is done.
func (e *Engine) Wait(ctx context.Context) error { return e.tracker.Wait(ctx) }

// GetPinned returns a slice over pebble's own copy of the value. pebble keeps
// the backing block pinned until the slice is closed.
func (e *Engine) GetPinned(key []byte, opts ...engine.ReadOption) (*pinned.Slice, error) {
	o := engine.ApplyReadOptions(opts...)
	if len(key) == 0 {
		return nil, engine.NewError("get", BackendName, key, engine.ErrInvalidKey)
	}
	ik, err := e.families.Key(o.ColumnFamily, key)
	if err != nil {
		return nil, engine.NewError("get", BackendName, key, err)
	}

	// The borrow is taken before touching pebble so Close cannot run
	// underneath the read.
	borrow, err := e.tracker.Acquire()
	if err != nil {
		return nil, engine.NewError("get", BackendName, key, engine.ErrClosed)
	}

	value, closer, err := e.db.Get(ik)
	if err != nil {
		borrow.Return()
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, engine.NewError("get", BackendName, key, err)
	}
	return pinned.Adopt(&pinnedValue{value: value, closer: closer}, borrow), nil
}

func (e *Engine) writeOptions(o engine.WriteOptions) *pebble.WriteOptions {
	if o.Sync || e.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (e *Engine) Put(key, value []byte, opts ...engine.WriteOption) error {
	o := engine.ApplyWriteOptions(opts...)
	if len(key) == 0 {
		return engine.NewError("put", BackendName, key, engine.ErrInvalidKey)
	}
	ik, err := e.families.Key(o.ColumnFamily, key)
	if err != nil {
		return engine.NewError("put", BackendName, key, err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return engine.NewError("put", BackendName, key, engine.ErrClosed)
	}
	return engine.NewError("put", BackendName, key, e.db.Set(ik, value, e.writeOptions(o)))
}

func (e *Engine) Delete(key []byte, opts ...engine.WriteOption) error {
	o := engine.ApplyWriteOptions(opts...)
	if len(key) == 0 {
		return engine.NewError("delete", BackendName, key, engine.ErrInvalidKey)
	}
	ik, err := e.families.Key(o.ColumnFamily, key)
	if err != nil {
		return engine.NewError("delete", BackendName, key, err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return engine.NewError("delete", BackendName, key, engine.ErrClosed)
	}
	return engine.NewError("delete", BackendName, key, e.db.Delete(ik, e.writeOptions(o)))
}

// Close closes the database. It fails, leaving the engine open, while any
// pinned slice is outstanding.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	if err := e.tracker.Close(); err != nil {
		return engine.NewError("close", BackendName, nil, err)
	}
	e.closed = true
	if err := e.db.Close(); err != nil {
		return engine.NewError("close", BackendName, nil, err)
	}
	e.logger.Infof("closed")
	return nil
}

// pinnedValue adapts pebble's (value, io.Closer) pair.
type pinnedValue struct {
	value  []byte
	closer io.Closer
}

func (v *pinnedValue) Value() []byte {
	return v.value
}

func (v *pinnedValue) Release() error {
	return v.closer.Close()
}
