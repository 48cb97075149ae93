// Package logstore is an append-only log engine with an in-memory key index.
// Pinned reads are served from pooled buffers that stay leased to the slice
// until it is closed.
package logstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/pinkv/pkg/codec"
	"github.com/ssargent/pinkv/pkg/engine"
	"github.com/ssargent/pinkv/pkg/logging"
	"github.com/ssargent/pinkv/pkg/pinned"
)

// Store is an open log store.
type Store struct {
	id       ksuid.KSUID
	opts     Options
	logger   *logging.Logger
	families *engine.Families
	tracker  *pinned.Tracker
	codec    *codec.RecordCodec
	buffers  *bufferPool

	writer   *LogWriter
	readFile *os.File
	recovery RecoveryResult

	mu     sync.RWMutex
	index  *keyIndex
	closed bool
}

var _ engine.Engine = (*Store)(nil)

// Open opens or creates the store in opts.DataDir, replaying the data file
// to rebuild the index. A torn or corrupt tail is truncated away.
func Open(opts Options) (*Store, error) {
	if opts.DataDir == "" {
		return nil, engine.NewError("open", BackendName, nil, errors.New("data directory is required"))
	}
	families, err := engine.NewFamilies(opts.Families...)
	if err != nil {
		return nil, engine.NewError("open", BackendName, nil, err)
	}
	if err := os.MkdirAll(opts.DataDir, 0750); err != nil {
		return nil, engine.NewError("open", BackendName, nil, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	id := ksuid.New()
	logger = logger.With(BackendName + "/" + id.String())

	path := filepath.Join(opts.DataDir, activeFileName)
	index := newKeyIndex()
	recovery, err := recoverIndex(path, index)
	if err != nil {
		return nil, engine.NewError("open", BackendName, nil, err)
	}
	if recovery.RecordsTruncated > 0 {
		logger.Warnf("truncated corrupt tail of %s from %d to %d bytes",
			path, recovery.FileSizeBefore, recovery.FileSizeAfter)
	}

	writer, err := NewLogWriter(LogWriterConfig{
		FilePath:      path,
		FsyncInterval: opts.FsyncInterval,
		BufferSize:    opts.WriteBufferSize,
	})
	if err != nil {
		return nil, engine.NewError("open", BackendName, nil, err)
	}
	readFile, err := os.Open(path)
	if err != nil {
		writer.Close()
		return nil, engine.NewError("open", BackendName, nil, err)
	}

	logger.Infof("opened %s: %d keys, %d records replayed in %s",
		path, index.len(), recovery.RecordsValidated, recovery.RecoveryTime)

	return &Store{
		id:       id,
		opts:     opts,
		logger:   logger,
		families: families,
		tracker: pinned.NewTracker(
			BackendName+"/"+id.String(),
			pinned.WithObserver(opts.Observer),
			pinned.WithLogger(logger),
		),
		codec:    codec.NewRecordCodec(),
		buffers:  newBufferPool(opts.MaxPooledBuffer),
		writer:   writer,
		readFile: readFile,
		recovery: recovery,
		index:    index,
	}, nil
}

// recoverIndex replays path into index and truncates the file after the
// last valid record.
func recoverIndex(path string, index *keyIndex) (RecoveryResult, error) {
	start := time.Now()
	var result RecoveryResult

	reader, err := NewLogReader(path)
	if os.IsNotExist(err) {
		return result, nil
	}
	if err != nil {
		return result, err
	}
	defer reader.Close()
	result.FileSizeBefore = reader.size

	for {
		offset := reader.Offset()
		record, err := reader.ReadNext()
		if err == io.EOF {
			break
		}
		if errors.Is(err, engine.ErrCorruption) {
			result.RecordsTruncated++
			break
		}
		if err != nil {
			return result, err
		}

		result.RecordsValidated++
		switch record.Kind {
		case codec.KindValue:
			index.put(indexEntry{key: string(record.Key), offset: offset, size: int64(record.Size())})
		case codec.KindTombstone:
			index.delete(record.Key)
		}
	}

	result.FileSizeAfter = reader.Offset()
	if result.FileSizeAfter < result.FileSizeBefore {
		if err := os.Truncate(path, result.FileSizeAfter); err != nil {
			return result, errors.Wrap(err, "truncate corrupt tail")
		}
	}
	result.RecoveryTime = time.Since(start)
	return result, nil
}

func (s *Store) ID() ksuid.KSUID { return s.id }

func (s *Store) Backend() string { return BackendName }

// Recovery reports what Open found in the data file.
func (s *Store) Recovery() RecoveryResult { return s.recovery }

// Outstanding reports the number of open pinned slices.
func (s *Store) Outstanding() int { return s.tracker.Outstanding() }

// Wait blocks until every pinned slice has been closed or ctx is done.
func (s *Store) Wait(ctx context.Context) error { return s.tracker.Wait(ctx) }

// GetPinned reads the latest record for key into a leased buffer. The
// buffer goes back to the pool when the slice is closed, so a later write
// to key never changes what an open slice sees.
func (s *Store) GetPinned(key []byte, opts ...engine.ReadOption) (*pinned.Slice, error) {
	o := engine.ApplyReadOptions(opts...)
	if len(key) == 0 {
		return nil, engine.NewError("get", BackendName, key, engine.ErrInvalidKey)
	}
	ik, err := s.families.Key(o.ColumnFamily, key)
	if err != nil {
		return nil, engine.NewError("get", BackendName, key, err)
	}

	borrow, err := s.tracker.Acquire()
	if err != nil {
		return nil, engine.NewError("get", BackendName, key, engine.ErrClosed)
	}

	s.mu.RLock()
	entry, ok := s.index.get(ik)
	s.mu.RUnlock()
	if !ok {
		borrow.Return()
		return nil, nil
	}

	buf := s.buffers.get(int(entry.size))
	record, err := readRecordAt(s.readFile, s.codec, entry, ik, *buf, o.VerifyChecksums || s.opts.VerifyChecksums)
	if err != nil {
		s.buffers.put(buf)
		borrow.Return()
		return nil, engine.NewError("get", BackendName, key, err)
	}
	return pinned.Adopt(&leasedBuffer{buf: buf, value: record.Value, pool: s.buffers}, borrow), nil
}

func (s *Store) Put(key, value []byte, opts ...engine.WriteOption) error {
	o := engine.ApplyWriteOptions(opts...)
	if len(key) == 0 {
		return engine.NewError("put", BackendName, key, engine.ErrInvalidKey)
	}
	ik, err := s.families.Key(o.ColumnFamily, key)
	if err != nil {
		return engine.NewError("put", BackendName, key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.NewError("put", BackendName, key, engine.ErrClosed)
	}

	offset, size, err := s.writer.Append(codec.KindValue, ik, value, o.Sync)
	if err != nil {
		return engine.NewError("put", BackendName, key, err)
	}
	s.index.put(indexEntry{key: string(ik), offset: offset, size: int64(size)})
	return nil
}

// Delete appends a tombstone for key. Deleting an absent key is a no-op.
func (s *Store) Delete(key []byte, opts ...engine.WriteOption) error {
	o := engine.ApplyWriteOptions(opts...)
	if len(key) == 0 {
		return engine.NewError("delete", BackendName, key, engine.ErrInvalidKey)
	}
	ik, err := s.families.Key(o.ColumnFamily, key)
	if err != nil {
		return engine.NewError("delete", BackendName, key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.NewError("delete", BackendName, key, engine.ErrClosed)
	}
	if _, ok := s.index.get(ik); !ok {
		return nil
	}

	if _, _, err := s.writer.Append(codec.KindTombstone, ik, nil, o.Sync); err != nil {
		return engine.NewError("delete", BackendName, key, err)
	}
	s.index.delete(ik)
	return nil
}

// Sync forces buffered writes to disk.
func (s *Store) Sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return engine.NewError("sync", BackendName, nil, engine.ErrClosed)
	}
	return engine.NewError("sync", BackendName, nil, s.writer.Sync())
}

// Stats returns statistics about the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Dir:         s.opts.DataDir,
		DataFile:    s.writer.Path(),
		Keys:        s.index.len(),
		FamilyKeys:  s.index.familyKeys(s.families),
		LiveBytes:   s.index.liveBytes(),
		DataSize:    s.writer.Size(),
		Outstanding: s.tracker.Outstanding(),
		Families:    s.families.Names(),
	}
}

// Close syncs and closes the data file. It fails, leaving the store open,
// while any pinned slice is outstanding.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if err := s.tracker.Close(); err != nil {
		return engine.NewError("close", BackendName, nil, err)
	}
	s.closed = true

	err := errors.CombineErrors(s.writer.Close(), s.readFile.Close())
	if err != nil {
		return engine.NewError("close", BackendName, nil, err)
	}
	s.logger.Infof("closed")
	return nil
}
