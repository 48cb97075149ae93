package logstore

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/ssargent/pinkv/pkg/codec"
	"github.com/ssargent/pinkv/pkg/engine"
)

// LogReader provides sequential access to records in a log file. It is used
// for recovery; point reads go through readRecordAt.
type LogReader struct {
	file   *os.File
	reader *bufio.Reader
	codec  *codec.RecordCodec
	offset int64
	size   int64
}

// NewLogReader opens path for a sequential scan from the beginning.
func NewLogReader(path string) (*LogReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	return &LogReader{
		file:   file,
		reader: bufio.NewReaderSize(file, defaultBufferSize),
		codec:  codec.NewRecordCodec(),
		size:   info.Size(),
	}, nil
}

// ReadNext returns the next valid record. It returns io.EOF at a clean end of
// file and an engine.ErrCorruption error for a torn or invalid record, in
// which case Offset still points at the start of that record.
func (r *LogReader) ReadNext() (*codec.Record, error) {
	var hdr [codec.HeaderSize]byte
	if _, err := io.ReadFull(r.reader, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(engine.ErrCorruption, "torn record header")
		}
		return nil, err
	}

	h, err := r.codec.DecodeHeader(hdr[:])
	if err != nil {
		return nil, corruptf(err, "record at %d", r.offset)
	}

	if r.offset+int64(h.RecordSize()) > r.size {
		return nil, errors.Wrapf(engine.ErrCorruption, "torn record at %d", r.offset)
	}

	data := make([]byte, h.RecordSize())
	copy(data, hdr[:])
	if _, err := io.ReadFull(r.reader, data[codec.HeaderSize:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrapf(engine.ErrCorruption, "torn record at %d", r.offset)
		}
		return nil, err
	}

	record, err := r.codec.Decode(data)
	if err != nil {
		return nil, corruptf(err, "record at %d", r.offset)
	}
	if err := record.Validate(); err != nil {
		return nil, corruptf(err, "record at %d", r.offset)
	}

	r.offset += int64(len(data))
	return record, nil
}

// Offset returns the offset just past the last record ReadNext returned.
func (r *LogReader) Offset() int64 {
	return r.offset
}

// Close closes the log reader
func (r *LogReader) Close() error {
	return r.file.Close()
}

// readRecordAt reads the record described by entry into buf using a
// positional read, so concurrent callers can share file. buf must hold
// entry.size bytes. The returned record aliases buf.
func readRecordAt(file *os.File, c *codec.RecordCodec, entry indexEntry, key []byte, buf []byte, verify bool) (*codec.Record, error) {
	buf = buf[:entry.size]
	if n, err := file.ReadAt(buf, entry.offset); n < len(buf) {
		if err == nil || err == io.EOF {
			err = errors.Wrapf(engine.ErrCorruption, "short read at %d: %d of %d bytes", entry.offset, n, len(buf))
		}
		return nil, err
	}

	record, err := c.Decode(buf)
	if err != nil {
		return nil, corruptf(err, "record at %d", entry.offset)
	}
	if record.Kind != codec.KindValue || !bytes.Equal(record.Key, key) {
		return nil, errors.Wrapf(engine.ErrCorruption, "index points at foreign record at %d", entry.offset)
	}
	if verify {
		if err := record.Validate(); err != nil {
			return nil, corruptf(err, "record at %d", entry.offset)
		}
	}
	return record, nil
}

// corruptf wraps err so it matches engine.ErrCorruption while keeping its
// own chain.
func corruptf(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), engine.ErrCorruption)
}
