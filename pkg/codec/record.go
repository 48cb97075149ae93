package codec

import (
	"encoding/binary"
	"hash/crc32"
	"time"

	"github.com/cockroachdb/errors"
)

// HeaderSize is the encoded size of a record header.
const HeaderSize = 21

// MaxFieldSize bounds keys and values so sizes fit the header.
const MaxFieldSize = int(^uint32(0) >> 1)

var (
	// ErrShortRecord is returned when a buffer ends inside a record.
	ErrShortRecord = errors.New("codec: record truncated")
	// ErrChecksum is returned when a record fails CRC validation.
	ErrChecksum = errors.New("codec: checksum mismatch")
	// ErrUnknownKind is returned for an unrecognized record kind byte.
	ErrUnknownKind = errors.New("codec: unknown record kind")
	// ErrTooLarge is returned when a key or value exceeds MaxFieldSize.
	ErrTooLarge = errors.New("codec: field too large")
)

// Kind distinguishes live values from deletions.
type Kind uint8

const (
	KindValue     Kind = 1
	KindTombstone Kind = 2
)

func (k Kind) valid() bool {
	return k == KindValue || k == KindTombstone
}

// Header is the fixed-size prefix of a record.
type Header struct {
	CRC32     uint32
	Kind      Kind
	KeySize   uint32
	ValueSize uint32
	Timestamp uint64
}

// RecordSize returns the encoded size of the record the header describes.
func (h Header) RecordSize() int {
	return HeaderSize + int(h.KeySize) + int(h.ValueSize)
}

// Record is a decoded log record.
type Record struct {
	Header
	Key   []byte
	Value []byte
}

// NewRecord creates a record stamped with the current time.
func NewRecord(kind Kind, key, value []byte) (*Record, error) {
	if len(key) > MaxFieldSize || len(value) > MaxFieldSize {
		return nil, ErrTooLarge
	}
	if kind == KindTombstone {
		value = nil
	}
	return &Record{
		Header: Header{
			Kind:      kind,
			KeySize:   uint32(len(key)),
			ValueSize: uint32(len(value)),
			Timestamp: uint64(time.Now().UnixNano()),
		},
		Key:   key,
		Value: value,
	}, nil
}

// Size returns the encoded size of the record.
func (r *Record) Size() int {
	return r.RecordSize()
}

// Validate recomputes the checksum and compares it with the stored one.
func (r *Record) Validate() error {
	if got := r.checksum(); got != r.CRC32 {
		return errors.Wrapf(ErrChecksum, "stored %08x, computed %08x", r.CRC32, got)
	}
	return nil
}

func (r *Record) checksum() uint32 {
	var hdr [HeaderSize]byte
	putHeader(hdr[:], r.Header)
	crc := crc32.ChecksumIEEE(hdr[4:])
	crc = crc32.Update(crc, crc32.IEEETable, r.Key)
	return crc32.Update(crc, crc32.IEEETable, r.Value)
}

func putHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint32(buf[0:], h.CRC32)
	buf[4] = byte(h.Kind)
	binary.LittleEndian.PutUint32(buf[5:], h.KeySize)
	binary.LittleEndian.PutUint32(buf[9:], h.ValueSize)
	binary.LittleEndian.PutUint64(buf[13:], h.Timestamp)
}

// RecordCodec handles serialization and deserialization of records
type RecordCodec struct{}

// NewRecordCodec creates a new record codec instance
func NewRecordCodec() *RecordCodec {
	return &RecordCodec{}
}

// Encode serializes a record and stamps its checksum.
func (c *RecordCodec) Encode(kind Kind, key, value []byte) ([]byte, error) {
	if !kind.valid() {
		return nil, errors.Wrapf(ErrUnknownKind, "%d", kind)
	}
	r, err := NewRecord(kind, key, value)
	if err != nil {
		return nil, err
	}
	r.CRC32 = r.checksum()

	buf := make([]byte, r.Size())
	putHeader(buf, r.Header)
	copy(buf[HeaderSize:], r.Key)
	copy(buf[HeaderSize+len(r.Key):], r.Value)
	return buf, nil
}

// DecodeHeader parses the first HeaderSize bytes of data.
func (c *RecordCodec) DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, errors.Wrapf(ErrShortRecord, "header needs %d bytes, have %d", HeaderSize, len(data))
	}
	h := Header{
		CRC32:     binary.LittleEndian.Uint32(data[0:]),
		Kind:      Kind(data[4]),
		KeySize:   binary.LittleEndian.Uint32(data[5:]),
		ValueSize: binary.LittleEndian.Uint32(data[9:]),
		Timestamp: binary.LittleEndian.Uint64(data[13:]),
	}
	if !h.Kind.valid() {
		return Header{}, errors.Wrapf(ErrUnknownKind, "%d", h.Kind)
	}
	if h.KeySize > uint32(MaxFieldSize) || h.ValueSize > uint32(MaxFieldSize) {
		return Header{}, errors.Wrapf(ErrTooLarge, "key %d value %d", h.KeySize, h.ValueSize)
	}
	return h, nil
}

// Decode parses one record from the start of data. Key and Value alias data.
// Decode checks framing only; call Validate to verify the checksum.
func (c *RecordCodec) Decode(data []byte) (*Record, error) {
	h, err := c.DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if len(data) < h.RecordSize() {
		return nil, errors.Wrapf(ErrShortRecord, "record needs %d bytes, have %d", h.RecordSize(), len(data))
	}
	keyEnd := HeaderSize + int(h.KeySize)
	return &Record{
		Header: h,
		Key:    data[HeaderSize:keyEnd:keyEnd],
		Value:  data[keyEnd:h.RecordSize():h.RecordSize()],
	}, nil
}
