// Package codec provides the record format of the log-structured engine.
//
// # Record Format
//
// Records are serialized as:
//
//	[CRC32(4)][Kind(1)][KeySize(4)][ValueSize(4)][Timestamp(8)][Key][Value]
//
// All integers are little-endian. The header is HeaderSize (21) bytes and
// the total record size is HeaderSize + len(key) + len(value).
//
// Kind is KindValue for a live value (which may be empty) or KindTombstone
// for a deletion. A tombstone carries no value.
//
// # CRC32 Calculation
//
// The IEEE CRC32 covers every byte after the CRC32 field: Kind, KeySize,
// ValueSize, Timestamp, Key and Value.
//
// # Aliasing
//
// Decode does not copy: the Key and Value of a decoded Record alias the
// input buffer. Callers that reuse the buffer must copy first.
package codec
