// Package bytestring provides an immutable, length-prefixed byte view used
// for keys and values throughout the store, plus the distinguished
// tombstone literal that marks a key as logically deleted.
package bytestring

import "bytes"

// ByteString is an immutable view over a byte slice. The zero value is the
// empty string. Callers must not mutate the slice passed to New after
// construction; From copies when that guarantee cannot be made.
type ByteString struct {
	data []byte
}

// New wraps b without copying. The caller must not mutate b afterwards.
func New(b []byte) ByteString {
	return ByteString{data: b}
}

// From copies s into a new ByteString, safe to use even if the caller
// continues to mutate the source.
func From(s string) ByteString {
	b := make([]byte, len(s))
	copy(b, s)
	return ByteString{data: b}
}

// Bytes returns the underlying byte slice. Callers must not mutate it.
func (b ByteString) Bytes() []byte {
	return b.data
}

// String returns a string copy of the contents.
func (b ByteString) String() string {
	return string(b.data)
}

// Len reports the length in bytes.
func (b ByteString) Len() int {
	return len(b.data)
}

// Empty reports whether the byte string has zero length.
func (b ByteString) Empty() bool {
	return len(b.data) == 0
}

// Equal reports whether b and other have identical length and contents.
func (b ByteString) Equal(other ByteString) bool {
	return bytes.Equal(b.data, other.data)
}

// Tombstone is the distinguished value literal that marks a key as
// logically deleted. Any Put whose value equals Tombstone's bytes is
// treated as a delete by the engine; persisted tombstone records suppress
// older live records for the same key during recovery.
//
// The literal is the UTF-8 encoding of a single graveyard emoji, matching
// the reference bitcask implementation this store's on-disk format is
// derived from.
var Tombstone = New([]byte("\U0001FAA6"))

// IsTombstone reports whether v equals the tombstone literal.
func IsTombstone(v ByteString) bool {
	return v.Equal(Tombstone)
}
