// Package codec encodes and decodes the on-disk record and hint-record
// binary layouts and computes/verifies the CRC-64 trailer that protects
// every data record.
//
// The header-then-payload-then-trailer shape follows the same pattern as a
// header/key/value/CRC record codec, generalized here to an explicit
// little-endian CRC-64 layout (timestamp/key_length/val_length as signed
// 8-byte fields, no flag byte — tombstones are a value convention, not a
// header bit).
package codec

import (
	"encoding/binary"
	"fmt"
	"hash/crc64"
)

// HeaderSize is the fixed width of a data record's header: timestamp,
// key_length, val_length, each an 8-byte field.
const HeaderSize = 24

// HintHeaderSize is the fixed width of a hint record's header: timestamp,
// key_length, val_length, val_offset.
const HintHeaderSize = 32

// CRCSize is the width of the trailing CRC-64 field on a data record.
const CRCSize = 8

// table is the CRC-64 ISO-polynomial table used throughout. CRC
// verification is inherently specific to a particular polynomial, so the
// choice is fixed here rather than left configurable.
var table = crc64.MakeTable(crc64.ISO)

// Record is a single key/value entry as it appears in a data file.
type Record struct {
	Timestamp int64
	Key       []byte
	Value     []byte
}

// EncodedSize returns the number of bytes Encode will produce for a
// record with the given key and value lengths.
func EncodedSize(keyLen, valLen int) int {
	return HeaderSize + keyLen + valLen + CRCSize
}

// Encode serializes r into the on-disk record layout:
//
//	[0:8]   timestamp, signed, little-endian
//	[8:16]  key_length, signed, little-endian
//	[16:24] val_length, signed, little-endian
//	[24: )  key bytes, then value bytes
//	[ -8: ] crc64, little-endian, over every preceding byte
//
// It rejects key/value combinations whose total encoded size would not
// fit in a non-negative int64 length field.
func (r Record) Encode() ([]byte, error) {
	keyLen, valLen := len(r.Key), len(r.Value)
	if int64(keyLen) < 0 || int64(valLen) < 0 {
		return nil, fmt.Errorf("codec: encode: key or value length overflows a signed 64-bit field")
	}
	size := EncodedSize(keyLen, valLen)
	if size < 0 || size < keyLen || size < valLen {
		return nil, fmt.Errorf("codec: encode: record of key=%d val=%d bytes overflows the size type", keyLen, valLen)
	}

	buf := make([]byte, size)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(r.Timestamp))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(keyLen))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(valLen))
	copy(buf[HeaderSize:HeaderSize+keyLen], r.Key)
	copy(buf[HeaderSize+keyLen:HeaderSize+keyLen+valLen], r.Value)

	sum := crc64.Checksum(buf[:size-CRCSize], table)
	binary.LittleEndian.PutUint64(buf[size-CRCSize:size], sum)

	return buf, nil
}

// Header is the fixed-width prefix of a decoded record, available before
// the variable-length key and value payload has been read.
type Header struct {
	Timestamp int64
	KeyLength int64
	ValLength int64
}

// DecodeHeader reads the fixed-width header from the first HeaderSize
// bytes of data.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("codec: decode header: got %d bytes, need at least %d", len(data), HeaderSize)
	}
	h := Header{
		Timestamp: int64(binary.LittleEndian.Uint64(data[0:8])),
		KeyLength: int64(binary.LittleEndian.Uint64(data[8:16])),
		ValLength: int64(binary.LittleEndian.Uint64(data[16:24])),
	}
	if h.KeyLength < 0 || h.ValLength < 0 {
		return Header{}, fmt.Errorf("codec: decode header: negative length field (key=%d val=%d)", h.KeyLength, h.ValLength)
	}
	return h, nil
}

// Decode parses a complete encoded record (header, key, value, and CRC
// trailer) and verifies its checksum. It returns an error wrapping
// ErrCRCMismatch-equivalent detail when the trailing CRC does not match
// the recomputed checksum of the preceding bytes.
func Decode(data []byte) (Record, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return Record{}, err
	}
	want := EncodedSize(int(h.KeyLength), int(h.ValLength))
	if len(data) < want {
		return Record{}, fmt.Errorf("codec: decode: got %d bytes, need %d for full record", len(data), want)
	}

	key := make([]byte, h.KeyLength)
	val := make([]byte, h.ValLength)
	copy(key, data[HeaderSize:HeaderSize+int(h.KeyLength)])
	copy(val, data[HeaderSize+int(h.KeyLength):HeaderSize+int(h.KeyLength)+int(h.ValLength)])

	if !Verify(data[:want]) {
		return Record{}, ErrCRCMismatch
	}

	return Record{Timestamp: h.Timestamp, Key: key, Value: val}, nil
}

// ErrCRCMismatch is returned by Decode when a record's trailing CRC does
// not match the bytes that precede it.
var ErrCRCMismatch = fmt.Errorf("codec: crc mismatch: record failed integrity check")

// Verify reports whether the last CRCSize bytes of fullRecord equal the
// CRC-64 of the bytes that precede them.
//
// The reference design verifies via the linear property crc64(msg ‖
// crc64(msg)) == 0, which holds for the original implementation's
// unreflected, uncomplemented CRC-64 construction. Go's standard
// hash/crc64 inverts the running CRC at the start and end of Checksum
// (mirroring hash/crc32's IEEE behavior), which breaks that identity, so
// this verifies by direct recomputation and comparison instead — the
// equivalent check under a complemented CRC.
func Verify(fullRecord []byte) bool {
	if len(fullRecord) < CRCSize {
		return false
	}
	split := len(fullRecord) - CRCSize
	want := binary.LittleEndian.Uint64(fullRecord[split:])
	got := crc64.Checksum(fullRecord[:split], table)
	return got == want
}

// HintRecord is a compact index entry in a hint file: it parallels a
// merged data record but carries the value's location instead of its
// bytes, and omits a CRC: hint records are not checksummed.
type HintRecord struct {
	Timestamp int64
	ValOffset int64
	Key       []byte
}

// HintEncodedSize returns the number of bytes EncodeHint will produce for
// a hint record whose key is keyLen bytes. The size does not depend on
// the paired value's length, which is stored as a fixed-width field.
func HintEncodedSize(keyLen int) int {
	return HintHeaderSize + keyLen
}

// EncodeHint serializes h into the on-disk hint-record layout:
//
//	[0:8]   timestamp, signed, little-endian
//	[8:16]  key_length, signed, little-endian
//	[16:24] val_length, signed, little-endian
//	[24:32] val_offset, signed, little-endian
//	[32: )  key bytes
func EncodeHint(h HintRecord, valLen int) ([]byte, error) {
	keyLen := len(h.Key)
	size := HintEncodedSize(keyLen)
	buf := make([]byte, size)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(h.Timestamp))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(keyLen))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(valLen))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.ValOffset))
	copy(buf[HintHeaderSize:], h.Key)
	return buf, nil
}

// HintHeader is the fixed-width prefix of a decoded hint record.
type HintHeader struct {
	Timestamp int64
	KeyLength int64
	ValLength int64
	ValOffset int64
}

// DecodeHintHeader reads the fixed-width header from the first
// HintHeaderSize bytes of data.
func DecodeHintHeader(data []byte) (HintHeader, error) {
	if len(data) < HintHeaderSize {
		return HintHeader{}, fmt.Errorf("codec: decode hint header: got %d bytes, need at least %d", len(data), HintHeaderSize)
	}
	h := HintHeader{
		Timestamp: int64(binary.LittleEndian.Uint64(data[0:8])),
		KeyLength: int64(binary.LittleEndian.Uint64(data[8:16])),
		ValLength: int64(binary.LittleEndian.Uint64(data[16:24])),
		ValOffset: int64(binary.LittleEndian.Uint64(data[24:32])),
	}
	if h.KeyLength < 0 || h.ValLength < 0 || h.ValOffset < 0 {
		return HintHeader{}, fmt.Errorf("codec: decode hint header: negative field (key=%d val=%d offset=%d)", h.KeyLength, h.ValLength, h.ValOffset)
	}
	return h, nil
}

// DecodeHint parses a complete encoded hint record (header and key).
func DecodeHint(data []byte) (HintRecord, HintHeader, error) {
	h, err := DecodeHintHeader(data)
	if err != nil {
		return HintRecord{}, HintHeader{}, err
	}
	want := HintEncodedSize(int(h.KeyLength))
	if len(data) < want {
		return HintRecord{}, HintHeader{}, fmt.Errorf("codec: decode hint: got %d bytes, need %d for full record", len(data), want)
	}
	key := make([]byte, h.KeyLength)
	copy(key, data[HintHeaderSize:want])
	return HintRecord{Timestamp: h.Timestamp, ValOffset: h.ValOffset, Key: key}, h, nil
}
