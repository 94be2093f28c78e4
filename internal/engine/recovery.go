package engine

import (
	"fmt"
	"log/slog"

	"github.com/arjunvostrikov/barrelkv/internal/bytestring"
	"github.com/arjunvostrikov/barrelkv/internal/codec"
	"github.com/arjunvostrikov/barrelkv/internal/fileset"
	"github.com/arjunvostrikov/barrelkv/internal/keydir"
)

// replayDataFile walks path from offset 0, updating the KeyDir for every
// record it can fully decode a header, key, and value for. It mirrors
// Put's own live/tombstone handling: a tombstone record removes the key
// from the KeyDir rather than inserting an entry for it, so a key
// deleted in an earlier session does not reappear as "present" once
// replay completes. It does not verify each record's CRC. A short read
// at any point (truncated header, or a record whose declared length
// runs past the file's end) ends replay of this file without error:
// truncation at the tail of the most recently written file is the
// expected shape of a crash mid-write, not a corruption to report.
func (e *Engine) replayDataFile(path string) error {
	rf, err := fileset.OpenRead(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer rf.Close()

	size, err := rf.Size()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	var offset int64
	for offset < size {
		headerBuf, err := rf.ReadAt(offset, codec.HeaderSize)
		if err != nil {
			break
		}
		h, err := codec.DecodeHeader(headerBuf)
		if err != nil {
			break
		}
		recordLen := int64(codec.EncodedSize(int(h.KeyLength), int(h.ValLength)))
		if offset+recordLen > size {
			break
		}
		keyBuf, err := rf.ReadAt(offset+codec.HeaderSize, int(h.KeyLength))
		if err != nil {
			break
		}
		valBuf, err := rf.ReadAt(offset+codec.HeaderSize+h.KeyLength, int(h.ValLength))
		if err != nil {
			break
		}

		key := bytestring.From(string(keyBuf))
		val := bytestring.New(valBuf)
		if bytestring.IsTombstone(val) {
			e.keydir.Delete(key)
		} else {
			entry := keydir.Entry{FileID: path, ValLength: h.ValLength, ValOffset: offset, Timestamp: h.Timestamp}
			if err := e.keydir.Insert(key, entry); err != nil {
				return fmt.Errorf("insert recovered key: %w", err)
			}
		}

		offset += recordLen
	}

	slog.Debug("engine: replayed data file", "path", path, "ended_at", offset, "size", size)
	return nil
}

// replayHintFile walks a hint file the same way replayDataFile walks a
// data file, but every entry it inserts points into mergedPath (the
// merged file the hint file indexes) at the hint's recorded val_offset,
// instead of at the hint record's own offset.
func (e *Engine) replayHintFile(hintPath, mergedPath string) error {
	rf, err := fileset.OpenRead(hintPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", hintPath, err)
	}
	defer rf.Close()

	size, err := rf.Size()
	if err != nil {
		return fmt.Errorf("stat %s: %w", hintPath, err)
	}

	var offset int64
	for offset < size {
		headerBuf, err := rf.ReadAt(offset, codec.HintHeaderSize)
		if err != nil {
			break
		}
		h, err := codec.DecodeHintHeader(headerBuf)
		if err != nil {
			break
		}
		if offset+codec.HintHeaderSize+h.KeyLength > size {
			break
		}
		keyBuf, err := rf.ReadAt(offset+codec.HintHeaderSize, int(h.KeyLength))
		if err != nil {
			break
		}

		key := bytestring.From(string(keyBuf))
		entry := keydir.Entry{FileID: mergedPath, ValLength: h.ValLength, ValOffset: h.ValOffset, Timestamp: h.Timestamp}
		if err := e.keydir.Insert(key, entry); err != nil {
			return fmt.Errorf("insert recovered hint key: %w", err)
		}

		offset += int64(codec.HintEncodedSize(int(h.KeyLength)))
	}

	slog.Debug("engine: replayed hint file", "path", hintPath, "merged", mergedPath, "ended_at", offset, "size", size)
	return nil
}
