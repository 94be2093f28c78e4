// Package engine provides the core key-value storage engine: lifecycle
// (open/close), the put/get/delete data path, open-time recovery, and
// offline merge/compaction. It coordinates internal/fileset (the
// on-disk layout), internal/codec (the record wire format),
// internal/keydir (the in-memory index), and internal/region (scratch
// memory for reads).
//
// The overall shape (a struct holding the index and the active file, a
// recovery pass run from the constructor, slog at info/debug per
// operation) follows the usual embedded-store engine pattern; the actual
// algorithms (open/put/get/delete/merge/growKeyDir/mergeEntries) follow
// the classic single-writer Bitcask design, generalized here to support
// multi-file rotation and recovery.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arjunvostrikov/barrelkv/internal/bytestring"
	"github.com/arjunvostrikov/barrelkv/internal/codec"
	"github.com/arjunvostrikov/barrelkv/internal/fileset"
	"github.com/arjunvostrikov/barrelkv/internal/keydir"
	"github.com/arjunvostrikov/barrelkv/internal/region"
)

// scratchCapacity bounds the per-engine region used to stage a record's
// raw bytes during Get before they are decoded into owned key/value
// slices. It is reset before every Get (see readRecord) rather than
// grown, so a long-running handle's scratch allocations never
// accumulate beyond this bound.
const scratchCapacity = 4 << 20 // 4 MiB

// defaultKeydirCapacity is used when Options.KeydirCapacity is zero, so
// a caller who only cares about the other options does not also have to
// reason about power-of-two capacities.
const defaultKeydirCapacity = 4096

var (
	errKeyMissing        = errors.New("key not found")
	errReadOnly          = errors.New("engine is open read-only")
	errMergePrecondition = errors.New("merge requires at least two data files")
)

// Options configures Open.
type Options struct {
	// ReadWrite permits Put/Delete/Merge and acquires a shared advisory
	// lock on the active file; when false the handle is read-only.
	ReadWrite bool
	// SyncOnPut fsyncs the active file after every successful Put.
	SyncOnPut bool
	// MaxFileSize is the size, in bytes, at or above which Put rotates
	// to a new active file.
	MaxFileSize int64
	// KeydirCapacity is the initial KeyDir capacity; must be a power of
	// two. Zero selects defaultKeydirCapacity.
	KeydirCapacity int
}

// Engine is a single open handle onto a store directory. It is
// single-threaded and non-reentrant: callers must not use one handle
// concurrently from multiple goroutines.
type Engine struct {
	layout  *fileset.Layout
	keydir  *keydir.Table
	scratch *region.Region
	options Options

	active  *fileset.AppendFile
	ordinal int
}

// Open opens (creating if necessary) the store rooted at parentPath and
// replays its data and hint files to rebuild the KeyDir.
func Open(parentPath string, opts Options) (*Engine, error) {
	if opts.KeydirCapacity == 0 {
		opts.KeydirCapacity = defaultKeydirCapacity
	}

	layout, err := fileset.Open(parentPath)
	if err != nil {
		return nil, newError(KindInitFailed, "open", err)
	}

	numFiles, err := layout.CountDataFiles()
	if err != nil {
		return nil, newError(KindInitFailed, "open", err)
	}
	ordinal := numFiles
	if ordinal == 0 {
		ordinal = 1
	}

	active, err := fileset.OpenAppend(layout.DataPath(ordinal), opts.ReadWrite)
	if err != nil {
		return nil, newError(KindInitFailed, "open", err)
	}

	kd, err := keydir.New(opts.KeydirCapacity)
	if err != nil {
		active.Close()
		return nil, newError(KindInvalidSize, "open", err)
	}

	e := &Engine{
		layout:  layout,
		keydir:  kd,
		scratch: region.New(scratchCapacity),
		options: opts,
		active:  active,
		ordinal: ordinal,
	}

	if err := e.recover(numFiles); err != nil {
		active.Close()
		return nil, newError(KindInitFailed, "open", err)
	}

	slog.Info("engine: opened", "path", parentPath, "data_files", numFiles, "keys", kd.Len())
	return e, nil
}

// Close releases the active file handle (and its advisory lock, if
// held). The region and KeyDir are reclaimed by the garbage collector
// once the caller drops its reference to the Engine.
func (e *Engine) Close() error {
	if err := e.active.Close(); err != nil {
		return newError(KindAccess, "close", err)
	}
	slog.Info("engine: closed", "keys", e.keydir.Len())
	return nil
}

// Put writes val for key. If val equals the tombstone literal, the
// write persists a deletion: the record is appended as usual but the
// KeyDir entry is removed rather than updated.
func (e *Engine) Put(key, val bytestring.ByteString) error {
	if !e.options.ReadWrite {
		return newError(KindReadOnly, "put", errReadOnly)
	}

	if e.active.Cursor() >= e.options.MaxFileSize {
		if err := e.rotate(); err != nil {
			return err
		}
	}

	rec := codec.Record{Timestamp: time.Now().Unix(), Key: key.Bytes(), Value: val.Bytes()}
	encoded, err := rec.Encode()
	if err != nil {
		return newError(KindArithmeticOverflow, "put", err)
	}

	offset, err := e.active.Append(encoded)
	if err != nil {
		return newError(KindAccess, "put", err)
	}

	if bytestring.IsTombstone(val) {
		e.keydir.Delete(key)
	} else {
		entry := keydir.Entry{
			FileID:    e.active.Path(),
			ValLength: int64(val.Len()),
			ValOffset: offset,
			Timestamp: rec.Timestamp,
		}
		if err := e.keydir.Insert(key, entry); err != nil {
			return newError(KindInsertFailed, "put", err)
		}
	}

	if e.options.SyncOnPut {
		if err := e.active.Sync(); err != nil {
			return newError(KindAccess, "put", err)
		}
	}

	slog.Debug("engine: put", "key", key.String(), "offset", offset, "size", len(encoded))
	return nil
}

// Get returns the latest value for key, or a KindKeyMissing Error when
// the key is absent or its latest record is a tombstone.
func (e *Engine) Get(key bytestring.ByteString) (bytestring.ByteString, error) {
	entry, ok := e.keydir.Get(key)
	if !ok {
		return bytestring.ByteString{}, newError(KindKeyMissing, "get", errKeyMissing)
	}

	size := codec.EncodedSize(key.Len(), int(entry.ValLength))
	raw, err := e.readRecord(entry, size)
	if err != nil {
		return bytestring.ByteString{}, err
	}

	rec, err := codec.Decode(raw)
	if err != nil {
		if errors.Is(err, codec.ErrCRCMismatch) {
			return bytestring.ByteString{}, newError(KindCrcFailed, "get", err)
		}
		return bytestring.ByteString{}, newError(KindAccess, "get", err)
	}

	val := bytestring.New(rec.Value)
	if bytestring.IsTombstone(val) {
		// Defence in depth: Put and recovery both remove a key from the
		// KeyDir rather than inserting an entry for a tombstone record,
		// so this should be unreachable in practice.
		slog.Debug("engine: get found unexpected tombstone", "key", key.String())
		return bytestring.ByteString{}, newError(KindKeyMissing, "get", errKeyMissing)
	}

	slog.Debug("engine: get", "key", key.String(), "offset", entry.ValOffset, "size", len(rec.Value))
	return bytestring.From(string(rec.Value)), nil
}

// readRecord stages size bytes read from entry's location into the
// engine's scratch region, reusing the active file's handle when the
// entry points at it and opening the sealed file directly otherwise.
func (e *Engine) readRecord(entry keydir.Entry, size int) ([]byte, error) {
	e.scratch.Reset()
	buf, err := e.scratch.Allocate(1, 1, size, region.NoZero)
	if err != nil {
		return nil, newError(KindOutOfMemory, "get", err)
	}

	var data []byte
	if entry.FileID == e.active.Path() {
		data, err = e.active.ReadAt(entry.ValOffset, size)
	} else {
		var rf *fileset.ReadFile
		rf, err = fileset.OpenRead(entry.FileID)
		if err == nil {
			defer rf.Close()
			data, err = rf.ReadAt(entry.ValOffset, size)
		}
	}
	if err != nil {
		return nil, newError(KindAccess, "get", err)
	}

	copy(buf, data)
	return buf, nil
}

// Delete removes key by persisting a tombstone. Reports KindKeyMissing
// if the key is already absent.
func (e *Engine) Delete(key bytestring.ByteString) error {
	if !e.options.ReadWrite {
		return newError(KindReadOnly, "delete", errReadOnly)
	}
	if _, ok := e.keydir.Get(key); !ok {
		return newError(KindKeyMissing, "delete", errKeyMissing)
	}
	if err := e.Put(key, bytestring.Tombstone); err != nil {
		return &Error{Kind: KindDeleteFailed, Op: "delete", Err: err}
	}
	return nil
}

// Sync fsyncs the active file.
func (e *Engine) Sync() error {
	if err := e.active.Sync(); err != nil {
		return newError(KindAccess, "sync", err)
	}
	return nil
}

// KeyCount reports the number of live keys in the in-memory KeyDir.
func (e *Engine) KeyCount() int {
	return e.keydir.Len()
}

// rotate closes the active file and opens the next one in sequence.
func (e *Engine) rotate() error {
	if err := e.active.Close(); err != nil {
		return newError(KindAccess, "rotate", err)
	}
	e.ordinal++
	active, err := fileset.OpenAppend(e.layout.DataPath(e.ordinal), e.options.ReadWrite)
	if err != nil {
		return newError(KindAccess, "rotate", err)
	}
	e.active = active
	slog.Info("engine: rotated active file", "path", active.Path())
	return nil
}

// recover replays every hint file followed by numFiles sealed/active
// data files, each in ascending ordinal order, rebuilding the KeyDir.
// Merged records were copied out of data files that merge has since
// removed, so they are older than every data file still present;
// replaying hints first keeps replay in write order, letting a later
// overwrite or tombstone in a data file win. See recovery.go.
func (e *Engine) recover(numFiles int) error {
	numHints, err := e.layout.CountHintFiles()
	if err != nil {
		return fmt.Errorf("count hint files: %w", err)
	}
	for i := 1; i <= numHints; i++ {
		if err := e.replayHintFile(e.layout.HintPath(i), e.layout.MergedPath(i)); err != nil {
			return fmt.Errorf("replay hint file %d: %w", i, err)
		}
	}

	for i := 1; i <= numFiles; i++ {
		if err := e.replayDataFile(e.layout.DataPath(i)); err != nil {
			return fmt.Errorf("replay data file %d: %w", i, err)
		}
	}
	return nil
}
