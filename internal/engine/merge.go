package engine

import (
	"fmt"
	"log/slog"

	"github.com/arjunvostrikov/barrelkv/internal/bytestring"
	"github.com/arjunvostrikov/barrelkv/internal/codec"
	"github.com/arjunvostrikov/barrelkv/internal/fileset"
	"github.com/arjunvostrikov/barrelkv/internal/keydir"
)

// mergeOutput tracks the pair of output files a merge is currently
// writing to, rotating both together once the merged file has reached
// MaxFileSize.
type mergeOutput struct {
	merged  *fileset.AppendFile
	hint    *fileset.AppendFile
	ordinal int
}

func openMergeOutput(e *Engine, ordinal int) (*mergeOutput, error) {
	merged, err := fileset.OpenAppend(e.layout.MergedPath(ordinal), false)
	if err != nil {
		return nil, fmt.Errorf("open merged file: %w", err)
	}
	hint, err := fileset.OpenAppend(e.layout.HintPath(ordinal), false)
	if err != nil {
		merged.Close()
		return nil, fmt.Errorf("open hint file: %w", err)
	}
	return &mergeOutput{merged: merged, hint: hint, ordinal: ordinal}, nil
}

func (o *mergeOutput) rotateIfNeeded(e *Engine) error {
	if o.merged.Cursor() < e.options.MaxFileSize {
		return nil
	}
	if err := o.close(); err != nil {
		return err
	}
	next, err := openMergeOutput(e, o.ordinal+1)
	if err != nil {
		return err
	}
	*o = *next
	slog.Info("engine: merge rotated output files", "merged", o.merged.Path(), "hint", o.hint.Path())
	return nil
}

func (o *mergeOutput) close() error {
	if err := o.merged.Close(); err != nil {
		return fmt.Errorf("close merged file: %w", err)
	}
	if err := o.hint.Close(); err != nil {
		return fmt.Errorf("close hint file: %w", err)
	}
	return nil
}

// Merge streams every sealed (non-active) data file through a liveness
// filter into merged files paired with hint files, unlinking each source
// file once it has been fully consumed. The active file is never
// merged: the precondition num_files >= 2 guarantees at least one sealed
// file exists to merge, and the loop range [1, num_files-1] deliberately
// excludes the last (active) file.
//
// A record is only written to the merged/hint output if the KeyDir's
// current entry for its key still points at the exact (file, offset)
// being processed — i.e. this is still the live record for that key,
// not one superseded by a tombstone or a later write to the same key
// elsewhere. Tombstones are dropped outright, and so is any record a
// later write or delete has already superseded: writing it forward
// would otherwise let replayHintFile resurrect a dead value on the next
// Open. The KeyDir entry for every record that does survive is
// repointed at its new (merged_file, new_offset) as it is written, so
// the KeyDir stays coherent with the merged files for the rest of the
// process's lifetime instead of dangling on unlinked paths until the
// next Open.
//
// Once every sealed file has been merged away, the still-open active
// file is renumbered down to data file 1 (see renumberActiveFile) so
// that a subsequent Open's dense [1, num_files] recovery scan finds it.
func (e *Engine) Merge() error {
	if !e.options.ReadWrite {
		return newError(KindReadOnly, "merge", errReadOnly)
	}

	numFiles, err := e.layout.CountDataFiles()
	if err != nil {
		return newError(KindAccess, "merge", err)
	}
	if numFiles < 2 {
		return newError(KindMerge, "merge", errMergePrecondition)
	}

	startOrdinal, err := e.layout.CountMergedFiles()
	if err != nil {
		return newError(KindAccess, "merge", err)
	}
	if startOrdinal == 0 {
		startOrdinal = 1
	}

	out, err := openMergeOutput(e, startOrdinal)
	if err != nil {
		return newError(KindMerge, "merge", err)
	}

	filesMerged := 0
	for i := 1; i <= numFiles-1; i++ {
		dataPath := e.layout.DataPath(i)
		if err := e.mergeDataFile(dataPath, out); err != nil {
			out.close()
			return newError(KindMerge, "merge", fmt.Errorf("merge %s: %w", dataPath, err))
		}
		if err := fileset.Remove(dataPath); err != nil {
			out.close()
			return newError(KindAccess, "merge", err)
		}
		filesMerged++
	}

	if err := out.close(); err != nil {
		return newError(KindMerge, "merge", err)
	}

	if err := e.renumberActiveFile(); err != nil {
		return newError(KindMerge, "merge", err)
	}

	slog.Info("engine: merge complete", "files_merged", filesMerged, "keys_live", e.keydir.Len())
	return nil
}

// renumberActiveFile moves the still-open active file down to data file 1
// now that every file preceding it has been merged away, mirroring
// bc_merge's final rename step. Without this, the next Open finds only
// the un-renamed active file, CountDataFiles reports 1, and recovery's
// dense [1, num_files] scan creates a fresh empty file 1 instead of
// finding the active file's data — silently losing every key whose
// latest record lives there.
func (e *Engine) renumberActiveFile() error {
	oldPath := e.active.Path()
	newPath := e.layout.DataPath(1)
	if oldPath == newPath {
		return nil
	}

	if err := e.active.Close(); err != nil {
		return fmt.Errorf("close active file before renumber: %w", err)
	}
	if err := fileset.Rename(oldPath, newPath); err != nil {
		return err
	}
	active, err := fileset.OpenAppend(newPath, e.options.ReadWrite)
	if err != nil {
		return fmt.Errorf("reopen renumbered active file: %w", err)
	}
	e.active = active
	e.ordinal = 1

	var toRepoint []bytestring.ByteString
	e.keydir.Range(func(key bytestring.ByteString, entry keydir.Entry) bool {
		if entry.FileID == oldPath {
			toRepoint = append(toRepoint, key)
		}
		return true
	})
	for _, key := range toRepoint {
		entry, ok := e.keydir.Get(key)
		if !ok {
			continue
		}
		entry.FileID = newPath
		if err := e.keydir.Insert(key, entry); err != nil {
			return fmt.Errorf("repoint keydir entry after renumber: %w", err)
		}
	}

	slog.Info("engine: renumbered active file", "from", oldPath, "to", newPath, "repointed", len(toRepoint))
	return nil
}

// mergeDataFile streams dataPath's records into out, dropping tombstones
// and any record the KeyDir no longer considers live, and repointing the
// KeyDir entry for each survivor at its new location as it goes.
func (e *Engine) mergeDataFile(dataPath string, out *mergeOutput) error {
	rf, err := fileset.OpenRead(dataPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", dataPath, err)
	}
	defer rf.Close()

	size, err := rf.Size()
	if err != nil {
		return fmt.Errorf("stat %s: %w", dataPath, err)
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

		recordBuf, err := rf.ReadAt(offset, int(recordLen))
		if err != nil {
			break
		}

		originalOffset := offset
		offset += recordLen

		rec, err := codec.Decode(recordBuf)
		if err != nil {
			slog.Warn("engine: merge dropping corrupt record", "file", dataPath, "offset", originalOffset, "error", err)
			continue
		}

		val := bytestring.New(rec.Value)
		if bytestring.IsTombstone(val) {
			continue
		}

		// Only a record that is still the key's live (file, offset) in
		// the KeyDir survives the merge. Anything else has already been
		// superseded by a later write or delete and must not be written
		// forward: doing so would give replayHintFile a stale value to
		// resurrect on the next Open.
		key := bytestring.New(rec.Key)
		current, ok := e.keydir.Get(key)
		if !ok || current.FileID != dataPath || current.ValOffset != originalOffset {
			continue
		}

		if err := out.rotateIfNeeded(e); err != nil {
			return err
		}

		newOffset, err := out.merged.Append(recordBuf)
		if err != nil {
			return fmt.Errorf("append merged record: %w", err)
		}

		hintBuf, err := codec.EncodeHint(codec.HintRecord{Timestamp: rec.Timestamp, ValOffset: newOffset, Key: rec.Key}, len(rec.Value))
		if err != nil {
			return fmt.Errorf("encode hint record: %w", err)
		}
		if _, err := out.hint.Append(hintBuf); err != nil {
			return fmt.Errorf("append hint record: %w", err)
		}

		repointed := keydir.Entry{
			FileID:    out.merged.Path(),
			ValLength: int64(len(rec.Value)),
			ValOffset: newOffset,
			Timestamp: rec.Timestamp,
		}
		if err := e.keydir.Insert(key, repointed); err != nil {
			return fmt.Errorf("repoint keydir entry: %w", err)
		}
	}

	return nil
}
