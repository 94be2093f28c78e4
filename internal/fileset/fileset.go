// Package fileset owns the on-disk directory layout of a store: the
// data_files/, hint_files/, and merged_files/ subdirectories, the hex8
// file naming scheme, and the append-only and random-access file handles
// the engine reads and writes through.
//
// The append/read handle split (Append/ReadAt/Close, "offset is wherever
// the write lands") follows the usual embedded-store file handle shape;
// the directory layout (three subdirectories, 0700 permissions, 8-digit
// hex names, the file-zero-becomes-file-one substitution) follows the
// classic Bitcask on-disk convention. Advisory locking on the active
// file uses gofrs/flock with a shared lock, which excludes exclusive
// lockers but not other shared lockers.
package fileset

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Extensions for each class of file in the layout.
const (
	DataExt   = "bin"
	HintExt   = "hint"
	MergedExt = "merge"
)

const dirPerm = 0700

// Layout is the directory structure rooted at a store's parent path.
type Layout struct {
	Root      string
	DataDir   string
	HintDir   string
	MergedDir string
}

// Open ensures the three-directory layout exists under root, creating
// any that are missing with permission 0700, and returns a Layout
// describing it.
func Open(root string) (*Layout, error) {
	l := &Layout{
		Root:      root,
		DataDir:   filepath.Join(root, "data_files"),
		HintDir:   filepath.Join(root, "hint_files"),
		MergedDir: filepath.Join(root, "merged_files"),
	}
	for _, dir := range []string{l.DataDir, l.HintDir, l.MergedDir} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, fmt.Errorf("fileset: open: create %s: %w", dir, err)
		}
	}
	slog.Debug("fileset: layout ready", "root", root)
	return l, nil
}

// PathFor forms the path of the n-th file with extension ext inside dir,
// named as eight uppercase hex digits. File numbering substitutes 1 for
// 0 so that file zero is never addressable — the layout a count of zero
// existing files and a count of one existing file resolve to the same
// path, and recovery's replay range [1, num_files] stays correct when
// num_files is at least 1.
func PathFor(dir, ext string, n int) string {
	if n == 0 {
		n = 1
	}
	return filepath.Join(dir, fmt.Sprintf("%08X.%s", n, ext))
}

// DataPath returns the path of the n-th data file.
func (l *Layout) DataPath(n int) string { return PathFor(l.DataDir, DataExt, n) }

// HintPath returns the path of the n-th hint file.
func (l *Layout) HintPath(n int) string { return PathFor(l.HintDir, HintExt, n) }

// MergedPath returns the path of the n-th merged file.
func (l *Layout) MergedPath(n int) string { return PathFor(l.MergedDir, MergedExt, n) }

// CountFiles returns the number of regular files present directly inside
// dir.
func CountFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("fileset: count files in %s: %w", dir, err)
	}
	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() {
			n++
		}
	}
	return n, nil
}

// CountDataFiles returns the number of data files in the layout.
func (l *Layout) CountDataFiles() (int, error) { return CountFiles(l.DataDir) }

// CountHintFiles returns the number of hint files in the layout.
func (l *Layout) CountHintFiles() (int, error) { return CountFiles(l.HintDir) }

// CountMergedFiles returns the number of merged files in the layout.
func (l *Layout) CountMergedFiles() (int, error) { return CountFiles(l.MergedDir) }

// AppendFile is an append-only handle with an explicitly tracked cursor,
// used for the active data file and for merge output files. Writes go
// straight to the underlying *os.File with no intermediate buffer: the
// engine needs the byte offset of every write to be exact at the moment
// it returns, and a write buffer would require reconstructing that
// offset from file size plus buffered bytes.
type AppendFile struct {
	path   string
	file   *os.File
	cursor int64
	lock   *flock.Flock
}

// OpenAppend opens path for append, creating it if necessary, and seeds
// its cursor from the file's current size (so reopening a non-empty
// active file resumes writing at the right offset). When lock is true it
// acquires a shared advisory lock on the file, returning an error if the
// lock is already held exclusively elsewhere.
func OpenAppend(path string, lock bool) (*AppendFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("fileset: open append %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("fileset: stat %s: %w", path, err)
	}

	af := &AppendFile{path: path, file: f, cursor: stat.Size()}

	if lock {
		fl := flock.New(path)
		ok, err := fl.TryRLock()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("fileset: lock %s: %w", path, err)
		}
		if !ok {
			f.Close()
			return nil, fmt.Errorf("fileset: %s is already locked by another writer", path)
		}
		af.lock = fl
	}

	slog.Debug("fileset: active file opened", "path", path, "cursor", af.cursor, "locked", lock)
	return af, nil
}

// Path returns the file's path.
func (a *AppendFile) Path() string { return a.path }

// Cursor returns the current write offset.
func (a *AppendFile) Cursor() int64 { return a.cursor }

// Append writes data at the current cursor and returns the offset it was
// written at.
func (a *AppendFile) Append(data []byte) (int64, error) {
	offset := a.cursor
	n, err := a.file.Write(data)
	if err != nil {
		return 0, fmt.Errorf("fileset: append to %s: %w", a.path, err)
	}
	a.cursor += int64(n)
	if n != len(data) {
		return 0, fmt.Errorf("fileset: short write to %s: wrote %d of %d bytes", a.path, n, len(data))
	}
	return offset, nil
}

// ReadAt reads exactly size bytes from offset, for reading back records
// from the file currently being appended to (the active file serves both
// writes and reads within the same handle).
func (a *AppendFile) ReadAt(offset int64, size int) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := a.file.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("fileset: read %s at %d: %w", a.path, offset, err)
	}
	return buf, nil
}

// Sync flushes the file to stable storage.
func (a *AppendFile) Sync() error {
	if err := a.file.Sync(); err != nil {
		return fmt.Errorf("fileset: sync %s: %w", a.path, err)
	}
	return nil
}

// Close releases any advisory lock and closes the underlying file.
func (a *AppendFile) Close() error {
	var lockErr error
	if a.lock != nil {
		lockErr = a.lock.Unlock()
	}
	if err := a.file.Close(); err != nil {
		return fmt.Errorf("fileset: close %s: %w", a.path, err)
	}
	if lockErr != nil {
		return fmt.Errorf("fileset: unlock %s: %w", a.path, lockErr)
	}
	return nil
}

// ReadFile is a read-only random-access handle onto a sealed data, hint,
// or merged file.
type ReadFile struct {
	path string
	file *os.File
}

// OpenRead opens path for random-access reading.
func OpenRead(path string) (*ReadFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fileset: open read %s: %w", path, err)
	}
	return &ReadFile{path: path, file: f}, nil
}

// Path returns the file's path.
func (r *ReadFile) Path() string { return r.path }

// ReadAt reads exactly size bytes starting at offset.
func (r *ReadFile) ReadAt(offset int64, size int) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := r.file.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("fileset: read %s at %d: %w", r.path, offset, err)
	}
	return buf, nil
}

// Size reports the file's current size in bytes.
func (r *ReadFile) Size() (int64, error) {
	stat, err := r.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("fileset: stat %s: %w", r.path, err)
	}
	return stat.Size(), nil
}

// Close closes the file.
func (r *ReadFile) Close() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("fileset: close %s: %w", r.path, err)
	}
	return nil
}

// Remove unlinks path, used by merge to drop a data file once its live
// records have been rewritten into a merged file.
func Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("fileset: remove %s: %w", path, err)
	}
	slog.Debug("fileset: removed", "path", path)
	return nil
}

// Rename moves path to newPath, used by merge to renumber the active
// data file down to the lowest free ordinal once every sealed file
// preceding it has been merged away.
func Rename(path, newPath string) error {
	if err := os.Rename(path, newPath); err != nil {
		return fmt.Errorf("fileset: rename %s to %s: %w", path, newPath, err)
	}
	slog.Debug("fileset: renamed", "from", path, "to", newPath)
	return nil
}
