package fileset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenCreatesLayout(t *testing.T) {
	root := t.TempDir()

	l, err := Open(root)
	require.NoError(t, err)

	for _, dir := range []string{l.DataDir, l.HintDir, l.MergedDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
}

func TestPathForSubstitutesZeroWithOne(t *testing.T) {
	require.Equal(t, PathFor("d", DataExt, 0), PathFor("d", DataExt, 1))
	require.Equal(t, filepath.Join("d", "00000001.bin"), PathFor("d", DataExt, 0))
	require.Equal(t, filepath.Join("d", "0000002A.bin"), PathFor("d", DataExt, 42))
}

func TestCountFiles(t *testing.T) {
	dir := t.TempDir()
	n, err := CountFiles(dir)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "00000001.bin"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00000002.bin"), []byte("y"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0755))

	n, err = CountFiles(dir)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestAppendFileTracksOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "00000001.bin")

	af, err := OpenAppend(path, false)
	require.NoError(t, err)
	defer af.Close()

	off1, err := af.Append([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, int64(0), off1)

	off2, err := af.Append([]byte("world!"))
	require.NoError(t, err)
	require.Equal(t, int64(5), off2)
	require.Equal(t, int64(11), af.Cursor())

	got, err := af.ReadAt(0, 5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestOpenAppendResumesCursorFromExistingSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "00000001.bin")

	af, err := OpenAppend(path, false)
	require.NoError(t, err)
	_, err = af.Append([]byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, af.Close())

	reopened, err := OpenAppend(path, false)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, int64(10), reopened.Cursor())
}

func TestOpenAppendSharedLockAllowsAnotherSharedLock(t *testing.T) {
	// A shared advisory lock does not exclude other shared lockers — only
	// an exclusive lock would. Strict single-writer enforcement needs
	// promotion to an exclusive lock, which this layer does not attempt
	// on its own.
	path := filepath.Join(t.TempDir(), "00000001.bin")

	first, err := OpenAppend(path, true)
	require.NoError(t, err)
	defer first.Close()

	second, err := OpenAppend(path, true)
	require.NoError(t, err)
	defer second.Close()
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "00000001.bin")
	require.NoError(t, os.WriteFile(path, []byte("abcdefgh"), 0644))

	rf, err := OpenRead(path)
	require.NoError(t, err)
	defer rf.Close()

	got, err := rf.ReadAt(2, 4)
	require.NoError(t, err)
	require.Equal(t, "cdef", string(got))

	size, err := rf.Size()
	require.NoError(t, err)
	require.Equal(t, int64(8), size)
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "00000001.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	require.NoError(t, Remove(path))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestRename(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "0000000A.bin")
	newPath := filepath.Join(dir, "00000001.bin")
	require.NoError(t, os.WriteFile(oldPath, []byte("payload"), 0644))

	require.NoError(t, Rename(oldPath, newPath))

	_, err := os.Stat(oldPath)
	require.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(newPath)
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))
}
