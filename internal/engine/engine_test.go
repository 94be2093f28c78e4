package engine

import (
	"os"
	"testing"

	"github.com/arjunvostrikov/barrelkv/internal/bytestring"
	"github.com/stretchr/testify/require"
)

func defaultOptions() Options {
	return Options{ReadWrite: true, MaxFileSize: 1 << 20, KeydirCapacity: 64}
}

func openTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e, err := Open(t.TempDir(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestRoundTripDistinctKeys(t *testing.T) {
	e := openTestEngine(t, defaultOptions())

	for i := 0; i < 50; i++ {
		k := bytestring.From("key" + string(rune('a'+i%26)) + string(rune(i)))
		v := bytestring.From("value" + string(rune(i)))
		require.NoError(t, e.Put(k, v))
		got, err := e.Get(k)
		require.NoError(t, err)
		require.True(t, got.Equal(v))
	}
}

func TestOverwrite(t *testing.T) {
	e := openTestEngine(t, defaultOptions())
	k := bytestring.From("k")

	require.NoError(t, e.Put(k, bytestring.From("v1")))
	require.NoError(t, e.Put(k, bytestring.From("v2")))

	got, err := e.Get(k)
	require.NoError(t, err)
	require.Equal(t, "v2", got.String())
}

func TestDeleteThenAbsent(t *testing.T) {
	e := openTestEngine(t, defaultOptions())
	k := bytestring.From("k")

	require.NoError(t, e.Put(k, bytestring.From("v")))
	require.NoError(t, e.Delete(k))

	_, err := e.Get(k)
	requireKind(t, err, KindKeyMissing)

	err = e.Delete(k)
	requireKind(t, err, KindKeyMissing)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	opts := defaultOptions()

	e, err := Open(dir, opts)
	require.NoError(t, err)
	require.NoError(t, e.Put(bytestring.From("k"), bytestring.From("a")))
	require.NoError(t, e.Put(bytestring.From("k"), bytestring.From("b")))
	require.NoError(t, e.Close())

	reopened, err := Open(dir, opts)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(bytestring.From("k"))
	require.NoError(t, err)
	require.Equal(t, "b", got.String())
}

func TestPersistenceOfDeletes(t *testing.T) {
	dir := t.TempDir()
	opts := defaultOptions()

	e, err := Open(dir, opts)
	require.NoError(t, err)
	require.NoError(t, e.Put(bytestring.From("k"), bytestring.From("v")))
	require.NoError(t, e.Delete(bytestring.From("k")))
	require.NoError(t, e.Close())

	reopened, err := Open(dir, opts)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.Get(bytestring.From("k"))
	requireKind(t, err, KindKeyMissing)
}

func TestIntegrityDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	opts := defaultOptions()

	e, err := Open(dir, opts)
	require.NoError(t, err)
	require.NoError(t, e.Put(bytestring.From("k1"), bytestring.From("value-one")))
	require.NoError(t, e.Put(bytestring.From("k2"), bytestring.From("value-two")))
	require.NoError(t, e.Close())

	path := e.layout.DataPath(1)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0644))

	reopened, err := Open(dir, opts)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.Get(bytestring.From("k1"))
	requireKind(t, err, KindCrcFailed)

	got, err := reopened.Get(bytestring.From("k2"))
	require.NoError(t, err)
	require.Equal(t, "value-two", got.String())
}

func TestRotation(t *testing.T) {
	opts := defaultOptions()
	opts.MaxFileSize = 200
	dir := t.TempDir()

	e, err := Open(dir, opts)
	require.NoError(t, err)
	defer e.Close()

	for i := 0; i < 100; i++ {
		k := bytestring.From("rotation-key-" + string(rune('a'+i%26)) + string(rune(i)))
		require.NoError(t, e.Put(k, bytestring.From("some moderately sized value payload")))
	}

	n, err := e.layout.CountDataFiles()
	require.NoError(t, err)
	require.Greater(t, n, 1)
}

func TestMergeDropsTombstones(t *testing.T) {
	opts := defaultOptions()
	opts.MaxFileSize = 64
	dir := t.TempDir()

	e, err := Open(dir, opts)
	require.NoError(t, err)

	for i := 0; i < 40; i++ {
		k := bytestring.From("key" + string(rune('a'+i%26)) + string(rune(i)))
		require.NoError(t, e.Put(k, bytestring.From("val")))
	}
	require.NoError(t, e.Delete(bytestring.From("key"+string(rune('a'))+string(rune(0)))))
	require.NoError(t, e.Merge())
	require.NoError(t, e.Sync())
	require.NoError(t, e.Close())

	reopened, err := Open(dir, opts)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.Get(bytestring.From("key" + string(rune('a')) + string(rune(0))))
	requireKind(t, err, KindKeyMissing)

	got, err := reopened.Get(bytestring.From("key" + string(rune('a'+1)) + string(rune(1))))
	require.NoError(t, err)
	require.Equal(t, "val", got.String())
}

func TestMergeDropsSupersededRecords(t *testing.T) {
	opts := defaultOptions()
	opts.MaxFileSize = 64
	dir := t.TempDir()

	e, err := Open(dir, opts)
	require.NoError(t, err)

	k := bytestring.From("overwritten-key")
	require.NoError(t, e.Put(k, bytestring.From("stale-value")))
	for i := 0; i < 20; i++ {
		filler := bytestring.From("filler" + string(rune('a'+i%26)) + string(rune(i)))
		require.NoError(t, e.Put(filler, bytestring.From("val")))
	}
	require.NoError(t, e.Put(k, bytestring.From("fresh-value")))

	require.NoError(t, e.Merge())
	require.NoError(t, e.Close())

	reopened, err := Open(dir, opts)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(k)
	require.NoError(t, err)
	require.Equal(t, "fresh-value", got.String())
}

func TestMergeRenumbersActiveFile(t *testing.T) {
	opts := defaultOptions()
	opts.MaxFileSize = 64
	dir := t.TempDir()

	e, err := Open(dir, opts)
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		k := bytestring.From("mk" + string(rune('a'+i%26)) + string(rune(i)))
		require.NoError(t, e.Put(k, bytestring.From("val")))
	}

	activeKey := bytestring.From("active-key")
	require.NoError(t, e.Put(activeKey, bytestring.From("active-value")))

	require.NoError(t, e.Merge())

	n, err := e.layout.CountDataFiles()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, e.layout.DataPath(1), e.active.Path())

	require.NoError(t, e.Close())

	reopened, err := Open(dir, opts)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(activeKey)
	require.NoError(t, err)
	require.Equal(t, "active-value", got.String())

	require.NoError(t, reopened.Put(bytestring.From("after-reopen"), bytestring.From("v")))
	got, err = reopened.Get(bytestring.From("after-reopen"))
	require.NoError(t, err)
	require.Equal(t, "v", got.String())
}

func TestMergeRequiresTwoFiles(t *testing.T) {
	e := openTestEngine(t, defaultOptions())
	require.NoError(t, e.Put(bytestring.From("k"), bytestring.From("v")))

	err := e.Merge()
	requireKind(t, err, KindMerge)
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	dir := t.TempDir()
	writer, err := Open(dir, defaultOptions())
	require.NoError(t, err)
	require.NoError(t, writer.Put(bytestring.From("k"), bytestring.From("v")))
	require.NoError(t, writer.Close())

	reader, err := Open(dir, Options{ReadWrite: false, MaxFileSize: 1 << 20, KeydirCapacity: 64})
	require.NoError(t, err)
	defer reader.Close()

	err = reader.Put(bytestring.From("k2"), bytestring.From("v2"))
	requireKind(t, err, KindReadOnly)

	got, err := reader.Get(bytestring.From("k"))
	require.NoError(t, err)
	require.Equal(t, "v", got.String())
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	require.Error(t, err)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	require.Equal(t, kind, engErr.Kind)
}
