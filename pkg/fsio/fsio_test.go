package fsio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_CreatesFileWithContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/data/snapshot.json"

	err := WriteFileAtomic(fs, path, []byte(`{"hello":"world"}`), 0o644)
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, `{"hello":"world"}`, string(data))
}

func TestWriteFileAtomic_NoTempFileLeftBehind(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/data/snapshot.json"

	require.NoError(t, WriteFileAtomic(fs, path, []byte("a"), 0o644))

	leftovers, err := afero.Glob(fs, path+".tmp*")
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp file should be renamed away, not left behind")
}

func TestWriteFileAtomic_OverwritesExisting(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/data/snapshot.json"

	require.NoError(t, WriteFileAtomic(fs, path, []byte("first"), 0o644))
	require.NoError(t, WriteFileAtomic(fs, path, []byte("second"), 0o644))

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestWriteFileAtomic_OnRealFilesystem(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	fs := afero.NewOsFs()

	require.NoError(t, WriteFileAtomic(fs, path, []byte("line1\n"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line1\n", string(data))

	leftovers, err := filepath.Glob(path + ".tmp*")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestAppendLine_AddsNewlineIfMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/data/events.jsonl"

	require.NoError(t, AppendLine(fs, path, []byte(`{"a":1}`)))
	require.NoError(t, AppendLine(fs, path, []byte(`{"a":2}`)))

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n{\"a\":2}\n", string(data))
}

func TestWriterLock_SecondAcquireFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".writer.lock")

	first := NewWriterLock(path)
	ok, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer first.Unlock()

	second := NewWriterLock(path)
	ok, err = second.TryLock()
	require.NoError(t, err)
	assert.False(t, ok, "a second process must not acquire the writer lock while the first holds it")
}

func TestWriterLock_ReacquireAfterUnlock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".writer.lock")

	first := NewWriterLock(path)
	ok, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, first.Unlock())

	second := NewWriterLock(path)
	ok, err = second.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	second.Unlock()
}
