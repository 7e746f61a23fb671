package fileutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.xml")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.False(t, FileExists(filepath.Join(dir, "missing.xml")))
}

func TestDirectoryExists(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, DirectoryExists(dir))
	assert.False(t, DirectoryExists(filepath.Join(dir, "missing")))
}

func TestEnsureDirectoryExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDirectoryExists(dir))
	assert.True(t, DirectoryExists(dir))
	require.NoError(t, EnsureDirectoryExists(dir))
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("content"), 0600))

	data, err := ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	_, err = ReadFile(filepath.Join(dir, "missing"))
	assert.ErrorContains(t, err, "does not exist")
}

func TestWriteFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "out.yaml")

	require.NoError(t, WriteFile(file, []byte("first"), 0644))
	require.NoError(t, WriteFile(file, []byte("second"), 0644))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(file))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must be cleaned up")
}

func TestCreateFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "sub", "report.csv")
	f, err := CreateFile(file)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.True(t, FileExists(file))
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "m.xml")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0600))

	dst, err := MoveFile(src, filepath.Join(dir, "processed"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "processed", "m.xml"), dst)
	assert.False(t, FileExists(src))
	assert.True(t, FileExists(dst))
}

func TestListFilesWithExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.xml", "a.XML", "c.txt", ".hidden.xml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "d.xml"), []byte("x"), 0600))

	files, err := ListFilesWithExtension(dir, ".xml")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.XML"), filepath.Join(dir, "b.xml")}, files)

	_, err = ListFilesWithExtension(filepath.Join(dir, "missing"), ".xml")
	assert.Error(t, err)
}
