package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStemName(t *testing.T) {
	assert.Equal(t, "img1", StemName("/data/test/img1.jpg"))
	assert.Equal(t, "archive.tar", StemName("archive.tar.gz"))
	assert.Equal(t, "noext", StemName("dir/noext"))
}

func TestIsImageFile(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.JPEG", "c.png", "d.webp"} {
		assert.True(t, IsImageFile(name), name)
	}
	for _, name := range []string{"a.txt", "b.json", "noext"} {
		assert.False(t, IsImageFile(name), name)
	}
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.png", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o755))

	files, err := ListImageFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.jpg")}, files)
}

func TestExistenceHelpers(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(file))
	assert.True(t, PathExists(file))
	assert.False(t, PathExists(filepath.Join(dir, "missing")))

	empty, err := IsEmptyDir(dir)
	require.NoError(t, err)
	assert.False(t, empty)

	sub := filepath.Join(dir, "sub")
	require.NoError(t, EnsureDir(sub))
	empty, err = IsEmptyDir(sub)
	require.NoError(t, err)
	assert.True(t, empty)
}
