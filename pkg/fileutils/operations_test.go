package fileutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "thumb.webp")

	require.NoError(t, AtomicWrite(path, []byte("first"), 0o644))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	// Overwrites in place and leaves no temp file behind.
	require.NoError(t, AtomicWrite(path, []byte("second"), 0o644))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestMoveFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.cbz")
	dst := filepath.Join(dir, "sub", "dst.cbz")
	require.NoError(t, os.WriteFile(src, []byte("archive"), 0o644))
	require.NoError(t, EnsureDir(filepath.Dir(dst)))

	require.NoError(t, MoveFile(src, dst))

	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "archive", string(data))
}

func TestCopyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.cbz")
	dst := filepath.Join(dir, "dst.cbz")
	require.NoError(t, os.WriteFile(src, []byte("archive"), 0o600))

	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "archive", string(data))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestUniquePath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "book.cbz")

	// Nothing there yet: the path comes back untouched.
	assert.Equal(t, path, UniquePath(path))

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	assert.Equal(t, filepath.Join(dir, "book (1).cbz"), UniquePath(path))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "book (1).cbz"), []byte("x"), 0o644))
	assert.Equal(t, filepath.Join(dir, "book (2).cbz"), UniquePath(path))
}

func TestBaseNameWithoutExt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "book", BaseNameWithoutExt("/library/Series A/book.cbz"))
	assert.Equal(t, "book.v2", BaseNameWithoutExt("book.v2.cbz"))
	assert.Equal(t, "book", BaseNameWithoutExt("book"))
}

func TestIsHiddenName(t *testing.T) {
	t.Parallel()

	assert.True(t, IsHiddenName(".stumpignore"))
	assert.True(t, IsHiddenName(".DS_Store"))
	assert.False(t, IsHiddenName("Series A"))
}
