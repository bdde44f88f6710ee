package storagefile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileIoAppendAndReadAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	f, err := openAppendRead(path)
	require.NoError(t, err)
	defer f.close()

	pos, err := f.appendAt([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, int64(0), pos)

	pos, err = f.appendAt([]byte("world"))
	require.NoError(t, err)
	require.Equal(t, int64(5), pos)

	buf := make([]byte, 5)
	require.NoError(t, f.readAt(buf, 5))
	require.Equal(t, "world", string(buf))
}

func TestFileIoReadAtShortReadErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	f, err := openAppendRead(path)
	require.NoError(t, err)
	defer f.close()

	_, err = f.appendAt([]byte("ab"))
	require.NoError(t, err)

	buf := make([]byte, 10)
	require.Error(t, f.readAt(buf, 0))
}

func TestFileIoSizeAndTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	f, err := openAppendRead(path)
	require.NoError(t, err)
	defer f.close()

	_, err = f.appendAt([]byte("0123456789"))
	require.NoError(t, err)

	sz, err := f.size()
	require.NoError(t, err)
	require.Equal(t, int64(10), sz)

	require.NoError(t, f.truncate(4))
	sz, err = f.size()
	require.NoError(t, err)
	require.Equal(t, int64(4), sz)
}

func TestOpenWriteTruncateOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")

	f, err := openWriteTruncate(path)
	require.NoError(t, err)
	require.NoError(t, f.writeAt([]byte("first"), 0))
	require.NoError(t, f.close())

	f, err = openWriteTruncate(path)
	require.NoError(t, err)
	require.NoError(t, f.writeAt([]byte("ab"), 0))
	require.NoError(t, f.close())

	f, err = openReadOnly(path)
	require.NoError(t, err)
	defer f.close()
	sz, err := f.size()
	require.NoError(t, err)
	require.Equal(t, int64(2), sz)
}
