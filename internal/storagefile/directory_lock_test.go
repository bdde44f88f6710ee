package storagefile

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mrshabel/flashq"
	"github.com/stretchr/testify/require"
)

func TestDirectoryLockContention(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	lock1, err := acquireDirectoryLock(dir)
	require.NoError(t, err)

	_, err = acquireDirectoryLock(dir)
	require.Error(t, err)
	var serr *flashq.StorageError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, flashq.DirectoryLockedKind, serr.Kind())

	require.FileExists(t, filepath.Join(dir, lockFileName))

	require.NoError(t, lock1.release())

	lock2, err := acquireDirectoryLock(dir)
	require.NoError(t, err)
	require.NoError(t, lock2.release())
}

func TestDirectoryLockReclaimsStaleLock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	stalePID := 999999 // astronomically unlikely to be a live PID
	content := fmt.Sprintf("PID: %d\nTimestamp: %s\n", stalePID, time.Now().UTC().Format(time.RFC3339))
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockFileName), []byte(content), 0o644))

	lock, err := acquireDirectoryLock(dir)
	require.NoError(t, err)
	require.NoError(t, lock.release())
}
