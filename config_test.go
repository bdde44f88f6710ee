package flashq

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, BackendMemory, cfg.StorageBackend)
	require.Equal(t, SyncNone, cfg.SyncMode)
	require.GreaterOrEqual(t, cfg.BatchBytes, minBatchBytes)
	require.LessOrEqual(t, cfg.BatchBytes, maxBatchBytes)
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flashq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"storage_backend: file\ndata_dir: /tmp/flashq-data\nsync_mode: immediate\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, BackendFile, cfg.StorageBackend)
	require.Equal(t, "/tmp/flashq-data", cfg.DataDir)
	require.Equal(t, SyncImmediate, cfg.SyncMode)
	// fields absent from the file fall back to defaults
	require.Equal(t, uint64(defaultSegmentSizeBytes), cfg.SegmentSizeBytes)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/does/not/exist.yaml")
	require.Error(t, err)
}

func TestSyncModeUnmarshalRejectsUnknown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flashq.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync_mode: sometimes\n"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}
