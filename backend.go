package flashq

import (
	"github.com/mrshabel/flashq/internal/storagefile"
	"github.com/mrshabel/flashq/internal/storagemem"
)

// NewMemoryBackend returns the in-memory StorageBackend (spec.md §4.5):
// no durability, no recovery, process-lifetime only.
func NewMemoryBackend() StorageBackend {
	return storagemem.NewBackend()
}

// NewFileBackend returns the durable, segmented StorageBackend (spec.md
// §4.2-§4.4, §4.7, §4.10) configured by cfg. Construction acquires cfg's
// data directory lock; it fails with DirectoryLocked if another live
// process already holds it.
func NewFileBackend(cfg Config) (StorageBackend, error) {
	return storagefile.NewBackend(cfg)
}

// NewBackend dispatches to NewMemoryBackend or NewFileBackend based on
// cfg.StorageBackend, the discriminated-union factory from spec.md §4.8.
func NewBackend(cfg Config) (StorageBackend, error) {
	if cfg.StorageBackend == BackendFile {
		return NewFileBackend(cfg)
	}
	return NewMemoryBackend(), nil
}
