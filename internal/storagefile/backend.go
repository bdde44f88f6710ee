package storagefile

import (
	"path/filepath"
	"sync"

	"github.com/mrshabel/flashq"
)

// Backend is the file-backed implementation of flashq.StorageBackend.
// It acquires a DirectoryLock for the lifetime of the process, and
// creates one subdirectory per topic holding that topic's segments.
type Backend struct {
	cfg      flashq.Config
	indexCfg IndexingConfig
	lock     *DirectoryLock

	mu     sync.Mutex
	closed bool
}

// NewBackend acquires the data directory's lock and returns a ready
// Backend. Per-topic state is created lazily by Create, which recovers
// any segments already on disk for that topic.
func NewBackend(cfg flashq.Config) (*Backend, error) {
	lock, err := acquireDirectoryLock(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return &Backend{cfg: cfg, indexCfg: indexingConfigForSegment(int64(cfg.SegmentSizeBytes)), lock: lock}, nil
}

func (b *Backend) Create(topic string) (flashq.TopicLog, error) {
	if err := flashq.ValidateTopic(topic); err != nil {
		return nil, err
	}
	dir := filepath.Join(b.cfg.DataDir, topic)
	return newTopicLog(dir, b.cfg, b.indexCfg)
}

func (b *Backend) CreateConsumerGroup(groupID string) (flashq.ConsumerOffsetStore, error) {
	return newConsumerOffsetStore(b.cfg.DataDir, groupID, b.cfg.SyncMode)
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.lock.release()
}

var _ flashq.StorageBackend = (*Backend)(nil)
