package storagemem

import (
	"fmt"
	"sync"

	"github.com/mrshabel/flashq"
)

// ConsumerOffsetStore is the in-memory ConsumerOffsetStore: no
// durability, same monotonic-commit rule as the file implementation.
type ConsumerOffsetStore struct {
	groupID string

	mu      sync.RWMutex
	offsets map[string]uint64
}

// NewConsumerOffsetStore creates an in-memory offset store for one consumer group.
func NewConsumerOffsetStore(groupID string) *ConsumerOffsetStore {
	return &ConsumerOffsetStore{
		groupID: groupID,
		offsets: make(map[string]uint64),
	}
}

func (s *ConsumerOffsetStore) GroupID() string { return s.groupID }

func snapshotKey(topic string, partition flashq.PartitionID) string {
	return fmt.Sprintf("%s--%d", topic, partition)
}

func (s *ConsumerOffsetStore) LoadSnapshot(topic string, partition flashq.PartitionID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offsets[snapshotKey(topic, partition)], nil
}

func (s *ConsumerOffsetStore) PersistSnapshot(topic string, partition flashq.PartitionID, offset uint64) (bool, error) {
	key := snapshotKey(topic, partition)

	s.mu.Lock()
	defer s.mu.Unlock()
	if offset < s.offsets[key] {
		return false, nil
	}
	s.offsets[key] = offset
	return true, nil
}

func (s *ConsumerOffsetStore) GetAllSnapshots() (map[string]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]uint64, len(s.offsets))
	for k, v := range s.offsets {
		out[k] = v
	}
	return out, nil
}

var _ flashq.ConsumerOffsetStore = (*ConsumerOffsetStore)(nil)
