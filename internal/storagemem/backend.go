package storagemem

import "github.com/mrshabel/flashq"

// Backend is the Memory variant of flashq.StorageBackend (spec.md
// §4.8). It has no shared process-wide state, so construction never
// fails and Close is a no-op.
type Backend struct{}

// NewBackend creates a memory-backed StorageBackend.
func NewBackend() *Backend {
	return &Backend{}
}

func (b *Backend) Create(topic string) (flashq.TopicLog, error) {
	if err := flashq.ValidateTopic(topic); err != nil {
		return nil, err
	}
	return NewTopicLog(), nil
}

func (b *Backend) CreateConsumerGroup(groupID string) (flashq.ConsumerOffsetStore, error) {
	return NewConsumerOffsetStore(groupID), nil
}

func (b *Backend) Close() error { return nil }

var _ flashq.StorageBackend = (*Backend)(nil)
