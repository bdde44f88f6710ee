package flashq

import "sync"

// Queue is the top-level, topic-sharded API described in spec.md §4.9:
// a concurrent map of topic name to TopicLog plus a registry of
// consumer groups, both behind their own reader-writer locks so that
// different topics and different groups never contend with each
// other.
type Queue struct {
	backend StorageBackend

	topicsMu sync.RWMutex
	topics   map[string]TopicLog

	groupsMu sync.RWMutex
	groups   map[string]ConsumerOffsetStore
}

// NewQueue wraps backend in a topic-sharded Queue.
func NewQueue(backend StorageBackend) *Queue {
	return &Queue{
		backend: backend,
		topics:  make(map[string]TopicLog),
		groups:  make(map[string]ConsumerOffsetStore),
	}
}

// getOrCreateTopic returns topic's TopicLog, creating it via the
// backend on first use with a race-free get-or-insert: the topic
// string is validated and the backend's Create is only ever invoked
// once per topic name even under concurrent callers.
func (q *Queue) getOrCreateTopic(topic string) (TopicLog, error) {
	q.topicsMu.RLock()
	log, ok := q.topics[topic]
	q.topicsMu.RUnlock()
	if ok {
		return log, nil
	}

	q.topicsMu.Lock()
	defer q.topicsMu.Unlock()
	if log, ok := q.topics[topic]; ok {
		return log, nil
	}

	log, err := q.backend.Create(topic)
	if err != nil {
		return nil, err
	}
	q.topics[topic] = log
	return log, nil
}

func (q *Queue) getTopic(topic string) (TopicLog, bool) {
	q.topicsMu.RLock()
	defer q.topicsMu.RUnlock()
	log, ok := q.topics[topic]
	return log, ok
}

// PostRecord appends one record to topic, creating the topic if this
// is its first record.
func (q *Queue) PostRecord(topic string, record Record) (uint64, error) {
	log, err := q.getOrCreateTopic(topic)
	if err != nil {
		return 0, err
	}
	return log.Append(record)
}

// PostRecords appends records to topic in order under consecutive
// offsets and returns the last offset assigned.
func (q *Queue) PostRecords(topic string, records []Record) (uint64, error) {
	log, err := q.getOrCreateTopic(topic)
	if err != nil {
		return 0, err
	}
	return log.AppendBatch(records)
}

// PollRecords returns up to count records from the start of topic, or
// all of them if count is nil. An unknown topic behaves as empty.
func (q *Queue) PollRecords(topic string, count *int) ([]RecordWithOffset, error) {
	return q.PollRecordsFromOffset(topic, 0, count)
}

// PollRecordsFromOffset returns up to count records from topic
// starting at offset.
func (q *Queue) PollRecordsFromOffset(topic string, offset uint64, count *int) ([]RecordWithOffset, error) {
	log, ok := q.getTopic(topic)
	if !ok {
		return []RecordWithOffset{}, nil
	}
	return log.GetRecordsFromOffset(offset, count)
}

// PollRecordsFromTime returns up to count records from topic with
// timestamp >= ts (RFC-3339).
func (q *Queue) PollRecordsFromTime(topic string, ts string, count *int) ([]RecordWithOffset, error) {
	log, ok := q.getTopic(topic)
	if !ok {
		return []RecordWithOffset{}, nil
	}
	return log.GetRecordsFromTimestamp(ts, count)
}

// ListTopics returns every topic name created so far, in no
// particular order.
func (q *Queue) ListTopics() []string {
	q.topicsMu.RLock()
	defer q.topicsMu.RUnlock()
	names := make([]string, 0, len(q.topics))
	for name := range q.topics {
		names = append(names, name)
	}
	return names
}

// CreateConsumerGroup registers groupID, creating its offset store via
// the backend. Calling it again for an existing group is a no-op that
// returns the existing store.
func (q *Queue) CreateConsumerGroup(groupID string) (ConsumerOffsetStore, error) {
	q.groupsMu.RLock()
	store, ok := q.groups[groupID]
	q.groupsMu.RUnlock()
	if ok {
		return store, nil
	}

	q.groupsMu.Lock()
	defer q.groupsMu.Unlock()
	if store, ok := q.groups[groupID]; ok {
		return store, nil
	}

	store, err := q.backend.CreateConsumerGroup(groupID)
	if err != nil {
		return nil, err
	}
	q.groups[groupID] = store
	return store, nil
}

// DeleteConsumerGroup drops groupID from the registry. It is a no-op
// if the group was never created.
func (q *Queue) DeleteConsumerGroup(groupID string) {
	q.groupsMu.Lock()
	defer q.groupsMu.Unlock()
	delete(q.groups, groupID)
}

// CommitConsumerGroupOffset records topic's committed offset for
// groupID, after validating it does not exceed topic's current high
// water mark (next_offset).
func (q *Queue) CommitConsumerGroupOffset(groupID, topic string, offset uint64) (bool, error) {
	store, err := q.CreateConsumerGroup(groupID)
	if err != nil {
		return false, err
	}

	log, err := q.getOrCreateTopic(topic)
	if err != nil {
		return false, err
	}
	if hwm := log.NextOffset(); offset > hwm {
		return false, InvalidOffsetError(offset, "commit exceeds topic high water mark")
	}

	return store.PersistSnapshot(topic, 0, offset)
}

// GetConsumerGroupOffset returns groupID's committed offset for topic,
// or 0 if the group has never committed against that topic.
func (q *Queue) GetConsumerGroupOffset(groupID, topic string) (uint64, error) {
	q.groupsMu.RLock()
	store, ok := q.groups[groupID]
	q.groupsMu.RUnlock()
	if !ok {
		return 0, nil
	}
	return store.LoadSnapshot(topic, 0)
}

// Close releases the underlying backend's process-wide resources
// (e.g. the file backend's DirectoryLock).
func (q *Queue) Close() error {
	return q.backend.Close()
}
