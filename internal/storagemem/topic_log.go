// Package storagemem implements the in-memory StorageBackend (spec.md
// §4.5): a dense ordered sequence of records held in a process's
// address space with no durability and no recovery.
package storagemem

import (
	"sort"
	"sync"
	"time"

	"github.com/mrshabel/flashq"
)

// TopicLog is the in-memory implementation of flashq.TopicLog. Append
// is O(1) amortised; offset reads are O(1) seek + O(count) copy;
// timestamp reads are O(log n) via binary search since timestamps are
// monotonic non-decreasing across the sequence.
type TopicLog struct {
	mu         sync.RWMutex
	records    []flashq.RecordWithOffset
	nextOffset uint64
}

// NewTopicLog creates an empty in-memory topic log.
func NewTopicLog() *TopicLog {
	return &TopicLog{}
}

func (l *TopicLog) Append(record flashq.Record) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := nowRFC3339()
	offset := l.nextOffset
	l.records = append(l.records, flashq.RecordWithOffset{
		Offset:    offset,
		Timestamp: ts,
		Record:    record,
	})
	l.nextOffset++
	return offset, nil
}

func (l *TopicLog) AppendBatch(records []flashq.Record) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(records) == 0 {
		return l.nextOffset, nil
	}

	ts := nowRFC3339()
	last := l.nextOffset
	for _, r := range records {
		l.records = append(l.records, flashq.RecordWithOffset{
			Offset:    l.nextOffset,
			Timestamp: ts,
			Record:    r,
		})
		last = l.nextOffset
		l.nextOffset++
	}
	return last, nil
}

func (l *TopicLog) GetRecordsFromOffset(offset uint64, count *int) ([]flashq.RecordWithOffset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if offset >= l.nextOffset {
		return []flashq.RecordWithOffset{}, nil
	}

	end := len(l.records)
	if count != nil && offset+uint64(*count) < uint64(end) {
		end = int(offset) + *count
	}

	out := make([]flashq.RecordWithOffset, end-int(offset))
	copy(out, l.records[offset:end])
	return out, nil
}

func (l *TopicLog) GetRecordsFromTimestamp(ts string, count *int) ([]flashq.RecordWithOffset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	target, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, flashq.FromSerializationError(err, "parsing seek timestamp")
	}

	idx := sort.Search(len(l.records), func(i int) bool {
		recTs, perr := time.Parse(time.RFC3339Nano, l.records[i].Timestamp)
		if perr != nil {
			return false
		}
		return !recTs.Before(target)
	})
	if idx >= len(l.records) {
		return []flashq.RecordWithOffset{}, nil
	}

	end := len(l.records)
	if count != nil && idx+*count < end {
		end = idx + *count
	}
	out := make([]flashq.RecordWithOffset, end-idx)
	copy(out, l.records[idx:end])
	return out, nil
}

func (l *TopicLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

func (l *TopicLog) IsEmpty() bool {
	return l.Len() == 0
}

func (l *TopicLog) NextOffset() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextOffset
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

var _ flashq.TopicLog = (*TopicLog)(nil)
