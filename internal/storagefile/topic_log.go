// Package storagefile implements the durable, segmented StorageBackend
// (spec.md §4.2-§4.4, §4.7, §4.10), adapting the teacher's
// store/index/segment/log machinery to the spec's frame format, dual
// sparse indexes, and SyncMode-aware durability.
package storagefile

import (
	"sync"

	"github.com/mrshabel/flashq"
)

// TopicLog is the file-backed implementation of flashq.TopicLog. Len and
// IsEmpty sum the record counts of all segments on each call and
// NextOffset reads the active segment; no separate counters are kept.
// Batched appends are chunked by batchBytes (see AppendBatch).
type TopicLog struct {
	mu         sync.RWMutex
	manager    *segmentManager
	batchBytes int
}

func newTopicLog(dir string, cfg flashq.Config, indexCfg IndexingConfig) (*TopicLog, error) {
	manager, err := newSegmentManager(dir, int64(cfg.SegmentSizeBytes), int64(cfg.TimeSeekBackBytes), cfg.SyncMode, indexCfg)
	if err != nil {
		return nil, err
	}
	return &TopicLog{manager: manager, batchBytes: cfg.BatchBytes}, nil
}

func (l *TopicLog) Append(record flashq.Record) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.manager.appendRecord(nowTimestamp(), record)
}

// AppendBatch writes records as one or more chunked appends sharing one
// timestamp and returns the last offset assigned. A new chunk starts
// whenever the next record's estimateRecordSize would take the chunk
// past batchBytes. A record whose estimate alone exceeds batchBytes
// forms a chunk of its own, and the estimate can fall below the encoded
// size (see estimateRecordSize), so a chunk's write can exceed
// batchBytes.
func (l *TopicLog) AppendBatch(records []flashq.Record) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(records) == 0 {
		return l.manager.nextOffset(), nil
	}

	ts := nowTimestamp()
	last := l.manager.nextOffset()

	chunkStart := 0
	chunkBytes := 0
	for i, r := range records {
		sz := estimateRecordSize(r)
		if chunkBytes > 0 && chunkBytes+sz > l.batchBytes {
			next, err := l.manager.appendRecordsBulk(ts, records[chunkStart:i])
			if err != nil {
				return 0, err
			}
			last = next - 1
			chunkStart = i
			chunkBytes = 0
		}
		chunkBytes += sz
	}
	if chunkStart < len(records) {
		next, err := l.manager.appendRecordsBulk(ts, records[chunkStart:])
		if err != nil {
			return 0, err
		}
		last = next - 1
	}

	return last, nil
}

func (l *TopicLog) GetRecordsFromOffset(offset uint64, count *int) ([]flashq.RecordWithOffset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if offset >= l.manager.nextOffset() {
		return []flashq.RecordWithOffset{}, nil
	}

	maxCount := 0
	if count != nil {
		if *count <= 0 {
			return []flashq.RecordWithOffset{}, nil
		}
		maxCount = *count
	}
	recs, err := l.manager.scanFromOffset(offset, maxCount, 0)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		return []flashq.RecordWithOffset{}, nil
	}
	return recs, nil
}

func (l *TopicLog) GetRecordsFromTimestamp(ts string, count *int) ([]flashq.RecordWithOffset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tsMs, err := timestampToMillis(ts)
	if err != nil {
		return nil, flashq.FromSerializationError(err, "parsing seek timestamp")
	}

	maxCount := 0
	if count != nil {
		if *count <= 0 {
			return []flashq.RecordWithOffset{}, nil
		}
		maxCount = *count
	}
	recs, err := l.manager.scanFromTimestamp(tsMs, maxCount, 0)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		return []flashq.RecordWithOffset{}, nil
	}
	return recs, nil
}

func (l *TopicLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int(l.manager.recordCount())
}

func (l *TopicLog) IsEmpty() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.manager.isEmpty()
}

func (l *TopicLog) NextOffset() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.manager.nextOffset()
}

// Sync flushes the active segment's data and index files to stable
// storage on demand. No append path calls it: under SyncMode::Periodic,
// as under SyncNone, appends do not fsync (see DESIGN.md).
func (l *TopicLog) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.manager.sync()
}

func (l *TopicLog) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.manager.close()
}

var _ flashq.TopicLog = (*TopicLog)(nil)
