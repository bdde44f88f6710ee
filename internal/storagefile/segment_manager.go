package storagefile

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mrshabel/flashq"
)

// segmentManager owns every segment of one topic's log directory,
// ordered oldest to newest with exactly one active (writable) tail
// segment, generalizing the teacher's Log (setup/Append/Read/segments)
// to the spec's dual-index, SyncMode-aware segment and its rolling
// rule (spec.md §4.2/§4.3).
type segmentManager struct {
	dir      string
	syncMode flashq.SyncMode
	indexCfg IndexingConfig

	segmentSizeBytes  int64
	timeSeekBackBytes int64

	segments []*segment
	active   *segment

	logger *zap.Logger
}

// newSegmentManager recovers every existing segment under dir (if
// any) or creates the first one at offset 0.
func newSegmentManager(dir string, segmentSizeBytes int64, timeSeekBackBytes int64, syncMode flashq.SyncMode, indexCfg IndexingConfig) (*segmentManager, error) {
	if err := ensureDirectoryExists(dir); err != nil {
		return nil, err
	}

	m := &segmentManager{
		dir:               dir,
		syncMode:          syncMode,
		indexCfg:          indexCfg,
		segmentSizeBytes:  segmentSizeBytes,
		timeSeekBackBytes: timeSeekBackBytes,
		logger:            zap.L().Named("storagefile.segment_manager"),
	}

	baseOffsets, err := discoverBaseOffsets(dir)
	if err != nil {
		return nil, err
	}

	for _, base := range baseOffsets {
		s, err := recoverSegment(dir, base, syncMode, indexCfg)
		if err != nil {
			return nil, err
		}
		m.segments = append(m.segments, s)
	}

	if len(m.segments) == 0 {
		s, err := newSegment(dir, 0, syncMode, indexCfg)
		if err != nil {
			return nil, err
		}
		m.segments = append(m.segments, s)
	}

	m.active = m.segments[len(m.segments)-1]
	return m, nil
}

// discoverBaseOffsets enumerates every "<base>.log" data file in dir
// and returns the sorted, de-duplicated list of base offsets present.
func discoverBaseOffsets(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, flashq.FromIOError(err, "reading topic directory", false)
	}

	seen := map[uint64]bool{}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".log") {
			continue
		}
		baseStr := strings.TrimSuffix(name, ".log")
		base, perr := strconv.ParseUint(baseStr, 10, 64)
		if perr != nil {
			continue
		}
		seen[base] = true
	}

	bases := make([]uint64, 0, len(seen))
	for b := range seen {
		bases = append(bases, b)
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i] < bases[j] })
	return bases, nil
}

// rollIfNeeded seals the active segment and opens a new one once the
// active segment has reached segmentSizeBytes, per spec.md §4.2's
// rolling rule.
func (m *segmentManager) rollIfNeeded() error {
	if m.active.sizeBytes() < m.segmentSizeBytes {
		return nil
	}
	sealedBase := m.active.baseOffset
	next, err := newSegment(m.dir, m.active.nextOffset(), m.syncMode, m.indexCfg)
	if err != nil {
		return err
	}
	m.segments = append(m.segments, next)
	m.active = next
	m.logger.Info("rolled segment",
		zap.String("dir", m.dir), zap.Uint64("sealedBaseOffset", sealedBase), zap.Uint64("newBaseOffset", next.baseOffset))
	return nil
}

func (m *segmentManager) nextOffset() uint64 {
	return m.active.nextOffset()
}

func (m *segmentManager) recordCount() uint64 {
	var total uint64
	for _, s := range m.segments {
		total += s.recordCount()
	}
	return total
}

func (m *segmentManager) isEmpty() bool {
	return m.recordCount() == 0
}

// appendRecord appends one record to the active segment, rolling
// first if the active segment is already at capacity.
func (m *segmentManager) appendRecord(ts string, record flashq.Record) (uint64, error) {
	if err := m.rollIfNeeded(); err != nil {
		return 0, err
	}
	offset := m.active.nextOffset()
	if err := m.active.appendRecord(offset, ts, record); err != nil {
		return 0, err
	}
	return offset, nil
}

// appendRecordsBulk appends records as one batch to the active
// segment (rolling first if needed), sharing one timestamp, and
// returns the offset following the last record written.
func (m *segmentManager) appendRecordsBulk(ts string, records []flashq.Record) (uint64, error) {
	if len(records) == 0 {
		return m.active.nextOffset(), nil
	}
	if err := m.rollIfNeeded(); err != nil {
		return 0, err
	}
	startOffset := m.active.nextOffset()
	last, err := m.active.appendRecordsBulk(startOffset, ts, records)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// findSegment returns the segment whose offset range contains offset,
// via binary search over the ordered segment list.
func (m *segmentManager) findSegment(offset uint64) *segment {
	i := sort.Search(len(m.segments), func(i int) bool {
		return m.segments[i].baseOffset > offset
	})
	if i == 0 {
		return nil
	}
	return m.segments[i-1]
}

func (m *segmentManager) readRecordAt(offset uint64) (flashq.RecordWithOffset, error) {
	s := m.findSegment(offset)
	if s == nil || offset >= s.nextOffset() {
		return flashq.RecordWithOffset{}, flashq.InvalidOffsetError(offset, fmt.Sprintf("offset %d not present", offset))
	}
	return s.readRecordAt(offset)
}

// scanFromOffset streams records forward across segment boundaries
// starting at fromOffset, without reopening segments already held
// open, bounded by maxCount (0 meaning unbounded). maxBytes (0 meaning
// unbounded) is passed unchanged to each segment's scan, so it bounds
// the payload bytes read from each segment separately, not the total.
func (m *segmentManager) scanFromOffset(fromOffset uint64, maxCount int, maxBytes int) ([]flashq.RecordWithOffset, error) {
	startIdx := sort.Search(len(m.segments), func(i int) bool {
		return m.segments[i].baseOffset > fromOffset
	})
	if startIdx > 0 {
		startIdx--
	}

	var out []flashq.RecordWithOffset
	for i := startIdx; i < len(m.segments); i++ {
		remainingCount := 0
		if maxCount > 0 {
			remainingCount = maxCount - len(out)
			if remainingCount <= 0 {
				break
			}
		}
		remainingBytes := maxBytes
		recs, err := m.segments[i].scan(fromOffset, remainingCount, remainingBytes)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
		if maxCount > 0 && len(out) >= maxCount {
			break
		}
	}
	return out, nil
}

// scanFromTimestamp locates the first segment that can contain a record
// with timestamp >= tsMs via binary search over each segment's maximum
// indexed timestamp (per spec.md §4.3), then streams forward from there.
// Segment maxima are non-decreasing in segment order since segments seal
// in base-offset (and therefore append-time) order.
func (m *segmentManager) scanFromTimestamp(tsMs int64, maxCount int, maxBytes int) ([]flashq.RecordWithOffset, error) {
	startIdx := sort.Search(len(m.segments), func(i int) bool {
		maxTs, ok := m.segments[i].maxTimestampMs()
		return !ok || maxTs >= tsMs
	})

	for i := startIdx; i < len(m.segments); i++ {
		offset, ok, err := m.segments[i].seekByTimestamp(tsMs, m.timeSeekBackBytes)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		return m.scanFromOffset(offset, maxCount, maxBytes)
	}
	return nil, nil
}

func (m *segmentManager) sync() error {
	return m.active.sync()
}

func (m *segmentManager) close() error {
	var firstErr error
	for _, s := range m.segments {
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
