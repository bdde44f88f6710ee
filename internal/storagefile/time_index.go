package storagefile

import "encoding/binary"

// timeIndexEntryWidth is sizeof(u64 timestamp_ms) + sizeof(u32
// relative_offset), little-endian per spec.md §4.2.
const timeIndexEntryWidth = 12

// timeIndex is the (timestamp_ms -> relative_offset) index from
// spec.md §4.2, non-decreasing in timestamp. The teacher has no
// equivalent structure; this is built as a sibling of offsetIndex over
// the shared mmapTable.
type timeIndex struct {
	table *mmapTable
}

func newTimeIndex(path string, cfg IndexingConfig) (*timeIndex, error) {
	t, err := newMmapTable(path, timeIndexEntryWidth, cfg.MaxIndexBytes)
	if err != nil {
		return nil, err
	}
	return &timeIndex{table: t}, nil
}

func (x *timeIndex) write(timestampMs uint64, relOffset uint32) error {
	var buf [timeIndexEntryWidth]byte
	binary.LittleEndian.PutUint64(buf[0:8], timestampMs)
	binary.LittleEndian.PutUint32(buf[8:12], relOffset)
	return x.table.appendEntry(buf[:])
}

func (x *timeIndex) entryAt(i uint64) (timestampMs uint64, relOffset uint32, ok bool) {
	b, err := x.table.readEntry(int64(i))
	if err != nil {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint64(b[0:8]), binary.LittleEndian.Uint32(b[8:12]), true
}

func (x *timeIndex) lastTimestamp() (uint64, bool) {
	n := x.table.entryCount()
	if n == 0 {
		return 0, false
	}
	ts, _, ok := x.entryAt(n - 1)
	return ts, ok
}

// findFloor returns the largest entry with timestamp_ms <= target,
// via binary search (the index is sorted by timestamp per spec.md
// §4.2).
func (x *timeIndex) findFloor(target uint64) (timestampMs uint64, relOffset uint32, ok bool) {
	n := x.table.entryCount()
	if n == 0 {
		return 0, 0, false
	}
	lo, hi := int64(0), int64(n)-1
	var best int64 = -1
	for lo <= hi {
		mid := (lo + hi) / 2
		ts, _, rerr := x.entryAt(uint64(mid))
		if !rerr {
			return 0, 0, false
		}
		if ts <= target {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if best == -1 {
		return 0, 0, false
	}
	ts, off, _ := x.entryAt(uint64(best))
	return ts, off, true
}

// truncateToRelOffset drops every entry whose relative offset is >=
// cutoff.
func (x *timeIndex) truncateToRelOffset(cutoff uint32) {
	n := x.table.entryCount()
	var keep uint64
	for i := uint64(0); i < n; i++ {
		_, off, ok := x.entryAt(i)
		if !ok || off >= cutoff {
			break
		}
		keep = i + 1
	}
	x.table.truncateEntries(keep)
}

func (x *timeIndex) entryCount() uint64 { return x.table.entryCount() }
func (x *timeIndex) close() error       { return x.table.close() }
func (x *timeIndex) name() string       { return x.table.name() }
