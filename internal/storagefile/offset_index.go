package storagefile

import "encoding/binary"

// offsetIndexEntryWidth is sizeof(u32 relative_offset) + sizeof(u32
// file_position), little-endian per spec.md §4.2.
const offsetIndexEntryWidth = 8

// offsetIndex is the sparse (relative_offset -> file_position) index
// described in spec.md §4.2, backed by a memory-mapped fixed-width
// table (mmapTable), generalizing the teacher's index.go from its
// hard-coded big-endian (u32,u64) layout to the spec's little-endian
// (u32,u32) layout.
type offsetIndex struct {
	table *mmapTable
}

func newOffsetIndex(path string, cfg IndexingConfig) (*offsetIndex, error) {
	t, err := newMmapTable(path, offsetIndexEntryWidth, cfg.MaxIndexBytes)
	if err != nil {
		return nil, err
	}
	return &offsetIndex{table: t}, nil
}

// readLast returns the relative offset and file position of the final
// entry, used to recompute a segment's next-write offset on recovery.
func (x *offsetIndex) readLast() (relOffset uint32, filePos uint32, ok bool) {
	b, err := x.table.readEntry(-1)
	if err != nil {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint32(b[0:4]), binary.LittleEndian.Uint32(b[4:8]), true
}

// findFloor returns the largest entry's (relative offset, file
// position) whose relative offset is <= target, or ok=false if the
// index is empty or has no such entry. Implemented as a plain binary
// search over the mmapped table.
func (x *offsetIndex) findFloor(target uint32) (relOffset uint32, filePos uint32, ok bool) {
	n := x.table.entryCount()
	if n == 0 {
		return 0, 0, false
	}
	lo, hi := int64(0), int64(n)-1
	var best int64 = -1
	for lo <= hi {
		mid := (lo + hi) / 2
		b, err := x.table.readEntry(mid)
		if err != nil {
			return 0, 0, false
		}
		off := binary.LittleEndian.Uint32(b[0:4])
		if off <= target {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if best == -1 {
		return 0, 0, false
	}
	b, err := x.table.readEntry(best)
	if err != nil {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint32(b[0:4]), binary.LittleEndian.Uint32(b[4:8]), true
}

func (x *offsetIndex) write(relOffset, filePos uint32) error {
	var buf [offsetIndexEntryWidth]byte
	binary.LittleEndian.PutUint32(buf[0:4], relOffset)
	binary.LittleEndian.PutUint32(buf[4:8], filePos)
	return x.table.appendEntry(buf[:])
}

// truncateToRelOffset drops every entry whose relative offset is >=
// cutoff, used when tail-corruption recovery discards a partially
// written frame.
func (x *offsetIndex) truncateToRelOffset(cutoff uint32) {
	n := x.table.entryCount()
	var keep uint64
	for i := uint64(0); i < n; i++ {
		b, err := x.table.readEntry(int64(i))
		if err != nil {
			break
		}
		if binary.LittleEndian.Uint32(b[0:4]) >= cutoff {
			break
		}
		keep = i + 1
	}
	x.table.truncateEntries(keep)
}

func (x *offsetIndex) entryCount() uint64 { return x.table.entryCount() }
func (x *offsetIndex) close() error       { return x.table.close() }
func (x *offsetIndex) name() string       { return x.table.name() }
