package storagefile

import (
	"fmt"
	"io"
	"os"

	"github.com/tysonmote/gommap"

	"github.com/mrshabel/flashq"
)

// mmapTable is a fixed-width-record file, memory-mapped for fast
// sequential appends and random reads. It generalizes the teacher's
// internal/log/index.go (which hard-coded one (u32,u64) layout) into a
// table parameterized by entry width, so the offset index and time
// index can share the grow-before-map / truncate-on-close machinery.
type mmapTable struct {
	file       *os.File
	mmap       gommap.MMap
	size       uint64
	entryWidth uint64
}

// newMmapTable opens (creating if needed) path and grows it to
// maxBytes before mapping, since a memory-mapped file cannot be grown
// afterward; the padding is truncated away again on close.
func newMmapTable(path string, entryWidth uint64, maxBytes int64) (*mmapTable, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, flashqFromIOError(err, "opening index file", false)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, flashqFromIOError(err, "stat index file", false)
	}
	size := uint64(fi.Size())

	if err := f.Truncate(maxBytes); err != nil {
		f.Close()
		return nil, flashqFromIOError(err, "growing index file for mmap", true)
	}

	m, err := gommap.Map(f.Fd(), gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, flashqFromIOError(err, "mmap index file", false)
	}

	return &mmapTable{file: f, mmap: m, size: size, entryWidth: entryWidth}, nil
}

// entryCount returns the number of complete entries currently written.
func (t *mmapTable) entryCount() uint64 {
	return t.size / t.entryWidth
}

// readEntry returns the raw bytes of the i-th entry (0-indexed). i ==
// -1 means "the last entry", matching the teacher's index.Read(-1)
// idiom for finding the most recent write on recovery.
func (t *mmapTable) readEntry(i int64) ([]byte, error) {
	if t.size == 0 {
		return nil, io.EOF
	}
	var idx uint64
	if i == -1 {
		idx = t.entryCount() - 1
	} else {
		idx = uint64(i)
	}
	pos := idx * t.entryWidth
	if t.size < pos+t.entryWidth {
		return nil, io.EOF
	}
	return t.mmap[pos : pos+t.entryWidth], nil
}

// appendEntry writes entry (must be entryWidth bytes) to the end of
// the table, reporting InsufficientSpace once the mmapped region
// (bounded at open time by maxBytes) is exhausted.
func (t *mmapTable) appendEntry(entry []byte) error {
	if uint64(len(t.mmap)) < t.size+t.entryWidth {
		return flashq.StorageErrorFromKind(flashq.InsufficientSpace,
			fmt.Sprintf("index table %s is at its configured capacity", t.name()))
	}
	copy(t.mmap[t.size:t.size+t.entryWidth], entry)
	t.size += t.entryWidth
	return nil
}

// truncateEntries discards all entries from index i (inclusive)
// onward, used during tail-corruption recovery.
func (t *mmapTable) truncateEntries(i uint64) {
	pos := i * t.entryWidth
	if pos < t.size {
		t.size = pos
	}
}

func (t *mmapTable) syncOpportunistic() {
	_ = t.mmap.Sync(gommap.MS_ASYNC)
}

func (t *mmapTable) close() error {
	if err := t.mmap.Sync(gommap.MS_SYNC); err != nil {
		return flashqFromIOError(err, "sync mmap index", true)
	}
	if err := t.file.Sync(); err != nil {
		return flashqFromIOError(err, "sync index file", true)
	}
	if err := t.mmap.UnsafeUnmap(); err != nil {
		return flashqFromIOError(err, "unmap index file", true)
	}
	if err := t.file.Truncate(int64(t.size)); err != nil {
		return flashqFromIOError(err, "truncate index file", true)
	}
	return t.file.Close()
}

func (t *mmapTable) name() string {
	return t.file.Name()
}
