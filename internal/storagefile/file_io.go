package storagefile

import (
	"io"
	"os"
)

// fileIo is a thin wrapper over *os.File offering the three open modes
// and positional operations spec.md §4.1 requires: positional reads
// fill the whole buffer or fail, appends return the pre-write end
// position, and fsync flushes both data and metadata. It generalizes
// the teacher's store.go (which only ever opened files in one mode)
// into the three distinct modes the spec names.
type fileIo struct {
	f *os.File
}

// openAppendRead opens (creating if needed) a file for append+read,
// matching spec.md §4.1's append+read mode used by segment data files.
func openAppendRead(path string) (*fileIo, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, flashqFromIOError(err, "opening file for append+read", false)
	}
	return &fileIo{f: f}, nil
}

// openWriteTruncate opens (creating if needed) a file for write, first
// truncating any existing content, as used by consumer-offset-store
// snapshots.
func openWriteTruncate(path string) (*fileIo, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, flashqFromIOError(err, "opening file for write+truncate", true)
	}
	return &fileIo{f: f}, nil
}

// openReadOnly opens an existing file read-only, used for sealed
// segments opened on demand.
func openReadOnly(path string) (*fileIo, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, flashqFromIOError(err, "opening file read-only", false)
	}
	return &fileIo{f: f}, nil
}

// readAt fills buf entirely from offset off; a short read is an error.
func (io_ *fileIo) readAt(buf []byte, off int64) error {
	n, err := io_.f.ReadAt(buf, off)
	if err != nil {
		return flashqFromIOError(err, "positional read", false)
	}
	if n != len(buf) {
		return flashqFromIOError(io.ErrUnexpectedEOF, "short positional read", false)
	}
	return nil
}

// writeAt writes buf at offset off.
func (io_ *fileIo) writeAt(buf []byte, off int64) error {
	if _, err := io_.f.WriteAt(buf, off); err != nil {
		return flashqFromIOError(err, "positional write", true)
	}
	return nil
}

// appendAt writes buf to the end of the file and returns the byte
// offset at which the new data begins.
func (io_ *fileIo) appendAt(buf []byte) (int64, error) {
	pos, err := io_.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, flashqFromIOError(err, "seeking to end for append", true)
	}
	if _, err := io_.f.Write(buf); err != nil {
		return 0, flashqFromIOError(err, "appending data", true)
	}
	return pos, nil
}

// sync flushes both data and metadata to stable storage.
func (io_ *fileIo) sync() error {
	if err := io_.f.Sync(); err != nil {
		return flashqFromIOError(err, "fsync", true)
	}
	return nil
}

// size returns the current file size in bytes.
func (io_ *fileIo) size() (int64, error) {
	fi, err := io_.f.Stat()
	if err != nil {
		return 0, flashqFromIOError(err, "stat", false)
	}
	return fi.Size(), nil
}

// truncate truncates the file to exactly n bytes.
func (io_ *fileIo) truncate(n int64) error {
	if err := io_.f.Truncate(n); err != nil {
		return flashqFromIOError(err, "truncate", true)
	}
	return nil
}

func (io_ *fileIo) close() error {
	return io_.f.Close()
}

func (io_ *fileIo) name() string {
	return io_.f.Name()
}

func (io_ *fileIo) file() *os.File {
	return io_.f
}
