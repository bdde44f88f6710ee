package storagefile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/mrshabel/flashq"
)

// lockFileName is the sentinel advisory-lock file spec.md §4.10 places
// in a data directory to enforce one live process per directory.
const lockFileName = ".flashq.lock"

// DirectoryLock guards a data directory against concurrent access by
// more than one live process, via an OS-level advisory flock on a
// sentinel file recording the owning PID, a start timestamp, and a
// per-instance id. A lock whose recorded PID is no longer alive is
// reclaimed rather than treated as contention.
type DirectoryLock struct {
	path string
	f    *os.File
}

// acquireDirectoryLock takes the advisory lock for dir, reclaiming a
// stale lock (one whose owning PID is no longer live) instead of
// failing, per spec.md §4.10.
func acquireDirectoryLock(dir string) (*DirectoryLock, error) {
	if err := ensureDirectoryExists(dir); err != nil {
		return nil, flashq.FromIOError(err, "creating data directory", true)
	}

	path := filepath.Join(dir, lockFileName)
	logger := zap.L().Named("storagefile.directory_lock")

	if pid, ok := readLockOwnerPID(path); ok && processIsAlive(pid) {
		return nil, flashq.DirectoryLockedError(fmt.Sprintf("data directory %s already in use", dir), pid)
	} else if ok {
		instance, _ := readLockOwnerInstance(path)
		logger.Warn("reclaiming stale directory lock",
			zap.String("dir", dir), zap.Int("stalePID", pid), zap.String("staleInstance", instance))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, flashq.FromIOError(err, "opening lock file", true)
	}

	// flock() is scoped to the open-file-description, not the process:
	// even a second acquisition attempt by this same process opens a new
	// fd and genuinely contends with the first, so no same-process
	// exemption belongs here.
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, flashq.LockAcquisitionFailedError()
	}

	contents := fmt.Sprintf("PID: %d\nTimestamp: %s\nInstance: %s\n",
		os.Getpid(), time.Now().UTC().Format(time.RFC3339), uuid.NewString())
	if err := f.Truncate(0); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, flashq.FromIOError(err, "truncating lock file", true)
	}
	if _, err := f.WriteAt([]byte(contents), 0); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, flashq.FromIOError(err, "writing lock file", true)
	}
	_ = f.Sync()

	return &DirectoryLock{path: path, f: f}, nil
}

// readLockOwnerPID reads a lock file's recorded "PID: <n>" line,
// tolerating a missing or malformed file (ok=false in that case, since
// no readable owner means nothing to contend with).
func readLockOwnerPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if rest, found := strings.CutPrefix(line, "PID: "); found {
			pid, perr := strconv.Atoi(strings.TrimSpace(rest))
			if perr != nil {
				return 0, false
			}
			return pid, true
		}
	}
	return 0, false
}

// readLockOwnerInstance reads a lock file's recorded "Instance: <uuid>"
// line, used to name the reclaimed owner in diagnostics.
func readLockOwnerInstance(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if rest, found := strings.CutPrefix(line, "Instance: "); found {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}

// processIsAlive reports whether pid names a live process, via the
// POSIX convention of sending signal 0: delivery succeeds iff the
// process exists and is reachable.
func processIsAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func (l *DirectoryLock) release() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return flashq.FromIOError(err, "releasing directory lock", true)
	}
	if err := l.f.Close(); err != nil {
		return flashq.FromIOError(err, "closing lock file", true)
	}
	return os.Remove(l.path)
}
