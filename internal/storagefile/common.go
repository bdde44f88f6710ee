package storagefile

import (
	"fmt"
	"os"
	"path/filepath"
)

// segmentFilenames returns the data/offset-index/time-index paths for
// a segment with the given base offset, using the %020d zero-padded
// naming from spec.md §3 (grounded on
// shake-karrot-lightkafka/internal/segment/file_io.go's %020d.log
// convention).
func segmentFilenames(dir string, baseOffset uint64) (dataPath, indexPath, timeIndexPath string) {
	name := fmt.Sprintf("%020d", baseOffset)
	return filepath.Join(dir, name+".log"),
		filepath.Join(dir, name+".index"),
		filepath.Join(dir, name+".timeindex")
}

// ensureDirectoryExists creates dir (and parents) if it does not yet
// exist.
func ensureDirectoryExists(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return nil
}
