package storagefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mrshabel/flashq"
)

// offsetStoreData is the on-disk JSON shape of a consumer group's
// snapshot file, grounded on original_source's OffsetStoreData.
type offsetStoreData struct {
	GroupID string            `json:"group_id"`
	Offsets map[string]uint64 `json:"offsets"`
}

// ConsumerOffsetStore is the file-backed implementation of
// flashq.ConsumerOffsetStore: one JSON snapshot file per group at
// <data_dir>/consumer_groups/<group_id>.json, keyed by
// "<topic>--<partition_id>", with monotonic-only persistence and
// tolerant parsing of unknown or malformed keys (spec.md §4.7).
type ConsumerOffsetStore struct {
	groupID  string
	filePath string
	syncMode flashq.SyncMode

	mu        sync.RWMutex
	snapshots map[string]uint64

	logger *zap.Logger
}

func snapshotKey(topic string, partition flashq.PartitionID) string {
	return fmt.Sprintf("%s--%d", topic, partition)
}

// parseSnapshotKey tolerates unknown or malformed keys by returning
// ok=false rather than an error, so one corrupt entry never prevents
// loading the rest of a group's snapshot.
func parseSnapshotKey(key string) (topic string, partition flashq.PartitionID, ok bool) {
	idx := strings.LastIndex(key, "--")
	if idx < 0 {
		return "", 0, false
	}
	topic = key[:idx]
	partStr := key[idx+2:]
	n, err := strconv.ParseUint(partStr, 10, 32)
	if err != nil {
		return "", 0, false
	}
	return topic, flashq.PartitionID(n), true
}

func newConsumerOffsetStore(dataDir, groupID string, syncMode flashq.SyncMode) (*ConsumerOffsetStore, error) {
	groupsDir := filepath.Join(dataDir, "consumer_groups")
	if err := ensureDirectoryExists(groupsDir); err != nil {
		return nil, flashq.FromIOError(err, "creating consumer_groups directory", true)
	}
	filePath := filepath.Join(groupsDir, groupID+".json")

	snapshots, err := loadSnapshotsFromDisk(filePath)
	if err != nil {
		return nil, err
	}

	store := &ConsumerOffsetStore{
		groupID:   groupID,
		filePath:  filePath,
		syncMode:  syncMode,
		snapshots: snapshots,
		logger:    zap.L().Named("storagefile.consumer_offset_store"),
	}
	if err := store.persistToDisk(); err != nil {
		return nil, err
	}
	return store, nil
}

func loadSnapshotsFromDisk(filePath string) (map[string]uint64, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]uint64{}, nil
		}
		return nil, flashq.FromIOError(err, "reading consumer offset snapshot", false)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]uint64{}, nil
	}

	var parsed offsetStoreData
	if err := json.Unmarshal(data, &parsed); err != nil {
		// A snapshot file that fails to parse is treated as empty
		// rather than fatal, matching the tolerant-parsing contract.
		return map[string]uint64{}, nil
	}

	snapshots := make(map[string]uint64, len(parsed.Offsets))
	for key, offset := range parsed.Offsets {
		topic, partition, ok := parseSnapshotKey(key)
		if !ok {
			continue
		}
		snapshots[snapshotKey(topic, partition)] = offset
	}
	return snapshots, nil
}

func (s *ConsumerOffsetStore) persistToDisk() error {
	data := offsetStoreData{GroupID: s.groupID, Offsets: make(map[string]uint64, len(s.snapshots))}
	for key, offset := range s.snapshots {
		data.Offsets[key] = offset
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return flashq.FromSerializationError(err, "encoding offset snapshot")
	}

	f, err := openWriteTruncate(s.filePath)
	if err != nil {
		return err
	}
	defer f.close()

	if err := f.writeAt(encoded, 0); err != nil {
		return err
	}
	if s.syncMode == flashq.SyncImmediate {
		return f.sync()
	}
	return nil
}

func (s *ConsumerOffsetStore) GroupID() string {
	return s.groupID
}

func (s *ConsumerOffsetStore) LoadSnapshot(topic string, partition flashq.PartitionID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshots[snapshotKey(topic, partition)], nil
}

// PersistSnapshot rejects a commit that would move a partition's
// committed offset backward; it returns (false, nil) rather than an
// error, since a stale commit is not itself a failure.
func (s *ConsumerOffsetStore) PersistSnapshot(topic string, partition flashq.PartitionID, offset uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := snapshotKey(topic, partition)
	if offset < s.snapshots[key] {
		s.logger.Warn("rejected non-monotonic consumer offset commit",
			zap.String("group", s.groupID), zap.String("key", key),
			zap.Uint64("committed", s.snapshots[key]), zap.Uint64("attempted", offset))
		return false, nil
	}

	s.snapshots[key] = offset
	if err := s.persistToDisk(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ConsumerOffsetStore) GetAllSnapshots() (map[string]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]uint64, len(s.snapshots))
	for k, v := range s.snapshots {
		out[k] = v
	}
	return out, nil
}

var _ flashq.ConsumerOffsetStore = (*ConsumerOffsetStore)(nil)
