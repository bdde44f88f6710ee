package flashq

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SyncMode controls fsync cadence, per spec.md §4.7/§6.
type SyncMode int

const (
	// SyncNone relies on the OS page cache; no explicit fsync.
	SyncNone SyncMode = iota
	// SyncImmediate fsyncs after every durable write.
	SyncImmediate
	// SyncPeriodic preserves monotonicity for the caller; as with
	// SyncNone, appends and offset commits do not fsync in this mode.
	SyncPeriodic
)

func (m SyncMode) String() string {
	switch m {
	case SyncNone:
		return "none"
	case SyncImmediate:
		return "immediate"
	case SyncPeriodic:
		return "periodic"
	default:
		return "unknown"
	}
}

func (m SyncMode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

func (m *SyncMode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	switch s {
	case "none", "":
		*m = SyncNone
	case "immediate":
		*m = SyncImmediate
	case "periodic":
		*m = SyncPeriodic
	default:
		return fmt.Errorf("unknown sync_mode %q", s)
	}
	return nil
}

// BackendKind selects the StorageBackend implementation (spec.md §4.8).
type BackendKind int

const (
	BackendMemory BackendKind = iota
	BackendFile
)

func (k BackendKind) MarshalYAML() (interface{}, error) {
	if k == BackendFile {
		return "file", nil
	}
	return "memory", nil
}

func (k *BackendKind) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	switch s {
	case "file":
		*k = BackendFile
	case "memory", "":
		*k = BackendMemory
	default:
		return fmt.Errorf("unknown storage_backend %q", s)
	}
	return nil
}

const (
	defaultSegmentSizeBytes   = 1 << 30 // 1 GiB
	minBatchBytes             = 64 * 1024
	maxBatchBytes             = 1024 * 1024
	defaultTimeSeekBackBytes  = 1 << 20 // 1 MiB
	defaultDataDir            = "./data"
	batchBytesPerPageMultiple = 32
)

// Config is the configuration surface a serving layer passes to the
// core (spec.md §6).
type Config struct {
	StorageBackend    BackendKind `yaml:"storage_backend"`
	DataDir           string      `yaml:"data_dir"`
	SyncMode          SyncMode    `yaml:"sync_mode"`
	SegmentSizeBytes  uint64      `yaml:"segment_size_bytes"`
	BatchBytes        int         `yaml:"batch_bytes"`
	TimeSeekBackBytes int         `yaml:"time_seek_back_bytes"`
}

// DefaultConfig returns the configuration defaults from spec.md §6.
func DefaultConfig() Config {
	return Config{
		StorageBackend:    BackendMemory,
		DataDir:           defaultDataDir,
		SyncMode:          SyncNone,
		SegmentSizeBytes:  defaultSegmentSizeBytes,
		BatchBytes:        defaultBatchBytes(),
		TimeSeekBackBytes: defaultTimeSeekBackBytes,
	}
}

// defaultBatchBytes derives the default per-write batch budget from
// the OS page size, clamped to [64 KiB, 1 MiB] per spec.md §6.
func defaultBatchBytes() int {
	pageSize := os.Getpagesize()
	if pageSize <= 0 {
		pageSize = 4096
	}
	b := pageSize * batchBytesPerPageMultiple
	if b < minBatchBytes {
		return minBatchBytes
	}
	if b > maxBatchBytes {
		return maxBatchBytes
	}
	return b
}

// LoadConfig reads a YAML configuration file and overlays it onto
// DefaultConfig, following quadgatefoundation-fluxor's LoadYAML
// pattern of unmarshalling directly into a caller-owned struct.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.BatchBytes == 0 {
		cfg.BatchBytes = defaultBatchBytes()
	}
	if cfg.SegmentSizeBytes == 0 {
		cfg.SegmentSizeBytes = defaultSegmentSizeBytes
	}
	if cfg.TimeSeekBackBytes == 0 {
		cfg.TimeSeekBackBytes = defaultTimeSeekBackBytes
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	return cfg, nil
}
