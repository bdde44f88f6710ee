package storagefile

// IndexingConfig controls how densely a segment's offset and time
// indexes are populated (spec.md §3's "sparse... default: one per
// record for small records; implementation picks an interval in
// [0, 4 KiB)").
type IndexingConfig struct {
	// IndexIntervalBytes is the minimum byte gap from the last indexed
	// record before a new offset-index entry is written. 0 indexes
	// every record.
	IndexIntervalBytes uint32
	// MaxIndexBytes bounds the mmap-backed index file size, following
	// shake-karrot-lightkafka's segment.Config.IndexMaxBytes default.
	MaxIndexBytes int64
}

// DefaultIndexingConfig matches spec.md §3/§4.2's defaults.
func DefaultIndexingConfig() IndexingConfig {
	return IndexingConfig{
		IndexIntervalBytes: 0,
		MaxIndexBytes:      10 << 20, // 10 MiB
	}
}

// minIndexBytes floors a scaled index table size, mirroring
// shake-karrot-lightkafka/cmd/broker/main.go's IndexMaxBytes floor for
// its smallest configured segment size.
const minIndexBytes = 100 << 10 // 100 KiB

// indexingConfigForSegment scales MaxIndexBytes with segmentSizeBytes
// rather than holding a fixed 10 MiB regardless of segment size: a
// workload of many small records under the default IndexIntervalBytes
// of 0 (one offset-index entry per record) can otherwise exhaust a
// fixed-size index before its segment rolls. The 1% ratio matches
// shake-karrot-lightkafka's 10MiB-segment/100KiB-index default.
func indexingConfigForSegment(segmentSizeBytes int64) IndexingConfig {
	maxIndexBytes := segmentSizeBytes / 100
	if maxIndexBytes < minIndexBytes {
		maxIndexBytes = minIndexBytes
	}
	return IndexingConfig{
		IndexIntervalBytes: 0,
		MaxIndexBytes:      maxIndexBytes,
	}
}

// timeSeekBackBytesDefault bounds how far seek_by_timestamp rescans
// backward to find an earlier equal-timestamp boundary (spec.md §4.2).
const timeSeekBackBytesDefault = 1 << 20 // 1 MiB
