package storagefile

import (
	"encoding/binary"
	"testing"

	"github.com/mrshabel/flashq"
	"github.com/stretchr/testify/require"
)

func TestSegmentAppendAndReadRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := newSegment(dir, 0, flashq.SyncNone, DefaultIndexingConfig())
	require.NoError(t, err)
	defer s.close()

	require.True(t, s.isEmpty())
	require.Equal(t, uint64(0), s.nextOffset())

	for i := uint64(0); i < 3; i++ {
		require.NoError(t, s.appendRecord(i, nowTimestamp(), flashq.Record{Value: "v"}))
	}
	require.Equal(t, uint64(3), s.nextOffset())
	require.Equal(t, uint64(3), s.recordCount())

	rec, err := s.readRecordAt(1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), rec.Offset)
	require.Equal(t, "v", rec.Record.Value)
}

func TestSegmentReadRecordOutOfRange(t *testing.T) {
	dir := t.TempDir()
	s, err := newSegment(dir, 100, flashq.SyncNone, DefaultIndexingConfig())
	require.NoError(t, err)
	defer s.close()

	require.NoError(t, s.appendRecord(100, nowTimestamp(), flashq.Record{Value: "v"}))

	_, err = s.readRecordAt(99)
	require.Error(t, err)
	_, err = s.readRecordAt(101)
	require.Error(t, err)
}

func TestSegmentAppendRecordsBulkSharesTimestamp(t *testing.T) {
	dir := t.TempDir()
	s, err := newSegment(dir, 0, flashq.SyncNone, DefaultIndexingConfig())
	require.NoError(t, err)
	defer s.close()

	last, err := s.appendRecordsBulk(0, nowTimestamp(), []flashq.Record{
		{Value: "a"}, {Value: "b"}, {Value: "c"},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2), last)
	require.Equal(t, uint64(3), s.recordCount())

	r0, err := s.readRecordAt(0)
	require.NoError(t, err)
	r2, err := s.readRecordAt(2)
	require.NoError(t, err)
	require.Equal(t, r0.Timestamp, r2.Timestamp)
}

func TestSegmentScan(t *testing.T) {
	dir := t.TempDir()
	s, err := newSegment(dir, 0, flashq.SyncNone, DefaultIndexingConfig())
	require.NoError(t, err)
	defer s.close()

	for i := uint64(0); i < 5; i++ {
		require.NoError(t, s.appendRecord(i, nowTimestamp(), flashq.Record{Value: "v"}))
	}

	recs, err := s.scan(2, 0, 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, uint64(2), recs[0].Offset)

	recs, err = s.scan(0, 2, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
}

func TestSegmentSeekByTimestamp(t *testing.T) {
	dir := t.TempDir()
	s, err := newSegment(dir, 0, flashq.SyncNone, DefaultIndexingConfig())
	require.NoError(t, err)
	defer s.close()

	require.NoError(t, s.appendRecord(0, "2024-01-01T00:00:00Z", flashq.Record{Value: "early"}))
	require.NoError(t, s.appendRecord(1, "2024-01-01T00:00:10Z", flashq.Record{Value: "late"}))

	tsMs, err := timestampToMillis("2024-01-01T00:00:05Z")
	require.NoError(t, err)

	offset, ok, err := s.seekByTimestamp(tsMs, timeSeekBackBytesDefault)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), offset)
}

func TestSegmentSeekByTimestampBeyondAllRecords(t *testing.T) {
	dir := t.TempDir()
	s, err := newSegment(dir, 0, flashq.SyncNone, DefaultIndexingConfig())
	require.NoError(t, err)
	defer s.close()

	require.NoError(t, s.appendRecord(0, "2024-01-01T00:00:00Z", flashq.Record{Value: "v"}))

	tsMs, err := timestampToMillis("2025-01-01T00:00:00Z")
	require.NoError(t, err)
	_, ok, err := s.seekByTimestamp(tsMs, timeSeekBackBytesDefault)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSegmentRecoverRebuildsState(t *testing.T) {
	dir := t.TempDir()
	s, err := newSegment(dir, 0, flashq.SyncNone, DefaultIndexingConfig())
	require.NoError(t, err)
	for i := uint64(0); i < 4; i++ {
		require.NoError(t, s.appendRecord(i, nowTimestamp(), flashq.Record{Value: "v"}))
	}
	require.NoError(t, s.close())

	recovered, err := recoverSegment(dir, 0, flashq.SyncNone, DefaultIndexingConfig())
	require.NoError(t, err)
	defer recovered.close()

	require.Equal(t, uint64(4), recovered.nextOffset())
	require.Equal(t, uint64(4), recovered.recordCount())

	rec, err := recovered.readRecordAt(2)
	require.NoError(t, err)
	require.Equal(t, uint64(2), rec.Offset)
}

func TestSegmentRecoverTruncatesTornTail(t *testing.T) {
	dir := t.TempDir()
	s, err := newSegment(dir, 0, flashq.SyncNone, DefaultIndexingConfig())
	require.NoError(t, err)
	for i := uint64(0); i < 3; i++ {
		require.NoError(t, s.appendRecord(i, nowTimestamp(), flashq.Record{Value: "v"}))
	}
	require.NoError(t, s.close())

	dataPath, _, _ := segmentFilenames(dir, 0)
	f, err := openAppendRead(dataPath)
	require.NoError(t, err)
	// append a torn frame: a header claiming more payload than follows
	var hbuf [frameHeaderWidth]byte
	binary.BigEndian.PutUint64(hbuf[0:8], 3)
	binary.BigEndian.PutUint32(hbuf[8:12], 1000)
	_, err = f.appendAt(hbuf[:])
	require.NoError(t, err)
	_, err = f.appendAt([]byte("short"))
	require.NoError(t, err)
	require.NoError(t, f.close())

	recovered, err := recoverSegment(dir, 0, flashq.SyncNone, DefaultIndexingConfig())
	require.NoError(t, err)
	defer recovered.close()

	require.Equal(t, uint64(3), recovered.nextOffset())
	require.Equal(t, uint64(3), recovered.recordCount())

	// the segment accepts new appends starting at the pre-crash offset
	require.NoError(t, recovered.appendRecord(3, nowTimestamp(), flashq.Record{Value: "recovered"}))
	require.Equal(t, uint64(4), recovered.nextOffset())
}

// TestSegmentRecoverTruncatesTornTailOfLastIndexedRecord covers a crash
// that truncates the tail bytes of the last-written record, which (with
// the default one-entry-per-record indexing config) is also the most
// recently offset-indexed record: the "jump to last indexed entry"
// shortcut in recoverSegment must fall back to a full rescan rather than
// surface a raw short-read error.
func TestSegmentRecoverTruncatesTornTailOfLastIndexedRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := newSegment(dir, 0, flashq.SyncNone, DefaultIndexingConfig())
	require.NoError(t, err)
	for i := uint64(0); i < 3; i++ {
		require.NoError(t, s.appendRecord(i, nowTimestamp(), flashq.Record{Value: "v"}))
	}
	require.NoError(t, s.close())

	dataPath, _, _ := segmentFilenames(dir, 0)
	f, err := openAppendRead(dataPath)
	require.NoError(t, err)
	size, err := f.size()
	require.NoError(t, err)
	// chop the last 2 bytes off the data file, tearing the final
	// (already flushed, already offset-indexed) record's payload.
	require.NoError(t, f.truncate(size-2))
	require.NoError(t, f.close())

	recovered, err := recoverSegment(dir, 0, flashq.SyncNone, DefaultIndexingConfig())
	require.NoError(t, err)
	defer recovered.close()

	require.Equal(t, uint64(2), recovered.nextOffset())
	require.Equal(t, uint64(2), recovered.recordCount())

	require.NoError(t, recovered.appendRecord(2, nowTimestamp(), flashq.Record{Value: "recovered"}))
	require.Equal(t, uint64(3), recovered.nextOffset())
}
