package storagefile

import (
	"testing"

	"github.com/mrshabel/flashq"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, segmentSizeBytes int64) *segmentManager {
	t.Helper()
	m, err := newSegmentManager(t.TempDir(), segmentSizeBytes, timeSeekBackBytesDefault, flashq.SyncNone, DefaultIndexingConfig())
	require.NoError(t, err)
	return m
}

func TestSegmentManagerStartsWithOneActiveSegment(t *testing.T) {
	m := newTestManager(t, 1<<20)
	require.Len(t, m.segments, 1)
	require.Equal(t, uint64(0), m.nextOffset())
}

func TestSegmentManagerAppendAndRead(t *testing.T) {
	m := newTestManager(t, 1<<20)

	for i := 0; i < 5; i++ {
		off, err := m.appendRecord(nowTimestamp(), flashq.Record{Value: "v"})
		require.NoError(t, err)
		require.Equal(t, uint64(i), off)
	}

	rec, err := m.readRecordAt(3)
	require.NoError(t, err)
	require.Equal(t, uint64(3), rec.Offset)
}

func TestSegmentManagerRollsOnSize(t *testing.T) {
	// a tiny segment size forces a roll after the first record
	m := newTestManager(t, 1)

	_, err := m.appendRecord(nowTimestamp(), flashq.Record{Value: "first"})
	require.NoError(t, err)
	require.Len(t, m.segments, 1)

	_, err = m.appendRecord(nowTimestamp(), flashq.Record{Value: "second"})
	require.NoError(t, err)
	require.Len(t, m.segments, 2)

	require.Equal(t, uint64(1), m.segments[1].baseOffset)

	rec, err := m.readRecordAt(0)
	require.NoError(t, err)
	require.Equal(t, "first", rec.Record.Value)
	rec, err = m.readRecordAt(1)
	require.NoError(t, err)
	require.Equal(t, "second", rec.Record.Value)
}

func TestSegmentManagerScanAcrossSegments(t *testing.T) {
	m := newTestManager(t, 1)
	for i := 0; i < 4; i++ {
		_, err := m.appendRecord(nowTimestamp(), flashq.Record{Value: "v"})
		require.NoError(t, err)
	}
	require.True(t, len(m.segments) > 1)

	recs, err := m.scanFromOffset(1, 0, 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, uint64(1), recs[0].Offset)
}

func TestSegmentManagerScanFromTimestampAcrossSegments(t *testing.T) {
	m := newTestManager(t, 1)

	_, err := m.appendRecordsBulk("2024-01-01T00:00:00Z", []flashq.Record{{Value: "a"}})
	require.NoError(t, err)
	_, err = m.appendRecordsBulk("2024-01-01T00:00:10Z", []flashq.Record{{Value: "b"}})
	require.NoError(t, err)

	tsMs, err := timestampToMillis("2024-01-01T00:00:05Z")
	require.NoError(t, err)

	recs, err := m.scanFromTimestamp(tsMs, 0, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "b", recs[0].Record.Value)
}

func TestSegmentManagerRecoversExistingSegments(t *testing.T) {
	dir := t.TempDir()
	m, err := newSegmentManager(dir, 1<<20, timeSeekBackBytesDefault, flashq.SyncNone, DefaultIndexingConfig())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := m.appendRecord(nowTimestamp(), flashq.Record{Value: "v"})
		require.NoError(t, err)
	}
	require.NoError(t, m.close())

	reopened, err := newSegmentManager(dir, 1<<20, timeSeekBackBytesDefault, flashq.SyncNone, DefaultIndexingConfig())
	require.NoError(t, err)
	defer reopened.close()

	require.Equal(t, uint64(3), reopened.nextOffset())
	require.Equal(t, uint64(3), reopened.recordCount())
}
