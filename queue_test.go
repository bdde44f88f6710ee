package flashq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	return NewQueue(NewMemoryBackend())
}

func TestQueuePostAndPollRecords(t *testing.T) {
	q := newTestQueue(t)

	off, err := q.PostRecord("t", Record{Value: "v1"})
	require.NoError(t, err)
	require.Equal(t, uint64(0), off)

	recs, err := q.PollRecords("t", nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, uint64(0), recs[0].Offset)
	require.Equal(t, "v1", recs[0].Record.Value)
}

func TestQueuePollUnknownTopicIsEmpty(t *testing.T) {
	q := newTestQueue(t)
	recs, err := q.PollRecords("missing", nil)
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestQueuePostRecordsBatch(t *testing.T) {
	q := newTestQueue(t)
	last, err := q.PostRecords("t", []Record{{Value: "a"}, {Value: "b"}})
	require.NoError(t, err)
	require.Equal(t, uint64(1), last)
}

func TestQueueListTopics(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.PostRecord("a", Record{Value: "v"})
	require.NoError(t, err)
	_, err = q.PostRecord("b", Record{Value: "v"})
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"a", "b"}, q.ListTopics())
}

func TestQueueConsumerGroupCommitMonotonic(t *testing.T) {
	q := newTestQueue(t)
	for i := 0; i < 5; i++ {
		_, err := q.PostRecord("t", Record{Value: "v"})
		require.NoError(t, err)
	}

	ok, err := q.CommitConsumerGroupOffset("g1", "t", 3)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = q.CommitConsumerGroupOffset("g1", "t", 2)
	require.NoError(t, err)
	require.False(t, ok)

	off, err := q.GetConsumerGroupOffset("g1", "t")
	require.NoError(t, err)
	require.Equal(t, uint64(3), off)

	// committing at the high water mark is accepted
	ok, err = q.CommitConsumerGroupOffset("g1", "t", 5)
	require.NoError(t, err)
	require.True(t, ok)

	// beyond the high water mark is rejected
	_, err = q.CommitConsumerGroupOffset("g1", "t", 99)
	require.Error(t, err)
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, InvalidOffsetKind, serr.Kind())
}

func TestQueueDeleteConsumerGroup(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.CreateConsumerGroup("g1")
	require.NoError(t, err)

	q.DeleteConsumerGroup("g1")

	off, err := q.GetConsumerGroupOffset("g1", "t")
	require.NoError(t, err)
	require.Equal(t, uint64(0), off)
}
