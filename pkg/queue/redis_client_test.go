package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyguide.parallel/pkg/common"
)

func newClient(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := NewRedisClient(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q, mr
}

func TestNewRedisClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), addr)
	assert.Error(t, err)
}

func TestPushPopSlice(t *testing.T) {
	q, mr := newClient(t)
	ctx := context.Background()
	key := SliceKey("job", 0, 2)

	msg := &common.RowSliceMessage{
		Type:          common.MessageResult,
		Rank:          2,
		StartRow:      4,
		EndRow:        6,
		Width:         3,
		Height:        6,
		Stride:        12,
		Encoding:      common.EncodingRaw,
		Data:          []byte{1, 2, 3},
		TransformTime: 0.25,
	}
	require.NoError(t, q.PushSlice(ctx, key, msg))
	assert.True(t, mr.Exists(key))

	got, err := q.PopSlice(ctx, key, time.Second)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestPopSliceTimeout(t *testing.T) {
	q, _ := newClient(t)

	got, err := q.PopSlice(context.Background(), SliceKey("job", 0, 1), time.Second)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBarrierPrimitives(t *testing.T) {
	q, _ := newClient(t)
	ctx := context.Background()
	count, release := BarrierCountKey("job", 0), BarrierReleaseKey("job", 0)

	n, err := q.Arrive(ctx, count)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = q.Arrive(ctx, count)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, q.Release(ctx, release, 2))
	for i := 0; i < 2; i++ {
		ok, err := q.WaitToken(ctx, release, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := q.WaitToken(ctx, release, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, q.Delete(ctx, count))
	n, err = q.Arrive(ctx, count)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAbortKeepsFirstReason(t *testing.T) {
	q, _ := newClient(t)
	ctx := context.Background()
	key := AbortKey("job")

	_, aborted, err := q.GetAbort(ctx, key)
	require.NoError(t, err)
	assert.False(t, aborted)

	require.NoError(t, q.SetAbort(ctx, key, "rank 1: first"))
	require.NoError(t, q.SetAbort(ctx, key, "rank 2: second"))

	reason, aborted, err := q.GetAbort(ctx, key)
	require.NoError(t, err)
	assert.True(t, aborted)
	assert.Equal(t, "rank 1: first", reason)
}

func TestCountAndDeleteMatching(t *testing.T) {
	q, mr := newClient(t)
	ctx := context.Background()

	n, err := q.Count(ctx, BarrierCountKey("job", 0))
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = q.Arrive(ctx, BarrierCountKey("job", 0))
	require.NoError(t, err)
	require.NoError(t, q.SetAbort(ctx, AbortKey("job"), "rank 0: boom"))
	require.NoError(t, q.SetAbort(ctx, AbortKey("other"), "rank 0: boom"))

	n, err = q.Count(ctx, BarrierCountKey("job", 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	deleted, err := q.DeleteMatching(ctx, JobPattern("job"))
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.False(t, mr.Exists(AbortKey("job")))
	assert.True(t, mr.Exists(AbortKey("other")))
}
