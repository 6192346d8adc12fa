package data

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisHelpers(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	rdb, err := ConnectRedis(ctx, "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer rdb.Close()

	require.NoError(t, PublishStatus(ctx, rdb, 100, map[string]interface{}{"postId": "7", "status": "Pending"}))
	entries, err := rdb.XRange(ctx, StatusStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "7", entries[0].Values["postId"])

	require.NoError(t, MarkSession(ctx, rdb, "7", "host-a", time.Minute))
	owner, err := SessionOwner(ctx, rdb, "7")
	require.NoError(t, err)
	assert.Equal(t, "host-a", owner)

	require.NoError(t, ClearSession(ctx, rdb, "7"))
	owner, err = SessionOwner(ctx, rdb, "7")
	require.NoError(t, err)
	assert.Empty(t, owner)
}

func TestConnectRedisBadURL(t *testing.T) {
	_, err := ConnectRedis(context.Background(), "not a url")
	assert.Error(t, err)
}
