package redis

import (
	"Campus/internal/api/config"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	Rdb = NewClient(config.RedisConfig{Addr: mr.Addr()})
	t.Cleanup(func() { _ = Rdb.Close() })
	return mr
}

func TestTouchExpires(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, Touch(ctx, "viewing:1", 15*time.Second))
	ok, err := Exists(ctx, "viewing:1")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(16 * time.Second)
	ok, err = Exists(ctx, "viewing:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetOnce(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()

	first, err := SetOnce(ctx, "debounce:1:5", time.Second)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := SetOnce(ctx, "debounce:1:5", time.Second)
	require.NoError(t, err)
	assert.False(t, again)

	mr.FastForward(2 * time.Second)
	after, err := SetOnce(ctx, "debounce:1:5", time.Second)
	require.NoError(t, err)
	assert.True(t, after)
}

func TestDelReleasesSetOnce(t *testing.T) {
	setupMiniredis(t)
	ctx := context.Background()

	ok, err := SetOnce(ctx, "debounce:2:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, Del(ctx, "debounce:2:1", "missing"))
	ok, err = SetOnce(ctx, "debounce:2:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockOwnership(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()

	ok, err := TryLock(ctx, "lock", "owner-a", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = TryLock(ctx, "lock", "owner-b", time.Minute, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// 非持有者释放无效
	require.NoError(t, UnLock(ctx, "lock", "owner-b"))
	assert.True(t, mr.Exists("lock"))

	require.NoError(t, UnLock(ctx, "lock", "owner-a"))
	assert.False(t, mr.Exists("lock"))
}

func TestTryLockStopsOnContext(t *testing.T) {
	setupMiniredis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	ok, err := TryLock(ctx, "busy", "a", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = TryLock(ctx, "busy", "b", time.Minute, -1)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
