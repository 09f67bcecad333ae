package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goRedis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	return Wrap(goRedis.NewClient(&goRedis.Options{Addr: mr.Addr()})), mr
}

func TestAcquireAndReleaseLock(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	ok, err := c.AcquireLock(ctx, "lock", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.AcquireLock(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not get the lock")

	assert.ErrorIs(t, c.ReleaseLock(ctx, "lock", "b"), ErrLockNotHeld)
	require.NoError(t, c.ReleaseLock(ctx, "lock", "a"))

	ok, err = c.AcquireLock(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockExpires(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	ok, err := c.AcquireLock(ctx, "lock", "a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = c.AcquireLock(ctx, "lock", "b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.ErrorIs(t, c.ReleaseLock(ctx, "lock", "a"), ErrLockNotHeld)
}
