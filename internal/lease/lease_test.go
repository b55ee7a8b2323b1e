package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, ttl time.Duration) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLocker(rdb, ttl), mr
}

func TestLocker_AcquireIsExclusive(t *testing.T) {
	locker, _ := newTestLocker(t, time.Minute)
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "a1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "a1")
	assert.ErrorIs(t, err, ErrNotHeld)

	other, err := locker.Acquire(ctx, "a2")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, first.Release(ctx))

	again, err := locker.Acquire(ctx, "a1")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLease_RefreshExtendsTTL(t *testing.T) {
	locker, mr := newTestLocker(t, time.Minute)
	ctx := context.Background()

	ls, err := locker.Acquire(ctx, "a1")
	require.NoError(t, err)

	mr.FastForward(50 * time.Second)
	require.NoError(t, ls.Refresh(ctx))
	assert.Equal(t, time.Minute, mr.TTL(Key("a1")))
}

func TestLease_ExpiredLeaseCannotRefresh(t *testing.T) {
	locker, mr := newTestLocker(t, time.Minute)
	ctx := context.Background()

	ls, err := locker.Acquire(ctx, "a1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	thief, err := locker.Acquire(ctx, "a1")
	require.NoError(t, err)

	assert.ErrorIs(t, ls.Refresh(ctx), ErrNotHeld)

	// a stale holder must not drop the new holder's lease
	require.NoError(t, ls.Release(ctx))
	assert.True(t, mr.Exists(Key("a1")))

	require.NoError(t, thief.Release(ctx))
	assert.False(t, mr.Exists(Key("a1")))
}

func TestLocker_Held(t *testing.T) {
	locker, mr := newTestLocker(t, time.Minute)
	ctx := context.Background()

	held, err := locker.Held(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, held)

	ls, err := locker.Acquire(ctx, "a1")
	require.NoError(t, err)

	held, err = locker.Held(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, ls.Release(ctx))
	held, err = locker.Held(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, held)

	mr.SetError("connection refused")
	_, err = locker.Held(ctx, "a1")
	assert.Error(t, err)
}
