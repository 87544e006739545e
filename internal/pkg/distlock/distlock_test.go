package distlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLock_MutualExclusion(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	key := CampaignKey("c1")

	a := NewLock(client, nil, key, time.Minute)
	b := NewLock(client, nil, key, time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("lock:"+key))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// b does not own the key, so its release is a no-op.
	require.NoError(t, b.Release(ctx))
	assert.True(t, mr.Exists("lock:"+key))

	require.NoError(t, a.Release(ctx))
	assert.False(t, mr.Exists("lock:"+key))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ExpiresAfterTTL(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "k", 30*time.Second)
	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)

	ok, err = NewRedisLock(client, "k", 30*time.Second).Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWithLock(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	key := CampaignKey("c2")

	ran, err := WithLock(ctx, NewLock(client, nil, key, time.Minute), func(context.Context) error {
		assert.True(t, mr.Exists("lock:"+key))
		return errors.New("boom")
	})
	assert.True(t, ran)
	assert.EqualError(t, err, "boom")
	assert.False(t, mr.Exists("lock:"+key), "lock released after fn")

	holder := NewLock(client, nil, key, time.Minute)
	_, err = holder.Acquire(ctx)
	require.NoError(t, err)

	called := false
	ran, err = WithLock(ctx, NewLock(client, nil, key, time.Minute), func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, ran)
	assert.False(t, called)
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	l := NewPGAdvisoryLock(db, CampaignKey("c3"))
	other := NewPGAdvisoryLock(db, CampaignKey("c3"))
	assert.Equal(t, l.lockID, other.lockID, "lock id is deterministic")

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WithArgs(l.lockID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release(ctx))
	require.NoError(t, l.Release(ctx), "second release is a no-op")

	ok, err = other.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := ConnectRedis(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, client)

	client, err = ConnectRedis(ctx, mr.Addr())
	require.NoError(t, err)
	require.NotNil(t, client)
	client.Close()

	client, err = ConnectRedis(ctx, "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	require.NotNil(t, client)
	client.Close()

	addr := mr.Addr()
	mr.Close()
	_, err = ConnectRedis(ctx, "redis://"+addr+"/0")
	assert.Error(t, err)
}
