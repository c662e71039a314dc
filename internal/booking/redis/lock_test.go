package redis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client backed by miniredis.
func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return NewRedis(client, nil), mr
}

func TestLock_OnlyOneOwner(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()

	ok, err := r.LockReconcile(ctx, "sess_1", "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.LockReconcile(ctx, "sess_1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second owner must not get the lock")

	// a different session is independent
	ok, err = r.LockReconcile(ctx, "sess_2", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnlock_OnlyReleasesOwnLock(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := r.LockReconcile(ctx, "sess_1", "worker-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, r.UnlockReconcile(ctx, "sess_1", "worker-b"))
	val, err := mr.Get("payment_lock:sess_1")
	require.NoError(t, err)
	assert.Equal(t, "worker-a", val)

	require.NoError(t, r.UnlockReconcile(ctx, "sess_1", "worker-a"))
	assert.False(t, mr.Exists("payment_lock:sess_1"))

	// unlocking a missing key is fine
	require.NoError(t, r.UnlockReconcile(ctx, "sess_1", "worker-a"))
}

func TestLock_ExpiresWithTTL(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := r.LockReconcile(ctx, "sess_ttl", "worker-a", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)

	ok, err = r.LockReconcile(ctx, "sess_ttl", "worker-b", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "lock must be free after its ttl")
}

func TestLock_ConcurrentAttempts(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()

	const attempts = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ok, err := r.LockReconcile(ctx, "sess_race", fmt.Sprintf("worker-%d", n), time.Minute)
			if err == nil && ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestHoldReservation(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, r.HoldReservation(ctx, "bk-1", time.Hour))
	assert.True(t, mr.Exists(HoldKey("bk-1")))
	assert.Equal(t, time.Hour, mr.TTL(HoldKey("bk-1")))

	mr.FastForward(time.Hour + time.Second)
	assert.False(t, mr.Exists(HoldKey("bk-1")))

	require.NoError(t, r.HoldReservation(ctx, "bk-2", time.Minute))
	require.NoError(t, r.ReleaseReservation(ctx, "bk-2"))
	assert.False(t, mr.Exists(HoldKey("bk-2")))

	assert.Error(t, r.HoldReservation(ctx, "bk-3", 0))
}

func TestHandleExpiredKey(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()

	var got []string
	handler := func(_ context.Context, bookingID string) { got = append(got, bookingID) }

	assert.True(t, r.HandleExpiredKey(ctx, "booking_hold:bk-9", handler))
	assert.False(t, r.HandleExpiredKey(ctx, "payment_lock:sess_1", handler))
	assert.False(t, r.HandleExpiredKey(ctx, "booking_hold:", handler))
	assert.False(t, r.HandleExpiredKey(ctx, "seat_lock:abc", handler))

	assert.Equal(t, []string{"bk-9"}, got)
}
