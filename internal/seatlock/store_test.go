package seatlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-sync/internal/metrics"
	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, 300*time.Second, WithMetrics(metrics.Discard())), mr
}

func TestStore_AcquireRelease(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Acquire(ctx, 7, "A1", "1/a"))
	assert.Equal(t, "1/a", mustGet(t, mr, "seatlock:7:A1"))
	assert.Equal(t, 300*time.Second, mr.TTL("seatlock:7:A1"))

	t.Run("second acquire fails, even for the same holder", func(t *testing.T) {
		assert.ErrorIs(t, s.Acquire(ctx, 7, "A1", "2/b"), ErrLockAlreadyHeld)
		assert.ErrorIs(t, s.Acquire(ctx, 7, "A1", "1/a"), ErrLockAlreadyHeld)
		assert.Equal(t, "1/a", mustGet(t, mr, "seatlock:7:A1"))
	})

	t.Run("same seat on another show is independent", func(t *testing.T) {
		require.NoError(t, s.Acquire(ctx, 8, "A1", "2/b"))
	})

	t.Run("release by non-owner is a no-op", func(t *testing.T) {
		ok, err := s.Release(ctx, 7, "A1", "2/b")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.True(t, mr.Exists("seatlock:7:A1"))
	})

	t.Run("release by owner removes the entry", func(t *testing.T) {
		ok, err := s.Release(ctx, 7, "A1", "1/a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.False(t, mr.Exists("seatlock:7:A1"))

		ok, err = s.Release(ctx, 7, "A1", "1/a")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_ExpiresAfterTTL(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Acquire(ctx, 7, "B3", "1/a"))
	mr.FastForward(299 * time.Second)
	_, ok, err := s.Lookup(ctx, 7, "B3")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(time.Second)
	_, ok, err = s.Lookup(ctx, 7, "B3")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Acquire(ctx, 7, "B3", "2/b"))
}

func TestStore_NonPositiveTTLUsesDefault(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	for _, ttl := range []time.Duration{0, -time.Second} {
		s := New(rdb, ttl)
		assert.Equal(t, DefaultTTL, s.TTL())
	}

	s := New(rdb, 0)
	require.NoError(t, s.Acquire(ctx, 7, "C1", "1/a"))
	assert.Equal(t, DefaultTTL, mr.TTL("seatlock:7:C1"))

	mr.FastForward(24 * time.Hour)
	assert.False(t, mr.Exists("seatlock:7:C1"))
}

func TestStore_Lookup(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	_, ok, err := s.Lookup(ctx, 7, "D4")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Acquire(ctx, 7, "D4", "12/conn-x"))
	lock, ok, err := s.Lookup(ctx, 7, "D4")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7), lock.ShowID)
	assert.Equal(t, "D4", lock.SeatID)
	assert.Equal(t, model.Holder{UserID: 12, ConnID: "conn-x"}, lock.Holder)
	assert.WithinDuration(t, time.Now().Add(300*time.Second), lock.ExpiresAt, 2*time.Second)

	require.NoError(t, mr.Set("seatlock:7:D5", "garbage"))
	_, _, err = s.Lookup(ctx, 7, "D5")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestStore_ListActiveAndFindHeldBy(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	for seat, holder := range map[string]string{"D2": "1/a", "D1": "1/a", "C5": "2/b"} {
		require.NoError(t, s.Acquire(ctx, 7, seat, holder))
	}
	require.NoError(t, s.Acquire(ctx, 70, "E1", "1/a"))

	active, err := s.ListActive(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"C5", "D1", "D2"}, active)

	held, err := s.FindHeldBy(ctx, "1/a", 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"D1", "D2"}, held)

	none, err := s.FindHeldBy(ctx, "3/c", 7)
	require.NoError(t, err)
	assert.Empty(t, none)

	empty, err := s.ListActive(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_ConcurrentAcquireHasOneWinner(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	const contenders = 32
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		losers  atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			err := s.Acquire(ctx, 42, "C5", holderN(i))
			switch {
			case err == nil:
				winners.Add(1)
			case assert.ErrorIs(t, err, ErrLockAlreadyHeld):
				losers.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, int32(contenders-1), losers.Load())
}

func TestStore_Unavailable(t *testing.T) {
	s, mr := newStore(t)
	mr.Close()
	ctx := context.Background()

	assert.ErrorIs(t, s.Acquire(ctx, 1, "A1", "1/a"), ErrStoreUnavailable)
	_, err := s.Release(ctx, 1, "A1", "1/a")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = s.ListActive(ctx, 1)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = s.FindHeldBy(ctx, "1/a", 1)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func holderN(i int) string {
	return string(rune('a'+i%26)) + "/" + string(rune('A'+i/26))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
