package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-sync/internal/expiry"
	"github.com/iliyamo/cinema-seat-sync/internal/model"
	"github.com/iliyamo/cinema-seat-sync/internal/realtime"
	"github.com/iliyamo/cinema-seat-sync/internal/seatlock"
)

func seatReq(show uint64, seat string) realtime.SeatRequest {
	return realtime.SeatRequest{ShowID: show, SeatID: seat}
}

func TestJoin_SnapshotMatchesLiveLocks(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	a := newConn(1, "a")
	f.join(t, a, 42)
	require.NoError(t, f.sync.Select(ctx, a, seatReq(42, "B2")))
	require.NoError(t, f.sync.Select(ctx, a, seatReq(42, "A1")))
	// another show must not leak into the snapshot
	require.NoError(t, f.store.Acquire(ctx, 43, "C3", "9/z"))

	b := newConn(2, "b")
	f.join(t, b, 42)

	msgs := b.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, realtime.EventInitialLockedSeats, msgs[0].Event)
	var seats []string
	require.NoError(t, json.Unmarshal(msgs[0].Data, &seats))
	assert.Equal(t, []string{"A1", "B2"}, seats)
}

func TestJoin_EmptySnapshotIsEmptyList(t *testing.T) {
	f := newSyncFixture(t)
	a := newConn(1, "a")
	f.join(t, a, 5)
	msgs := a.messages()
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `[]`, string(msgs[0].Data))
}

func TestSelect_BroadcastsToOthersAndSchedulesLapse(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	a, b := newConn(1, "a"), newConn(2, "b")
	f.join(t, a, 42)
	f.join(t, b, 42)
	a.reset()
	b.reset()

	require.NoError(t, f.sync.Select(ctx, a, seatReq(42, "c5")))

	assert.Empty(t, a.messages())
	assert.Equal(t, []string{"C5"}, b.received(t, realtime.EventSeatLocked))
	assert.True(t, f.sched.has(42, "C5"))

	lock, ok, err := f.store.Lookup(ctx, 42, "C5")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1/a", lock.Holder.String())
}

func TestSelect_AlreadyLockedGoesToRequesterOnly(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	a, b, c := newConn(1, "a"), newConn(2, "b"), newConn(3, "c")
	for _, x := range []*fakeConn{a, b, c} {
		f.join(t, x, 42)
		x.reset()
	}

	require.NoError(t, f.sync.Select(ctx, a, seatReq(42, "C5")))
	require.NoError(t, f.sync.Select(ctx, b, seatReq(42, "C5")))

	assert.Equal(t, []string{"C5"}, b.received(t, realtime.EventSeatAlreadyLocked))
	assert.Equal(t, 0, a.count(realtime.EventSeatAlreadyLocked))
	assert.Equal(t, 1, c.count(realtime.EventSeatLocked))
	assert.Equal(t, 0, c.count(realtime.EventSeatAlreadyLocked))
}

func TestSelect_ConcurrentSingleWinner(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	a, b, observer := newConn(1, "a"), newConn(2, "b"), newConn(3, "obs")
	for _, x := range []*fakeConn{a, b, observer} {
		f.join(t, x, 42)
		x.reset()
	}

	var wg sync.WaitGroup
	for _, x := range []*fakeConn{a, b} {
		wg.Add(1)
		go func(x *fakeConn) {
			defer wg.Done()
			assert.NoError(t, f.sync.Select(ctx, x, seatReq(42, "C5")))
		}(x)
	}
	wg.Wait()

	losers := a.count(realtime.EventSeatAlreadyLocked) + b.count(realtime.EventSeatAlreadyLocked)
	assert.Equal(t, 1, losers)
	assert.Equal(t, 1, observer.count(realtime.EventSeatLocked))
	// the loser sees the winner's seat-locked, the winner sees nothing
	assert.Equal(t, 1, a.count(realtime.EventSeatLocked)+b.count(realtime.EventSeatLocked))
}

func TestSelect_RequiresMembership(t *testing.T) {
	f := newSyncFixture(t)
	a := newConn(1, "a")

	require.NoError(t, f.sync.Select(context.Background(), a, seatReq(42, "A1")))
	assert.Equal(t, 1, a.count(realtime.EventError))

	f.join(t, a, 41)
	require.NoError(t, f.sync.Select(context.Background(), a, seatReq(42, "A1")))
	assert.Equal(t, 2, a.count(realtime.EventError))

	seats, err := f.store.ListActive(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, seats)
}

func TestSelect_InvalidSeat(t *testing.T) {
	f := newSyncFixture(t)
	a := newConn(1, "a")
	f.join(t, a, 1)
	a.reset()
	for _, seat := range []string{"K1", "A11", "A0", ""} {
		require.NoError(t, f.sync.Select(context.Background(), a, seatReq(1, seat)))
	}
	assert.Equal(t, 4, a.count(realtime.EventError))
}

func TestSelect_StoreUnavailable(t *testing.T) {
	f := newSyncFixture(t)
	a := newConn(1, "a")
	f.join(t, a, 1)
	a.reset()
	f.mr.Close()

	err := f.sync.Select(context.Background(), a, seatReq(1, "A1"))
	assert.ErrorIs(t, err, seatlock.ErrStoreUnavailable)
	assert.Equal(t, 1, a.count(realtime.EventError))
}

func TestDeselect(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	a, b := newConn(1, "a"), newConn(2, "b")
	f.join(t, a, 42)
	f.join(t, b, 42)
	require.NoError(t, f.sync.Select(ctx, a, seatReq(42, "D4")))
	a.reset()
	b.reset()

	// non-holder is ignored
	require.NoError(t, f.sync.Deselect(ctx, b, seatReq(42, "D4")))
	assert.Empty(t, a.messages())
	assert.Empty(t, b.messages())
	assert.True(t, f.sched.has(42, "D4"))

	require.NoError(t, f.sync.Deselect(ctx, a, seatReq(42, "D4")))
	assert.Empty(t, a.messages())
	assert.Equal(t, []string{"D4"}, b.received(t, realtime.EventSeatUnlocked))
	assert.False(t, f.sched.has(42, "D4"))

	seats, err := f.store.ListActive(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, seats)
}

func TestLapsed_BroadcastsToEveryone(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	a, b := newConn(1, "a"), newConn(2, "b")
	f.join(t, a, 42)
	f.join(t, b, 42)
	require.NoError(t, f.sync.Select(ctx, a, seatReq(42, "E5")))
	a.reset()
	b.reset()

	f.mr.FastForward(300 * time.Second)
	f.sync.Lapsed(ctx, expiry.Lapse{ShowID: 42, SeatID: "E5", Holder: "1/a"})

	assert.Equal(t, []string{"E5"}, a.received(t, realtime.EventSeatUnlocked))
	assert.Equal(t, []string{"E5"}, b.received(t, realtime.EventSeatUnlocked))
}

func TestLapsed_ReleasesIfStillHeld(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	a := newConn(1, "a")
	f.join(t, a, 42)
	require.NoError(t, f.sync.Select(ctx, a, seatReq(42, "E5")))

	f.sync.Lapsed(ctx, expiry.Lapse{ShowID: 42, SeatID: "E5", Holder: "1/a"})
	_, held, err := f.store.Lookup(ctx, 42, "E5")
	require.NoError(t, err)
	assert.False(t, held)
	assert.Equal(t, 1, a.count(realtime.EventSeatUnlocked))
}

func TestLapsed_SilentWhenReacquiredByOther(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	a, b := newConn(1, "a"), newConn(2, "b")
	f.join(t, a, 42)
	f.join(t, b, 42)
	require.NoError(t, f.sync.Select(ctx, a, seatReq(42, "E5")))
	f.mr.FastForward(300 * time.Second)
	require.NoError(t, f.sync.Select(ctx, b, seatReq(42, "E5")))
	a.reset()
	b.reset()

	f.sync.Lapsed(ctx, expiry.Lapse{ShowID: 42, SeatID: "E5", Holder: "1/a"})
	assert.Equal(t, 0, a.count(realtime.EventSeatUnlocked))
	assert.Equal(t, 0, b.count(realtime.EventSeatUnlocked))

	lock, held, err := f.store.Lookup(ctx, 42, "E5")
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, model.Holder{UserID: 2, ConnID: "b"}, lock.Holder)
}

func TestLockGoneAfterTTL(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	a := newConn(1, "a")
	f.join(t, a, 42)
	require.NoError(t, f.sync.Select(ctx, a, seatReq(42, "F6")))

	f.mr.FastForward(299 * time.Second)
	seats, err := f.sync.Snapshot(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []string{"F6"}, seats)

	f.mr.FastForward(time.Second)
	seats, err = f.sync.Snapshot(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, seats)
}

// With the in-process timer the lapse fires on its own and is cancelled by
// an explicit release.
func TestTimerLapseEndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := seatlock.New(rdb, 30*time.Millisecond)
	rooms := realtime.NewRoomManager(nil)
	sched := expiry.NewTimerScheduler()
	defer sched.Stop()
	s := NewSeatSync(store, rooms, rooms, sched, nil)
	sched.Bind(s.Lapsed)

	ctx := context.Background()
	a, b := newConn(1, "a"), newConn(2, "b")
	require.NoError(t, s.Join(ctx, a, 9))
	require.NoError(t, s.Join(ctx, b, 9))

	require.NoError(t, s.Select(ctx, a, seatReq(9, "A1")))
	require.Eventually(t, func() bool { return b.count(realtime.EventSeatUnlocked) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, b.count(realtime.EventSeatUnlocked))
	assert.Equal(t, 1, a.count(realtime.EventSeatUnlocked))

	require.NoError(t, s.Select(ctx, a, seatReq(9, "A2")))
	require.NoError(t, s.Deselect(ctx, a, seatReq(9, "A2")))
	assert.Equal(t, 0, sched.Pending())
	time.Sleep(60 * time.Millisecond)
	// one unlock from the deselect, none from a lapse
	assert.Equal(t, []string{"A1", "A2"}, b.received(t, realtime.EventSeatUnlocked))
}
