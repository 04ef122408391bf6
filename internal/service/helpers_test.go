package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-sync/internal/expiry"
	"github.com/iliyamo/cinema-seat-sync/internal/metrics"
	"github.com/iliyamo/cinema-seat-sync/internal/model"
	"github.com/iliyamo/cinema-seat-sync/internal/realtime"
	"github.com/iliyamo/cinema-seat-sync/internal/seatlock"
)

type fakeConn struct {
	holder model.Holder

	mu  sync.Mutex
	got []realtime.Message
}

func newConn(userID uint64, connID string) *fakeConn {
	return &fakeConn{holder: model.Holder{UserID: userID, ConnID: connID}}
}

func (c *fakeConn) ID() string           { return c.holder.ConnID }
func (c *fakeConn) Holder() model.Holder { return c.holder }

func (c *fakeConn) Send(m realtime.Message) bool {
	c.mu.Lock()
	c.got = append(c.got, m)
	c.mu.Unlock()
	return true
}

func (c *fakeConn) messages() []realtime.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]realtime.Message(nil), c.got...)
}

// received returns the decoded string payloads of every frame of event.
func (c *fakeConn) received(t *testing.T, event string) []string {
	t.Helper()
	var out []string
	for _, m := range c.messages() {
		if m.Event != event {
			continue
		}
		var s string
		require.NoError(t, json.Unmarshal(m.Data, &s))
		out = append(out, s)
	}
	return out
}

func (c *fakeConn) count(event string) int {
	n := 0
	for _, m := range c.messages() {
		if m.Event == event {
			n++
		}
	}
	return n
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.got = nil
	c.mu.Unlock()
}

// recordingScheduler remembers what is pending instead of running timers.
type recordingScheduler struct {
	mu        sync.Mutex
	pending   map[string]expiry.Lapse
	cancelled []string
}

func newRecordingScheduler() *recordingScheduler {
	return &recordingScheduler{pending: make(map[string]expiry.Lapse)}
}

func lapseKey(showID uint64, seat string) string {
	b, _ := json.Marshal([]interface{}{showID, seat})
	return string(b)
}

func (s *recordingScheduler) Schedule(_ context.Context, l expiry.Lapse, _ time.Duration) error {
	s.mu.Lock()
	s.pending[lapseKey(l.ShowID, l.SeatID)] = l
	s.mu.Unlock()
	return nil
}

func (s *recordingScheduler) Cancel(_ context.Context, showID uint64, seatID string) {
	s.mu.Lock()
	k := lapseKey(showID, seatID)
	delete(s.pending, k)
	s.cancelled = append(s.cancelled, k)
	s.mu.Unlock()
}

func (s *recordingScheduler) has(showID uint64, seat string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[lapseKey(showID, seat)]
	return ok
}

type syncFixture struct {
	mr     *miniredis.Miniredis
	store  *seatlock.Store
	rooms  *realtime.RoomManager
	sched  *recordingScheduler
	sync   *SeatSync
	reaper *Reaper
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	m := metrics.Discard()
	store := seatlock.New(rdb, 300*time.Second, seatlock.WithMetrics(m))
	rooms := realtime.NewRoomManager(m)
	sched := newRecordingScheduler()
	return &syncFixture{
		mr:     mr,
		store:  store,
		rooms:  rooms,
		sched:  sched,
		sync:   NewSeatSync(store, rooms, rooms, sched, m),
		reaper: NewReaper(store, rooms, rooms, sched, m),
	}
}

func (f *syncFixture) join(t *testing.T, c *fakeConn, showID uint64) {
	t.Helper()
	require.NoError(t, f.sync.Join(context.Background(), c, showID))
}
