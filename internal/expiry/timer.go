package expiry

import (
	"context"
	"sync"
	"time"
)

// TimerScheduler keeps lapses in process memory.  It suits a single
// instance; pending lapses are lost on restart and the lock store's TTL
// still reclaims the seats.
type TimerScheduler struct {
	mu      sync.Mutex
	pending map[string]*timerEntry
	gen     uint64
	handler Handler
}

type timerEntry struct {
	t   *time.Timer
	gen uint64
}

// NewTimerScheduler returns an empty scheduler.  Bind must be called before
// the first lapse fires or it is dropped.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{pending: make(map[string]*timerEntry)}
}

// Bind sets the function run for every lapse.
func (s *TimerScheduler) Bind(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *TimerScheduler) Schedule(_ context.Context, l Lapse, d time.Duration) error {
	key := seatKey(l.ShowID, l.SeatID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.pending[key]; ok {
		prev.t.Stop()
	}
	s.gen++
	gen := s.gen
	s.pending[key] = &timerEntry{
		gen: gen,
		t:   time.AfterFunc(d, func() { s.fire(key, gen, l) }),
	}
	return nil
}

// fire runs the handler unless the entry was cancelled or replaced after
// the timer had already started running.
func (s *TimerScheduler) fire(key string, gen uint64, l Lapse) {
	s.mu.Lock()
	e, ok := s.pending[key]
	if !ok || e.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	h := s.handler
	s.mu.Unlock()

	if h != nil {
		h(context.Background(), l)
	}
}

func (s *TimerScheduler) Cancel(_ context.Context, showID uint64, seatID string) {
	key := seatKey(showID, seatID)
	s.mu.Lock()
	if e, ok := s.pending[key]; ok {
		e.t.Stop()
		delete(s.pending, key)
	}
	s.mu.Unlock()
}

// Pending reports how many lapses are scheduled.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels everything.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	for k, e := range s.pending {
		e.t.Stop()
		delete(s.pending, k)
	}
	s.mu.Unlock()
}
