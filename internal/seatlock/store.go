// Package seatlock keeps ephemeral "who is holding seat X of show Y" facts
// in Redis.  Each (show, seat) pair is a single key whose value is the
// holder, so every acquire and release is one atomic operation against one
// entry and concurrent selections of the same seat have a single winner.
package seatlock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-seat-sync/internal/metrics"
	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

var (
	// ErrLockAlreadyHeld is returned by Acquire when the seat is taken.
	ErrLockAlreadyHeld = errors.New("seat already locked")
	// ErrStoreUnavailable wraps every transport or server error.
	ErrStoreUnavailable = errors.New("lock store unavailable")
)

// DefaultTTL is the lifetime of a lock that is never released.
const DefaultTTL = 300 * time.Second

const (
	defaultPrefix = "seatlock"
	scanBatch     = 100
)

// releaseScript deletes the key only when it still belongs to ARGV[1].
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// Store is the Redis-backed lock store.  The zero value is not usable; use
// New.
type Store struct {
	rdb     redis.UniversalClient
	ttl     time.Duration
	prefix  string
	metrics *metrics.Metrics
}

// Option customises a Store.
type Option func(*Store)

// WithPrefix changes the key namespace (default "seatlock").
func WithPrefix(p string) Option { return func(s *Store) { s.prefix = p } }

// WithMetrics records round-trip latency per operation.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Store) { s.metrics = m } }

// New returns a Store whose locks live for ttl.  A non-positive ttl would
// make locks permanent, so it selects DefaultTTL instead.
func New(rdb redis.UniversalClient, ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{rdb: rdb, ttl: ttl, prefix: defaultPrefix}
	for _, o := range opts {
		o(s)
	}
	return s
}

// TTL is the lifetime given to every new lock.
func (s *Store) TTL() time.Duration { return s.ttl }

// Key returns the store key for one seat of one show.
func (s *Store) Key(showID uint64, seatID string) string {
	return s.showPrefix(showID) + seatID
}

func (s *Store) showPrefix(showID uint64) string {
	return s.prefix + ":" + strconv.FormatUint(showID, 10) + ":"
}

// Acquire creates the lock for holder if no live entry exists.  It never
// overwrites an existing holder, including the same one.
func (s *Store) Acquire(ctx context.Context, showID uint64, seatID, holder string) error {
	defer s.observe("acquire", time.Now())
	ok, err := s.rdb.SetNX(ctx, s.Key(showID, seatID), holder, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: acquire %s: %v", ErrStoreUnavailable, seatID, err)
	}
	if !ok {
		return ErrLockAlreadyHeld
	}
	return nil
}

// Release removes the lock only if holder owns it.  A release by anyone
// else, or of a seat that is not locked, reports false and changes nothing.
func (s *Store) Release(ctx context.Context, showID uint64, seatID, holder string) (bool, error) {
	defer s.observe("release", time.Now())
	n, err := releaseScript.Run(ctx, s.rdb, []string{s.Key(showID, seatID)}, holder).Int()
	if err != nil {
		return false, fmt.Errorf("%w: release %s: %v", ErrStoreUnavailable, seatID, err)
	}
	return n == 1, nil
}

// Lookup returns the live lock on a seat, with its holder and the moment
// the store will drop it; ok is false when the
// seat is free.
func (s *Store) Lookup(ctx context.Context, showID uint64, seatID string) (lock model.SeatLock, ok bool, err error) {
	defer s.observe("get", time.Now())
	key := s.Key(showID, seatID)
	pipe := s.rdb.Pipeline()
	get := pipe.Get(ctx, key)
	pttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return model.SeatLock{}, false, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, seatID, err)
	}
	v, err := get.Result()
	if errors.Is(err, redis.Nil) {
		return model.SeatLock{}, false, nil
	}
	if err != nil {
		return model.SeatLock{}, false, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, seatID, err)
	}
	holder, err := model.ParseHolder(v)
	if err != nil {
		return model.SeatLock{}, false, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, key, err)
	}
	lock = model.SeatLock{ShowID: showID, SeatID: seatID, Holder: holder}
	if d := pttl.Val(); d > 0 {
		lock.ExpiresAt = time.Now().Add(d)
	}
	return lock, true, nil
}

// ListActive returns every currently locked seat of a show, sorted.
func (s *Store) ListActive(ctx context.Context, showID uint64) ([]string, error) {
	defer s.observe("list", time.Now())
	keys, err := s.scan(ctx, showID)
	if err != nil {
		return nil, err
	}
	seats := make([]string, 0, len(keys))
	pfx := s.showPrefix(showID)
	for _, k := range keys {
		seats = append(seats, strings.TrimPrefix(k, pfx))
	}
	sort.Strings(seats)
	return seats, nil
}

// FindHeldBy returns the seats of a show currently locked by holder,
// sorted.
func (s *Store) FindHeldBy(ctx context.Context, holder string, showID uint64) ([]string, error) {
	defer s.observe("find", time.Now())
	keys, err := s.scan(ctx, showID)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []string{}, nil
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: mget: %v", ErrStoreUnavailable, err)
	}
	pfx := s.showPrefix(showID)
	seats := make([]string, 0)
	for i, v := range vals {
		// entries that expired between SCAN and MGET come back nil
		if str, ok := v.(string); ok && str == holder {
			seats = append(seats, strings.TrimPrefix(keys[i], pfx))
		}
	}
	sort.Strings(seats)
	return seats, nil
}

func (s *Store) scan(ctx context.Context, showID uint64) ([]string, error) {
	var (
		cursor uint64
		keys   []string
		seen   = map[string]struct{}{}
	)
	match := s.showPrefix(showID) + "*"
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrStoreUnavailable, err)
		}
		// SCAN may return a key more than once
		for _, k := range batch {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (s *Store) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.LockStoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
