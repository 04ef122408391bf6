package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-sync/internal/expiry"
	"github.com/iliyamo/cinema-seat-sync/internal/logger"
	"github.com/iliyamo/cinema-seat-sync/internal/metrics"
	"github.com/iliyamo/cinema-seat-sync/internal/model"
	"github.com/iliyamo/cinema-seat-sync/internal/realtime"
	"github.com/iliyamo/cinema-seat-sync/internal/seatlock"
)

// lockStore is the subset of seatlock.Store the synchroniser uses.
type lockStore interface {
	TTL() time.Duration
	Acquire(ctx context.Context, showID uint64, seatID, holder string) error
	Release(ctx context.Context, showID uint64, seatID, holder string) (bool, error)
	Lookup(ctx context.Context, showID uint64, seatID string) (model.SeatLock, bool, error)
	ListActive(ctx context.Context, showID uint64) ([]string, error)
	FindHeldBy(ctx context.Context, holder string, showID uint64) ([]string, error)
}

// Conn is a live connection as seen by the service layer.
type Conn interface {
	realtime.Member
	Holder() model.Holder
}

// SeatSync turns client intents into lock store operations and lock store
// outcomes into room notifications.
type SeatSync struct {
	store   lockStore
	rooms   *realtime.RoomManager
	bus     realtime.Broadcaster
	sched   expiry.Scheduler
	metrics *metrics.Metrics
}

func NewSeatSync(store lockStore, rooms *realtime.RoomManager, bus realtime.Broadcaster, sched expiry.Scheduler, m *metrics.Metrics) *SeatSync {
	if m == nil {
		m = metrics.Discard()
	}
	return &SeatSync{store: store, rooms: rooms, bus: bus, sched: sched, metrics: m}
}

// Join moves c into the show's room and sends it the seats locked right
// now.  Joining first means any lock taken after the snapshot is read
// still reaches c as a broadcast.
func (s *SeatSync) Join(ctx context.Context, c Conn, showID uint64) error {
	if prev, moved := s.rooms.Join(c, showID); moved {
		logger.Debug("seat-sync: connection switched show",
			zap.String("conn_id", c.ID()), zap.Uint64("from", prev), zap.Uint64("to", showID))
	}
	seats, err := s.store.ListActive(ctx, showID)
	if err != nil {
		c.Send(realtime.ErrorMessage(realtime.EventJoinShow, "seat state unavailable"))
		return err
	}
	c.Send(realtime.NewMessage(realtime.EventInitialLockedSeats, seats))
	return nil
}

// Select makes one attempt to lock a seat for c.  The winner's room mates
// hear seat-locked; a loser hears seat-already-locked and nobody else
// hears anything.
func (s *SeatSync) Select(ctx context.Context, c Conn, req realtime.SeatRequest) error {
	seat, err := model.ParseSeat(req.SeatID)
	if err != nil {
		c.Send(realtime.ErrorMessage(realtime.EventSelectSeat, err.Error()))
		return nil
	}
	if show, ok := s.rooms.RoomOf(c.ID()); !ok || show != req.ShowID {
		c.Send(realtime.ErrorMessage(realtime.EventSelectSeat, "join the show before selecting seats"))
		return nil
	}

	holder := c.Holder().String()
	err = s.store.Acquire(ctx, req.ShowID, seat, holder)
	switch {
	case err == nil:
		s.metrics.SeatLockOps.WithLabelValues("acquire", "ok").Inc()
	case errors.Is(err, seatlock.ErrLockAlreadyHeld):
		s.metrics.SeatLockOps.WithLabelValues("acquire", "held").Inc()
		c.Send(realtime.NewMessage(realtime.EventSeatAlreadyLocked, seat))
		return nil
	default:
		s.metrics.SeatLockOps.WithLabelValues("acquire", "error").Inc()
		c.Send(realtime.ErrorMessage(realtime.EventSelectSeat, "seat lock unavailable"))
		return err
	}

	s.bus.Broadcast(ctx, req.ShowID, realtime.NewMessage(realtime.EventSeatLocked, seat), c.ID())

	lapse := expiry.Lapse{ShowID: req.ShowID, SeatID: seat, Holder: holder}
	if err := s.sched.Schedule(ctx, lapse, s.store.TTL()); err != nil {
		// the key still expires on its own, the room just is not told
		logger.Warn("seat-sync: schedule lapse failed",
			zap.Uint64("show_id", req.ShowID), zap.String("seat_id", seat), zap.Error(err))
	}
	return nil
}

// Deselect releases a seat held by c.  Releasing a seat c does not hold is
// silently ignored.
func (s *SeatSync) Deselect(ctx context.Context, c Conn, req realtime.SeatRequest) error {
	seat, err := model.ParseSeat(req.SeatID)
	if err != nil {
		c.Send(realtime.ErrorMessage(realtime.EventDeselectSeat, err.Error()))
		return nil
	}
	released, err := s.store.Release(ctx, req.ShowID, seat, c.Holder().String())
	if err != nil {
		s.metrics.SeatLockOps.WithLabelValues("release", "error").Inc()
		c.Send(realtime.ErrorMessage(realtime.EventDeselectSeat, "seat lock unavailable"))
		return err
	}
	if !released {
		s.metrics.SeatLockOps.WithLabelValues("release", "not_owner").Inc()
		return nil
	}
	s.metrics.SeatLockOps.WithLabelValues("release", "ok").Inc()
	s.sched.Cancel(ctx, req.ShowID, seat)
	s.bus.Broadcast(ctx, req.ShowID, realtime.NewMessage(realtime.EventSeatUnlocked, seat), c.ID())
	return nil
}

// Lapsed runs when a hold's lifetime is over.  The lock is released if the
// holder still owns it; the room is told unless somebody else has taken
// the seat in the meantime.
func (s *SeatSync) Lapsed(ctx context.Context, l expiry.Lapse) {
	released, err := s.store.Release(ctx, l.ShowID, l.SeatID, l.Holder)
	if err != nil {
		s.metrics.SeatLockOps.WithLabelValues("lapse", "error").Inc()
		logger.Warn("seat-sync: lapse release failed",
			zap.Uint64("show_id", l.ShowID), zap.String("seat_id", l.SeatID), zap.Error(err))
		return
	}
	if !released {
		cur, held, err := s.store.Lookup(ctx, l.ShowID, l.SeatID)
		if err != nil {
			s.metrics.SeatLockOps.WithLabelValues("lapse", "error").Inc()
			logger.Warn("seat-sync: lapse lookup failed",
				zap.Uint64("show_id", l.ShowID), zap.String("seat_id", l.SeatID), zap.Error(err))
			return
		}
		if held && cur.Holder.String() != l.Holder {
			s.metrics.SeatLockOps.WithLabelValues("lapse", "not_owner").Inc()
			logger.Debug("seat-sync: lapsed lock already taken over",
				zap.Uint64("show_id", l.ShowID), zap.String("seat_id", l.SeatID),
				zap.Uint64("holder_user_id", cur.Holder.UserID), zap.Time("expires_at", cur.ExpiresAt))
			return
		}
	}
	s.metrics.SeatLockOps.WithLabelValues("lapse", "ok").Inc()
	s.bus.Broadcast(ctx, l.ShowID, realtime.NewMessage(realtime.EventSeatUnlocked, l.SeatID), "")
}

// Snapshot returns the seats currently locked for a show.
func (s *SeatSync) Snapshot(ctx context.Context, showID uint64) ([]string, error) {
	return s.store.ListActive(ctx, showID)
}
