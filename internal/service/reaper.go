package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-sync/internal/expiry"
	"github.com/iliyamo/cinema-seat-sync/internal/logger"
	"github.com/iliyamo/cinema-seat-sync/internal/metrics"
	"github.com/iliyamo/cinema-seat-sync/internal/realtime"
)

// Reaper cleans up after a connection ends.  Cleanup is best effort: locks
// it fails to release are reclaimed by the store's TTL.
type Reaper struct {
	store   lockStore
	rooms   *realtime.RoomManager
	bus     realtime.Broadcaster
	sched   expiry.Scheduler
	metrics *metrics.Metrics
}

func NewReaper(store lockStore, rooms *realtime.RoomManager, bus realtime.Broadcaster, sched expiry.Scheduler, m *metrics.Metrics) *Reaper {
	if m == nil {
		m = metrics.Discard()
	}
	return &Reaper{store: store, rooms: rooms, bus: bus, sched: sched, metrics: m}
}

// Disconnect removes c from its room and releases every seat it held
// there, announcing each one to the remaining members.  It returns the
// seats that were released.
func (r *Reaper) Disconnect(ctx context.Context, c Conn) []string {
	showID, ok := r.rooms.Leave(c.ID())
	if !ok {
		return nil
	}
	holder := c.Holder().String()
	seats, err := r.store.FindHeldBy(ctx, holder, showID)
	if err != nil {
		r.metrics.SeatLockOps.WithLabelValues("reap", "error").Inc()
		logger.Warn("reaper: listing held seats failed",
			zap.String("conn_id", c.ID()), zap.Uint64("show_id", showID), zap.Error(err))
		return nil
	}

	released := make([]string, 0, len(seats))
	for _, seat := range seats {
		ok, err := r.store.Release(ctx, showID, seat, holder)
		if err != nil {
			r.metrics.SeatLockOps.WithLabelValues("reap", "error").Inc()
			logger.Warn("reaper: release failed",
				zap.Uint64("show_id", showID), zap.String("seat_id", seat), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		r.metrics.SeatLockOps.WithLabelValues("reap", "ok").Inc()
		r.sched.Cancel(ctx, showID, seat)
		r.bus.Broadcast(ctx, showID, realtime.NewMessage(realtime.EventSeatUnlocked, seat), "")
		released = append(released, seat)
	}
	if len(released) > 0 {
		logger.Info("reaper: released seats of closed connection",
			zap.String("conn_id", c.ID()), zap.Uint64("show_id", showID), zap.Strings("seats", released))
	}
	return released
}
