package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-sync/internal/logger"
	"github.com/iliyamo/cinema-seat-sync/internal/model"
	"github.com/iliyamo/cinema-seat-sync/internal/queue"
)

const publishTimeout = 5 * time.Second

// EventPublisher delivers booking events to the broker; queue.Publisher
// implements it.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.BookingEvent) error
}

// publish sends the event in the background.  Broker trouble never fails
// or slows the request; it is logged and dropped.
func (s *BookingService) publish(typ string, b model.Booking) {
	if s.events == nil {
		return
	}
	ev := queue.NewBookingEvent(typ, b)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.events.Publish(ctx, ev); err != nil {
			logger.Warn("booking: publish event failed",
				zap.String("type", typ), zap.Uint64("booking_id", b.ID), zap.Error(err))
		}
	}()
}
