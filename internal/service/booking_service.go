package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/cinema-seat-sync/internal/metrics"
	"github.com/iliyamo/cinema-seat-sync/internal/model"
	"github.com/iliyamo/cinema-seat-sync/internal/queue"
	"github.com/iliyamo/cinema-seat-sync/internal/realtime"
	"github.com/iliyamo/cinema-seat-sync/internal/repository"
)

// DefaultMaxSeats caps the number of seats in one booking.
const DefaultMaxSeats = 6

// bookingLedger is the subset of repository.BookingRepo the service uses.
type bookingLedger interface {
	BookedSeats(ctx context.Context, showID uint64) ([]string, error)
	Create(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	ListByShow(ctx context.Context, showID uint64) ([]model.Booking, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
	Delete(ctx context.Context, id uint64) error
}

// BookingService guards the ledger against overlapping bookings and tells
// live viewers about seats that were sold or given back.
type BookingService struct {
	ledger   bookingLedger
	bus      realtime.Broadcaster
	events   EventPublisher
	maxSeats int
	metrics  *metrics.Metrics
}

// NewBookingService wires the service.  events may be nil to skip broker
// publishing; maxSeats outside 1..DefaultMaxSeats selects DefaultMaxSeats.
func NewBookingService(ledger bookingLedger, bus realtime.Broadcaster, events EventPublisher, maxSeats int, m *metrics.Metrics) *BookingService {
	if maxSeats <= 0 || maxSeats > DefaultMaxSeats {
		maxSeats = DefaultMaxSeats
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &BookingService{ledger: ledger, bus: bus, events: events, maxSeats: maxSeats, metrics: m}
}

// Create books seats for userID.  Requests with no seats, more than the
// per-booking cap, unknown or repeated seat ids fail with
// ErrInvalidRequest.  A seat already booked for the show fails the whole
// request with ErrSeatConflict and nothing is written.
func (s *BookingService) Create(ctx context.Context, userID, showID uint64, seats []string) (*model.Booking, error) {
	b, err := s.create(ctx, userID, showID, seats)
	switch {
	case err == nil:
		s.metrics.BookingsTotal.WithLabelValues("created").Inc()
	case errors.Is(err, ErrInvalidRequest):
		s.metrics.BookingsTotal.WithLabelValues("invalid").Inc()
	case errors.Is(err, ErrSeatConflict):
		s.metrics.BookingsTotal.WithLabelValues("conflict").Inc()
	default:
		s.metrics.BookingsTotal.WithLabelValues("error").Inc()
	}
	return b, err
}

func (s *BookingService) create(ctx context.Context, userID, showID uint64, seats []string) (*model.Booking, error) {
	if userID == 0 || showID == 0 {
		return nil, fmt.Errorf("%w: userId and showId are required", ErrInvalidRequest)
	}
	if len(seats) == 0 || len(seats) > s.maxSeats {
		return nil, fmt.Errorf("%w: between 1 and %d seats required", ErrInvalidRequest, s.maxSeats)
	}
	parsed, err := model.ParseSeats(seats)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	booked, err := s.ledger.BookedSeats(ctx, showID)
	if err != nil {
		return nil, fmt.Errorf("read booked seats: %w", err)
	}
	if taken := overlap(parsed, booked); len(taken) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSeatConflict, strings.Join(taken, ","))
	}

	b := &model.Booking{UserID: userID, ShowID: showID, Seats: parsed}
	if err := s.ledger.Create(ctx, b); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %v", ErrSeatConflict, err)
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.bus.Broadcast(ctx, showID, realtime.NewMessage(realtime.EventSeatBooked, b.Seats), "")
	s.publish(queue.BookingConfirmed, *b)
	return b, nil
}

// Cancel deletes a booking owned by userID and hands its seats back to the
// room.
func (s *BookingService) Cancel(ctx context.Context, userID, bookingID uint64) (*model.Booking, error) {
	b, err := s.ledger.GetByID(ctx, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, repository.ErrForbidden
	}
	if err := s.ledger.Delete(ctx, bookingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	s.metrics.BookingsTotal.WithLabelValues("cancelled").Inc()

	for _, seat := range b.Seats {
		s.bus.Broadcast(ctx, b.ShowID, realtime.NewMessage(realtime.EventSeatReleased,
			realtime.SeatReleased{SeatID: seat, ShowID: b.ShowID}), "")
	}
	s.publish(queue.BookingCancelled, *b)
	return b, nil
}

// ShowSeats splits a show's booked seats into the caller's and everybody
// else's.
func (s *BookingService) ShowSeats(ctx context.Context, userID, showID uint64) (model.ShowSeats, error) {
	out := model.ShowSeats{UserBookings: []string{}, OtherBookings: []string{}}
	list, err := s.ledger.ListByShow(ctx, showID)
	if err != nil {
		return out, err
	}
	for _, b := range list {
		if b.UserID == userID {
			out.UserBookings = append(out.UserBookings, b.Seats...)
		} else {
			out.OtherBookings = append(out.OtherBookings, b.Seats...)
		}
	}
	return out, nil
}

// ListByUser returns the user's bookings, newest first.
func (s *BookingService) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return s.ledger.ListByUser(ctx, userID)
}

func overlap(want, booked []string) []string {
	set := make(map[string]struct{}, len(booked))
	for _, s := range booked {
		set[s] = struct{}{}
	}
	var taken []string
	for _, s := range want {
		if _, ok := set[s]; ok {
			taken = append(taken, s)
		}
	}
	return taken
}
