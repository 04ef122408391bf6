// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

// Queue names; each event type is routed to the queue of the same name.
const (
	BookingConfirmed = "booking.confirmed"
	BookingCancelled = "booking.cancelled"
)

// BookingEvent is published when a booking is confirmed or cancelled.
// It carries enough for downstream consumers to log, notify or feed
// analytics without querying the ledger.
type BookingEvent struct {
	Type       string   `json:"type"`
	BookingID  uint64   `json:"booking_id"`
	UserID     uint64   `json:"user_id"`
	ShowID     uint64   `json:"show_id"`
	SeatLabels []string `json:"seats"`
	OccurredAt string   `json:"occurred_at"`
}

// NewBookingEvent stamps the event with the current time.
func NewBookingEvent(typ string, b model.Booking) BookingEvent {
	return BookingEvent{
		Type:       typ,
		BookingID:  b.ID,
		UserID:     b.UserID,
		ShowID:     b.ShowID,
		SeatLabels: append([]string(nil), b.Seats...),
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
}
