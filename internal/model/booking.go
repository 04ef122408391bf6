package model

import "time"

// Booking records a finalised seat assignment for a show.  It is immutable
// once created; cancelling deletes it.
//
// Fields:
//
//	ID        – bookings.id
//	ShowID    – show being booked.
//	UserID    – user who made the booking.
//	Seats     – seat identifiers, unique per show across all bookings.
//	CreatedAt – creation timestamp (UTC).
type Booking struct {
	ID        uint64    `json:"id"`
	ShowID    uint64    `json:"showId"`
	UserID    uint64    `json:"userId"`
	Seats     []string  `json:"seats"`
	CreatedAt time.Time `json:"createdAt"`
}

// ShowSeats splits the booked seats of one show into those belonging to
// the caller and everyone else.
type ShowSeats struct {
	UserBookings  []string `json:"userBookings"`
	OtherBookings []string `json:"otherBookings"`
}
