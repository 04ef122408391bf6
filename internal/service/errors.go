// Package service implements seat synchronisation and booking on top of the
// lock store, the booking ledger and the room broadcaster.
package service

import "errors"

var (
	// ErrInvalidRequest marks a booking request that is malformed or out
	// of policy (no seats, too many seats, unknown seat ids).
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSeatConflict marks a booking that overlaps an existing one.
	ErrSeatConflict = errors.New("seat already booked")
	// ErrBookingNotFound is returned for unknown booking ids.
	ErrBookingNotFound = errors.New("booking not found")
)
