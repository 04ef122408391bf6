// Package expiry schedules the notification that a seat hold has lapsed.
//
// The lock store drops an entry silently when its TTL runs out, so the room
// would never learn the seat is free again.  Every successful acquire
// therefore schedules exactly one lapse task for the same TTL, and every
// explicit release cancels it.  A task that fires is the signal that the
// hold ran out.
package expiry

import (
	"context"
	"strconv"
	"time"
)

// Lapse identifies the hold whose lifetime ended.
type Lapse struct {
	ShowID uint64 `json:"showId"`
	SeatID string `json:"seatId"`
	Holder string `json:"holder"`
}

// Handler runs when a scheduled lapse fires.
type Handler func(ctx context.Context, l Lapse)

// Scheduler owns one pending lapse per (show, seat).
type Scheduler interface {
	// Schedule arranges for the handler to run after d.  A pending lapse
	// for the same seat is replaced.
	Schedule(ctx context.Context, l Lapse, d time.Duration) error
	// Cancel drops the pending lapse for the seat, if any.
	Cancel(ctx context.Context, showID uint64, seatID string)
}

func seatKey(showID uint64, seatID string) string {
	return strconv.FormatUint(showID, 10) + ":" + seatID
}
