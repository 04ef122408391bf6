package model

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Holder identifies who owns a seat lock.  A user may have several tabs
// open on the same show, so the connection id is part of the identity:
// the disconnect reaper of one tab must not release the holds of another.
//
// Fields:
//
//	UserID – subject of the verified credential.
//	ConnID – random id assigned to the live connection.
type Holder struct {
	UserID uint64
	ConnID string
}

// String renders the value stored in the lock store, "<userId>/<connId>".
func (h Holder) String() string {
	return strconv.FormatUint(h.UserID, 10) + "/" + h.ConnID
}

// ParseHolder is the inverse of Holder.String.
func ParseHolder(s string) (Holder, error) {
	uid, conn, ok := strings.Cut(s, "/")
	if !ok || conn == "" {
		return Holder{}, errors.New("malformed holder")
	}
	n, err := strconv.ParseUint(uid, 10, 64)
	if err != nil {
		return Holder{}, errors.New("malformed holder")
	}
	return Holder{UserID: n, ConnID: conn}, nil
}

// SeatLock is a time-bound hold on one seat of one show.  It is never
// promoted to a booking; bookings are recorded independently.
//
// Fields:
//
//	ShowID    – show the seat belongs to.
//	SeatID    – seat identifier such as "C5".
//	Holder    – owner of the hold.
//	ExpiresAt – when the lock store drops the entry on its own.
type SeatLock struct {
	ShowID    uint64
	SeatID    string
	Holder    Holder
	ExpiresAt time.Time
}
