package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Event names carried in the "event" field of every frame.
const (
	EventJoinShow     = "join-show"
	EventSelectSeat   = "select-seat"
	EventDeselectSeat = "deselect-seat"

	EventInitialLockedSeats = "initial-locked-seats"
	EventSeatAlreadyLocked  = "seat-already-locked"
	EventSeatLocked         = "seat-locked"
	EventSeatUnlocked       = "seat-unlocked"
	EventSeatBooked         = "seat-booked"
	EventSeatReleased       = "seat-released"
	EventError              = "error"
)

// ErrBadPayload is returned when a client frame cannot be decoded.
var ErrBadPayload = errors.New("bad payload")

// Message is one websocket frame.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SeatRequest is the payload of select-seat and deselect-seat.
type SeatRequest struct {
	ShowID uint64 `json:"showId"`
	SeatID string `json:"seatId"`
}

// SeatReleased is the payload of seat-released.
type SeatReleased struct {
	SeatID string `json:"seatId"`
	ShowID uint64 `json:"showId"`
}

// ErrorPayload explains why a client frame was rejected.
type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

// NewMessage encodes data as the payload of event.
func NewMessage(event string, data interface{}) Message {
	raw, err := json.Marshal(data)
	if err != nil {
		// only reachable with unencodable payload types, which the server never builds
		raw = []byte("null")
	}
	return Message{Event: event, Data: raw}
}

// ErrorMessage builds an error frame in reply to event.
func ErrorMessage(event, msg string) Message {
	return NewMessage(EventError, ErrorPayload{Event: event, Message: msg})
}

// DecodeShowID reads the join-show payload.  Clients send the show id bare,
// as a number or a numeric string; {"showId": n} is accepted too.
func DecodeShowID(raw json.RawMessage) (uint64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, ErrBadPayload
	}
	if raw[0] == '{' {
		var obj struct {
			ShowID json.RawMessage `json:"showId"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return 0, ErrBadPayload
		}
		return DecodeShowID(obj.ShowID)
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, ErrBadPayload
		}
	}
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, ErrBadPayload
	}
	return id, nil
}

// DecodeSeatRequest reads a select-seat or deselect-seat payload.
func DecodeSeatRequest(raw json.RawMessage) (SeatRequest, error) {
	var req SeatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		// showId may arrive as a string from loosely typed clients
		var loose struct {
			ShowID json.RawMessage `json:"showId"`
			SeatID string          `json:"seatId"`
		}
		if err := json.Unmarshal(raw, &loose); err != nil {
			return SeatRequest{}, ErrBadPayload
		}
		id, err := DecodeShowID(loose.ShowID)
		if err != nil {
			return SeatRequest{}, err
		}
		req = SeatRequest{ShowID: id, SeatID: loose.SeatID}
	}
	if req.ShowID == 0 || req.SeatID == "" {
		return SeatRequest{}, ErrBadPayload
	}
	return req, nil
}
