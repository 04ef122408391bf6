package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Every show uses the same fixed grid: rows A through J, columns 1 through 10.
const (
	FirstRow  = 'A'
	LastRow   = 'J'
	MaxColumn = 10
)

// ErrInvalidSeat is returned by ParseSeat for identifiers outside the grid.
var ErrInvalidSeat = errors.New("invalid seat id")

// ParseSeat normalises a seat identifier such as " c5" to "C5" and checks
// that it addresses a seat inside the grid.  Leading zeros ("A05") are
// rejected so that every seat has exactly one spelling, which matters
// because the identifier is part of the lock key and the ledger's unique
// index.
func ParseSeat(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if len(s) < 2 || len(s) > 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeat, raw)
	}
	row := s[0]
	if row < FirstRow || row > LastRow {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeat, raw)
	}
	colStr := s[1:]
	if colStr[0] == '0' {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeat, raw)
	}
	col, err := strconv.Atoi(colStr)
	if err != nil || col < 1 || col > MaxColumn {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeat, raw)
	}
	return s, nil
}

// ParseSeats validates every identifier and rejects duplicates.  The
// returned slice keeps the caller's order.
func ParseSeats(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		s, err := ParseSeat(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[s]; dup {
			return nil, fmt.Errorf("%w: %s listed twice", ErrInvalidSeat, s)
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}
