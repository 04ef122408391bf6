package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

// mysqlDuplicateEntry is the server error raised when a unique index
// rejects a row.
const mysqlDuplicateEntry = 1062

// BookingRepo persists bookings.  A booking is a row in bookings plus one
// row per seat in booking_seats; the unique (show_id, seat_label) index on
// booking_seats guarantees a seat is sold at most once per show even when
// two requests pass the read-side overlap check at the same time.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// BookedSeats returns the labels of every seat booked for the show.
func (r *BookingRepo) BookedSeats(ctx context.Context, showID uint64) ([]string, error) {
	const q = `SELECT seat_label FROM booking_seats WHERE show_id = ? ORDER BY seat_label`
	rows, err := r.db.QueryContext(ctx, q, showID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seats := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// Create writes the booking and its seats in one transaction and fills in
// the generated ID and creation time.  A seat already sold for the show
// yields ErrConflict and nothing is written.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `INSERT INTO bookings (user_id, show_id) VALUES (?, ?)`, b.UserID, b.ShowID)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)

	var sb strings.Builder
	sb.WriteString(`INSERT INTO booking_seats (booking_id, show_id, seat_label) VALUES `)
	args := make([]interface{}, 0, len(b.Seats)*3)
	for i, s := range b.Seats {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?)")
		args = append(args, b.ID, b.ShowID, s)
	}
	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		if isDuplicateEntry(err) {
			return fmt.Errorf("seat already booked for show %d: %w", b.ShowID, ErrConflict)
		}
		return err
	}

	if err := tx.QueryRowContext(ctx, `SELECT created_at FROM bookings WHERE id = ?`, b.ID).Scan(&b.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// GetByID loads a booking with its seats.  sql.ErrNoRows is returned when
// it does not exist.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	const q = `SELECT id, user_id, show_id, created_at FROM bookings WHERE id = ?`
	var b model.Booking
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&b.ID, &b.UserID, &b.ShowID, &b.CreatedAt); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT seat_label FROM booking_seats WHERE booking_id = ? ORDER BY seat_label`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	b.Seats = []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		b.Seats = append(b.Seats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &b, nil
}

const listSelect = `SELECT b.id, b.user_id, b.show_id, b.created_at, bs.seat_label
               FROM bookings b
               JOIN booking_seats bs ON bs.booking_id = b.id`

// ListByShow returns every booking of a show, newest first.
func (r *BookingRepo) ListByShow(ctx context.Context, showID uint64) ([]model.Booking, error) {
	return r.list(ctx, listSelect+` WHERE b.show_id = ? ORDER BY b.created_at DESC, b.id DESC, bs.seat_label`, showID)
}

// ListByUser returns a user's bookings across shows, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return r.list(ctx, listSelect+` WHERE b.user_id = ? ORDER BY b.created_at DESC, b.id DESC, bs.seat_label`, userID)
}

// list folds one row per seat back into bookings, keeping query order.
func (r *BookingRepo) list(ctx context.Context, q string, arg uint64) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Booking, 0)
	index := make(map[uint64]int)
	for rows.Next() {
		var b model.Booking
		var seat string
		if err := rows.Scan(&b.ID, &b.UserID, &b.ShowID, &b.CreatedAt, &seat); err != nil {
			return nil, err
		}
		i, ok := index[b.ID]
		if !ok {
			b.Seats = []string{}
			out = append(out, b)
			i = len(out) - 1
			index[b.ID] = i
		}
		out[i].Seats = append(out[i].Seats, seat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a booking and frees its seats.  sql.ErrNoRows is
// returned when there is nothing to delete.
func (r *BookingRepo) Delete(ctx context.Context, id uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_seats WHERE booking_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
