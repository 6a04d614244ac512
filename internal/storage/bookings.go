package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"availability-service/internal/apperr"
	"availability-service/internal/booking"
	"availability-service/internal/timerange"
)

type BookingRepository struct {
	db DB
}

func NewBookingRepository(db DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `id, user_id, event_id, guest_name, guest_email, guest_notes,
	start_at_utc, end_at_utc, status, calendar_event_id, created_at`

func scanBooking(row pgx.Row) (*booking.Booking, error) {
	var (
		b       booking.Booking
		eventID *uuid.UUID
	)
	err := row.Scan(&b.ID, &b.UserID, &eventID, &b.GuestName, &b.GuestEmail, &b.GuestNotes,
		&b.StartAtUTC, &b.EndAtUTC, &b.Status, &b.CalendarEventID, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	if eventID != nil {
		b.EventID = *eventID
	}
	return &b, nil
}

// CreateBooking stores a confirmed booking unless it overlaps another
// confirmed booking of the same user. Concurrent creates for one user are
// serialized with a transaction-scoped advisory lock.
func (r *BookingRepository) CreateBooking(ctx context.Context, b *booking.Booking) error {
	const op = "storage.CreateBooking"
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = booking.StatusConfirmed
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return retrieval(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, b.UserID); err != nil {
		return retrieval(op, err)
	}

	checkQ := `SELECT id FROM bookings
	           WHERE user_id=$1 AND status='confirmed'
	           AND start_at_utc < $3 AND end_at_utc > $2
	           LIMIT 1`
	var existingID uuid.UUID
	err = tx.QueryRow(ctx, checkQ, b.UserID, b.StartAtUTC, b.EndAtUTC).Scan(&existingID)
	if err == nil {
		return apperr.NewConflict(op, "slot already booked")
	}
	if !isNoRows(err) {
		return retrieval(op, err)
	}

	insertQ := `INSERT INTO bookings
	            (id, user_id, event_id, guest_name, guest_email, guest_notes, start_at_utc, end_at_utc, status, calendar_event_id)
	            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	            RETURNING created_at`
	var eventID *uuid.UUID
	if b.EventID != uuid.Nil {
		eventID = &b.EventID
	}
	err = tx.QueryRow(ctx, insertQ, b.ID, b.UserID, eventID, b.GuestName, b.GuestEmail, b.GuestNotes,
		b.StartAtUTC.UTC(), b.EndAtUTC.UTC(), b.Status, b.CalendarEventID).Scan(&b.CreatedAt)
	if err != nil {
		return retrieval(op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return retrieval(op, err)
	}
	return nil
}

func (r *BookingRepository) AttachCalendarEvent(ctx context.Context, id uuid.UUID, calendarEventID string) error {
	_, err := r.db.Exec(ctx, `UPDATE bookings SET calendar_event_id=$1 WHERE id=$2`, calendarEventID, id)
	if err != nil {
		return retrieval("storage.AttachCalendarEvent", err)
	}
	return nil
}

func (r *BookingRepository) GetBooking(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
	if isNoRows(err) {
		return nil, apperr.NewNotFound("storage.GetBooking", "booking not found")
	}
	if err != nil {
		return nil, retrieval("storage.GetBooking", err)
	}
	return b, nil
}

// CancelBooking marks a booking cancelled. Cancelling twice is a conflict.
func (r *BookingRepository) CancelBooking(ctx context.Context, id uuid.UUID) error {
	const op = "storage.CancelBooking"
	var status string
	err := r.db.QueryRow(ctx, `SELECT status FROM bookings WHERE id=$1`, id).Scan(&status)
	if isNoRows(err) {
		return apperr.NewNotFound(op, "booking not found")
	}
	if err != nil {
		return retrieval(op, err)
	}
	if status == booking.StatusCancelled {
		return apperr.NewConflict(op, "booking already cancelled")
	}

	tag, err := r.db.Exec(ctx, `UPDATE bookings SET status='cancelled' WHERE id=$1 AND status <> 'cancelled'`, id)
	if err != nil {
		return retrieval(op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NewConflict(op, "booking already cancelled")
	}
	return nil
}

// ListBookings returns a user's bookings starting in [from, to). A zero
// bound leaves that side open.
func (r *BookingRepository) ListBookings(ctx context.Context, userID string, from, to time.Time) ([]booking.Booking, error) {
	const op = "storage.ListBookings"
	q := `SELECT ` + bookingColumns + ` FROM bookings
	      WHERE user_id=$1
	      AND ($2::timestamptz IS NULL OR start_at_utc >= $2)
	      AND ($3::timestamptz IS NULL OR start_at_utc < $3)
	      ORDER BY start_at_utc`
	rows, err := r.db.Query(ctx, q, userID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, retrieval(op, err)
	}
	defer rows.Close()

	out := []booking.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, retrieval(op, err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, retrieval(op, err)
	}
	return out, nil
}

// ListBusy reports confirmed bookings overlapping [start, end] as busy
// intervals.
func (r *BookingRepository) ListBusy(ctx context.Context, userID string, start, end time.Time) ([]timerange.Interval, error) {
	const op = "storage.ListBusy"
	q := `SELECT start_at_utc, end_at_utc FROM bookings
	      WHERE user_id=$1 AND status='confirmed'
	      AND start_at_utc < $3 AND end_at_utc > $2`
	rows, err := r.db.Query(ctx, q, userID, start.UTC(), end.UTC())
	if err != nil {
		return nil, retrieval(op, err)
	}
	defer rows.Close()

	var out []timerange.Interval
	for rows.Next() {
		var iv timerange.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, retrieval(op, err)
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, retrieval(op, err)
	}
	return out, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
