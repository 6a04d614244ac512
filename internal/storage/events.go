package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"availability-service/internal/apperr"
	"availability-service/internal/booking"
)

type EventRepository struct {
	db DB
}

func NewEventRepository(db DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, user_id, name, description, duration_minutes, is_active, created_at, updated_at`

func scanEvent(row pgx.Row) (*booking.Event, error) {
	var ev booking.Event
	err := row.Scan(&ev.ID, &ev.UserID, &ev.Name, &ev.Description,
		&ev.DurationMinutes, &ev.IsActive, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *EventRepository) CreateEvent(ctx context.Context, ev *booking.Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	q := `INSERT INTO events (id, user_id, name, description, duration_minutes, is_active)
	      VALUES ($1,$2,$3,$4,$5,$6) RETURNING created_at, updated_at`
	err := r.db.QueryRow(ctx, q, ev.ID, ev.UserID, ev.Name, ev.Description, ev.DurationMinutes, ev.IsActive).
		Scan(&ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return retrieval("storage.CreateEvent", err)
	}
	return nil
}

// ListEvents returns a user's events by name. With activeOnly only events
// open for booking are returned.
func (r *EventRepository) ListEvents(ctx context.Context, userID string, activeOnly bool) ([]booking.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events
	      WHERE user_id=$1 AND (NOT $2::boolean OR is_active)
	      ORDER BY lower(name), created_at`
	rows, err := r.db.Query(ctx, q, userID, activeOnly)
	if err != nil {
		return nil, retrieval("storage.ListEvents", err)
	}
	defer rows.Close()

	out := []booking.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, retrieval("storage.ListEvents", err)
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, retrieval("storage.ListEvents", err)
	}
	return out, nil
}

func (r *EventRepository) GetEvent(ctx context.Context, userID string, id uuid.UUID) (*booking.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events WHERE id=$1 AND user_id=$2`
	ev, err := scanEvent(r.db.QueryRow(ctx, q, id, userID))
	if isNoRows(err) {
		return nil, apperr.NewNotFound("storage.GetEvent", "event not found")
	}
	if err != nil {
		return nil, retrieval("storage.GetEvent", err)
	}
	return ev, nil
}

func (r *EventRepository) UpdateEvent(ctx context.Context, ev *booking.Event) error {
	q := `UPDATE events
	      SET name=$1, description=$2, duration_minutes=$3, is_active=$4, updated_at=now()
	      WHERE id=$5 AND user_id=$6
	      RETURNING created_at, updated_at`
	err := r.db.QueryRow(ctx, q, ev.Name, ev.Description, ev.DurationMinutes, ev.IsActive, ev.ID, ev.UserID).
		Scan(&ev.CreatedAt, &ev.UpdatedAt)
	if isNoRows(err) {
		return apperr.NewNotFound("storage.UpdateEvent", "event not found")
	}
	if err != nil {
		return retrieval("storage.UpdateEvent", err)
	}
	return nil
}

func (r *EventRepository) DeleteEvent(ctx context.Context, userID string, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM events WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return retrieval("storage.DeleteEvent", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NewNotFound("storage.DeleteEvent", "event not found")
	}
	return nil
}
