package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is a bookable meeting type owned by a user.
type Event struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"user_id"`
	Name            string    `json:"name" validate:"required,max=200"`
	Description     string    `json:"description,omitempty" validate:"max=2000"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,min=1,max=1440"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (e *Event) DurationText() string {
	return FormatDuration(e.DurationMinutes)
}

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

type Booking struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"user_id"`
	EventID         uuid.UUID `json:"event_id"`
	GuestName       string    `json:"guest_name"`
	GuestEmail      string    `json:"guest_email"`
	GuestNotes      string    `json:"guest_notes,omitempty"`
	StartAtUTC      time.Time `json:"start_at_utc"`
	EndAtUTC        time.Time `json:"end_at_utc"`
	Status          string    `json:"status"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// FormatDuration renders a minute count the way event cards show it,
// e.g. "45 mins", "1 hour", "2 hours 15 mins".
func FormatDuration(minutes int) string {
	hours := minutes / 60
	mins := minutes % 60

	minText := fmt.Sprintf("%d min", mins)
	if mins > 1 {
		minText += "s"
	}
	hourText := fmt.Sprintf("%d hour", hours)
	if hours > 1 {
		hourText += "s"
	}

	switch {
	case hours == 0:
		return minText
	case mins == 0:
		return hourText
	default:
		return hourText + " " + minText
	}
}
