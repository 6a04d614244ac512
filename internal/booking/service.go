package booking

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"availability-service/internal/apperr"
	"availability-service/internal/availability"
	"availability-service/internal/timerange"
)

type EventStore interface {
	GetEvent(ctx context.Context, userID string, id uuid.UUID) (*Event, error)
}

type BookingStore interface {
	CreateBooking(ctx context.Context, b *Booking) error
	AttachCalendarEvent(ctx context.Context, id uuid.UUID, calendarEventID string) error
	CancelBooking(ctx context.Context, id uuid.UUID) error
}

type SlotResolver interface {
	ResolveValidSlots(ctx context.Context, userID string, candidates []time.Time, durationMinutes int) ([]time.Time, error)
}

// CalendarWriter puts a confirmed meeting on the owner's calendar and
// returns the calendar's id for it.
type CalendarWriter interface {
	CreateMeetingEvent(ctx context.Context, userID string, m CalendarMeeting) (string, error)
}

type Publisher interface {
	PublishBookingConfirmed(ctx context.Context, msg Confirmation) error
}

type CalendarMeeting struct {
	EventName  string
	GuestName  string
	GuestEmail string
	GuestNotes string
	Start      time.Time
	End        time.Time
}

// Confirmation is the payload announced once a booking is stored.
type Confirmation struct {
	BookingID  uuid.UUID `json:"booking_id"`
	UserID     string    `json:"user_id"`
	EventID    uuid.UUID `json:"event_id"`
	EventName  string    `json:"event_name"`
	GuestName  string    `json:"guest_name"`
	GuestEmail string    `json:"guest_email"`
	StartAtUTC time.Time `json:"start_at_utc"`
	EndAtUTC   time.Time `json:"end_at_utc"`
}

// MeetingRequest is what a guest submits from the booking page. StartTime is
// either RFC 3339 with an offset or a local wall time ("2006-01-02T15:04")
// read in Timezone.
type MeetingRequest struct {
	GuestName  string `json:"guest_name" validate:"required,max=200"`
	GuestEmail string `json:"guest_email" validate:"required,email"`
	GuestNotes string `json:"guest_notes,omitempty" validate:"max=2000"`
	StartTime  string `json:"start_time" validate:"required"`
	Timezone   string `json:"timezone" validate:"required,timezone"`
}

type Options struct {
	Step     time.Duration
	Horizon  time.Duration
	Calendar CalendarWriter
	Notifier Publisher
	Logger   *zap.Logger
	Now      func() time.Time
}

type Service struct {
	events   EventStore
	bookings BookingStore
	resolver SlotResolver
	calendar CalendarWriter
	notifier Publisher
	log      *zap.Logger
	step     time.Duration
	horizon  time.Duration
	now      func() time.Time
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateEvent checks an event type before it is stored.
func ValidateEvent(ev *Event) error {
	ev.Name = strings.TrimSpace(ev.Name)
	if err := validate.Struct(ev); err != nil {
		return apperr.NewValidation("booking.ValidateEvent", "invalid event", fieldIssues(err))
	}
	return nil
}

func NewService(events EventStore, bookings BookingStore, resolver SlotResolver, opts Options) *Service {
	s := &Service{
		events:   events,
		bookings: bookings,
		resolver: resolver,
		calendar: opts.Calendar,
		notifier: opts.Notifier,
		log:      opts.Logger,
		step:     opts.Step,
		horizon:  opts.Horizon,
		now:      opts.Now,
	}
	if s.step <= 0 {
		s.step = availability.DefaultStep
	}
	if s.horizon <= 0 {
		s.horizon = 30 * 24 * time.Hour
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// activeEvent loads an event that guests may book. Inactive events are
// reported as missing.
func (s *Service) activeEvent(ctx context.Context, userID string, eventID uuid.UUID) (*Event, error) {
	ev, err := s.events.GetEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.IsActive {
		return nil, apperr.NewNotFound("booking.activeEvent", "event not found")
	}
	return ev, nil
}

// BookableTimes lists the start times in [from, to] at which the event can
// be booked. A zero from means now and a zero to means the end of the booking
// horizon. The range is clamped to [now, now+horizon].
func (s *Service) BookableTimes(ctx context.Context, userID string, eventID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	const op = "booking.BookableTimes"
	ev, err := s.activeEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if from.IsZero() || from.Before(now) {
		from = now
	}
	limit := now.Add(s.horizon)
	if to.IsZero() || to.After(limit) {
		to = limit
	}
	if to.Before(from) {
		return nil, apperr.NewValidation(op, "to must not be before from", nil)
	}

	candidates := availability.CandidateTimes(from.UTC(), to.UTC(), s.step)
	return s.resolver.ResolveValidSlots(ctx, userID, candidates, ev.DurationMinutes)
}

// CreateMeeting books an event for a guest. The requested start is checked
// against the owner's availability and busy time before anything is written.
func (s *Service) CreateMeeting(ctx context.Context, userID string, eventID uuid.UUID, req MeetingRequest) (*Booking, error) {
	const op = "booking.CreateMeeting"
	if err := validate.Struct(req); err != nil {
		return nil, apperr.NewValidation(op, "invalid meeting request", fieldIssues(err))
	}
	loc, err := time.LoadLocation(req.Timezone)
	if err != nil {
		return nil, apperr.NewValidation(op, "unknown timezone", map[string]string{"timezone": req.Timezone})
	}
	start, err := ParseStartTime(req.StartTime, loc)
	if err != nil {
		return nil, apperr.NewValidation(op, "start_time must be RFC 3339 or a local YYYY-MM-DDTHH:MM", nil)
	}
	if !start.After(s.now()) {
		return nil, apperr.NewValidation(op, "start time must be in the future", nil)
	}

	ev, err := s.activeEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}

	valid, err := s.resolver.ResolveValidSlots(ctx, userID, []time.Time{start}, ev.DurationMinutes)
	if err != nil {
		return nil, err
	}
	if len(valid) == 0 {
		return nil, apperr.NewConflict(op, "selected time is not valid")
	}

	b := &Booking{
		ID:         uuid.New(),
		UserID:     userID,
		EventID:    ev.ID,
		GuestName:  strings.TrimSpace(req.GuestName),
		GuestEmail: strings.TrimSpace(req.GuestEmail),
		GuestNotes: strings.TrimSpace(req.GuestNotes),
		StartAtUTC: start.UTC(),
		EndAtUTC:   timerange.AddMinutes(start, ev.DurationMinutes).UTC(),
		Status:     StatusConfirmed,
	}
	if err := s.bookings.CreateBooking(ctx, b); err != nil {
		return nil, err
	}

	if s.calendar != nil {
		calID, err := s.calendar.CreateMeetingEvent(ctx, userID, CalendarMeeting{
			EventName:  ev.Name,
			GuestName:  b.GuestName,
			GuestEmail: b.GuestEmail,
			GuestNotes: b.GuestNotes,
			Start:      b.StartAtUTC,
			End:        b.EndAtUTC,
		})
		if err != nil {
			if cerr := s.bookings.CancelBooking(ctx, b.ID); cerr != nil {
				s.log.Error("booking.CreateMeeting rollback failed",
					zap.String("booking_id", b.ID.String()), zap.Error(cerr))
			}
			if apperr.KindOf(err) == "" {
				err = apperr.NewRetrieval(op, err)
			}
			return nil, err
		}
		b.CalendarEventID = calID
		if err := s.bookings.AttachCalendarEvent(ctx, b.ID, calID); err != nil {
			s.log.Warn("booking.CreateMeeting could not record calendar event id",
				zap.String("booking_id", b.ID.String()), zap.Error(err))
		}
	}

	if s.notifier != nil {
		msg := Confirmation{
			BookingID:  b.ID,
			UserID:     userID,
			EventID:    ev.ID,
			EventName:  ev.Name,
			GuestName:  b.GuestName,
			GuestEmail: b.GuestEmail,
			StartAtUTC: b.StartAtUTC,
			EndAtUTC:   b.EndAtUTC,
		}
		if err := s.notifier.PublishBookingConfirmed(ctx, msg); err != nil {
			s.log.Error("booking.CreateMeeting publish failed",
				zap.String("booking_id", b.ID.String()), zap.Error(err))
		}
	}
	return b, nil
}

var localLayouts = []string{"2006-01-02T15:04", "2006-01-02T15:04:05", "2006-01-02 15:04"}

// ParseStartTime reads an RFC 3339 timestamp, or a local wall time taken in
// loc. Local times inside a DST gap move forward past the gap.
func ParseStartTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	var lastErr error
	for _, layout := range localLayouts {
		naive, err := time.Parse(layout, value)
		if err != nil {
			lastErr = err
			continue
		}
		tod, err := timerange.NewTimeOfDay(naive.Hour(), naive.Minute())
		if err != nil {
			return time.Time{}, err
		}
		t := timerange.LocalToAbsolute(civil.DateOf(naive), tod, loc)
		return t.Add(time.Duration(naive.Second()) * time.Second), nil
	}
	return time.Time{}, lastErr
}

func fieldIssues(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
