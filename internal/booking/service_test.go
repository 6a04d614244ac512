package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"availability-service/internal/apperr"
)

type fakeEvents struct {
	events map[uuid.UUID]*Event
}

func (f *fakeEvents) GetEvent(_ context.Context, userID string, id uuid.UUID) (*Event, error) {
	ev, ok := f.events[id]
	if !ok || ev.UserID != userID {
		return nil, apperr.NewNotFound("fake.GetEvent", "event not found")
	}
	return ev, nil
}

type fakeBookings struct {
	mu        sync.Mutex
	created   []*Booking
	cancelled []uuid.UUID
	attached  map[uuid.UUID]string
	createErr error
}

func (f *fakeBookings) CreateBooking(_ context.Context, b *Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, b)
	return nil
}

func (f *fakeBookings) AttachCalendarEvent(_ context.Context, id uuid.UUID, calID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attached == nil {
		f.attached = map[uuid.UUID]string{}
	}
	f.attached[id] = calID
	return nil
}

func (f *fakeBookings) CancelBooking(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

// fakeResolver accepts candidates equal to one in allowed.
type fakeResolver struct {
	allowed    []time.Time
	err        error
	candidates []time.Time
	duration   int
}

func (f *fakeResolver) ResolveValidSlots(_ context.Context, _ string, candidates []time.Time, d int) ([]time.Time, error) {
	f.candidates, f.duration = candidates, d
	if f.err != nil {
		return nil, f.err
	}
	out := []time.Time{}
	for _, c := range candidates {
		for _, a := range f.allowed {
			if c.Equal(a) {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

type fakeCalendar struct {
	meetings []CalendarMeeting
	err      error
}

func (f *fakeCalendar) CreateMeetingEvent(_ context.Context, _ string, m CalendarMeeting) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.meetings = append(f.meetings, m)
	return "gcal-1", nil
}

type fakePublisher struct {
	sent []Confirmation
	err  error
}

func (f *fakePublisher) PublishBookingConfirmed(_ context.Context, msg Confirmation) error {
	f.sent = append(f.sent, msg)
	return f.err
}

var (
	fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	eventID  = uuid.MustParse("6f1c1f1e-2b7a-4d7e-9a53-5a4f0c1d2e3f")
)

type fixture struct {
	events   *fakeEvents
	bookings *fakeBookings
	resolver *fakeResolver
	calendar *fakeCalendar
	notifier *fakePublisher
	svc      *Service
}

func newFixture(active bool) *fixture {
	f := &fixture{
		events: &fakeEvents{events: map[uuid.UUID]*Event{
			eventID: {ID: eventID, UserID: "owner", Name: "Intro call", DurationMinutes: 30, IsActive: active},
		}},
		bookings: &fakeBookings{},
		resolver: &fakeResolver{},
		calendar: &fakeCalendar{},
		notifier: &fakePublisher{},
	}
	f.svc = NewService(f.events, f.bookings, f.resolver, Options{
		Step:     30 * time.Minute,
		Horizon:  24 * time.Hour,
		Calendar: f.calendar,
		Notifier: f.notifier,
		Now:      func() time.Time { return fixedNow },
	})
	return f
}

func meetingRequest(start string) MeetingRequest {
	return MeetingRequest{
		GuestName:  "Ada",
		GuestEmail: "ada@example.com",
		GuestNotes: "agenda attached",
		StartTime:  start,
		Timezone:   "America/New_York",
	}
}

func TestCreateMeeting_Success(t *testing.T) {
	f := newFixture(true)
	// 10:00 EDT is 14:00Z.
	start := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	f.resolver.allowed = []time.Time{start}

	b, err := f.svc.CreateMeeting(context.Background(), "owner", eventID, meetingRequest("2024-06-03T10:00"))
	require.NoError(t, err)

	assert.True(t, b.StartAtUTC.Equal(start))
	assert.True(t, b.EndAtUTC.Equal(start.Add(30*time.Minute)))
	assert.Equal(t, StatusConfirmed, b.Status)
	assert.Equal(t, "gcal-1", b.CalendarEventID)
	assert.Equal(t, 30, f.resolver.duration)
	require.Len(t, f.resolver.candidates, 1)

	require.Len(t, f.bookings.created, 1)
	assert.Equal(t, "gcal-1", f.bookings.attached[b.ID])
	require.Len(t, f.calendar.meetings, 1)
	assert.Equal(t, "Intro call", f.calendar.meetings[0].EventName)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, b.ID, f.notifier.sent[0].BookingID)
}

func TestCreateMeeting_RejectedSlot(t *testing.T) {
	f := newFixture(true)

	_, err := f.svc.CreateMeeting(context.Background(), "owner", eventID, meetingRequest("2024-06-03T10:00:00-04:00"))
	assert.True(t, errors.Is(err, apperr.Conflict))
	assert.Empty(t, f.bookings.created)
	assert.Empty(t, f.calendar.meetings)
	assert.Empty(t, f.notifier.sent)
}

func TestCreateMeeting_InactiveEventIsNotFound(t *testing.T) {
	f := newFixture(false)

	_, err := f.svc.CreateMeeting(context.Background(), "owner", eventID, meetingRequest("2024-06-03T10:00"))
	assert.True(t, errors.Is(err, apperr.NotFound))
}

func TestCreateMeeting_Validation(t *testing.T) {
	f := newFixture(true)

	tests := []struct {
		name string
		req  MeetingRequest
	}{
		{"past start", meetingRequest("2024-05-01T10:00")},
		{"garbage start", meetingRequest("tomorrow")},
		{"bad email", func() MeetingRequest { r := meetingRequest("2024-06-03T10:00"); r.GuestEmail = "nope"; return r }()},
		{"missing name", func() MeetingRequest { r := meetingRequest("2024-06-03T10:00"); r.GuestName = ""; return r }()},
		{"bad zone", func() MeetingRequest { r := meetingRequest("2024-06-03T10:00"); r.Timezone = "Mars/Olympus"; return r }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateMeeting(context.Background(), "owner", eventID, tt.req)
			assert.True(t, errors.Is(err, apperr.Validation), "got %v", err)
		})
	}
	assert.Empty(t, f.bookings.created)
}

func TestCreateMeeting_CalendarFailureCancelsBooking(t *testing.T) {
	f := newFixture(true)
	start := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	f.resolver.allowed = []time.Time{start}
	f.calendar.err = errors.New("calendar down")

	_, err := f.svc.CreateMeeting(context.Background(), "owner", eventID, meetingRequest("2024-06-03T10:00"))
	assert.True(t, errors.Is(err, apperr.Retrieval))
	require.Len(t, f.bookings.created, 1)
	assert.Equal(t, []uuid.UUID{f.bookings.created[0].ID}, f.bookings.cancelled)
	assert.Empty(t, f.notifier.sent)
}

func TestCreateMeeting_PublishFailureKeepsBooking(t *testing.T) {
	f := newFixture(true)
	start := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	f.resolver.allowed = []time.Time{start}
	f.notifier.err = errors.New("broker gone")
	core, logs := observer.New(zap.WarnLevel)
	f.svc = NewService(f.events, f.bookings, f.resolver, Options{
		Step:     30 * time.Minute,
		Horizon:  24 * time.Hour,
		Calendar: f.calendar,
		Notifier: f.notifier,
		Logger:   zap.New(core),
		Now:      func() time.Time { return fixedNow },
	})

	b, err := f.svc.CreateMeeting(context.Background(), "owner", eventID, meetingRequest("2024-06-03T10:00"))
	require.NoError(t, err)
	assert.NotNil(t, b)
	assert.Empty(t, f.bookings.cancelled)

	errs := logs.FilterLevelExact(zap.ErrorLevel).All()
	require.Len(t, errs, 1, "the failure is reported once")
	assert.Equal(t, "booking.CreateMeeting publish failed", errs[0].Message)
}

func TestBookableTimes_ClampsToNowAndHorizon(t *testing.T) {
	f := newFixture(true)

	_, err := f.svc.BookableTimes(context.Background(), "owner", eventID, time.Time{}, time.Time{})
	require.NoError(t, err)

	require.NotEmpty(t, f.resolver.candidates)
	first := f.resolver.candidates[0]
	last := f.resolver.candidates[len(f.resolver.candidates)-1]
	assert.True(t, first.Equal(fixedNow))
	assert.True(t, last.Equal(fixedNow.Add(24*time.Hour)))
	assert.Len(t, f.resolver.candidates, 49)
	assert.Equal(t, 30, f.resolver.duration)
}

func TestBookableTimes_Errors(t *testing.T) {
	f := newFixture(true)

	_, err := f.svc.BookableTimes(context.Background(), "owner", uuid.New(), time.Time{}, time.Time{})
	assert.True(t, errors.Is(err, apperr.NotFound))

	_, err = f.svc.BookableTimes(context.Background(), "owner", eventID,
		fixedNow.Add(5*time.Hour), fixedNow.Add(2*time.Hour))
	assert.True(t, errors.Is(err, apperr.Validation))

	f.resolver.err = apperr.NewRetrieval("fake", errors.New("db down"))
	_, err = f.svc.BookableTimes(context.Background(), "owner", eventID, time.Time{}, time.Time{})
	assert.True(t, errors.Is(err, apperr.Retrieval))
}

func TestParseStartTime(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	got, err := ParseStartTime("2024-01-15T09:30", ny)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)))

	got, err = ParseStartTime("2024-01-15T09:30:00Z", ny)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)), "explicit offsets win over the zone")

	// 02:30 does not exist on 2024-03-10 in New York.
	got, err = ParseStartTime("2024-03-10T02:30", ny)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 3, 10, 7, 30, 0, 0, time.UTC)))

	_, err = ParseStartTime("10:00", ny)
	assert.Error(t, err)
}

func TestValidateEvent(t *testing.T) {
	ev := &Event{Name: "  Coffee  ", DurationMinutes: 15}
	require.NoError(t, ValidateEvent(ev))
	assert.Equal(t, "Coffee", ev.Name)

	err := ValidateEvent(&Event{Name: "x", DurationMinutes: 0})
	require.True(t, errors.Is(err, apperr.Validation))
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, map[string]string{"duration_minutes": "required"}, ae.Details)
}
