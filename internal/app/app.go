package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"availability-service/internal/booking"
	"availability-service/internal/schedule"
)

type ScheduleService interface {
	GetSchedule(ctx context.Context, userID string) (*schedule.Schedule, error)
	ReplaceAll(ctx context.Context, userID, timezone string, rules []schedule.Rule) (*schedule.Schedule, error)
}

type SlotResolver interface {
	ResolveValidSlots(ctx context.Context, userID string, candidates []time.Time, durationMinutes int) ([]time.Time, error)
}

type EventRepository interface {
	CreateEvent(ctx context.Context, ev *booking.Event) error
	ListEvents(ctx context.Context, userID string, activeOnly bool) ([]booking.Event, error)
	GetEvent(ctx context.Context, userID string, id uuid.UUID) (*booking.Event, error)
	UpdateEvent(ctx context.Context, ev *booking.Event) error
	DeleteEvent(ctx context.Context, userID string, id uuid.UUID) error
}

type BookingRepository interface {
	GetBooking(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	CancelBooking(ctx context.Context, id uuid.UUID) error
	ListBookings(ctx context.Context, userID string, from, to time.Time) ([]booking.Booking, error)
}

type MeetingService interface {
	BookableTimes(ctx context.Context, userID string, eventID uuid.UUID, from, to time.Time) ([]time.Time, error)
	CreateMeeting(ctx context.Context, userID string, eventID uuid.UUID, req booking.MeetingRequest) (*booking.Booking, error)
}

// CalendarAuth runs the Google OAuth flow for calendar owners.
type CalendarAuth interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, userID, code string) error
}

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

type App struct {
	Schedules ScheduleService
	Resolver  SlotResolver
	Events    EventRepository
	Bookings  BookingRepository
	Meetings  MeetingService
	// Calendar is nil when Google credentials are not configured.
	Calendar    CalendarAuth
	Auth        *Authenticator
	Log         *zap.Logger
	ReadyChecks []ReadyCheck
}

// Router wires every route. Guest-facing booking routes are public; the rest
// require the owner or a service token.
func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), AccessLog(a.Log), Recovery(a.Log))

	router.GET("/healthz", a.Healthz)
	router.GET("/readyz", a.Readyz)

	// OAuth2 callback (must be before auth middleware)
	router.GET("/oauth2callback", a.GoogleOAuth2CallbackHandler)

	api := router.Group("/api")

	public := api.Group("/users/:id/events")
	public.Use(a.Auth.Optional())
	{
		public.GET("", a.ListEventsHandler)
		public.GET("/:event_id/times", a.BookableTimesHandler)
		public.POST("/:event_id/meetings", a.CreateMeetingHandler)
	}

	private := api.Group("")
	private.Use(a.Auth.Middleware())
	{
		private.GET("/calendar/auth", a.GoogleAuthHandler)
		private.DELETE("/bookings/:id", a.CancelBookingHandler)

		users := private.Group("/users/:id", RequireSelf())
		{
			users.PUT("/schedule", a.SaveScheduleHandler)
			users.GET("/schedule", a.GetScheduleHandler)
			users.GET("/availability", a.AvailabilityHandler)
			users.POST("/slots/resolve", a.ResolveSlotsHandler)
			users.POST("/events", a.CreateEventHandler)
			users.GET("/events/:event_id", a.GetEventHandler)
			users.PUT("/events/:event_id", a.UpdateEventHandler)
			users.DELETE("/events/:event_id", a.DeleteEventHandler)
			users.GET("/bookings", a.ListBookingsHandler)
		}
	}
	return router
}

func (a *App) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (a *App) Readyz(c *gin.Context) {
	var failures []string
	for _, check := range a.ReadyChecks {
		if check.Check == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		err := check.Check(ctx)
		cancel()
		if err != nil {
			name := check.Name
			if name == "" {
				name = "dependency"
			}
			failures = append(failures, name+": "+err.Error())
		}
	}
	if len(failures) > 0 {
		c.String(http.StatusServiceUnavailable, strings.Join(failures, "; "))
		return
	}
	c.String(http.StatusOK, "ok")
}
