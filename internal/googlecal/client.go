package googlecal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-sql/civil"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"availability-service/internal/apperr"
	"availability-service/internal/booking"
	"availability-service/internal/config"
	"availability-service/internal/timerange"
)

const primaryCalendar = "primary"

// TokenStore persists each user's OAuth token.
type TokenStore interface {
	SaveToken(ctx context.Context, userID string, tok *oauth2.Token) error
	GetToken(ctx context.Context, userID string) (*oauth2.Token, error)
}

type Client struct {
	oauth  *oauth2.Config
	tokens TokenStore
	log    *zap.Logger
	// extra options for calendar.NewService, used to point tests at a fake API
	opts []option.ClientOption
}

func NewOAuthConfig(cfg config.GoogleConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			calendar.CalendarReadonlyScope,
			calendar.CalendarEventsScope,
		},
		Endpoint: google.Endpoint,
	}
}

func NewClient(oauth *oauth2.Config, tokens TokenStore, log *zap.Logger, opts ...option.ClientOption) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{oauth: oauth, tokens: tokens, log: log, opts: opts}
}

// AuthURL is where the owner grants calendar access. Offline access with a
// forced consent screen makes Google return a refresh token.
func (c *Client) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func (c *Client) Exchange(ctx context.Context, userID, code string) error {
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return apperr.NewValidation("googlecal.Exchange", "failed to exchange code for token", nil)
	}
	return c.tokens.SaveToken(ctx, userID, tok)
}

func (c *Client) service(ctx context.Context, userID string) (*calendar.Service, error) {
	tok, err := c.tokens.GetToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	src := &savingTokenSource{
		ctx:    ctx,
		userID: userID,
		base:   c.oauth.TokenSource(ctx, tok),
		last:   tok,
		store:  c.tokens,
		log:    c.log,
	}
	opts := append([]option.ClientOption{option.WithTokenSource(src)}, c.opts...)
	return calendar.NewService(ctx, opts...)
}

// ListBusy returns the owner's timed and all-day events overlapping
// [start, end] from the primary calendar. Free (transparent) and cancelled
// events do not block time.
func (c *Client) ListBusy(ctx context.Context, userID string, start, end time.Time) ([]timerange.Interval, error) {
	const op = "googlecal.ListBusy"
	srv, err := c.service(ctx, userID)
	if err != nil {
		return nil, apperr.NewRetrieval(op, err)
	}

	var out []timerange.Interval
	call := srv.Events.List(primaryCalendar).
		EventTypes("default").
		SingleEvents(true).
		MaxResults(2500).
		TimeMin(start.UTC().Format(time.RFC3339)).
		TimeMax(end.UTC().Format(time.RFC3339))
	err = call.Pages(ctx, func(page *calendar.Events) error {
		out = append(out, busyIntervals(page.Items, page.TimeZone)...)
		return nil
	})
	if err != nil {
		return nil, apperr.NewRetrieval(op, fmt.Errorf("failed to fetch calendar events: %w", err))
	}
	return out, nil
}

// busyIntervals converts calendar events to absolute intervals. All-day
// events cover whole days in the calendar's zone; their end date is
// exclusive. Events without usable times are skipped.
func busyIntervals(items []*calendar.Event, calendarTZ string) []timerange.Interval {
	calLoc := time.UTC
	if calendarTZ != "" {
		if loc, err := time.LoadLocation(calendarTZ); err == nil {
			calLoc = loc
		}
	}

	var out []timerange.Interval
	for _, ev := range items {
		if ev == nil || ev.Status == "cancelled" || ev.Transparency == "transparent" {
			continue
		}
		if ev.Start == nil || ev.End == nil {
			continue
		}

		var iv timerange.Interval
		switch {
		case ev.Start.DateTime != "" && ev.End.DateTime != "":
			s, err1 := time.Parse(time.RFC3339, ev.Start.DateTime)
			e, err2 := time.Parse(time.RFC3339, ev.End.DateTime)
			if err1 != nil || err2 != nil {
				continue
			}
			iv = timerange.Interval{Start: s.UTC(), End: e.UTC()}
		case ev.Start.Date != "" && ev.End.Date != "":
			sd, err1 := civil.ParseDate(ev.Start.Date)
			ed, err2 := civil.ParseDate(ev.End.Date)
			if err1 != nil || err2 != nil {
				continue
			}
			loc := calLoc
			if ev.Start.TimeZone != "" {
				if l, err := time.LoadLocation(ev.Start.TimeZone); err == nil {
					loc = l
				}
			}
			iv = timerange.Interval{
				Start: timerange.LocalToAbsolute(sd, timerange.TimeOfDay{}, loc).UTC(),
				End:   timerange.LocalToAbsolute(ed, timerange.TimeOfDay{}, loc).UTC(),
			}
		default:
			continue
		}
		if !iv.Start.Before(iv.End) {
			continue
		}
		out = append(out, iv)
	}
	return out
}

// CreateMeetingEvent inserts the meeting on the owner's primary calendar
// with both parties as attendees and returns the new event id.
func (c *Client) CreateMeetingEvent(ctx context.Context, userID string, m booking.CalendarMeeting) (string, error) {
	const op = "googlecal.CreateMeetingEvent"
	srv, err := c.service(ctx, userID)
	if err != nil {
		return "", apperr.NewRetrieval(op, err)
	}

	owner, err := srv.CalendarList.Get(primaryCalendar).Context(ctx).Do()
	if err != nil {
		return "", apperr.NewRetrieval(op, fmt.Errorf("failed to load primary calendar: %w", err))
	}

	created, err := srv.Events.Insert(primaryCalendar, meetingEvent(m, owner)).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return "", apperr.NewRetrieval(op, fmt.Errorf("failed to create calendar event: %w", err))
	}
	return created.Id, nil
}

func meetingEvent(m booking.CalendarMeeting, owner *calendar.CalendarListEntry) *calendar.Event {
	ownerName := owner.SummaryOverride
	if ownerName == "" {
		ownerName = owner.Summary
	}
	description := "No additional details."
	if m.GuestNotes != "" {
		description = "Additional Details: " + m.GuestNotes
	}
	return &calendar.Event{
		Summary:     fmt.Sprintf("%s + %s: %s", m.GuestName, ownerName, m.EventName),
		Description: description,
		Start:       &calendar.EventDateTime{DateTime: m.Start.UTC().Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: m.End.UTC().Format(time.RFC3339)},
		Attendees: []*calendar.EventAttendee{
			{Email: m.GuestEmail, DisplayName: m.GuestName},
			{Email: owner.Id, DisplayName: ownerName, ResponseStatus: "accepted"},
		},
	}
}

// savingTokenSource writes refreshed tokens back to the store so the next
// request starts from the latest access token.
type savingTokenSource struct {
	ctx    context.Context
	userID string
	base   oauth2.TokenSource
	store  TokenStore
	log    *zap.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || tok.AccessToken != s.last.AccessToken {
		if err := s.store.SaveToken(s.ctx, s.userID, tok); err != nil {
			s.log.Warn("googlecal could not persist refreshed token",
				zap.String("user_id", s.userID), zap.Error(err))
		}
		s.last = tok
	}
	return tok, nil
}
