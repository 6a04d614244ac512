package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"availability-service/internal/apperr"
	"availability-service/internal/timerange"
)

// Rule is one recurring availability window: a weekday plus a local start
// and end time in the owning schedule's timezone.
type Rule struct {
	DayOfWeek Weekday             `json:"day_of_week" validate:"required,weekday"`
	StartTime timerange.TimeOfDay `json:"start_time"`
	EndTime   timerange.TimeOfDay `json:"end_time"`
}

// Schedule is a user's full set of weekly rules. There is at most one per
// user and its rules are always replaced as a whole.
type Schedule struct {
	UserID    string    `json:"user_id"`
	Timezone  string    `json:"timezone"`
	Rules     []Rule    `json:"availabilities"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Location loads the schedule's timezone.
func (s *Schedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return nil, fmt.Errorf("schedule for %q has no timezone", s.UserID)
	}
	return time.LoadLocation(s.Timezone)
}

// RulesFor returns the rules for day in insertion order.
func (s *Schedule) RulesFor(day Weekday) []Rule {
	var out []Rule
	for _, r := range s.Rules {
		if r.DayOfWeek == day {
			out = append(out, r)
		}
	}
	return out
}

// Issue describes one validation failure. Indices point into the submitted
// rule list; Field is the offending field of the first index.
type Issue struct {
	Indices []int  `json:"indices,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

const (
	msgTimezoneRequired = "Timezone is required"
	msgTimezoneUnknown  = "Timezone is not a known IANA zone"
	msgDayOfWeek        = "Day of week must be one of monday..sunday"
	msgTimeRange        = "Time must be in the format HH:MM"
	msgEndBeforeStart   = "End time must be after start time"
	msgOverlap          = "Availability overlaps with another"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		return Weekday(fl.Field().String()).Valid()
	})
	return v
}

// Validate checks a timezone and rule set before they are saved. It reports
// every problem it finds in a single validation error.
func Validate(timezone string, rules []Rule) error {
	var issues []Issue

	if err := validate.Var(timezone, "required"); err != nil {
		issues = append(issues, Issue{Field: "timezone", Message: msgTimezoneRequired})
	} else if err := validate.Var(timezone, "timezone"); err != nil {
		issues = append(issues, Issue{Field: "timezone", Message: msgTimezoneUnknown})
	}

	for i, r := range rules {
		if err := validate.Struct(r); err != nil {
			issues = append(issues, Issue{Indices: []int{i}, Field: "day_of_week", Message: msgDayOfWeek})
		}
		if !r.StartTime.Valid() {
			issues = append(issues, Issue{Indices: []int{i}, Field: "start_time", Message: msgTimeRange})
			continue
		}
		if !r.EndTime.Valid() {
			issues = append(issues, Issue{Indices: []int{i}, Field: "end_time", Message: msgTimeRange})
			continue
		}
		if !r.StartTime.Before(r.EndTime) {
			issues = append(issues, Issue{Indices: []int{i}, Field: "end_time", Message: msgEndBeforeStart})
		}
	}

	issues = append(issues, overlapIssues(rules)...)
	if len(issues) == 0 {
		return nil
	}
	sort.SliceStable(issues, func(a, b int) bool {
		return firstIndex(issues[a]) < firstIndex(issues[b])
	})
	return apperr.NewValidation("schedule.Validate", "invalid schedule", issues)
}

func overlapIssues(rules []Rule) []Issue {
	var issues []Issue
	for i := 0; i < len(rules); i++ {
		for j := i + 1; j < len(rules); j++ {
			a, b := rules[i], rules[j]
			if a.DayOfWeek != b.DayOfWeek || !wellFormed(a) || !wellFormed(b) {
				continue
			}
			if timerange.Overlaps(timerange.SameDay(a.StartTime, a.EndTime), timerange.SameDay(b.StartTime, b.EndTime)) {
				issues = append(issues, Issue{Indices: []int{i, j}, Field: "start_time", Message: msgOverlap})
			}
		}
	}
	return issues
}

func wellFormed(r Rule) bool {
	return r.StartTime.Valid() && r.EndTime.Valid() && r.StartTime.Before(r.EndTime)
}

func firstIndex(is Issue) int {
	if len(is.Indices) == 0 {
		return -1
	}
	return is.Indices[0]
}

// New validates and builds a schedule. Nothing is returned on failure.
func New(userID, timezone string, rules []Rule) (*Schedule, error) {
	if err := Validate(timezone, rules); err != nil {
		return nil, err
	}
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Schedule{UserID: userID, Timezone: timezone, Rules: cp}, nil
}

// IssuesOf extracts the validation issues carried by err, if any.
func IssuesOf(err error) []Issue {
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.KindValidation {
		return nil
	}
	issues, _ := ae.Details.([]Issue)
	return issues
}
