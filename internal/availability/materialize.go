package availability

import (
	"fmt"
	"time"

	"availability-service/internal/apperr"
	"availability-service/internal/schedule"
	"availability-service/internal/timerange"
)

// Window is one concrete availability span produced from a weekly rule.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Interval() timerange.Interval {
	return timerange.Interval{Start: w.Start, End: w.End}
}

// Materialize returns the availability windows a schedule yields on date.
// The date is taken as already expressed in the schedule's timezone. Windows
// come back in rule insertion order; an empty result means the whole day is
// unavailable.
//
// Stored rules were validated on save, but they are checked again here so a
// bad row surfaces as an invariant violation instead of a wrong answer.
func Materialize(s *schedule.Schedule, date timerange.Date) ([]Window, error) {
	const op = "availability.Materialize"
	if s == nil {
		return nil, apperr.NewInvariant(op, "nil schedule")
	}
	if !date.IsValid() {
		return nil, apperr.NewInvariant(op, fmt.Sprintf("invalid date %s", date))
	}
	loc, err := s.Location()
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindInvariant, Op: op, Message: "bad schedule timezone", Err: err}
	}
	return materializeIn(s, date, loc)
}

func materializeIn(s *schedule.Schedule, date timerange.Date, loc *time.Location) ([]Window, error) {
	day := schedule.WeekdayOf(date)
	windows := []Window{}
	for _, r := range s.RulesFor(day) {
		if !r.StartTime.Valid() || !r.EndTime.Valid() || !r.StartTime.Before(r.EndTime) {
			return nil, apperr.NewInvariant("availability.Materialize",
				fmt.Sprintf("malformed %s rule %s-%s", day, r.StartTime, r.EndTime))
		}
		windows = append(windows, Window{
			Start: timerange.LocalToAbsolute(date, r.StartTime, loc),
			End:   timerange.LocalToAbsolute(date, r.EndTime, loc),
		})
	}
	return windows, nil
}
