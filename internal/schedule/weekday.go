package schedule

import (
	"fmt"
	"strings"
	"time"

	"availability-service/internal/timerange"
)

// Weekday identifies a day of the week by its lowercase English name, the
// form it is stored and exchanged in.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

var inOrder = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// indexed by time.Weekday
var fromStd = [7]Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// Weekdays returns the seven days starting on Monday.
func Weekdays() []Weekday {
	out := make([]Weekday, len(inOrder))
	copy(out, inOrder)
	return out
}

func FromTimeWeekday(d time.Weekday) Weekday {
	return fromStd[d]
}

// WeekdayOf returns the day of the week of a calendar date. It depends on the
// date alone, never on an instant or a zone.
func WeekdayOf(date timerange.Date) Weekday {
	return FromTimeWeekday(date.In(time.UTC).Weekday())
}

func ParseWeekday(s string) (Weekday, error) {
	d := Weekday(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown day of week %q", s)
	}
	return d, nil
}

func (d Weekday) Valid() bool {
	for _, w := range inOrder {
		if d == w {
			return true
		}
	}
	return false
}

func (d Weekday) String() string {
	return string(d)
}
