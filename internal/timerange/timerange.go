package timerange

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/golang-sql/civil"
)

// Date is a calendar date with no time zone attached.
type Date = civil.Date

// Interval is a span between two absolute instants.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether a and b share any instant. Both are treated as
// half-open, so a.End == b.Start is not an overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Contains reports whether t lies in iv with both ends included.
func Contains(iv Interval, t time.Time) bool {
	return !t.Before(iv.Start) && !t.After(iv.End)
}

func AddMinutes(t time.Time, n int) time.Time {
	return t.Add(time.Duration(n) * time.Minute)
}

// DateIn returns the calendar date of t as observed in loc.
func DateIn(t time.Time, loc *time.Location) Date {
	return civil.DateOf(t.In(loc))
}

// LocalToAbsolute resolves a wall-clock time on date in loc to an instant.
//
// Around DST transitions both edge cases use the offset in force before the
// transition. A wall-clock time inside a spring-forward gap therefore moves
// forward by the size of the gap (02:30 becomes 03:30 on a one hour gap), and
// an ambiguous time in a fall-back overlap resolves to its first occurrence.
func LocalToAbsolute(date Date, tod TimeOfDay, loc *time.Location) time.Time {
	t := time.Date(date.Year, date.Month, date.Day, tod.Hour, tod.Minute, 0, 0, loc)
	// time.Date does not say which side of a gap or overlap it picks. Zone
	// transitions are never less than a day apart, so the offset a day
	// earlier is the pre-transition one.
	_, before := t.Add(-24 * time.Hour).Zone()
	naive := time.Date(date.Year, date.Month, date.Day, tod.Hour, tod.Minute, 0, 0, time.UTC)
	pre := naive.Add(-time.Duration(before) * time.Second).In(loc)

	if !showsWallClock(t, date, tod) {
		return pre
	}
	if pre.Before(t) && showsWallClock(pre, date, tod) {
		return pre
	}
	return t
}

func showsWallClock(t time.Time, date Date, tod TimeOfDay) bool {
	return t.Year() == date.Year && t.Month() == date.Month && t.Day() == date.Day &&
		t.Hour() == tod.Hour && t.Minute() == tod.Minute
}

var hhmm = regexp.MustCompile(`^([0-9]|0[0-9]|1[0-9]|2[0-3]):([0-5][0-9])(:[0-5][0-9](\.[0-9]+)?)?$`)

// TimeOfDay is a local wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("hour %d out of range 0-23", hour)
	}
	if minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("minute %d out of range 0-59", minute)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// MustTimeOfDay is NewTimeOfDay for constants and tests.
func MustTimeOfDay(hour, minute int) TimeOfDay {
	tod, err := NewTimeOfDay(hour, minute)
	if err != nil {
		panic(err)
	}
	return tod
}

// ParseTimeOfDay accepts "H:MM" and "HH:MM". A trailing seconds part is
// tolerated so values read back from Postgres time columns parse too.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	m := hhmm.FindStringSubmatch(s)
	if m == nil {
		return TimeOfDay{}, fmt.Errorf("invalid time %q: must be in the format HH:MM", s)
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	return NewTimeOfDay(h, mins)
}

// Valid reports whether the value could have come from NewTimeOfDay.
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

// Minutes returns the number of minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) Before(u TimeOfDay) bool {
	return t.Minutes() < u.Minutes()
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time of day must be a string: %w", err)
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// SameDay places a time-of-day range on a fixed reference day so that two
// ranges can be compared with Overlaps.
func SameDay(start, end TimeOfDay) Interval {
	ref := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	return Interval{
		Start: AddMinutes(ref, start.Minutes()),
		End:   AddMinutes(ref, end.Minutes()),
	}
}
