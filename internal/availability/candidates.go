package availability

import "time"

const DefaultStep = 15 * time.Minute

// CandidateTimes lists start times every step from `from`, rounded up to a
// multiple of step, through `to` inclusive. It feeds ResolveValidSlots when a
// guest asks what can be booked in a range.
func CandidateTimes(from, to time.Time, step time.Duration) []time.Time {
	if step <= 0 {
		step = DefaultStep
	}
	if to.Before(from) {
		return nil
	}
	start := from.Truncate(step)
	if start.Before(from) {
		start = start.Add(step)
	}
	var out []time.Time
	for t := start; !t.After(to); t = t.Add(step) {
		out = append(out, t)
	}
	return out
}
