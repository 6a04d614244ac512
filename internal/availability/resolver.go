package availability

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"availability-service/internal/apperr"
	"availability-service/internal/schedule"
	"availability-service/internal/timerange"
)

// ScheduleProvider returns a user's weekly schedule, or nil with no error
// when the user has not configured one.
type ScheduleProvider interface {
	GetSchedule(ctx context.Context, userID string) (*schedule.Schedule, error)
}

// BusyIntervalProvider lists externally booked blocks overlapping
// [start, end]. Order is not significant.
type BusyIntervalProvider interface {
	ListBusy(ctx context.Context, userID string, start, end time.Time) ([]timerange.Interval, error)
}

const DefaultConcurrency = 8

// below this many candidates the fan-out costs more than it saves
const parallelThreshold = 32

type Resolver struct {
	schedules   ScheduleProvider
	busy        BusyIntervalProvider
	concurrency int
}

func NewResolver(schedules ScheduleProvider, busy BusyIntervalProvider, concurrency int) *Resolver {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Resolver{schedules: schedules, busy: busy, concurrency: concurrency}
}

// ResolveValidSlots returns the candidates at which a booking of
// durationMinutes fits inside a single availability window of the user's
// schedule without overlapping any busy interval. The result is a
// subsequence of candidates in their original order.
//
// Candidates must be sorted ascending; unsorted input is rejected as a
// validation error since the busy lookup range is taken from the first and
// last entries. Any retrieval failure fails the whole call.
func (r *Resolver) ResolveValidSlots(ctx context.Context, userID string, candidates []time.Time, durationMinutes int) ([]time.Time, error) {
	const op = "availability.ResolveValidSlots"
	if len(candidates) == 0 {
		return []time.Time{}, nil
	}
	if durationMinutes <= 0 {
		return nil, apperr.NewValidation(op, "duration must be a positive number of minutes", nil)
	}
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Before(candidates[i-1]) {
			return nil, apperr.NewValidation(op, "candidates must be sorted ascending", map[string]int{"index": i})
		}
	}

	sched, err := r.schedules.GetSchedule(ctx, userID)
	if err != nil {
		return nil, retrievalError(op, err)
	}
	if sched == nil {
		return []time.Time{}, nil
	}
	loc, err := sched.Location()
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindInvariant, Op: op, Message: "bad schedule timezone", Err: err}
	}

	rangeStart := candidates[0]
	rangeEnd := timerange.AddMinutes(candidates[len(candidates)-1], durationMinutes)
	busy, err := r.busy.ListBusy(ctx, userID, rangeStart, rangeEnd)
	if err != nil {
		return nil, retrievalError(op, err)
	}

	// Materialize every local date up front so that evaluation below only
	// reads shared state.
	windowsByDate := make(map[timerange.Date][]Window)
	dates := make([]timerange.Date, len(candidates))
	for i, c := range candidates {
		d := timerange.DateIn(c, loc)
		dates[i] = d
		if _, ok := windowsByDate[d]; ok {
			continue
		}
		ws, err := materializeIn(sched, d, loc)
		if err != nil {
			return nil, err
		}
		windowsByDate[d] = ws
	}

	accepted := make([]bool, len(candidates))
	eval := func(i int) {
		proposed := timerange.Interval{Start: candidates[i], End: timerange.AddMinutes(candidates[i], durationMinutes)}
		accepted[i] = fits(proposed, windowsByDate[dates[i]], busy)
	}

	if len(candidates) < parallelThreshold || r.concurrency == 1 {
		for i := range candidates {
			eval(i)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		for i := range candidates {
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				eval(i)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	out := make([]time.Time, 0, len(candidates))
	for i, ok := range accepted {
		if ok {
			out = append(out, candidates[i])
		}
	}
	return out, nil
}

// fits reports whether proposed lies in one window with both ends included
// and does not overlap any busy interval.
func fits(proposed timerange.Interval, windows []Window, busy []timerange.Interval) bool {
	for _, b := range busy {
		if timerange.Overlaps(proposed, b) {
			return false
		}
	}
	for _, w := range windows {
		iv := w.Interval()
		if timerange.Contains(iv, proposed.Start) && timerange.Contains(iv, proposed.End) {
			return true
		}
	}
	return false
}

func retrievalError(op string, err error) error {
	if apperr.KindOf(err) == apperr.KindRetrieval {
		return err
	}
	return apperr.NewRetrieval(op, err)
}
