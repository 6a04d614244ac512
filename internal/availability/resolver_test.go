package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"availability-service/internal/apperr"
	"availability-service/internal/schedule"
	"availability-service/internal/timerange"
)

type fakeSchedules struct {
	mu    sync.Mutex
	s     *schedule.Schedule
	err   error
	calls int
}

func (f *fakeSchedules) GetSchedule(_ context.Context, _ string) (*schedule.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.s, f.err
}

type fakeBusy struct {
	mu         sync.Mutex
	intervals  []timerange.Interval
	err        error
	calls      int
	start, end time.Time
}

func (f *fakeBusy) ListBusy(_ context.Context, _ string, start, end time.Time) ([]timerange.Interval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.start, f.end = start, end
	return f.intervals, f.err
}

func mondayNineToTen() *schedule.Schedule {
	return &schedule.Schedule{UserID: "u1", Timezone: "UTC", Rules: []schedule.Rule{
		rule(schedule.Monday, 9, 0, 10, 0),
	}}
}

func TestResolve_ExactBoundaryFit(t *testing.T) {
	r := NewResolver(&fakeSchedules{s: mondayNineToTen()}, &fakeBusy{}, 0)

	// 2024-01-01 is a Monday.
	got, err := r.ResolveValidSlots(context.Background(), "u1",
		[]time.Time{utc(2024, 1, 1, 9, 0), utc(2024, 1, 1, 9, 1)}, 60)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{utc(2024, 1, 1, 9, 0)}, got)
}

func TestResolve_HalfOpenBusyOverlap(t *testing.T) {
	s := &schedule.Schedule{Timezone: "UTC", Rules: []schedule.Rule{rule(schedule.Monday, 9, 0, 17, 0)}}
	busy := &fakeBusy{intervals: []timerange.Interval{{Start: utc(2024, 1, 1, 13, 0), End: utc(2024, 1, 1, 14, 0)}}}
	r := NewResolver(&fakeSchedules{s: s}, busy, 0)

	accepted, err := r.ResolveValidSlots(context.Background(), "u1", []time.Time{utc(2024, 1, 1, 12, 30)}, 30)
	require.NoError(t, err)
	assert.Len(t, accepted, 1, "[12:30,13:00) only touches the busy block")

	rejected, err := r.ResolveValidSlots(context.Background(), "u1", []time.Time{utc(2024, 1, 1, 12, 59)}, 60)
	require.NoError(t, err)
	assert.Empty(t, rejected)

	after, err := r.ResolveValidSlots(context.Background(), "u1", []time.Time{utc(2024, 1, 1, 14, 0)}, 60)
	require.NoError(t, err)
	assert.Len(t, after, 1)
}

func TestResolve_EmptyCandidatesSkipCollaborators(t *testing.T) {
	schedules := &fakeSchedules{s: mondayNineToTen()}
	busy := &fakeBusy{}
	r := NewResolver(schedules, busy, 0)

	got, err := r.ResolveValidSlots(context.Background(), "u1", nil, 30)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Zero(t, schedules.calls)
	assert.Zero(t, busy.calls)
}

func TestResolve_NoSchedule(t *testing.T) {
	busy := &fakeBusy{}
	r := NewResolver(&fakeSchedules{}, busy, 0)

	got, err := r.ResolveValidSlots(context.Background(), "u1", []time.Time{utc(2024, 1, 1, 9, 0)}, 30)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, busy.calls)
}

func TestResolve_CrossMidnightInScheduleZone(t *testing.T) {
	// UTC+9: 2024-01-01T23:30Z is 08:30 on Tuesday 2024-01-02 locally.
	s := &schedule.Schedule{Timezone: "Asia/Tokyo", Rules: []schedule.Rule{
		rule(schedule.Monday, 8, 0, 12, 0),
	}}
	r := NewResolver(&fakeSchedules{s: s}, &fakeBusy{}, 0)
	candidate := []time.Time{utc(2024, 1, 1, 23, 30)}

	got, err := r.ResolveValidSlots(context.Background(), "u1", candidate, 30)
	require.NoError(t, err)
	assert.Empty(t, got, "monday rules must not apply on local tuesday")

	s.Rules = []schedule.Rule{rule(schedule.Tuesday, 8, 0, 12, 0)}
	got, err = r.ResolveValidSlots(context.Background(), "u1", candidate, 30)
	require.NoError(t, err)
	assert.Equal(t, candidate, got)
}

func TestResolve_MustFitOneWindow(t *testing.T) {
	s := &schedule.Schedule{Timezone: "UTC", Rules: []schedule.Rule{
		rule(schedule.Monday, 9, 0, 10, 0),
		rule(schedule.Monday, 10, 0, 11, 0),
	}}
	r := NewResolver(&fakeSchedules{s: s}, &fakeBusy{}, 0)

	got, err := r.ResolveValidSlots(context.Background(), "u1",
		[]time.Time{utc(2024, 1, 1, 9, 30), utc(2024, 1, 1, 10, 0)}, 60)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{utc(2024, 1, 1, 10, 0)}, got, "adjacent windows are not merged")
}

func TestResolve_OrderAndIdempotence(t *testing.T) {
	s := &schedule.Schedule{Timezone: "Europe/Berlin", Rules: []schedule.Rule{
		rule(schedule.Monday, 9, 0, 12, 0),
		rule(schedule.Monday, 13, 0, 17, 0),
		rule(schedule.Tuesday, 9, 0, 17, 0),
	}}
	busy := &fakeBusy{intervals: []timerange.Interval{
		{Start: utc(2024, 1, 2, 10, 0), End: utc(2024, 1, 2, 11, 0)},
		{Start: utc(2024, 1, 1, 9, 0), End: utc(2024, 1, 1, 9, 30)},
	}}
	r := NewResolver(&fakeSchedules{s: s}, busy, 4)

	candidates := CandidateTimes(utc(2024, 1, 1, 0, 0), utc(2024, 1, 3, 0, 0), 15*time.Minute)
	require.Greater(t, len(candidates), parallelThreshold, "exercise the concurrent path")

	first, err := r.ResolveValidSlots(context.Background(), "u1", candidates, 45)
	require.NoError(t, err)
	second, err := r.ResolveValidSlots(context.Background(), "u1", candidates, 45)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	require.NotEmpty(t, first)

	// subsequence in the same relative order
	j := 0
	for _, c := range candidates {
		if j < len(first) && c.Equal(first[j]) {
			j++
		}
	}
	assert.Equal(t, len(first), j)

	// Berlin is UTC+1 in January: monday 09:00-12:00 local is 08:00-11:00Z.
	assert.Contains(t, first, utc(2024, 1, 1, 10, 15))
	assert.NotContains(t, first, utc(2024, 1, 1, 10, 30), "10:30Z+45m ends past 11:00Z")
	assert.NotContains(t, first, utc(2024, 1, 1, 8, 30), "overlaps busy 09:00Z")
	assert.Contains(t, first, utc(2024, 1, 1, 9, 30))
	assert.NotContains(t, first, utc(2024, 1, 2, 9, 30), "overlaps tuesday busy block")
	assert.Contains(t, first, utc(2024, 1, 2, 11, 0))
}

func TestResolve_BusyFetchedOnceOverWholeSpan(t *testing.T) {
	busy := &fakeBusy{}
	r := NewResolver(&fakeSchedules{s: mondayNineToTen()}, busy, 0)

	candidates := []time.Time{utc(2024, 1, 1, 9, 0), utc(2024, 1, 3, 9, 0), utc(2024, 1, 8, 9, 0)}
	_, err := r.ResolveValidSlots(context.Background(), "u1", candidates, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, busy.calls)
	assert.True(t, busy.start.Equal(utc(2024, 1, 1, 9, 0)))
	assert.True(t, busy.end.Equal(utc(2024, 1, 8, 9, 30)), "range covers the last proposed span")
}

func TestResolve_RetrievalFailuresAreAtomic(t *testing.T) {
	boom := errors.New("upstream unavailable")

	r := NewResolver(&fakeSchedules{err: boom}, &fakeBusy{}, 0)
	got, err := r.ResolveValidSlots(context.Background(), "u1", []time.Time{utc(2024, 1, 1, 9, 0)}, 30)
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, apperr.Retrieval))
	assert.True(t, errors.Is(err, boom))

	r = NewResolver(&fakeSchedules{s: mondayNineToTen()}, &fakeBusy{err: boom}, 0)
	got, err = r.ResolveValidSlots(context.Background(), "u1", []time.Time{utc(2024, 1, 1, 9, 0)}, 30)
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, apperr.Retrieval))
}

func TestResolve_RejectsBadInput(t *testing.T) {
	schedules := &fakeSchedules{s: mondayNineToTen()}
	r := NewResolver(schedules, &fakeBusy{}, 0)

	_, err := r.ResolveValidSlots(context.Background(), "u1", []time.Time{utc(2024, 1, 1, 9, 0)}, 0)
	assert.True(t, errors.Is(err, apperr.Validation))

	_, err = r.ResolveValidSlots(context.Background(), "u1",
		[]time.Time{utc(2024, 1, 1, 9, 30), utc(2024, 1, 1, 9, 0)}, 15)
	assert.True(t, errors.Is(err, apperr.Validation), "unsorted candidates are a contract violation")
	assert.Zero(t, schedules.calls)
}

func TestResolve_DuplicateCandidatesKept(t *testing.T) {
	r := NewResolver(&fakeSchedules{s: mondayNineToTen()}, &fakeBusy{}, 0)
	c := utc(2024, 1, 1, 9, 0)

	got, err := r.ResolveValidSlots(context.Background(), "u1", []time.Time{c, c}, 30)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{c, c}, got)
}
