package app

import (
	"time"

	"availability-service/internal/availability"
	"availability-service/internal/booking"
	"availability-service/internal/schedule"
	"availability-service/internal/timerange"
)

// availabilityRuleReq keeps times as strings so that a malformed value is
// reported against its rule index instead of failing the whole body.
type availabilityRuleReq struct {
	DayOfWeek string `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type saveScheduleReq struct {
	Timezone       string                `json:"timezone"`
	Availabilities []availabilityRuleReq `json:"availabilities"`
}

func (r saveScheduleReq) rules() []schedule.Rule {
	out := make([]schedule.Rule, len(r.Availabilities))
	for i, a := range r.Availabilities {
		day, err := schedule.ParseWeekday(a.DayOfWeek)
		if err != nil {
			day = schedule.Weekday(a.DayOfWeek)
		}
		out[i] = schedule.Rule{
			DayOfWeek: day,
			StartTime: parseOrInvalid(a.StartTime),
			EndTime:   parseOrInvalid(a.EndTime),
		}
	}
	return out
}

func parseOrInvalid(s string) timerange.TimeOfDay {
	tod, err := timerange.ParseTimeOfDay(s)
	if err != nil {
		return timerange.TimeOfDay{Hour: -1}
	}
	return tod
}

type resolveSlotsReq struct {
	Candidates      []time.Time `json:"candidates"`
	DurationMinutes int         `json:"duration_minutes"`
}

type resolveSlotsResp struct {
	Slots []time.Time `json:"slots"`
}

type availabilityResp struct {
	Date     string                `json:"date"`
	Timezone string                `json:"timezone"`
	Windows  []availability.Window `json:"windows"`
}

type eventReq struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	IsActive        *bool  `json:"is_active"`
}

func (r eventReq) apply(ev *booking.Event) {
	ev.Name = r.Name
	ev.Description = r.Description
	ev.DurationMinutes = r.DurationMinutes
	if r.IsActive != nil {
		ev.IsActive = *r.IsActive
	}
}

type eventResp struct {
	booking.Event
	DurationText string `json:"duration_text"`
}

func toEventResp(ev booking.Event) eventResp {
	return eventResp{Event: ev, DurationText: ev.DurationText()}
}

type bookableTimesResp struct {
	EventID string      `json:"event_id"`
	Times   []time.Time `json:"times"`
}
