package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"availability-service/internal/apperr"
	"availability-service/internal/booking"
)

func eventID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("event_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found", "code": apperr.KindNotFound})
		return uuid.Nil, false
	}
	return id, true
}

// POST /users/:id/events
func (a *App) CreateEventHandler(c *gin.Context) {
	var req eventReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ev := &booking.Event{UserID: c.Param("id"), IsActive: true}
	req.apply(ev)
	if err := booking.ValidateEvent(ev); err != nil {
		a.respondError(c, err)
		return
	}
	if err := a.Events.CreateEvent(c.Request.Context(), ev); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toEventResp(*ev))
}

// GET /users/:id/events
// The owner sees every event; everyone else only sees active ones.
func (a *App) ListEventsHandler(c *gin.Context) {
	userID := c.Param("id")
	activeOnly := !actsFor(c, userID) || c.Query("active") == "true"

	events, err := a.Events.ListEvents(c.Request.Context(), userID, activeOnly)
	if err != nil {
		a.respondError(c, err)
		return
	}
	out := make([]eventResp, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventResp(ev))
	}
	c.JSON(http.StatusOK, out)
}

// GET /users/:id/events/:event_id
func (a *App) GetEventHandler(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	ev, err := a.Events.GetEvent(c.Request.Context(), c.Param("id"), id)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEventResp(*ev))
}

// PUT /users/:id/events/:event_id
func (a *App) UpdateEventHandler(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	var req eventReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()

	ev, err := a.Events.GetEvent(ctx, c.Param("id"), id)
	if err != nil {
		a.respondError(c, err)
		return
	}
	req.apply(ev)
	if err := booking.ValidateEvent(ev); err != nil {
		a.respondError(c, err)
		return
	}
	if err := a.Events.UpdateEvent(ctx, ev); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEventResp(*ev))
}

// DELETE /users/:id/events/:event_id
func (a *App) DeleteEventHandler(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	if err := a.Events.DeleteEvent(c.Request.Context(), c.Param("id"), id); err != nil {
		a.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /users/:id/events/:event_id/times?from=ISO&to=ISO
func (a *App) BookableTimesHandler(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	times, err := a.Meetings.BookableTimes(c.Request.Context(), c.Param("id"), id, from, to)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookableTimesResp{EventID: id.String(), Times: times})
}

// POST /users/:id/events/:event_id/meetings
func (a *App) CreateMeetingHandler(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	var req booking.MeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	b, err := a.Meetings.CreateMeeting(c.Request.Context(), c.Param("id"), id, req)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}
