package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-sql/civil"
	"github.com/google/uuid"

	"availability-service/internal/apperr"
	"availability-service/internal/availability"
)

// PUT /users/:id/schedule
// Replaces the whole weekly schedule. All problems are reported at once.
func (a *App) SaveScheduleHandler(c *gin.Context) {
	userID := c.Param("id")
	var payload saveScheduleReq
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, err.Error())
		return
	}

	saved, err := a.Schedules.ReplaceAll(c.Request.Context(), userID, payload.Timezone, payload.rules())
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// GET /users/:id/schedule
func (a *App) GetScheduleHandler(c *gin.Context) {
	s, err := a.Schedules.GetSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "schedule not found", "code": apperr.KindNotFound})
		return
	}
	c.JSON(http.StatusOK, s)
}

// GET /users/:id/availability?date=YYYY-MM-DD
// The date is read in the schedule's timezone.
func (a *App) AvailabilityHandler(c *gin.Context) {
	date, err := civil.ParseDate(c.Query("date"))
	if err != nil {
		badRequest(c, "date required (YYYY-MM-DD)")
		return
	}

	s, err := a.Schedules.GetSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	resp := availabilityResp{Date: date.String(), Windows: []availability.Window{}}
	if s == nil {
		c.JSON(http.StatusOK, resp)
		return
	}

	windows, err := availability.Materialize(s, date)
	if err != nil {
		a.respondError(c, err)
		return
	}
	resp.Timezone = s.Timezone
	resp.Windows = windows
	c.JSON(http.StatusOK, resp)
}

// POST /users/:id/slots/resolve
func (a *App) ResolveSlotsHandler(c *gin.Context) {
	var req resolveSlotsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	slots, err := a.Resolver.ResolveValidSlots(c.Request.Context(), c.Param("id"), req.Candidates, req.DurationMinutes)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resolveSlotsResp{Slots: slots})
}

// GET /users/:id/bookings?from=ISO&to=ISO
func (a *App) ListBookingsHandler(c *gin.Context) {
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	bookings, err := a.Bookings.ListBookings(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}

// DELETE /bookings/:id
func (a *App) CancelBookingHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found", "code": apperr.KindNotFound})
		return
	}
	ctx := c.Request.Context()

	b, err := a.Bookings.GetBooking(ctx, id)
	if err != nil {
		a.respondError(c, err)
		return
	}
	if !actsFor(c, b.UserID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found", "code": apperr.KindNotFound})
		return
	}
	if err := a.Bookings.CancelBooking(ctx, id); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// parseRange reads optional RFC 3339 from/to query parameters. It writes the
// error response itself and reports false on bad input.
func parseRange(c *gin.Context) (from, to time.Time, ok bool) {
	var err error
	if s := c.Query("from"); s != "" {
		if from, err = time.Parse(time.RFC3339, s); err != nil {
			badRequest(c, "invalid from")
			return
		}
	}
	if s := c.Query("to"); s != "" {
		if to, err = time.Parse(time.RFC3339, s); err != nil {
			badRequest(c, "invalid to")
			return
		}
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		badRequest(c, "from must be before to")
		return
	}
	return from, to, true
}
