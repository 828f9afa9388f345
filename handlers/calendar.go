package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"tailortalk/config"
	"tailortalk/models"
	"tailortalk/services/availability"
	"tailortalk/services/calendar"
	"tailortalk/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxUpcomingEvents caps one upcoming-events answer.
const maxUpcomingEvents = 20

// CalendarHandler answers direct calendar questions outside a conversation.
// Nothing here writes to the calendar; bookings only happen through a
// confirmed chat session.
type CalendarHandler struct {
	Resolver *availability.Resolver
	Settings config.Booking
}

func NewCalendarHandler(resolver *availability.Resolver, settings config.Booking) *CalendarHandler {
	return &CalendarHandler{Resolver: resolver, Settings: settings}
}

type availabilityRequest struct {
	Start time.Time `json:"start" binding:"required"`
	End   time.Time `json:"end" binding:"required"`
}

func (h *CalendarHandler) policy() utils.CallPolicy {
	return utils.CallPolicy{
		Timeout:   h.Settings.CollaboratorTimeout,
		Delay:     h.Settings.RetryDelay,
		Transient: calendar.IsTransient,
	}
}

func (h *CalendarHandler) respondCalendarError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, availability.ErrInvalidRange):
		utils.JSONError(c, http.StatusBadRequest, "Invalid date range", err.Error())
	case errors.Is(err, calendar.ErrUnauthorized):
		getLogger(c).Error("Calendar rejected credentials", zap.Error(err), zap.String("path", c.FullPath()))
		utils.JSONError(c, http.StatusBadGateway, "The calendar is not accessible right now.", "")
	default:
		getLogger(c).Error("Calendar query failed", zap.Error(err), zap.String("path", c.FullPath()))
		utils.JSONError(c, http.StatusServiceUnavailable, "The calendar is unreachable right now. Please try again shortly.", "")
	}
}

func (h *CalendarHandler) parseDate(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, h.Settings.Location)
}

// AvailableSlotsHandler lists free windows inside business hours.
// Query: start_date (YYYY-MM-DD, required), end_date (defaults to start_date)
// and duration_minutes (defaults to the booking default).
func (h *CalendarHandler) AvailableSlotsHandler(c *gin.Context) {
	first, err := h.parseDate(c.Query("start_date"))
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "start_date must be YYYY-MM-DD", err.Error())
		return
	}
	last := first
	if s := c.Query("end_date"); s != "" {
		if last, err = h.parseDate(s); err != nil {
			utils.JSONError(c, http.StatusBadRequest, "end_date must be YYYY-MM-DD", err.Error())
			return
		}
	}
	duration := h.Settings.DefaultDuration
	if s := c.Query("duration_minutes"); s != "" {
		mins, err := strconv.Atoi(s)
		if err != nil || mins <= 0 || mins > 24*60 {
			utils.JSONError(c, http.StatusBadRequest, "duration_minutes must be between 1 and 1440", "")
			return
		}
		duration = time.Duration(mins) * time.Minute
	}

	slots, err := utils.CallWithRetry(c.Request.Context(), h.policy(), func(ctx context.Context) ([]models.TimeWindow, error) {
		return h.Resolver.FreeSlots(ctx, first, last, duration)
	})
	if err != nil {
		h.respondCalendarError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"availableSlots":  nonNilWindows(slots),
		"count":           len(slots),
		"durationMinutes": int(duration / time.Minute),
		"searchRange": gin.H{
			"start": first.Format("2006-01-02"),
			"end":   last.Format("2006-01-02"),
		},
	})
}

// UpcomingEventsHandler lists the events of the next days_ahead days (default 7).
func (h *CalendarHandler) UpcomingEventsHandler(c *gin.Context) {
	days := 7
	if s := c.Query("days_ahead"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > availability.MaxSearchDays {
			utils.JSONError(c, http.StatusBadRequest, "days_ahead must be between 1 and 31", "")
			return
		}
		days = n
	}

	events, err := utils.CallWithRetry(c.Request.Context(), h.policy(), func(ctx context.Context) ([]models.CalendarEvent, error) {
		return h.Resolver.Upcoming(ctx, days)
	})
	if err != nil {
		h.respondCalendarError(c, err)
		return
	}
	if len(events) > maxUpcomingEvents {
		events = events[:maxUpcomingEvents]
	}
	c.JSON(http.StatusOK, gin.H{
		"events":    nonNilEvents(events),
		"count":     len(events),
		"daysAhead": days,
	})
}

// CheckAvailabilityHandler checks one window and suggests nearby free ones
// when it is taken.
func (h *CalendarHandler) CheckAvailabilityHandler(c *gin.Context) {
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}
	window, err := models.NewTimeWindow(req.Start, req.End)
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "end must be after start", err.Error())
		return
	}

	res, err := utils.CallWithRetry(c.Request.Context(), h.policy(), func(ctx context.Context) (models.AvailabilityResult, error) {
		return h.Resolver.Check(ctx, window)
	})
	if err != nil {
		h.respondCalendarError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"available":    res.Available(),
		"requested":    res.Requested,
		"conflicts":    nonNilEvents(res.Conflicts),
		"alternatives": nonNilWindows(res.Alternatives),
	})
}

func nonNilEvents(events []models.CalendarEvent) []models.CalendarEvent {
	if events == nil {
		return []models.CalendarEvent{}
	}
	return events
}

func nonNilWindows(windows []models.TimeWindow) []models.TimeWindow {
	if windows == nil {
		return []models.TimeWindow{}
	}
	return windows
}
