package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"tailortalk/config"
	"tailortalk/models"
	"tailortalk/services/availability"
	"tailortalk/services/calendar"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type downCalendar struct {
	err   error
	calls int
}

func (d *downCalendar) ListEvents(context.Context, models.TimeWindow) ([]models.CalendarEvent, error) {
	d.calls++
	return nil, d.err
}

func (d *downCalendar) CreateEvent(context.Context, string, models.TimeWindow, []string) (*models.CalendarEvent, error) {
	return nil, d.err
}

func newCalendarRouter(t *testing.T, cal calendar.Calendar) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// Monday, Jan 15 2024 10:00 UTC.
	now := func() time.Time { return time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC) }
	settings := config.DefaultBooking()
	settings.RetryDelay = 0
	res := availability.NewResolver(cal, settings, nil).WithClock(now)

	h := NewCalendarHandler(res, settings)
	r := gin.New()
	r.GET("/available-slots", h.AvailableSlotsHandler)
	r.GET("/upcoming-events", h.UpcomingEventsHandler)
	r.POST("/check-availability", h.CheckAvailabilityHandler)
	return r
}

func meeting(t *testing.T, id string, start time.Time, minutes int) models.CalendarEvent {
	t.Helper()
	w, err := models.WindowFor(start, time.Duration(minutes)*time.Minute)
	require.NoError(t, err)
	return models.CalendarEvent{ID: id, Title: id, Window: w}
}

func jan(day, hour, minute int) time.Time {
	return time.Date(2024, 1, day, hour, minute, 0, 0, time.UTC)
}

func TestAvailableSlotsEndpoint(t *testing.T) {
	cal := calendar.NewMemoryCalendar(meeting(t, "planning", jan(16, 9, 0), 240))
	r := newCalendarRouter(t, cal)

	w := do(r, http.MethodGet, "/available-slots?start_date=2024-01-16&duration_minutes=60", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		AvailableSlots  []models.TimeWindow `json:"availableSlots"`
		Count           int                 `json:"count"`
		DurationMinutes int                 `json:"durationMinutes"`
	}
	decode(t, w, &body)
	assert.Equal(t, 60, body.DurationMinutes)
	// 13:00 through 16:00 on the half hour.
	assert.Equal(t, 7, body.Count)
	require.Len(t, body.AvailableSlots, 7)
	assert.True(t, jan(16, 13, 0).Equal(body.AvailableSlots[0].Start))
	assert.True(t, jan(16, 17, 0).Equal(body.AvailableSlots[6].End))
}

func TestAvailableSlotsRejectsBadInput(t *testing.T) {
	r := newCalendarRouter(t, calendar.NewMemoryCalendar())

	for _, path := range []string{
		"/available-slots",
		"/available-slots?start_date=tomorrow",
		"/available-slots?start_date=2024-01-16&duration_minutes=0",
		"/available-slots?start_date=2024-01-17&end_date=2024-01-16",
	} {
		w := do(r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestAvailableSlotsCalendarDown(t *testing.T) {
	down := &downCalendar{err: calendar.ErrUnreachable}
	r := newCalendarRouter(t, down)

	w := do(r, http.MethodGet, "/available-slots?start_date=2024-01-16", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 2, down.calls)

	var body struct {
		Message string `json:"message"`
	}
	decode(t, w, &body)
	assert.Contains(t, body.Message, "try again")
}

func TestUpcomingEventsEndpoint(t *testing.T) {
	cal := calendar.NewMemoryCalendar(
		meeting(t, "retro", jan(19, 15, 0), 60),
		meeting(t, "sync", jan(16, 9, 0), 30),
		meeting(t, "quarterly", jan(29, 9, 0), 60),
	)
	r := newCalendarRouter(t, cal)

	w := do(r, http.MethodGet, "/upcoming-events", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Events    []models.CalendarEvent `json:"events"`
		Count     int                    `json:"count"`
		DaysAhead int                    `json:"daysAhead"`
	}
	decode(t, w, &body)
	assert.Equal(t, 7, body.DaysAhead)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "sync", body.Events[0].ID)
	assert.Equal(t, "retro", body.Events[1].ID)

	w = do(r, http.MethodGet, "/upcoming-events?days_ahead=30", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.Equal(t, 3, body.Count)

	w = do(r, http.MethodGet, "/upcoming-events?days_ahead=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpcomingEventsUnauthorized(t *testing.T) {
	down := &downCalendar{err: calendar.ErrUnauthorized}
	r := newCalendarRouter(t, down)

	w := do(r, http.MethodGet, "/upcoming-events", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, 1, down.calls, "unauthorized is not retried")
}

func TestCheckAvailabilityEndpoint(t *testing.T) {
	cal := calendar.NewMemoryCalendar(meeting(t, "planning", jan(16, 14, 0), 60))
	r := newCalendarRouter(t, cal)

	var body struct {
		Available    bool                   `json:"available"`
		Conflicts    []models.CalendarEvent `json:"conflicts"`
		Alternatives []models.TimeWindow    `json:"alternatives"`
	}

	w := do(r, http.MethodPost, "/check-availability", `{"start":"2024-01-16T14:00:00Z","end":"2024-01-16T14:30:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.False(t, body.Available)
	require.Len(t, body.Conflicts, 1)
	assert.Equal(t, "planning", body.Conflicts[0].ID)
	require.NotEmpty(t, body.Alternatives)
	assert.True(t, jan(16, 15, 0).Equal(body.Alternatives[0].Start))

	body.Conflicts, body.Alternatives = nil, nil
	w = do(r, http.MethodPost, "/check-availability", `{"start":"2024-01-16T11:00:00Z","end":"2024-01-16T11:30:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.True(t, body.Available)
	assert.Empty(t, body.Conflicts)

	w = do(r, http.MethodPost, "/check-availability", `{"start":"2024-01-16T11:00:00Z","end":"2024-01-16T10:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
