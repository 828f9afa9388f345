package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"tailortalk/models"
)

// GoogleCalendar talks to one Google calendar through a service account.
type GoogleCalendar struct {
	svc        *gcal.Service
	calendarID string
	logger     *zap.Logger
}

func NewGoogleCalendar(ctx context.Context, credentialsFile, calendarID string, logger *zap.Logger) (*GoogleCalendar, error) {
	svc, err := gcal.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gcal.CalendarScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &GoogleCalendar{svc: svc, calendarID: calendarID, logger: logger}, nil
}

func (g *GoogleCalendar) ListEvents(ctx context.Context, window models.TimeWindow) ([]models.CalendarEvent, error) {
	var out []models.CalendarEvent
	pageToken := ""
	for {
		call := g.svc.Events.List(g.calendarID).
			TimeMin(window.Start.Format(time.RFC3339)).
			TimeMax(window.End.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, g.classify("list events", err)
		}
		for _, item := range page.Items {
			ev, ok := fromGoogle(item)
			if ok && ev.Window.Overlaps(window) {
				out = append(out, ev)
			}
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	sortByStart(out)
	return out, nil
}

// CreateEvent re-reads the window first; the Calendar API itself accepts
// overlapping inserts.
func (g *GoogleCalendar) CreateEvent(ctx context.Context, title string, window models.TimeWindow, attendees []string) (*models.CalendarEvent, error) {
	existing, err := g.ListEvents(ctx, window)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, ErrConflict
	}

	ev := &gcal.Event{
		Summary:     title,
		Description: Description,
		Start:       &gcal.EventDateTime{DateTime: window.Start.Format(time.RFC3339), TimeZone: window.Start.Location().String()},
		End:         &gcal.EventDateTime{DateTime: window.End.Format(time.RFC3339), TimeZone: window.End.Location().String()},
	}
	var names []string
	for _, a := range attendees {
		if strings.Contains(a, "@") {
			ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{Email: a})
		} else {
			names = append(names, a)
		}
	}
	if len(names) > 0 {
		ev.Description += "\nWith: " + strings.Join(names, ", ")
	}

	created, err := g.svc.Events.Insert(g.calendarID, ev).Context(ctx).Do()
	if err != nil {
		return nil, g.classify("insert event", err)
	}
	return &models.CalendarEvent{
		ID:        created.Id,
		Window:    window,
		Title:     title,
		Attendees: append([]string(nil), attendees...),
	}, nil
}

func (g *GoogleCalendar) classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		g.logger.Warn("Google Calendar error", zap.String("op", op), zap.Int("code", apiErr.Code), zap.String("message", apiErr.Message))
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w", op, ErrUnauthorized)
		case http.StatusConflict:
			return fmt.Errorf("%s: %w", op, ErrConflict)
		}
	} else {
		g.logger.Warn("Google Calendar call failed", zap.String("op", op), zap.Error(err))
	}
	return fmt.Errorf("%s: %w", op, ErrUnreachable)
}

// fromGoogle converts a timed event. All-day and cancelled events are
// skipped, as are events marked free.
func fromGoogle(item *gcal.Event) (models.CalendarEvent, bool) {
	if item.Status == "cancelled" || item.Transparency == "transparent" {
		return models.CalendarEvent{}, false
	}
	if item.Start == nil || item.End == nil || item.Start.DateTime == "" || item.End.DateTime == "" {
		return models.CalendarEvent{}, false
	}
	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return models.CalendarEvent{}, false
	}
	end, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		return models.CalendarEvent{}, false
	}
	w, err := models.NewTimeWindow(start, end)
	if err != nil {
		return models.CalendarEvent{}, false
	}
	ev := models.CalendarEvent{ID: item.Id, Window: w, Title: item.Summary}
	for _, a := range item.Attendees {
		ev.Attendees = append(ev.Attendees, a.Email)
	}
	return ev, true
}
