package calendar

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	eventsRepo "tailortalk/database/repository/events"
	"tailortalk/models"
)

// MongoCalendar stores events in MongoDB, for deployments without an
// external calendar.
type MongoCalendar struct {
	repo       eventsRepo.EventRepository
	calendarID string
	logger     *zap.Logger
}

func NewMongoCalendar(repo eventsRepo.EventRepository, calendarID string, logger *zap.Logger) *MongoCalendar {
	return &MongoCalendar{repo: repo, calendarID: calendarID, logger: logger}
}

func (m *MongoCalendar) ListEvents(ctx context.Context, window models.TimeWindow) ([]models.CalendarEvent, error) {
	docs, err := m.repo.ListOverlapping(ctx, m.calendarID, window.Start, window.End)
	if err != nil {
		return nil, m.unreachable("list events", err)
	}
	out := make([]models.CalendarEvent, 0, len(docs))
	for _, d := range docs {
		w, err := models.NewTimeWindow(d.Start.In(window.Start.Location()), d.End.In(window.Start.Location()))
		if err != nil {
			m.logger.Warn("Skipping malformed event", zap.String("eventId", d.ID), zap.Error(err))
			continue
		}
		out = append(out, models.CalendarEvent{ID: d.ID, Window: w, Title: d.Title, Attendees: d.Attendees})
	}
	return out, nil
}

func (m *MongoCalendar) CreateEvent(ctx context.Context, title string, window models.TimeWindow, attendees []string) (*models.CalendarEvent, error) {
	doc := eventsRepo.EventDocument{
		ID:         uuid.New().String(),
		CalendarID: m.calendarID,
		Title:      title,
		Start:      window.Start.UTC(),
		End:        window.End.UTC(),
		Attendees:  append([]string(nil), attendees...),
	}
	err := m.repo.InsertIfFree(ctx, doc)
	switch {
	case errors.Is(err, eventsRepo.ErrOverlap):
		return nil, ErrConflict
	case err != nil:
		return nil, m.unreachable("insert event", err)
	}
	return &models.CalendarEvent{ID: doc.ID, Window: window, Title: title, Attendees: doc.Attendees}, nil
}

func (m *MongoCalendar) unreachable(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	m.logger.Warn("Mongo calendar call failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, ErrUnreachable)
}
