package calendar

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"tailortalk/models"
)

// MemoryCalendar keeps events in process. It backs local runs and tests.
type MemoryCalendar struct {
	mu     sync.RWMutex
	events []models.CalendarEvent
}

func NewMemoryCalendar(seed ...models.CalendarEvent) *MemoryCalendar {
	c := &MemoryCalendar{events: append([]models.CalendarEvent(nil), seed...)}
	sortByStart(c.events)
	return c
}

func (c *MemoryCalendar) ListEvents(ctx context.Context, window models.TimeWindow) ([]models.CalendarEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []models.CalendarEvent
	for _, ev := range c.events {
		if ev.Window.Overlaps(window) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (c *MemoryCalendar) CreateEvent(ctx context.Context, title string, window models.TimeWindow, attendees []string) (*models.CalendarEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ev := range c.events {
		if ev.Window.Overlaps(window) {
			return nil, ErrConflict
		}
	}
	ev := models.CalendarEvent{
		ID:        uuid.New().String(),
		Window:    window,
		Title:     title,
		Attendees: append([]string(nil), attendees...),
	}
	c.events = append(c.events, ev)
	sortByStart(c.events)
	return &ev, nil
}
