// Package calendar holds the calendar collaborators the booking flow reads
// from and commits to.
package calendar

import (
	"context"
	"errors"
	"sort"

	"tailortalk/models"
)

var (
	ErrUnauthorized = errors.New("calendar rejected the credentials")
	ErrConflict     = errors.New("calendar slot already taken")
	ErrUnreachable  = errors.New("calendar unreachable")
)

// Calendar is the external calendar as the booking flow sees it.
type Calendar interface {
	// ListEvents returns events overlapping window, ordered by start.
	ListEvents(ctx context.Context, window models.TimeWindow) ([]models.CalendarEvent, error)
	// CreateEvent commits a new event and fails with ErrConflict when the
	// window is no longer free.
	CreateEvent(ctx context.Context, title string, window models.TimeWindow, attendees []string) (*models.CalendarEvent, error)
}

// IsTransient reports failures worth a retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, context.DeadlineExceeded)
}

// Description is attached to every event created from a conversation.
const Description = "Booked via chat assistant"

func sortByStart(events []models.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Window.Start.Before(events[j].Window.Start)
	})
}
