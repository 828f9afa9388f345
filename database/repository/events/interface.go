// File: database/repository/events/interface.go
package eventsRepo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// ErrCalendarLocked means another writer holds the calendar's advisory lock.
var ErrCalendarLocked = errors.New("calendar is locked by another writer")

// ErrOverlap means the window already holds an event.
var ErrOverlap = errors.New("event overlaps an existing event")

// EventDocument is one committed event.
type EventDocument struct {
	ID         string    `bson:"id" json:"id"`
	CalendarID string    `bson:"calendarId" json:"calendarId"`
	Title      string    `bson:"title" json:"title"`
	Start      time.Time `bson:"start" json:"start"`
	End        time.Time `bson:"end" json:"end"`
	Attendees  []string  `bson:"attendees,omitempty" json:"attendees,omitempty"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
}

// calendarLock is an advisory lock document; a TTL index drops stale ones.
type calendarLock struct {
	ID        string    `bson:"_id"`
	Owner     string    `bson:"owner"`
	ExpiresAt time.Time `bson:"expires_at"`
}

type EventRepository interface {
	EnsureIndexes(ctx context.Context) error
	ListOverlapping(ctx context.Context, calendarID string, start, end time.Time) ([]EventDocument, error)
	// InsertIfFree inserts doc unless it overlaps an existing event, holding
	// the calendar's advisory lock for the check and the write.
	InsertIfFree(ctx context.Context, doc EventDocument) error
}

type mongoEventRepo struct {
	events  *mongo.Collection
	locks   *mongo.Collection
	lockTTL time.Duration
}

func NewMongoEventRepo(db *mongo.Database) EventRepository {
	return &mongoEventRepo{
		events:  db.Collection("calendar_events"),
		locks:   db.Collection("calendar_locks"),
		lockTTL: 10 * time.Second,
	}
}
