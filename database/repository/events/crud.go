// File: database/repository/events/crud.go
package eventsRepo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func overlapFilter(calendarID string, start, end time.Time) bson.M {
	return bson.M{
		"calendarId": calendarID,
		"start":      bson.M{"$lt": end},
		"end":        bson.M{"$gt": start},
	}
}

func (r *mongoEventRepo) ListOverlapping(ctx context.Context, calendarID string, start, end time.Time) ([]EventDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "start", Value: 1}})
	cursor, err := r.events.Find(ctx, overlapFilter(calendarID, start, end), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []EventDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("error decoding events: %w", err)
	}
	return docs, nil
}

func (r *mongoEventRepo) InsertIfFree(ctx context.Context, doc EventDocument) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	release, err := r.lock(ctx, doc.CalendarID)
	if err != nil {
		return err
	}
	defer release()

	n, err := r.events.CountDocuments(ctx, overlapFilter(doc.CalendarID, doc.Start, doc.End))
	if err != nil {
		return fmt.Errorf("failed to check overlap: %w", err)
	}
	if n > 0 {
		return ErrOverlap
	}

	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if _, err := r.events.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// lock takes the calendar's advisory lock. A duplicate key means someone
// else holds it; expired holders are cleared by the TTL index.
func (r *mongoEventRepo) lock(ctx context.Context, calendarID string) (func(), error) {
	owner := uuid.New().String()
	_, err := r.locks.InsertOne(ctx, calendarLock{
		ID:        calendarID,
		Owner:     owner,
		ExpiresAt: time.Now().Add(r.lockTTL),
	})
	if mongo.IsDuplicateKeyError(err) {
		return nil, ErrCalendarLocked
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take calendar lock: %w", err)
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = r.locks.DeleteOne(releaseCtx, bson.M{"_id": calendarID, "owner": owner})
	}, nil
}
