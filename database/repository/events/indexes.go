// FILE: database/repository/events/indexes.go
package eventsRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (r *mongoEventRepo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	eventIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		// Overlap queries filter by calendar and range on start/end.
		{
			Keys:    bson.D{{Key: "calendarId", Value: 1}, {Key: "start", Value: 1}, {Key: "end", Value: 1}},
			Options: options.Index().SetName("calendar_start_end_idx"),
		},
	}
	if _, err := r.events.Indexes().CreateMany(ctx, eventIndexes); err != nil {
		return fmt.Errorf("failed to create event indexes: %w", err)
	}

	lockIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0).SetName("lock_ttl_idx"),
	}
	if _, err := r.locks.Indexes().CreateOne(ctx, lockIndex); err != nil {
		return fmt.Errorf("failed to create lock index: %w", err)
	}
	return nil
}
