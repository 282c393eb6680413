package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes configures the conversation and message indexes.
// Called on startup from main after Mongo has connected.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		ConversationsCollection: {
			{
				// One individual conversation per unordered learner/mentor pair.
				Keys: bson.D{{Key: "pair_key", Value: 1}},
				Options: options.Index().
					SetName("uniq_pair_key").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"pair_key": bson.M{"$type": "string"}}),
			},
			{
				Keys:    bson.D{{Key: "members", Value: 1}},
				Options: options.Index().SetName("idx_members"),
			},
			{
				Keys:    bson.D{{Key: "staff", Value: 1}},
				Options: options.Index().SetName("idx_staff"),
			},
		},
		MessagesCollection: {
			{
				Keys: bson.D{
					{Key: "conversation_id", Value: 1},
					{Key: "created_at", Value: -1},
					{Key: "_id", Value: -1},
				},
				Options: options.Index().SetName("idx_conversation_created"),
			},
		},
		EnrollmentsCollection: {
			{
				Keys: bson.D{
					{Key: "course_id", Value: 1},
					{Key: "mentors", Value: 1},
				},
				Options: options.Index().SetName("idx_course_mentors"),
			},
		},
	}

	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("indexes on %s: %w", name, err)
		}
	}
	return nil
}
