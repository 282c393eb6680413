package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
	"github.com/AnshRaj112/campus-chat-backend/internal/services"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const ConversationsCollection = "conversations"

// ConversationStore keeps conversations in MongoDB.
type ConversationStore struct {
	col *mongo.Collection
	now func() time.Time
}

func NewConversationStore(db *mongo.Database) *ConversationStore {
	return &ConversationStore{col: db.Collection(ConversationsCollection), now: time.Now}
}

func (s *ConversationStore) Insert(ctx context.Context, c *models.Conversation) error {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if _, err := s.col.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", services.ErrConflict, err)
		}
		return err
	}
	return nil
}

// UpsertIndividual relies on the unique partial index on pair_key: concurrent
// callers race on a single upsert and the loser reads the winner's document.
func (s *ConversationStore) UpsertIndividual(ctx context.Context, c *models.Conversation) (*models.Conversation, bool, error) {
	if c.PairKey == "" {
		return nil, false, fmt.Errorf("%w: individual conversation without pair key", services.ErrInvalidIdentity)
	}
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}

	filter := bson.M{"pair_key": c.PairKey}
	update := bson.M{"$setOnInsert": c}
	opts := options.Update().SetUpsert(true)

	res, err := s.col.UpdateOne(ctx, filter, update, opts)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, false, err
	}

	created := err == nil && res.UpsertedCount == 1
	var out models.Conversation
	if ferr := s.col.FindOne(ctx, filter).Decode(&out); ferr != nil {
		if errors.Is(ferr, mongo.ErrNoDocuments) {
			return nil, false, fmt.Errorf("%w: pair %s vanished after upsert", services.ErrConflict, c.PairKey)
		}
		return nil, false, ferr
	}
	return &out, created, nil
}

func (s *ConversationStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	var c models.Conversation
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *ConversationStore) ListForParticipant(ctx context.Context, userID string, kind models.ConversationKind) ([]models.Conversation, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"members": userID},
		bson.M{"staff": userID},
	}}
	if kind != "" {
		filter["kind"] = kind
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "last_message.created_at", Value: -1},
		{Key: "updated_at", Value: -1},
	})
	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Conversation{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ConversationStore) AddParticipants(ctx context.Context, id primitive.ObjectID, members, staff []string) (*models.Conversation, error) {
	add := bson.M{}
	if len(members) > 0 {
		add["members"] = bson.M{"$each": members}
	}
	if len(staff) > 0 {
		add["staff"] = bson.M{"$each": staff}
	}
	update := bson.M{"$set": bson.M{"updated_at": s.timestamp()}}
	if len(add) > 0 {
		update["$addToSet"] = add
	}
	return s.findAndUpdate(ctx, bson.M{"_id": id, "kind": models.KindGroup}, update)
}

func (s *ConversationStore) RemoveParticipants(ctx context.Context, id primitive.ObjectID, userIDs []string) (*models.Conversation, error) {
	update := bson.M{
		"$pull": bson.M{
			"members": bson.M{"$in": userIDs},
			"staff":   bson.M{"$in": userIDs},
		},
		"$set": bson.M{"updated_at": s.timestamp()},
	}
	return s.findAndUpdate(ctx, bson.M{"_id": id, "kind": models.KindGroup}, update)
}

func (s *ConversationStore) SetStatus(ctx context.Context, id primitive.ObjectID, status models.ConversationStatus) (*models.Conversation, error) {
	update := bson.M{"$set": bson.M{"status": status, "updated_at": s.timestamp()}}
	return s.findAndUpdate(ctx, bson.M{"_id": id}, update)
}

// AdvanceLastMessage only matches while the cached snapshot is older than last,
// so a slower writer can never overwrite a newer message.
func (s *ConversationStore) AdvanceLastMessage(ctx context.Context, id primitive.ObjectID, last models.LastMessage) error {
	filter := bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"last_message": nil},
			bson.M{"last_message.created_at": bson.M{"$lt": last.CreatedAt}},
			bson.M{
				"last_message.created_at": last.CreatedAt,
				"last_message.message_id": bson.M{"$lt": last.MessageID},
			},
		},
	}
	update := bson.M{"$set": bson.M{"last_message": last, "updated_at": s.timestamp()}}

	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Either a newer message already won or the conversation is gone.
		n, err := s.col.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("conversation %s: %w", id.Hex(), services.ErrNotFound)
		}
	}
	return nil
}

func (s *ConversationStore) ReplaceLastMessage(ctx context.Context, id, replaced primitive.ObjectID, next *models.LastMessage) (bool, error) {
	filter := bson.M{"_id": id, "last_message.message_id": replaced}

	var update bson.M
	if next == nil {
		update = bson.M{
			"$unset": bson.M{"last_message": ""},
			"$set":   bson.M{"updated_at": s.timestamp()},
		}
	} else {
		update = bson.M{"$set": bson.M{"last_message": next, "updated_at": s.timestamp()}}
	}

	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (s *ConversationStore) findAndUpdate(ctx context.Context, filter, update bson.M) (*models.Conversation, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var c models.Conversation
	if err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&c); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *ConversationStore) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return services.ErrNotFound
	}
	return err
}
