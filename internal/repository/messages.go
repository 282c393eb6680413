package repository

import (
	"context"
	"errors"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
	"github.com/AnshRaj112/campus-chat-backend/internal/services"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const MessagesCollection = "messages"

// MessageStore keeps one document per message in MongoDB.
type MessageStore struct {
	col *mongo.Collection
}

func NewMessageStore(db *mongo.Database) *MessageStore {
	return &MessageStore{col: db.Collection(MessagesCollection)}
}

func (s *MessageStore) Insert(ctx context.Context, m *models.Message) error {
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	_, err := s.col.InsertOne(ctx, m)
	return err
}

func (s *MessageStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	var m models.Message
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// List pages newest-first in the store and reverses to oldest-first for callers.
func (s *MessageStore) List(ctx context.Context, conversationID primitive.ObjectID, q services.HistoryQuery) ([]models.Message, error) {
	filter := bson.M{"conversation_id": conversationID}
	if !q.BeforeTime.IsZero() {
		filter["$or"] = bson.A{
			bson.M{"created_at": bson.M{"$lt": q.BeforeTime}},
			bson.M{"created_at": q.BeforeTime, "_id": bson.M{"$lt": q.BeforeID}},
		}
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: -1},
	})
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	msgs := []models.Message{}
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}

	// Reverse to oldest-first for the UI.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *MessageStore) Latest(ctx context.Context, conversationID primitive.ObjectID) (*models.Message, error) {
	opts := options.FindOne().SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: -1},
	})
	var m models.Message
	err := s.col.FindOne(ctx, bson.M{"conversation_id": conversationID}, opts).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MessageStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (s *MessageStore) CountByConversation(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"conversation_id": bson.M{"$in": ids}}}},
		{{Key: "$group", Value: bson.M{"_id": "$conversation_id", "count": bson.M{"$sum": 1}}}},
	}
	cur, err := s.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		ID    primitive.ObjectID `bson:"_id"`
		Count int64              `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[primitive.ObjectID]int64, len(rows))
	for _, r := range rows {
		counts[r.ID] = r.Count
	}
	return counts, nil
}

// AddReadReceipt matches only while the reader has no receipt, so concurrent
// marks by the same user append once.
func (s *MessageStore) AddReadReceipt(ctx context.Context, id primitive.ObjectID, r models.ReadReceipt) (bool, error) {
	filter := bson.M{"_id": id, "read_by.user_id": bson.M{"$ne": r.UserID}}
	update := bson.M{"$push": bson.M{"read_by": r}}

	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}
