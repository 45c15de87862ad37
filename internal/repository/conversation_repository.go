package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/toolbay/trade-service/internal/domain"
)

type ConversationRepository struct {
	client   *mongo.Client
	convs    *mongo.Collection
	messages *mongo.Collection
}

func NewConversationRepository(client *mongo.Client, db *mongo.Database) *ConversationRepository {
	convs := db.Collection("conversations")
	messages := db.Collection("conversation_messages")
	ix := mongo.IndexModel{
		Keys: bson.D{{Key: "participants", Value: 1}, {Key: "last_message_at", Value: -1}},
	}
	_, _ = convs.Indexes().CreateOne(context.Background(), ix)
	mix := mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("conv_created_idx"),
	}
	_, _ = messages.Indexes().CreateOne(context.Background(), mix)
	return &ConversationRepository{client: client, convs: convs, messages: messages}
}

// GetOrCreate upserts on the derived pair key, so two concurrent first
// contacts converge on one document instead of racing a scan-then-create.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, c *domain.Conversation) (*domain.Conversation, bool, error) {
	opts := options.Update().SetUpsert(true)
	res, err := r.convs.UpdateOne(ctx, bson.M{"_id": c.ID}, bson.M{"$setOnInsert": c}, opts)
	if err != nil {
		return nil, false, &domain.TransientError{Op: "upsert conversation", Err: err}
	}
	var out domain.Conversation
	if err := r.convs.FindOne(ctx, bson.M{"_id": c.ID}).Decode(&out); err != nil {
		return nil, false, mapReadErr(err)
	}
	return &out, res.UpsertedCount > 0, nil
}

func (r *ConversationRepository) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := r.convs.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, mapReadErr(err)
	}
	return &c, nil
}

// FindBetween is a direct read on the derived key, not a participant scan.
func (r *ConversationRepository) FindBetween(ctx context.Context, a, b string) (*domain.Conversation, error) {
	return r.Get(ctx, domain.ConversationKey(a, b))
}

func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}})
	cur, err := r.convs.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, mapReadErr(err)
	}
	defer cur.Close(ctx)
	out := []*domain.Conversation{}
	for cur.Next(ctx) {
		var c domain.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, cur.Err()
}

func (r *ConversationRepository) AppendMessage(ctx context.Context, c *domain.Conversation, expected int64, msg *domain.ConversationMessage) error {
	return withTxn(ctx, r.client, func(sc mongo.SessionContext) error {
		update := bson.M{"$set": bson.M{
			"last_message_at":   c.LastMessageAt,
			"last_message_text": c.LastMessageText,
			"unread_by":         c.UnreadBy,
			"revision":          expected + 1,
			"updated_at":        c.UpdatedAt,
		}}
		res, err := r.convs.UpdateOne(sc, bson.M{"_id": c.ID, "revision": expected}, update)
		if err != nil {
			return &domain.TransientError{Op: "update conversation", Err: err}
		}
		if res.MatchedCount == 0 {
			var cur domain.Conversation
			if err := r.convs.FindOne(sc, bson.M{"_id": c.ID}).Decode(&cur); err != nil {
				return mapReadErr(err)
			}
			return &domain.ConflictError{Expected: expected, Actual: cur.Revision}
		}
		if _, err := r.messages.InsertOne(sc, msg); err != nil {
			return &domain.TransientError{Op: "append conversation message", Err: err}
		}
		c.Revision = expected + 1
		return nil
	})
}

func (r *ConversationRepository) MarkRead(ctx context.Context, id, userID string) (*domain.Conversation, error) {
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)
	upd := bson.M{
		"$pull": bson.M{"unread_by": userID},
		"$inc":  bson.M{"revision": 1},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	var out domain.Conversation
	if err := r.convs.FindOneAndUpdate(ctx, bson.M{"_id": id}, upd, after).Decode(&out); err != nil {
		return nil, mapReadErr(err)
	}
	return &out, nil
}

func (r *ConversationRepository) SetStatus(ctx context.Context, id, userID string, status domain.ConversationStatus) (*domain.Conversation, error) {
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)
	upd := bson.M{
		"$set": bson.M{"status." + userID: status, "updated_at": time.Now().UTC()},
		"$inc": bson.M{"revision": 1},
	}
	var out domain.Conversation
	if err := r.convs.FindOneAndUpdate(ctx, bson.M{"_id": id}, upd, after).Decode(&out); err != nil {
		return nil, mapReadErr(err)
	}
	return &out, nil
}

func (r *ConversationRepository) Messages(ctx context.Context, id string, limit int64, before time.Time) ([]*domain.ConversationMessage, error) {
	filter := bson.M{"conversation_id": id}
	if !before.IsZero() {
		filter["created_at"] = bson.M{"$lt": before}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cur, err := r.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapReadErr(err)
	}
	defer cur.Close(ctx)
	out := []*domain.ConversationMessage{}
	for cur.Next(ctx) {
		var m domain.ConversationMessage
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	// chronological order for display
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, cur.Err()
}

func (r *ConversationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	n, err := r.convs.CountDocuments(ctx, bson.M{"unread_by": userID})
	if err != nil {
		return 0, mapReadErr(err)
	}
	return n, nil
}
