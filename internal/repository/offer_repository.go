package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/toolbay/trade-service/internal/domain"
)

type OfferRepository struct {
	client   *mongo.Client
	offers   *mongo.Collection
	messages *mongo.Collection
}

func NewOfferRepository(client *mongo.Client, db *mongo.Database) *OfferRepository {
	offers := db.Collection("offers")
	messages := db.Collection("offer_messages")
	ixs := []mongo.IndexModel{
		{Keys: bson.D{{Key: "buyer_id", Value: 1}, {Key: "updated_at", Value: -1}}},
		{Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "updated_at", Value: -1}}},
	}
	_, _ = offers.Indexes().CreateMany(context.Background(), ixs)
	mix := mongo.IndexModel{
		Keys:    bson.D{{Key: "offer_id", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index().SetName("offer_created_idx"),
	}
	_, _ = messages.Indexes().CreateOne(context.Background(), mix)
	return &OfferRepository{client: client, offers: offers, messages: messages}
}

func (r *OfferRepository) Create(ctx context.Context, o *domain.Offer, msg *domain.OfferMessage) error {
	err := withTxn(ctx, r.client, func(sc mongo.SessionContext) error {
		if _, err := r.offers.InsertOne(sc, o); err != nil {
			return err
		}
		_, err := r.messages.InsertOne(sc, msg)
		return err
	})
	if err != nil {
		return &domain.TransientError{Op: "create offer", Err: err}
	}
	return nil
}

func (r *OfferRepository) Get(ctx context.Context, id string) (*domain.Offer, error) {
	var o domain.Offer
	if err := r.offers.FindOne(ctx, bson.M{"_id": id}).Decode(&o); err != nil {
		return nil, mapReadErr(err)
	}
	return &o, nil
}

func (r *OfferRepository) ListByBuyer(ctx context.Context, userID string) ([]*domain.Offer, error) {
	return r.list(ctx, bson.M{"buyer_id": userID})
}

func (r *OfferRepository) ListBySeller(ctx context.Context, userID string) ([]*domain.Offer, error) {
	return r.list(ctx, bson.M{"seller_id": userID})
}

func (r *OfferRepository) list(ctx context.Context, filter bson.M) ([]*domain.Offer, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := r.offers.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapReadErr(err)
	}
	defer cur.Close(ctx)
	out := []*domain.Offer{}
	for cur.Next(ctx) {
		var o domain.Offer
		if err := cur.Decode(&o); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, cur.Err()
}

func (r *OfferRepository) ApplyTransition(ctx context.Context, o *domain.Offer, expected int64, msg *domain.OfferMessage) error {
	return withTxn(ctx, r.client, func(sc mongo.SessionContext) error {
		update := bson.M{"$set": bson.M{
			"status":            o.Status,
			"is_active":         o.IsActive,
			"current_price":     o.CurrentPrice,
			"has_unread_buyer":  o.HasUnreadBuyer,
			"has_unread_seller": o.HasUnreadSeller,
			"revision":          expected + 1,
			"updated_at":        o.UpdatedAt,
		}}
		res, err := r.offers.UpdateOne(sc, bson.M{"_id": o.ID, "revision": expected}, update)
		if err != nil {
			return &domain.TransientError{Op: "update offer", Err: err}
		}
		if res.MatchedCount == 0 {
			var cur domain.Offer
			if err := r.offers.FindOne(sc, bson.M{"_id": o.ID}).Decode(&cur); err != nil {
				return mapReadErr(err)
			}
			return &domain.ConflictError{Expected: expected, Actual: cur.Revision}
		}
		if _, err := r.messages.InsertOne(sc, msg); err != nil {
			return &domain.TransientError{Op: "append offer message", Err: err}
		}
		o.Revision = expected + 1
		return nil
	})
}

func (r *OfferRepository) MarkRead(ctx context.Context, offerID, userID string) (*domain.Offer, error) {
	var out *domain.Offer
	err := withTxn(ctx, r.client, func(sc mongo.SessionContext) error {
		var cur domain.Offer
		if err := r.offers.FindOne(sc, bson.M{"_id": offerID}).Decode(&cur); err != nil {
			return mapReadErr(err)
		}
		set := bson.M{"updated_at": time.Now().UTC()}
		switch userID {
		case cur.BuyerID:
			set["has_unread_buyer"] = false
		case cur.SellerID:
			set["has_unread_seller"] = false
		default:
			return &domain.AuthorizationError{ActorID: userID, RecordID: offerID}
		}
		after := options.FindOneAndUpdate().SetReturnDocument(options.After)
		upd := bson.M{"$set": set, "$inc": bson.M{"revision": 1}}
		var updated domain.Offer
		if err := r.offers.FindOneAndUpdate(sc, bson.M{"_id": offerID}, upd, after).Decode(&updated); err != nil {
			return mapReadErr(err)
		}
		_, err := r.messages.UpdateMany(sc,
			bson.M{"offer_id": offerID, "recipient_id": userID, "is_read": false},
			bson.M{"$set": bson.M{"is_read": true}})
		if err != nil {
			return &domain.TransientError{Op: "mark messages read", Err: err}
		}
		out = &updated
		return nil
	})
	return out, err
}

func (r *OfferRepository) Messages(ctx context.Context, offerID string) ([]*domain.OfferMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := r.messages.Find(ctx, bson.M{"offer_id": offerID}, opts)
	if err != nil {
		return nil, mapReadErr(err)
	}
	defer cur.Close(ctx)
	out := []*domain.OfferMessage{}
	for cur.Next(ctx) {
		var m domain.OfferMessage
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

func (r *OfferRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"buyer_id": userID, "has_unread_buyer": true},
		bson.M{"seller_id": userID, "has_unread_seller": true},
	}}
	n, err := r.offers.CountDocuments(ctx, filter)
	if err != nil {
		return 0, mapReadErr(err)
	}
	return n, nil
}
