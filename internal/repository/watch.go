package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/toolbay/trade-service/internal/domain"
)

// ChangeSink receives committed changes decoded from the store's change
// streams; the subscription hub satisfies it.
type ChangeSink interface {
	PublishOffer(op domain.ChangeOp, o *domain.Offer)
	PublishConversation(op domain.ChangeOp, c *domain.Conversation)
}

// Watcher tails the offer and conversation collections and forwards
// every committed change to the sink. Stream errors reconnect silently;
// mutating callers are never involved.
type Watcher struct {
	offers *mongo.Collection
	convs  *mongo.Collection
	sink   ChangeSink
	log    *zap.SugaredLogger
}

func NewWatcher(db *mongo.Database, sink ChangeSink, log *zap.SugaredLogger) *Watcher {
	return &Watcher{
		offers: db.Collection("offers"),
		convs:  db.Collection("conversations"),
		sink:   sink,
		log:    log,
	}
}

func (w *Watcher) Run(ctx context.Context) {
	go w.tail(ctx, w.offers, w.forwardOffer)
	w.tail(ctx, w.convs, w.forwardConversation)
}

type offerChange struct {
	OperationType string       `bson:"operationType"`
	FullDocument  domain.Offer `bson:"fullDocument"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
}

type conversationChange struct {
	OperationType string              `bson:"operationType"`
	FullDocument  domain.Conversation `bson:"fullDocument"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
}

func (w *Watcher) tail(ctx context.Context, coll *mongo.Collection, forward func(raw bson.Raw)) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	for {
		if ctx.Err() != nil {
			return
		}
		cs, err := coll.Watch(ctx, mongo.Pipeline{}, opts)
		if err != nil {
			w.log.Warnw("change stream open failed", "collection", coll.Name(), "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}
		for cs.Next(ctx) {
			forward(cs.Current)
		}
		if err := cs.Err(); err != nil && ctx.Err() == nil {
			w.log.Warnw("change stream interrupted, reopening", "collection", coll.Name(), "err", err)
		}
		cs.Close(context.Background())
	}
}

func (w *Watcher) forwardOffer(raw bson.Raw) {
	var ch offerChange
	if err := bson.Unmarshal(raw, &ch); err != nil {
		w.log.Warnw("offer change decode failed", "err", err)
		return
	}
	op, ok := changeOp(ch.OperationType)
	if !ok {
		return
	}
	if op == domain.ChangeRemoved {
		w.sink.PublishOffer(op, &domain.Offer{ID: ch.DocumentKey.ID})
		return
	}
	o := ch.FullDocument
	w.sink.PublishOffer(op, &o)
}

func (w *Watcher) forwardConversation(raw bson.Raw) {
	var ch conversationChange
	if err := bson.Unmarshal(raw, &ch); err != nil {
		w.log.Warnw("conversation change decode failed", "err", err)
		return
	}
	op, ok := changeOp(ch.OperationType)
	if !ok {
		return
	}
	if op == domain.ChangeRemoved {
		w.sink.PublishConversation(op, &domain.Conversation{ID: ch.DocumentKey.ID})
		return
	}
	c := ch.FullDocument
	w.sink.PublishConversation(op, &c)
}

func changeOp(operationType string) (domain.ChangeOp, bool) {
	switch operationType {
	case "insert":
		return domain.ChangeAdded, true
	case "update", "replace":
		return domain.ChangeUpdated, true
	case "delete":
		return domain.ChangeRemoved, true
	}
	return "", false
}
