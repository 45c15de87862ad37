package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/toolbay/trade-service/internal/config"
	"github.com/toolbay/trade-service/internal/domain"
)

func NewMongoClient(cfg *config.Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return client, nil
}

// mapReadErr folds server-side authorization rejections into the
// sentinel the subscription layer treats as an empty result.
func mapReadErr(err error) error {
	if err == nil {
		return nil
	}
	if err == mongo.ErrNoDocuments {
		return domain.ErrNotFound
	}
	var ce mongo.CommandError
	if mongo.IsTimeout(err) {
		return &domain.TransientError{Op: "read", Err: err}
	}
	if errors.As(err, &ce) && (ce.Code == 13 || strings.Contains(ce.Message, "not authorized")) {
		return domain.ErrPermissionDenied
	}
	return err
}

// withTxn runs fn inside a session transaction so multi-document writes
// (summary + thread entry) commit as one unit.
func withTxn(ctx context.Context, client *mongo.Client, fn func(sc mongo.SessionContext) error) error {
	session, err := client.StartSession()
	if err != nil {
		return &domain.TransientError{Op: "start session", Err: err}
	}
	defer session.EndSession(ctx)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
