package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	inventoryerrors "innkeep/internal/inventory/errors"
	"innkeep/pkg/config"
	"innkeep/pkg/model"
)

// RangeLockRepository provides advisory locks over the ledger. One lock per
// room type serializes concurrent reserve/release attempts; a TTL index on
// expires_at reaps locks abandoned by crashed holders.
type RangeLockRepository interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type mongoRangeLockRepository struct {
	collection *mongo.Collection
}

func NewRangeLockRepository(cfg *config.Config) RangeLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoRangeLockRepository{
		collection: db.Collection("Ledger_locks"),
	}
}

// Acquire inserts the lock document. A duplicate key error means another
// holder got there first.
func (r *mongoRangeLockRepository) Acquire(ctx context.Context, key string, ttl time.Duration) error {
	now := time.Now()
	lock := &model.LedgerLock{
		ID:        key,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	_, err := r.collection.InsertOne(ctx, lock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return inventoryerrors.ErrLockHeld
		}
		return err
	}

	return nil
}

func (r *mongoRangeLockRepository) Release(ctx context.Context, key string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": key})
	return err
}
