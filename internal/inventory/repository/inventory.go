package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"innkeep/pkg/config"
	mongotx "innkeep/pkg/db/mongo"
	"innkeep/pkg/model"
)

const (
	CollectionName = "Inventory_days"
)

// InventoryRepository mutates per-day room counters. Reserve and release are
// guarded updates: the filter embeds the capacity check so a document is only
// modified when the invariant holds, and the caller compares the modified
// count against the expected day count inside a transaction.
type InventoryRepository interface {
	FindRange(ctx context.Context, roomTypeID string, start, end time.Time) ([]*model.InventoryDay, error)
	RoomTypesIn(ctx context.Context, start, end time.Time) ([]string, error)
	ReserveRange(ctx context.Context, roomTypeID string, days []time.Time, rooms int) (int64, error)
	ReleaseRange(ctx context.Context, roomTypeID string, days []time.Time, rooms int) (int64, error)
	UpsertCapacity(ctx context.Context, roomTypeID string, date time.Time, totalRooms int) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoInventoryRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoInventoryRepository(cfg *config.Config) InventoryRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoInventoryRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo, cfg.TxMaxRetries, cfg.TxRetryBackoff),
	}
}

// withTimeout wraps the context with a timeout unless it is a session
// context; wrapping a SessionContext would break transaction semantics.
func (r *mongoInventoryRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoInventoryRepository) FindRange(ctx context.Context, roomTypeID string, start, end time.Time) ([]*model.InventoryDay, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"room_type_id": roomTypeID,
		"date":         bson.M{"$gte": model.Day(start), "$lt": model.Day(end)},
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find inventory days: %w", err)
	}
	defer cursor.Close(ctx)

	var days []*model.InventoryDay
	if err = cursor.All(ctx, &days); err != nil {
		return nil, fmt.Errorf("failed to decode inventory days: %w", err)
	}

	return days, nil
}

// RoomTypesIn lists the room types with any capacity row in the range.
func (r *mongoInventoryRepository) RoomTypesIn(ctx context.Context, start, end time.Time) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"date": bson.M{"$gte": model.Day(start), "$lt": model.Day(end)},
	}

	values, err := r.collection.Distinct(ctx, "room_type_id", filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list room types: %w", err)
	}

	roomTypes := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			roomTypes = append(roomTypes, s)
		}
	}
	return roomTypes, nil
}

// ReserveRange increments reserved_rooms on every listed day whose remaining
// capacity can absorb the increment. Returns how many documents changed; a
// count short of len(days) means at least one day lacked capacity.
func (r *mongoInventoryRepository) ReserveRange(ctx context.Context, roomTypeID string, days []time.Time, rooms int) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"room_type_id": roomTypeID,
		"date":         bson.M{"$in": days},
		"$expr": bson.M{
			"$lte": bson.A{
				bson.M{"$add": bson.A{"$reserved_rooms", rooms}},
				"$total_rooms",
			},
		},
	}
	update := bson.M{"$inc": bson.M{"reserved_rooms": rooms}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to reserve inventory: %w", err)
	}

	return result.ModifiedCount, nil
}

// ReleaseRange decrements reserved_rooms, guarded so no counter can go
// negative.
func (r *mongoInventoryRepository) ReleaseRange(ctx context.Context, roomTypeID string, days []time.Time, rooms int) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"room_type_id":   roomTypeID,
		"date":           bson.M{"$in": days},
		"reserved_rooms": bson.M{"$gte": rooms},
	}
	update := bson.M{"$inc": bson.M{"reserved_rooms": -rooms}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to release inventory: %w", err)
	}

	return result.ModifiedCount, nil
}

func (r *mongoInventoryRepository) UpsertCapacity(ctx context.Context, roomTypeID string, date time.Time, totalRooms int) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"room_type_id": roomTypeID,
		"date":         model.Day(date),
	}
	update := bson.M{
		"$set":         bson.M{"total_rooms": totalRooms},
		"$setOnInsert": bson.M{"reserved_rooms": 0},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert capacity: %w", err)
	}

	return nil
}

func (r *mongoInventoryRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
