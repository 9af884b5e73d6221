package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	waitlisterrors "innkeep/internal/waitlist/errors"
	"innkeep/pkg/config"
	mongotx "innkeep/pkg/db/mongo"
	"innkeep/pkg/model"
)

const (
	CollectionName = "Waitlist_entries"
)

// WaitlistRepository persists the FIFO queue. Status transitions are
// conditional updates; the matched count tells a caller it lost a race
// without re-reading the row.
type WaitlistRepository interface {
	Create(ctx context.Context, entry *model.WaitlistEntry) error
	FindByID(ctx context.Context, id string) (*model.WaitlistEntry, error)
	FindByUser(ctx context.Context, userID string, limit int, offset int64) ([]*model.WaitlistEntry, int64, error)
	FindActiveDuplicate(ctx context.Context, userID, roomTypeID string, start, end time.Time) (*model.WaitlistEntry, error)
	CountAhead(ctx context.Context, entry *model.WaitlistEntry) (int64, error)
	NextPending(ctx context.Context, roomTypeID string, start, end time.Time, excludeIDs []string) (*model.WaitlistEntry, error)
	MarkNotified(ctx context.Context, id string, notifiedAt, expiresAt time.Time) (int64, error)
	MarkConverted(ctx context.Context, id string, now time.Time) (int64, error)
	MarkExpiredByUser(ctx context.Context, id, userID string) (int64, error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoWaitlistRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoWaitlistRepository(cfg *config.Config) WaitlistRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoWaitlistRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo, cfg.TxMaxRetries, cfg.TxRetryBackoff),
	}
}

func (r *mongoWaitlistRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoWaitlistRepository) Create(ctx context.Context, entry *model.WaitlistEntry) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	entry.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to create waitlist entry: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		entry.ID = oid.Hex()
	}
	return nil
}

func (r *mongoWaitlistRepository) FindByID(ctx context.Context, id string) (*model.WaitlistEntry, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", waitlisterrors.ErrInvalidID, id)
	}

	var entry model.WaitlistEntry
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, waitlisterrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find waitlist entry: %w", err)
	}

	return &entry, nil
}

func (r *mongoWaitlistRepository) FindByUser(ctx context.Context, userID string, limit int, offset int64) ([]*model.WaitlistEntry, int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"user_id": userID}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find waitlist entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*model.WaitlistEntry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, 0, fmt.Errorf("failed to decode waitlist entries: %w", err)
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count waitlist entries: %w", err)
	}

	return entries, count, nil
}

func (r *mongoWaitlistRepository) FindActiveDuplicate(ctx context.Context, userID, roomTypeID string, start, end time.Time) (*model.WaitlistEntry, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"user_id":    userID,
		"status":     bson.M{"$in": []string{model.WaitlistPending, model.WaitlistNotified}},
		"start_date": bson.M{"$lt": model.Day(end)},
		"end_date":   bson.M{"$gt": model.Day(start)},
	}
	if roomTypeID != "" {
		filter["room_type_id"] = roomTypeID
	}

	var entry model.WaitlistEntry
	err := r.collection.FindOne(ctx, filter).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, waitlisterrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to check for duplicate entry: %w", err)
	}

	return &entry, nil
}

// CountAhead counts pending entries competing for the same dates that joined
// earlier. Queue position is this count plus one.
func (r *mongoWaitlistRepository) CountAhead(ctx context.Context, entry *model.WaitlistEntry) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(entry.ID)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", waitlisterrors.ErrInvalidID, entry.ID)
	}

	count, err := r.collection.CountDocuments(ctx, countAheadFilter(entry, objectID))
	if err != nil {
		return 0, fmt.Errorf("failed to count entries ahead: %w", err)
	}

	return count, nil
}

// countAheadFilter matches pending entries that joined earlier and compete
// for the same dates. Ties on created_at break on _id, which increases with
// insertion order.
func countAheadFilter(entry *model.WaitlistEntry, entryID primitive.ObjectID) bson.M {
	and := []bson.M{
		{"$or": []bson.M{
			{"created_at": bson.M{"$lt": entry.CreatedAt}},
			{"created_at": entry.CreatedAt, "_id": bson.M{"$lt": entryID}},
		}},
	}
	if entry.RoomTypeID != "" {
		and = append(and, bson.M{"$or": []bson.M{
			{"room_type_id": entry.RoomTypeID},
			{"room_type_id": ""},
			{"room_type_id": bson.M{"$exists": false}},
		}})
	}

	return bson.M{
		"status":     model.WaitlistPending,
		"start_date": bson.M{"$lt": entry.EndDate},
		"end_date":   bson.M{"$gt": entry.StartDate},
		"$and":       and,
	}
}

// NextPending returns the oldest pending entry interested in the freed range,
// skipping the given IDs. Entries with no room type preference match any room
// type.
func (r *mongoWaitlistRepository) NextPending(ctx context.Context, roomTypeID string, start, end time.Time, excludeIDs []string) (*model.WaitlistEntry, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := nextPendingFilter(roomTypeID, start, end, excludeIDs)
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	var entry model.WaitlistEntry
	err := r.collection.FindOne(ctx, filter, opts).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, waitlisterrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find next pending entry: %w", err)
	}

	return &entry, nil
}

func nextPendingFilter(roomTypeID string, start, end time.Time, excludeIDs []string) bson.M {
	filter := bson.M{
		"status":     model.WaitlistPending,
		"start_date": bson.M{"$lt": model.Day(end)},
		"end_date":   bson.M{"$gt": model.Day(start)},
		"$or": []bson.M{
			{"room_type_id": roomTypeID},
			{"room_type_id": ""},
			{"room_type_id": bson.M{"$exists": false}},
		},
	}
	if len(excludeIDs) > 0 {
		ids := make([]primitive.ObjectID, 0, len(excludeIDs))
		for _, id := range excludeIDs {
			if objectID, err := primitive.ObjectIDFromHex(id); err == nil {
				ids = append(ids, objectID)
			}
		}
		filter["_id"] = bson.M{"$nin": ids}
	}
	return filter
}

func (r *mongoWaitlistRepository) MarkNotified(ctx context.Context, id string, notifiedAt, expiresAt time.Time) (int64, error) {
	return r.transition(ctx, id,
		bson.M{"status": model.WaitlistPending},
		bson.M{"status": model.WaitlistNotified, "notified_at": notifiedAt, "expires_at": expiresAt},
	)
}

// MarkConverted claims a live hold. The expiry is part of the filter so an
// expired hold can never convert, even if the sweeper has not caught it yet.
func (r *mongoWaitlistRepository) MarkConverted(ctx context.Context, id string, now time.Time) (int64, error) {
	return r.transition(ctx, id,
		bson.M{"status": model.WaitlistNotified, "expires_at": bson.M{"$gt": now}},
		bson.M{"status": model.WaitlistConverted},
	)
}

func (r *mongoWaitlistRepository) MarkExpiredByUser(ctx context.Context, id, userID string) (int64, error) {
	return r.transition(ctx, id,
		bson.M{
			"user_id": userID,
			"status":  bson.M{"$in": []string{model.WaitlistPending, model.WaitlistNotified}},
		},
		bson.M{"status": model.WaitlistExpired},
	)
}

func (r *mongoWaitlistRepository) transition(ctx context.Context, id string, guard, set bson.M) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", waitlisterrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": objectID}
	for k, v := range guard {
		filter[k] = v
	}

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return 0, fmt.Errorf("failed to update waitlist entry: %w", err)
	}

	return result.MatchedCount, nil
}

func (r *mongoWaitlistRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"status":     model.WaitlistNotified,
		"expires_at": bson.M{"$lte": now},
	}
	update := bson.M{"$set": bson.M{"status": model.WaitlistExpired}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to expire waitlist holds: %w", err)
	}

	return result.ModifiedCount, nil
}

func (r *mongoWaitlistRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
