package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"innkeep/pkg/config"
	"innkeep/pkg/model"
)

// PaymentRepository appends ledger lines against bookings. Records are never
// updated or deleted; refunds are written inside the cancellation transaction
// so the status guard doubles as the double-refund guard.
type PaymentRepository interface {
	Record(ctx context.Context, record *model.PaymentRecord) error
	FindByBooking(ctx context.Context, bookingID string) ([]*model.PaymentRecord, error)
}

type mongoPaymentRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoPaymentRepository(cfg *config.Config) PaymentRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoPaymentRepository{
		cfg:        cfg,
		collection: db.Collection("Payment_records"),
	}
}

func (r *mongoPaymentRepository) Record(ctx context.Context, record *model.PaymentRecord) error {
	record.RecordedAt = time.Now().UTC().Truncate(time.Millisecond)

	result, err := r.collection.InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to record payment: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		record.ID = oid.Hex()
	}
	return nil
}

func (r *mongoPaymentRepository) FindByBooking(ctx context.Context, bookingID string) ([]*model.PaymentRecord, error) {
	if _, ok := ctx.(mongo.SessionContext); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ReadTimeout)
		defer cancel()
	}

	opts := options.Find().SetSort(bson.D{{Key: "recorded_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"booking_id": bookingID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find payment records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*model.PaymentRecord
	if err = cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode payment records: %w", err)
	}

	return records, nil
}
