package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"innkeep/internal/migrations/mongo/validators"
)

var (
	InventoryDaysIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "room_type_id", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "date", Value: 1}}},
	}

	// Stale advisory locks are reaped by the server once expires_at passes.
	LedgerLocksIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	BookingsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "end_date", Value: 1}}},
		{Keys: bson.D{
			{Key: "room_type_id", Value: 1},
			{Key: "start_date", Value: 1},
			{Key: "end_date", Value: 1},
		}},
	}

	PaymentRecordsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "booking_id", Value: 1}, {Key: "recorded_at", Value: 1}}},
	}

	WaitlistEntriesIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
		{Keys: bson.D{
			{Key: "room_type_id", Value: 1},
			{Key: "start_date", Value: 1},
			{Key: "end_date", Value: 1},
		}},
	}

	RuleSetsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "guest_type", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	DepositPoliciesIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "active", Value: 1}, {Key: "min_rooms", Value: 1}, {Key: "max_rooms", Value: 1}}},
	}

	SpecialDaysIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "active", Value: 1}, {Key: "date", Value: 1}}},
	}
)

func RunMigration(ctx context.Context, client *mongo.Client, dbName string) error {
	db := client.Database(dbName)
	fmt.Printf("🚀 Running Innkeep Mongo migrations on database: %s\n", dbName)

	collections := map[string]struct {
		Indexes   []mongo.IndexModel
		Validator bson.M
	}{
		"Inventory_days": {
			Indexes:   InventoryDaysIndexes,
			Validator: validators.InventoryDayValidator,
		},
		"Ledger_locks": {
			Indexes:   LedgerLocksIndexes,
			Validator: validators.LedgerLockValidator,
		},
		"Bookings": {
			Indexes:   BookingsIndexes,
			Validator: validators.BookingValidator,
		},
		"Payment_records": {
			Indexes:   PaymentRecordsIndexes,
			Validator: validators.PaymentRecordValidator,
		},
		"Waitlist_entries": {
			Indexes:   WaitlistEntriesIndexes,
			Validator: validators.WaitlistEntryValidator,
		},
		"Rule_sets": {
			Indexes:   RuleSetsIndexes,
			Validator: validators.RuleSetValidator,
		},
		"Deposit_policies": {
			Indexes:   DepositPoliciesIndexes,
			Validator: validators.DepositPolicyValidator,
		},
		"Special_days": {
			Indexes:   SpecialDaysIndexes,
			Validator: validators.SpecialDayValidator,
		},
	}

	for name, def := range collections {
		if err := ensureCollection(ctx, db, name, def.Validator); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	fmt.Println("✅ All migrations applied successfully.")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		fmt.Printf("🆕 Creating collection: %s\n", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
	} else {
		fmt.Printf("ℹ️ Collection %s already exists — updating validator if needed\n", name)
		command := bson.D{
			{Key: "collMod", Value: name},
			{Key: "validator", Value: validator},
		}
		if err := db.RunCommand(ctx, command).Err(); err != nil {
			fmt.Printf("⚠️ Warning: failed updating validator for %s: %v\n", name, err)
		}
	}

	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel) error {
	coll := db.Collection(name)
	_, err := coll.Indexes().CreateMany(ctx, models)
	if err != nil {
		return err
	}
	fmt.Printf("📚 Ensured indexes for %s\n", name)
	return nil
}
