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

	catalogerrors "innkeep/internal/catalog/errors"
	rulesrepository "innkeep/internal/rules/repository"
	"innkeep/pkg/config"
	"innkeep/pkg/model"
)

// CatalogRepository owns the write side of the rule configuration the stay
// validator reads. Collection names are shared with the rules context.
type CatalogRepository interface {
	UpsertRuleSet(ctx context.Context, ruleSet *model.RuleSet) error
	ListRuleSets(ctx context.Context) ([]*model.RuleSet, error)
	CreateDepositPolicy(ctx context.Context, policy *model.DepositPolicy) error
	ListDepositPolicies(ctx context.Context, activeOnly bool) ([]*model.DepositPolicy, error)
	FindOverlappingPolicy(ctx context.Context, policy *model.DepositPolicy) (*model.DepositPolicy, error)
	DeactivateDepositPolicy(ctx context.Context, id string) (int64, error)
	CreateSpecialDay(ctx context.Context, day *model.SpecialDay) error
	ListSpecialDays(ctx context.Context, from, to time.Time) ([]*model.SpecialDay, error)
	DeactivateSpecialDay(ctx context.Context, id string) (int64, error)
}

type mongoCatalogRepository struct {
	cfg             *config.Config
	ruleSets        *mongo.Collection
	depositPolicies *mongo.Collection
	specialDays     *mongo.Collection
}

func NewMongoCatalogRepository(cfg *config.Config) CatalogRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoCatalogRepository{
		cfg:             cfg,
		ruleSets:        db.Collection(rulesrepository.RuleSetCollection),
		depositPolicies: db.Collection(rulesrepository.DepositPolicyCollection),
		specialDays:     db.Collection(rulesrepository.SpecialDayCollection),
	}
}

func (r *mongoCatalogRepository) UpsertRuleSet(ctx context.Context, ruleSet *model.RuleSet) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"guest_type": ruleSet.GuestType}
	update := bson.M{"$set": bson.M{
		"guest_type":       ruleSet.GuestType,
		"max_days_advance": ruleSet.MaxDaysAdvance,
		"min_days_notice":  ruleSet.MinDaysNotice,
	}}

	_, err := r.ruleSets.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert rule set: %w", err)
	}

	return nil
}

func (r *mongoCatalogRepository) ListRuleSets(ctx context.Context) ([]*model.RuleSet, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.ruleSets.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "guest_type", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list rule sets: %w", err)
	}
	defer cursor.Close(ctx)

	var ruleSets []*model.RuleSet
	if err = cursor.All(ctx, &ruleSets); err != nil {
		return nil, fmt.Errorf("failed to decode rule sets: %w", err)
	}

	return ruleSets, nil
}

func (r *mongoCatalogRepository) CreateDepositPolicy(ctx context.Context, policy *model.DepositPolicy) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.depositPolicies.InsertOne(ctx, policy)
	if err != nil {
		return fmt.Errorf("failed to create deposit policy: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		policy.ID = oid.Hex()
	}
	return nil
}

func (r *mongoCatalogRepository) ListDepositPolicies(ctx context.Context, activeOnly bool) ([]*model.DepositPolicy, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{}
	if activeOnly {
		filter["active"] = true
	}

	cursor, err := r.depositPolicies.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "min_rooms", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list deposit policies: %w", err)
	}
	defer cursor.Close(ctx)

	var policies []*model.DepositPolicy
	if err = cursor.All(ctx, &policies); err != nil {
		return nil, fmt.Errorf("failed to decode deposit policies: %w", err)
	}

	return policies, nil
}

// FindOverlappingPolicy returns any active policy whose bracket intersects the
// candidate's. Two brackets overlap when neither ends before the other starts.
func (r *mongoCatalogRepository) FindOverlappingPolicy(ctx context.Context, policy *model.DepositPolicy) (*model.DepositPolicy, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"active":    true,
		"min_rooms": bson.M{"$lte": policy.MaxRooms},
		"max_rooms": bson.M{"$gte": policy.MinRooms},
	}

	var existing model.DepositPolicy
	err := r.depositPolicies.FindOne(ctx, filter).Decode(&existing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, catalogerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to check policy overlap: %w", err)
	}

	return &existing, nil
}

func (r *mongoCatalogRepository) DeactivateDepositPolicy(ctx context.Context, id string) (int64, error) {
	return r.deactivate(ctx, r.depositPolicies, id)
}

func (r *mongoCatalogRepository) CreateSpecialDay(ctx context.Context, day *model.SpecialDay) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	day.Date = model.Day(day.Date)
	result, err := r.specialDays.InsertOne(ctx, day)
	if err != nil {
		return fmt.Errorf("failed to create special day: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		day.ID = oid.Hex()
	}
	return nil
}

func (r *mongoCatalogRepository) ListSpecialDays(ctx context.Context, from, to time.Time) ([]*model.SpecialDay, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{}
	if !from.IsZero() || !to.IsZero() {
		dateFilter := bson.M{}
		if !from.IsZero() {
			dateFilter["$gte"] = model.Day(from)
		}
		if !to.IsZero() {
			dateFilter["$lt"] = model.Day(to)
		}
		filter["date"] = dateFilter
	}

	cursor, err := r.specialDays.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list special days: %w", err)
	}
	defer cursor.Close(ctx)

	var days []*model.SpecialDay
	if err = cursor.All(ctx, &days); err != nil {
		return nil, fmt.Errorf("failed to decode special days: %w", err)
	}

	return days, nil
}

func (r *mongoCatalogRepository) DeactivateSpecialDay(ctx context.Context, id string) (int64, error) {
	return r.deactivate(ctx, r.specialDays, id)
}

func (r *mongoCatalogRepository) deactivate(ctx context.Context, collection *mongo.Collection, id string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", catalogerrors.ErrInvalidID, id)
	}

	result, err := collection.UpdateOne(ctx,
		bson.M{"_id": objectID, "active": true},
		bson.M{"$set": bson.M{"active": false}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate catalog item: %w", err)
	}

	return result.MatchedCount, nil
}
