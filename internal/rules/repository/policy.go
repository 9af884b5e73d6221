package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	ruleserrors "innkeep/internal/rules/errors"
	"innkeep/pkg/config"
	"innkeep/pkg/model"
)

const (
	RuleSetCollection       = "Rule_sets"
	DepositPolicyCollection = "Deposit_policies"
	SpecialDayCollection    = "Special_days"
)

// PolicyRepository reads the rule configuration the stay validator evaluates
// against. Writes go through the catalog context; validation only ever needs
// a read snapshot.
type PolicyRepository interface {
	RuleSetFor(ctx context.Context, guestType string) (*model.RuleSet, error)
	DepositPolicyFor(ctx context.Context, rooms int) (*model.DepositPolicy, error)
	SpecialDaysIn(ctx context.Context, roomTypeID string, start, end time.Time) ([]*model.SpecialDay, error)
}

type mongoPolicyRepository struct {
	cfg             *config.Config
	ruleSets        *mongo.Collection
	depositPolicies *mongo.Collection
	specialDays     *mongo.Collection
}

func NewMongoPolicyRepository(cfg *config.Config) PolicyRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoPolicyRepository{
		cfg:             cfg,
		ruleSets:        db.Collection(RuleSetCollection),
		depositPolicies: db.Collection(DepositPolicyCollection),
		specialDays:     db.Collection(SpecialDayCollection),
	}
}

// RuleSetFor falls back to the built-in defaults when no row exists, so a
// fresh deployment validates sensibly before the catalog is populated.
func (r *mongoPolicyRepository) RuleSetFor(ctx context.Context, guestType string) (*model.RuleSet, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var ruleSet model.RuleSet
	err := r.ruleSets.FindOne(ctx, bson.M{"guest_type": guestType}).Decode(&ruleSet)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if fallback, ok := model.DefaultRuleSets()[guestType]; ok {
				return &fallback, nil
			}
			return nil, fmt.Errorf("%w: %s", ruleserrors.ErrRuleSetNotFound, guestType)
		}
		return nil, fmt.Errorf("failed to find rule set: %w", err)
	}

	return &ruleSet, nil
}

// DepositPolicyFor returns the single active policy whose bracket covers the
// room count, or ErrNoDepositPolicy when none does. Overlapping brackets are
// rejected at creation time, so at most one row can match.
func (r *mongoPolicyRepository) DepositPolicyFor(ctx context.Context, rooms int) (*model.DepositPolicy, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"active":    true,
		"min_rooms": bson.M{"$lte": rooms},
		"max_rooms": bson.M{"$gte": rooms},
	}

	var policy model.DepositPolicy
	err := r.depositPolicies.FindOne(ctx, filter).Decode(&policy)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ruleserrors.ErrNoDepositPolicy
		}
		return nil, fmt.Errorf("failed to find deposit policy: %w", err)
	}

	return &policy, nil
}

func (r *mongoPolicyRepository) SpecialDaysIn(ctx context.Context, roomTypeID string, start, end time.Time) ([]*model.SpecialDay, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"active": true,
		"date":   bson.M{"$gte": model.Day(start), "$lt": model.Day(end)},
		"$or": []bson.M{
			{"room_type_id": ""},
			{"room_type_id": bson.M{"$exists": false}},
			{"room_type_id": roomTypeID},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})

	cursor, err := r.specialDays.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find special days: %w", err)
	}
	defer cursor.Close(ctx)

	var days []*model.SpecialDay
	if err = cursor.All(ctx, &days); err != nil {
		return nil, fmt.Errorf("failed to decode special days: %w", err)
	}

	return days, nil
}
