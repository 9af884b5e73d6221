package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	playground "github.com/go-playground/validator/v10"

	catalogerrors "innkeep/internal/catalog/errors"
	"innkeep/internal/catalog/repository"
	ledger "innkeep/internal/inventory/service"
	"innkeep/pkg/config"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/model"
)

// CapacityRequest sets the sellable room count for one room type over a
// half-open date range.
type CapacityRequest struct {
	RoomTypeID string    `json:"room_type_id" validate:"required,min=1,max=64"`
	StartDate  time.Time `json:"start_date" validate:"required"`
	EndDate    time.Time `json:"end_date" validate:"required"`
	TotalRooms int       `json:"total_rooms" validate:"min=0"`
}

// CatalogService administers the rule configuration: advance-window rule
// sets, deposit brackets, special-day overrides and per-day capacity.
type CatalogService interface {
	UpsertRuleSet(ctx context.Context, ruleSet *model.RuleSet) error
	ListRuleSets(ctx context.Context) ([]*model.RuleSet, error)
	CreateDepositPolicy(ctx context.Context, policy *model.DepositPolicy) error
	ListDepositPolicies(ctx context.Context, activeOnly bool) ([]*model.DepositPolicy, error)
	DeactivateDepositPolicy(ctx context.Context, id string) error
	CreateSpecialDay(ctx context.Context, day *model.SpecialDay) error
	ListSpecialDays(ctx context.Context, from, to time.Time) ([]*model.SpecialDay, error)
	DeactivateSpecialDay(ctx context.Context, id string) error
	SetCapacity(ctx context.Context, req *CapacityRequest) error
}

type catalogService struct {
	repo     repository.CatalogRepository
	ledger   ledger.LedgerService
	validate *playground.Validate
	cfg      *config.Config
}

func NewCatalogService(repo repository.CatalogRepository, ledgerSvc ledger.LedgerService, cfg *config.Config) CatalogService {
	return &catalogService{
		repo:     repo,
		ledger:   ledgerSvc,
		validate: playground.New(),
		cfg:      cfg,
	}
}

func (s *catalogService) UpsertRuleSet(ctx context.Context, ruleSet *model.RuleSet) error {
	if err := s.validate.Struct(ruleSet); err != nil {
		return apperrors.Validation("Invalid rule set", map[string]any{"error": err.Error()})
	}
	if ruleSet.MaxDaysAdvance <= ruleSet.MinDaysNotice {
		return apperrors.Validation("max_days_advance must be greater than min_days_notice", map[string]any{
			"max_days_advance": ruleSet.MaxDaysAdvance,
			"min_days_notice":  ruleSet.MinDaysNotice,
		})
	}

	if err := s.repo.UpsertRuleSet(ctx, ruleSet); err != nil {
		return apperrors.Internal("Failed to save rule set", err)
	}

	s.cfg.Log.Info("Rule set saved",
		"guest_type", ruleSet.GuestType,
		"max_days_advance", ruleSet.MaxDaysAdvance,
		"min_days_notice", ruleSet.MinDaysNotice,
	)
	return nil
}

func (s *catalogService) ListRuleSets(ctx context.Context) ([]*model.RuleSet, error) {
	ruleSets, err := s.repo.ListRuleSets(ctx)
	if err != nil {
		return nil, apperrors.Internal("Failed to list rule sets", err)
	}
	return ruleSets, nil
}

// CreateDepositPolicy enforces the single-policy-per-room-count rule: a new
// bracket may not intersect any active one.
func (s *catalogService) CreateDepositPolicy(ctx context.Context, policy *model.DepositPolicy) error {
	policy.Active = true
	if err := s.validate.Struct(policy); err != nil {
		return apperrors.Validation("Invalid deposit policy", map[string]any{"error": err.Error()})
	}
	if policy.Type == model.DepositPercent && policy.Value > 100 {
		return apperrors.Validation("Percent deposit cannot exceed 100", map[string]any{"value": policy.Value})
	}

	existing, err := s.repo.FindOverlappingPolicy(ctx, policy)
	if err != nil && !errors.Is(err, catalogerrors.ErrNotFound) {
		return apperrors.Internal("Failed to check policy overlap", err)
	}
	if existing != nil {
		return apperrors.Conflict(fmt.Sprintf(
			"%s: rooms %d-%d already covered", catalogerrors.ErrPolicyOverlap.Error(),
			existing.MinRooms, existing.MaxRooms,
		))
	}

	if err := s.repo.CreateDepositPolicy(ctx, policy); err != nil {
		return apperrors.Internal("Failed to create deposit policy", err)
	}

	s.cfg.Log.Info("Deposit policy created",
		"id", policy.ID,
		"min_rooms", policy.MinRooms,
		"max_rooms", policy.MaxRooms,
		"type", policy.Type,
	)
	return nil
}

func (s *catalogService) ListDepositPolicies(ctx context.Context, activeOnly bool) ([]*model.DepositPolicy, error) {
	policies, err := s.repo.ListDepositPolicies(ctx, activeOnly)
	if err != nil {
		return nil, apperrors.Internal("Failed to list deposit policies", err)
	}
	return policies, nil
}

func (s *catalogService) DeactivateDepositPolicy(ctx context.Context, id string) error {
	matched, err := s.repo.DeactivateDepositPolicy(ctx, id)
	if err != nil {
		if errors.Is(err, catalogerrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid deposit policy ID format")
		}
		return apperrors.Internal("Failed to deactivate deposit policy", err)
	}
	if matched == 0 {
		return apperrors.NotFoundWithID("Active deposit policy", id)
	}

	s.cfg.Log.Info("Deposit policy deactivated", "id", id)
	return nil
}

func (s *catalogService) CreateSpecialDay(ctx context.Context, day *model.SpecialDay) error {
	day.Active = true
	if err := s.validate.Struct(day); err != nil {
		return apperrors.Validation("Invalid special day", map[string]any{"error": err.Error()})
	}
	if day.RuleType == model.RuleSpecialRate && day.RateType == "" {
		return apperrors.Validation("special_rate days need a rate_type and rate_value", nil)
	}

	if err := s.repo.CreateSpecialDay(ctx, day); err != nil {
		return apperrors.Internal("Failed to create special day", err)
	}

	s.cfg.Log.Info("Special day created",
		"id", day.ID,
		"date", day.Date,
		"rule_type", day.RuleType,
		"room_type_id", day.RoomTypeID,
	)
	return nil
}

func (s *catalogService) ListSpecialDays(ctx context.Context, from, to time.Time) ([]*model.SpecialDay, error) {
	days, err := s.repo.ListSpecialDays(ctx, from, to)
	if err != nil {
		return nil, apperrors.Internal("Failed to list special days", err)
	}
	return days, nil
}

func (s *catalogService) DeactivateSpecialDay(ctx context.Context, id string) error {
	matched, err := s.repo.DeactivateSpecialDay(ctx, id)
	if err != nil {
		if errors.Is(err, catalogerrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid special day ID format")
		}
		return apperrors.Internal("Failed to deactivate special day", err)
	}
	if matched == 0 {
		return apperrors.NotFoundWithID("Active special day", id)
	}

	s.cfg.Log.Info("Special day deactivated", "id", id)
	return nil
}

// SetCapacity goes through the inventory ledger so the reserved-rooms
// invariant is enforced in one place.
func (s *catalogService) SetCapacity(ctx context.Context, req *CapacityRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return apperrors.Validation("Invalid capacity request", map[string]any{"error": err.Error()})
	}

	return s.ledger.SetCapacity(ctx, req.RoomTypeID, req.StartDate, req.EndDate, req.TotalRooms)
}
