package validator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	playground "github.com/go-playground/validator/v10"

	ruleserrors "innkeep/internal/rules/errors"
	"innkeep/internal/rules/repository"
	"innkeep/pkg/config"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"
)

// StayRequest is the candidate booking handed to the rule validator. Dates
// are normalized to UTC midnight before any rule is evaluated.
type StayRequest struct {
	UserID     string    `json:"user_id" validate:"required,min=1,max=64"`
	RoomTypeID string    `json:"room_type_id" validate:"required,min=1,max=64"`
	StartDate  time.Time `json:"start_date" validate:"required"`
	EndDate    time.Time `json:"end_date" validate:"required"`
	Rooms      int       `json:"rooms" validate:"required,min=1,max=100"`
	GuestType  string    `json:"guest_type" validate:"required,oneof=REGULAR VIP CORPORATE"`
	TotalPrice int64     `json:"total_price" validate:"min=0"`
}

// Decision carries every violation found, not just the first, so a caller can
// surface the complete list in one round trip. Warnings never block a booking.
type Decision struct {
	Valid           bool     `json:"valid"`
	Errors          []string `json:"errors,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	RequiresDeposit bool     `json:"requires_deposit"`
	DepositAmount   int64    `json:"deposit_amount,omitempty"`
}

type StayValidator struct {
	validate *playground.Validate
	policies repository.PolicyRepository
	log      *logger.Logger
}

func NewStayValidator(policies repository.PolicyRepository, log *logger.Logger) *StayValidator {
	return &StayValidator{
		validate: playground.New(),
		policies: policies,
		log:      log,
	}
}

// Validate evaluates every booking rule against the request as of now. The
// returned error is reserved for infrastructure failures; rule violations
// land in Decision.Errors.
func (v *StayValidator) Validate(ctx context.Context, req *StayRequest, now time.Time) (*Decision, error) {
	decision := &Decision{}

	v.checkStructure(req, decision)

	start, end := model.Day(req.StartDate), model.Day(req.EndDate)
	today := model.Day(now)

	if !end.After(start) {
		decision.Errors = append(decision.Errors, ruleserrors.ErrInvalidStayRange.Error())
		decision.Valid = false
		return decision, nil
	}

	nights := int(end.Sub(start).Hours() / 24)
	if nights > config.DefaultMaxStayNights {
		decision.Errors = append(decision.Errors,
			fmt.Sprintf("stay of %d nights exceeds the maximum of %d", nights, config.DefaultMaxStayNights))
	}
	if start.Before(today) {
		decision.Errors = append(decision.Errors, "start date cannot be in the past")
	}

	if req.GuestType != "" {
		if err := v.checkAdvanceWindow(ctx, req.GuestType, start, today, decision); err != nil {
			return nil, err
		}
	}

	if err := v.checkSpecialDays(ctx, req.RoomTypeID, start, end, decision); err != nil {
		return nil, err
	}

	if err := v.checkDeposit(ctx, req, decision); err != nil {
		return nil, err
	}

	decision.Valid = len(decision.Errors) == 0
	return decision, nil
}

func (v *StayValidator) checkStructure(req *StayRequest, decision *Decision) {
	err := v.validate.Struct(req)
	if err == nil {
		return
	}

	var validationErrs playground.ValidationErrors
	if !errors.As(err, &validationErrs) {
		decision.Errors = append(decision.Errors, err.Error())
		return
	}

	for _, fieldErr := range validationErrs {
		message := fieldErr.Error()
		switch fieldErr.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", fieldErr.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", fieldErr.Field(), fieldErr.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", fieldErr.Field(), fieldErr.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", fieldErr.Field(), fieldErr.Param())
		}
		decision.Errors = append(decision.Errors, message)
	}
}

// checkAdvanceWindow enforces the guest type's booking horizon: no further
// out than MaxDaysAdvance, no closer in than MinDaysNotice.
func (v *StayValidator) checkAdvanceWindow(ctx context.Context, guestType string, start, today time.Time, decision *Decision) error {
	ruleSet, err := v.policies.RuleSetFor(ctx, guestType)
	if err != nil {
		if errors.Is(err, ruleserrors.ErrRuleSetNotFound) {
			decision.Errors = append(decision.Errors, fmt.Sprintf("no booking rules defined for guest type %s", guestType))
			return nil
		}
		return err
	}

	daysUntilStart := int(start.Sub(today).Hours() / 24)
	if daysUntilStart > ruleSet.MaxDaysAdvance {
		decision.Errors = append(decision.Errors,
			fmt.Sprintf("%s guests may book at most %d days in advance, requested %d",
				guestType, ruleSet.MaxDaysAdvance, daysUntilStart))
	}
	if daysUntilStart >= 0 && daysUntilStart < ruleSet.MinDaysNotice {
		decision.Errors = append(decision.Errors,
			fmt.Sprintf("%s guests must book at least %d days in advance, requested %d",
				guestType, ruleSet.MinDaysNotice, daysUntilStart))
	}

	return nil
}

// checkSpecialDays rejects stays touching a blocked date and warns about
// special-rate dates. All offending dates are reported together.
func (v *StayValidator) checkSpecialDays(ctx context.Context, roomTypeID string, start, end time.Time, decision *Decision) error {
	specialDays, err := v.policies.SpecialDaysIn(ctx, roomTypeID, start, end)
	if err != nil {
		return err
	}

	var blocked, specialRate []string
	for _, day := range specialDays {
		if !day.AppliesTo(roomTypeID) {
			continue
		}
		switch day.RuleType {
		case model.RuleBlocked:
			blocked = append(blocked, model.Day(day.Date).Format("2006-01-02"))
		case model.RuleSpecialRate:
			specialRate = append(specialRate, model.Day(day.Date).Format("2006-01-02"))
		}
	}

	if len(blocked) > 0 {
		decision.Errors = append(decision.Errors,
			fmt.Sprintf("stay includes blocked dates: %s", strings.Join(blocked, ", ")))
	}
	if len(specialRate) > 0 {
		decision.Warnings = append(decision.Warnings,
			fmt.Sprintf("special rates apply on: %s", strings.Join(specialRate, ", ")))
	}

	return nil
}

func (v *StayValidator) checkDeposit(ctx context.Context, req *StayRequest, decision *Decision) error {
	if req.Rooms < 1 {
		return nil
	}

	policy, err := v.policies.DepositPolicyFor(ctx, req.Rooms)
	if err != nil {
		if errors.Is(err, ruleserrors.ErrNoDepositPolicy) {
			return nil
		}
		return err
	}

	decision.RequiresDeposit = true
	decision.DepositAmount = policy.DepositFor(req.TotalPrice)
	return nil
}
