package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	bookingserrors "innkeep/internal/bookings/errors"
	"innkeep/internal/bookings/repository"
	ledger "innkeep/internal/inventory/service"
	rulesvalidator "innkeep/internal/rules/validator"
	"innkeep/pkg/client"
	"innkeep/pkg/config"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/events"
	"innkeep/pkg/model"
)

// EventDispatcher publishes lifecycle events after the owning transaction has
// committed. Delivery is best-effort.
type EventDispatcher interface {
	Dispatch(eventType, entityID, actor string, payload any)
}

// CreateBookingRequest is the caller's booking intent. The guest type is
// resolved from the membership service, never taken from the request.
type CreateBookingRequest struct {
	UserID     string    `json:"user_id"`
	RoomTypeID string    `json:"room_type_id"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Rooms      int       `json:"rooms"`
	TotalPrice int64     `json:"total_price"`
}

// CancellationResult pairs the cancelled booking with the refund that was
// actually charged.
type CancellationResult struct {
	Booking *model.Booking `json:"booking"`
	Refund  *RefundQuote   `json:"refund"`
}

type bookingCreatedEvent struct {
	BookingID     string    `json:"booking_id"`
	UserID        string    `json:"user_id"`
	RoomTypeID    string    `json:"room_type_id"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	Rooms         int       `json:"rooms"`
	GuestType     string    `json:"guest_type"`
	DepositAmount int64     `json:"deposit_amount"`
}

type bookingConfirmedEvent struct {
	BookingID  string `json:"booking_id"`
	UserID     string `json:"user_id"`
	PaidAmount int64  `json:"paid_amount"`
}

// bookingCancelledEvent doubles as an inventory-freed notice: its room type,
// date range and room count decode into events.InventoryFreed on the consumer
// side.
type bookingCancelledEvent struct {
	BookingID    string    `json:"booking_id"`
	UserID       string    `json:"user_id"`
	RoomTypeID   string    `json:"room_type_id"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	Rooms        int       `json:"rooms"`
	RefundAmount int64     `json:"refund_amount"`
}

type LifecycleService interface {
	Create(ctx context.Context, req *CreateBookingRequest) (*model.Booking, *rulesvalidator.Decision, error)
	ValidateStay(ctx context.Context, req *CreateBookingRequest) (*rulesvalidator.Decision, error)
	Confirm(ctx context.Context, id, actor string, amount int64) (*model.Booking, error)
	FailPayment(ctx context.Context, id string) error
	Cancel(ctx context.Context, id, actor string) (*CancellationResult, error)
	Complete(ctx context.Context, id string) error
	CompleteDue(ctx context.Context) (int, error)
	RefundQuote(ctx context.Context, id string, now time.Time) (*RefundQuote, error)
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	GetAll(ctx context.Context, filter repository.BookingFilter, limit int, offset int64) ([]*model.Booking, int64, error)
}

type lifecycleService struct {
	repo       repository.BookingRepository
	payments   repository.PaymentRepository
	ledger     ledger.LedgerService
	validator  *rulesvalidator.StayValidator
	guests     client.GuestResolver
	refunds    *RefundCalculator
	dispatcher EventDispatcher
	cfg        *config.Config
}

func NewLifecycleService(
	repo repository.BookingRepository,
	payments repository.PaymentRepository,
	ledgerSvc ledger.LedgerService,
	validator *rulesvalidator.StayValidator,
	guests client.GuestResolver,
	refunds *RefundCalculator,
	dispatcher EventDispatcher,
	cfg *config.Config,
) LifecycleService {
	return &lifecycleService{
		repo:       repo,
		payments:   payments,
		ledger:     ledgerSvc,
		validator:  validator,
		guests:     guests,
		refunds:    refunds,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// Create validates the stay, then reserves every night and inserts the
// PROVISIONAL booking in one transaction under the room-type lock. A capacity
// shortfall or a failed insert aborts both, so held inventory can never exist
// without its booking row.
func (s *lifecycleService) Create(ctx context.Context, req *CreateBookingRequest) (*model.Booking, *rulesvalidator.Decision, error) {
	guestType, err := s.guests.GuestType(ctx, req.UserID)
	if err != nil {
		return nil, nil, apperrors.Unavailable("Membership service")
	}

	decision, err := s.validator.Validate(ctx, stayRequest(req, guestType), time.Now())
	if err != nil {
		return nil, nil, apperrors.Internal("Failed to validate booking", err)
	}
	if !decision.Valid {
		return nil, decision, apperrors.PolicyViolation("Booking violates one or more rules", map[string]any{
			"errors":   decision.Errors,
			"warnings": decision.Warnings,
		})
	}

	booking := &model.Booking{
		UserID:        req.UserID,
		RoomTypeID:    req.RoomTypeID,
		StartDate:     model.Day(req.StartDate),
		EndDate:       model.Day(req.EndDate),
		RoomsBooked:   req.Rooms,
		GuestType:     guestType,
		Status:        model.BookingProvisional,
		TotalPrice:    req.TotalPrice,
		DepositAmount: decision.DepositAmount,
	}

	err = s.ledger.WithLock(ctx, req.RoomTypeID, func() error {
		return s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
			if err := s.ledger.ReserveIn(sessCtx, req.RoomTypeID, req.StartDate, req.EndDate, req.Rooms); err != nil {
				return err
			}
			if err := s.repo.Create(sessCtx, booking); err != nil {
				return apperrors.Internal("Failed to create booking", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, decision, err
	}

	s.dispatcher.Dispatch(events.TypeBookingCreated, booking.ID, req.UserID, bookingCreatedEvent{
		BookingID:     booking.ID,
		UserID:        booking.UserID,
		RoomTypeID:    booking.RoomTypeID,
		StartDate:     booking.StartDate,
		EndDate:       booking.EndDate,
		Rooms:         booking.RoomsBooked,
		GuestType:     booking.GuestType,
		DepositAmount: booking.DepositAmount,
	})

	s.cfg.Log.Info("Booking created",
		"id", booking.ID,
		"user_id", booking.UserID,
		"room_type_id", booking.RoomTypeID,
		"rooms", booking.RoomsBooked,
		"nights", booking.Nights(),
	)
	return booking, decision, nil
}

// ValidateStay runs the rule validator without touching inventory, for
// dry-run requests.
func (s *lifecycleService) ValidateStay(ctx context.Context, req *CreateBookingRequest) (*rulesvalidator.Decision, error) {
	guestType, err := s.guests.GuestType(ctx, req.UserID)
	if err != nil {
		return nil, apperrors.Unavailable("Membership service")
	}

	decision, err := s.validator.Validate(ctx, stayRequest(req, guestType), time.Now())
	if err != nil {
		return nil, apperrors.Internal("Failed to validate booking", err)
	}
	return decision, nil
}

func stayRequest(req *CreateBookingRequest, guestType string) *rulesvalidator.StayRequest {
	return &rulesvalidator.StayRequest{
		UserID:     req.UserID,
		RoomTypeID: req.RoomTypeID,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Rooms:      req.Rooms,
		GuestType:  guestType,
		TotalPrice: req.TotalPrice,
	}
}

// Confirm moves a provisional booking to CONFIRMED on payment success. The
// payment record and the status flip commit together; the status filter on
// the update makes a second confirmation a no-op that surfaces as a conflict.
func (s *lifecycleService) Confirm(ctx context.Context, id, actor string, amount int64) (*model.Booking, error) {
	booking, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if booking.DepositAmount > 0 && amount < booking.DepositAmount {
		return nil, apperrors.PolicyViolation("Payment does not cover the required deposit", map[string]any{
			"deposit_amount": booking.DepositAmount,
			"paid_amount":    amount,
		})
	}

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		matched, err := s.repo.Confirm(sessCtx, id, actor, amount)
		if err != nil {
			return apperrors.Internal("Failed to confirm booking", err)
		}
		if matched == 0 {
			return apperrors.Conflict("Only provisional bookings can be confirmed")
		}

		return s.recordPayment(sessCtx, id, amount, paymentKind(booking, amount), actor)
	})
	if err != nil {
		return nil, err
	}

	booking.Status = model.BookingConfirmed
	booking.ConfirmedBy = actor
	booking.PaidAmount = amount

	s.dispatcher.Dispatch(events.TypeBookingConfirmed, id, actor, bookingConfirmedEvent{
		BookingID:  id,
		UserID:     booking.UserID,
		PaidAmount: amount,
	})

	s.cfg.Log.Info("Booking confirmed", "id", id, "paid_amount", amount)
	return booking, nil
}

func paymentKind(booking *model.Booking, amount int64) string {
	if booking.DepositAmount > 0 && amount < booking.TotalPrice {
		return model.PaymentDeposit
	}
	return model.PaymentSettlement
}

// FailPayment cancels a provisional booking whose payment was declined and
// returns its rooms to the pool.
func (s *lifecycleService) FailPayment(ctx context.Context, id string) error {
	result, err := s.cancel(ctx, id, "payment-gateway", false)
	if err != nil {
		return err
	}

	s.cfg.Log.Info("Booking cancelled after failed payment", "id", result.Booking.ID)
	return nil
}

// Cancel finalizes an active booking, charges the tier fee and releases every
// reserved night. The status guard on the update is what makes the refund
// single-shot: a raced second cancel matches zero rows and aborts.
func (s *lifecycleService) Cancel(ctx context.Context, id, actor string) (*CancellationResult, error) {
	return s.cancel(ctx, id, actor, true)
}

func (s *lifecycleService) cancel(ctx context.Context, id, actor string, withRefund bool) (*CancellationResult, error) {
	now := time.Now()

	// Read once outside the lock for the room type; the transaction re-reads
	// and re-checks the state under it.
	booking, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !booking.Active() {
		return nil, apperrors.Conflict(bookingserrors.ErrAlreadyFinalized.Error())
	}

	var quote *RefundQuote
	err = s.ledger.WithLock(ctx, booking.RoomTypeID, func() error {
		return s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
			quote = nil
			fresh, err := s.findForUpdate(sessCtx, id)
			if err != nil {
				return err
			}
			if !fresh.Active() {
				return apperrors.Conflict(bookingserrors.ErrAlreadyFinalized.Error())
			}
			booking = fresh

			matched, err := s.repo.Cancel(sessCtx, id, actor, now)
			if err != nil {
				return apperrors.Internal("Failed to cancel booking", err)
			}
			if matched == 0 {
				return apperrors.Integrity("booking changed state during cancellation", bookingserrors.ErrStatusConflict)
			}

			if withRefund {
				quote = s.refunds.Quote(booking, now)
				if quote.RefundAmount > 0 {
					if err := s.recordPayment(sessCtx, id, -quote.RefundAmount, model.PaymentRefund, actor); err != nil {
						return err
					}
				}
			}

			// Releasing in the same session keeps the terminal status, the
			// refund line and the freed rooms a single commit: a failed
			// release aborts the cancellation instead of leaking held rooms.
			return s.ledger.ReleaseIn(sessCtx, booking.RoomTypeID, booking.StartDate, booking.EndDate, booking.RoomsBooked)
		})
	})
	if err != nil {
		return nil, err
	}

	booking.Status = model.BookingCancelled
	booking.CancelledBy = actor
	booking.CancelledAt = now

	var refundAmount int64
	if quote != nil {
		refundAmount = quote.RefundAmount
	}
	s.dispatcher.Dispatch(events.TypeBookingCancelled, id, actor, bookingCancelledEvent{
		BookingID:    id,
		UserID:       booking.UserID,
		RoomTypeID:   booking.RoomTypeID,
		StartDate:    booking.StartDate,
		EndDate:      booking.EndDate,
		Rooms:        booking.RoomsBooked,
		RefundAmount: refundAmount,
	})

	s.cfg.Log.Info("Booking cancelled",
		"id", id,
		"actor", actor,
		"refund_amount", refundAmount,
	)
	return &CancellationResult{Booking: booking, Refund: quote}, nil
}

// Complete marks a confirmed booking COMPLETED once its stay has ended. The
// rooms were consumed, not freed, so the ledger is left alone.
func (s *lifecycleService) Complete(ctx context.Context, id string) error {
	matched, err := s.repo.Complete(ctx, id, time.Now())
	if err != nil {
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid booking ID format")
		}
		return apperrors.Internal("Failed to complete booking", err)
	}
	if matched == 0 {
		booking, findErr := s.GetByID(ctx, id)
		if findErr != nil {
			return findErr
		}
		if booking.Status != model.BookingConfirmed {
			return apperrors.Conflict("Only confirmed bookings can be completed")
		}
		return apperrors.Conflict("Booking stay has not ended yet")
	}

	s.dispatcher.Dispatch(events.TypeBookingCompleted, id, "system", map[string]string{"booking_id": id})
	s.cfg.Log.Info("Booking completed", "id", id)
	return nil
}

// CompleteDue sweeps confirmed bookings whose stay has ended. Used by the
// background sweeper; individual failures are logged and skipped.
func (s *lifecycleService) CompleteDue(ctx context.Context) (int, error) {
	due, err := s.repo.FindDueCompletion(ctx, time.Now(), config.DefaultPaginationLimit)
	if err != nil {
		return 0, apperrors.Internal("Failed to find due bookings", err)
	}

	completed := 0
	for _, booking := range due {
		if err := s.Complete(ctx, booking.ID); err != nil {
			s.cfg.Log.Warn("Failed to complete due booking", "id", booking.ID, "error", err)
			continue
		}
		completed++
	}

	return completed, nil
}

func (s *lifecycleService) RefundQuote(ctx context.Context, id string, now time.Time) (*RefundQuote, error) {
	booking, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !booking.Active() {
		return nil, apperrors.Conflict(bookingserrors.ErrAlreadyFinalized.Error())
	}

	return s.refunds.Quote(booking, now), nil
}

func (s *lifecycleService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translateFindError(err, id)
	}

	return booking, nil
}

func (s *lifecycleService) GetAll(ctx context.Context, filter repository.BookingFilter, limit int, offset int64) ([]*model.Booking, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	bookings, err := s.repo.FindAll(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Internal("Failed to retrieve bookings", err)
	}

	count, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, apperrors.Internal("Failed to count bookings", err)
	}

	return bookings, count, nil
}

func (s *lifecycleService) findForUpdate(sessCtx mongo.SessionContext, id string) (*model.Booking, error) {
	booking, err := s.repo.FindByID(sessCtx, id)
	if err != nil {
		return nil, translateFindError(err, id)
	}
	return booking, nil
}

func (s *lifecycleService) recordPayment(ctx context.Context, bookingID string, amount int64, kind, actor string) error {
	err := s.payments.Record(ctx, &model.PaymentRecord{
		BookingID: bookingID,
		Amount:    amount,
		Kind:      kind,
		Actor:     actor,
	})
	if err != nil {
		return apperrors.Internal(fmt.Sprintf("Failed to record %s", kind), err)
	}
	return nil
}

func translateFindError(err error, id string) error {
	if errors.Is(err, bookingserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Booking", id)
	}
	if errors.Is(err, bookingserrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid booking ID format")
	}
	return apperrors.Internal("Failed to retrieve booking", err)
}
