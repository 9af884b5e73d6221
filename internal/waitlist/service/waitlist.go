package service

import (
	"context"
	"errors"
	"time"

	bookingsservice "innkeep/internal/bookings/service"
	ledger "innkeep/internal/inventory/service"
	rulesvalidator "innkeep/internal/rules/validator"
	waitlisterrors "innkeep/internal/waitlist/errors"
	"innkeep/internal/waitlist/repository"
	"innkeep/pkg/client"
	"innkeep/pkg/config"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/events"
	"innkeep/pkg/model"
)

// BookingGateway is the slice of the booking lifecycle the waitlist needs:
// creating a booking during conversion and unwinding it if the conversion
// loses the race for the hold.
type BookingGateway interface {
	Create(ctx context.Context, req *bookingsservice.CreateBookingRequest) (*model.Booking, *rulesvalidator.Decision, error)
	FailPayment(ctx context.Context, id string) error
}

type EventDispatcher interface {
	Dispatch(eventType, entityID, actor string, payload any)
}

// JoinRequest asks for a spot in the queue. An empty RoomTypeID means any
// room type covering the range is acceptable.
type JoinRequest struct {
	UserID     string    `json:"user_id"`
	RoomTypeID string    `json:"room_type_id,omitempty"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Guests     int       `json:"guests"`
	Rooms      int       `json:"rooms"`
}

type waitlistNotifiedEvent struct {
	EntryID    string    `json:"entry_id"`
	UserID     string    `json:"user_id"`
	RoomTypeID string    `json:"room_type_id,omitempty"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type WaitlistService interface {
	Join(ctx context.Context, req *JoinRequest) (*model.WaitlistEntry, error)
	Position(ctx context.Context, id string) (int64, error)
	GetByID(ctx context.Context, id string) (*model.WaitlistEntry, error)
	GetByUser(ctx context.Context, userID string, limit int, offset int64) ([]*model.WaitlistEntry, int64, error)
	Convert(ctx context.Context, id string, rooms int, totalPrice int64) (*model.Booking, error)
	Cancel(ctx context.Context, id, userID string) error
	NotifyFreed(ctx context.Context, freed events.InventoryFreed) (int, error)
	ExpireDue(ctx context.Context) (int64, error)
}

type waitlistService struct {
	repo       repository.WaitlistRepository
	ledger     ledger.LedgerService
	bookings   BookingGateway
	guests     client.GuestResolver
	dispatcher EventDispatcher
	cfg        *config.Config
}

func NewWaitlistService(
	repo repository.WaitlistRepository,
	ledgerSvc ledger.LedgerService,
	bookings BookingGateway,
	guests client.GuestResolver,
	dispatcher EventDispatcher,
	cfg *config.Config,
) WaitlistService {
	return &waitlistService{
		repo:       repo,
		ledger:     ledgerSvc,
		bookings:   bookings,
		guests:     guests,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// Join queues a user for dates that are currently full. Joining is only
// allowed when the rooms genuinely cannot be booked; if the probe finds
// capacity the caller is told to book instead.
func (s *waitlistService) Join(ctx context.Context, req *JoinRequest) (*model.WaitlistEntry, error) {
	if req.UserID == "" {
		return nil, apperrors.InvalidInput("User ID cannot be empty")
	}
	if req.Guests < 1 {
		return nil, apperrors.InvalidInput("Guests must be at least 1")
	}
	rooms := req.Rooms
	if rooms < 1 {
		rooms = 1
	}
	if len(model.DaysIn(req.StartDate, req.EndDate)) == 0 {
		return nil, apperrors.InvalidInput("End date must be after start date")
	}

	// Joining is only allowed when the stay genuinely cannot be booked. An
	// entry with no room type preference is satisfiable by any single room
	// type covering the whole range.
	var availability *ledger.Availability
	var err error
	if req.RoomTypeID != "" {
		availability, err = s.ledger.Probe(ctx, req.RoomTypeID, req.StartDate, req.EndDate, rooms)
	} else {
		availability, err = s.ledger.ProbeAny(ctx, req.StartDate, req.EndDate, rooms)
	}
	if err != nil {
		return nil, err
	}
	if availability.Available {
		return nil, apperrors.Conflict("Rooms are available for these dates; book directly instead of waitlisting")
	}

	if _, err := s.repo.FindActiveDuplicate(ctx, req.UserID, req.RoomTypeID, req.StartDate, req.EndDate); err == nil {
		return nil, apperrors.Conflict(waitlisterrors.ErrDuplicateEntry.Error())
	} else if !errors.Is(err, waitlisterrors.ErrNotFound) {
		return nil, apperrors.Internal("Failed to check for duplicate entry", err)
	}

	guestType, err := s.guests.GuestType(ctx, req.UserID)
	if err != nil {
		return nil, apperrors.Unavailable("Membership service")
	}

	entry := &model.WaitlistEntry{
		UserID:     req.UserID,
		RoomTypeID: req.RoomTypeID,
		StartDate:  model.Day(req.StartDate),
		EndDate:    model.Day(req.EndDate),
		Guests:     req.Guests,
		GuestType:  guestType,
		Status:     model.WaitlistPending,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, apperrors.Internal("Failed to create waitlist entry", err)
	}

	s.cfg.Log.Info("Waitlist entry created",
		"id", entry.ID,
		"user_id", entry.UserID,
		"room_type_id", entry.RoomTypeID,
	)
	return entry, nil
}

func (s *waitlistService) Position(ctx context.Context, id string) (int64, error) {
	entry, err := s.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if entry.Status != model.WaitlistPending {
		return 0, apperrors.Conflict("Only pending entries have a queue position")
	}

	ahead, err := s.repo.CountAhead(ctx, entry)
	if err != nil {
		return 0, apperrors.Internal("Failed to compute queue position", err)
	}

	return ahead + 1, nil
}

func (s *waitlistService) GetByID(ctx context.Context, id string) (*model.WaitlistEntry, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Waitlist entry ID cannot be empty")
	}

	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, waitlisterrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Waitlist entry", id)
		}
		if errors.Is(err, waitlisterrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid waitlist entry ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve waitlist entry", err)
	}

	return entry, nil
}

func (s *waitlistService) GetByUser(ctx context.Context, userID string, limit int, offset int64) ([]*model.WaitlistEntry, int64, error) {
	if userID == "" {
		return nil, 0, apperrors.InvalidInput("User ID cannot be empty")
	}
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	entries, count, err := s.repo.FindByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Internal("Failed to retrieve waitlist entries", err)
	}

	return entries, count, nil
}

// Convert turns a live hold into a real booking. The booking is created
// first, then the hold is claimed with an expiry-guarded update; if the claim
// fails the fresh booking is unwound so no inventory leaks.
func (s *waitlistService) Convert(ctx context.Context, id string, rooms int, totalPrice int64) (*model.Booking, error) {
	entry, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	switch {
	case entry.Status != model.WaitlistNotified:
		return nil, apperrors.Conflict(waitlisterrors.ErrNotNotified.Error())
	case !entry.ExpiresAt.After(now):
		return nil, apperrors.Conflict(waitlisterrors.ErrHoldExpired.Error())
	}

	if rooms < 1 {
		rooms = 1
	}
	if entry.RoomTypeID == "" {
		return nil, apperrors.InvalidInput("Entries without a room type must be converted through a direct booking")
	}

	booking, _, err := s.bookings.Create(ctx, &bookingsservice.CreateBookingRequest{
		UserID:     entry.UserID,
		RoomTypeID: entry.RoomTypeID,
		StartDate:  entry.StartDate,
		EndDate:    entry.EndDate,
		Rooms:      rooms,
		TotalPrice: totalPrice,
	})
	if err != nil {
		return nil, err
	}

	matched, err := s.repo.MarkConverted(ctx, id, now)
	if err != nil {
		s.unwind(ctx, booking.ID)
		return nil, apperrors.Internal("Failed to convert waitlist entry", err)
	}
	if matched == 0 {
		s.unwind(ctx, booking.ID)
		return nil, apperrors.Conflict(waitlisterrors.ErrHoldExpired.Error())
	}

	s.cfg.Log.Info("Waitlist entry converted",
		"id", id,
		"booking_id", booking.ID,
		"user_id", entry.UserID,
	)
	return booking, nil
}

func (s *waitlistService) unwind(ctx context.Context, bookingID string) {
	if err := s.bookings.FailPayment(ctx, bookingID); err != nil {
		s.cfg.Log.Error("Failed to unwind booking after lost conversion race",
			"booking_id", bookingID, "error", err)
	}
}

func (s *waitlistService) Cancel(ctx context.Context, id, userID string) error {
	if userID == "" {
		return apperrors.InvalidInput("User ID cannot be empty")
	}

	matched, err := s.repo.MarkExpiredByUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, waitlisterrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid waitlist entry ID format")
		}
		return apperrors.Internal("Failed to cancel waitlist entry", err)
	}
	if matched == 0 {
		return apperrors.NotFoundWithID("Active waitlist entry", id)
	}

	s.cfg.Log.Info("Waitlist entry cancelled", "id", id, "user_id", userID)
	return nil
}

// NotifyFreed offers freed inventory to the queue, oldest entries first, one
// hold per freed room. Each candidate's own full range is probed before the
// promotion: an entry spanning nights that are still sold out keeps its place
// in line instead of burning its turn on a hold it cannot convert.
func (s *waitlistService) NotifyFreed(ctx context.Context, freed events.InventoryFreed) (int, error) {
	if freed.Rooms < 1 {
		return 0, nil
	}

	notified := 0
	var skipped []string
	for notified < freed.Rooms {
		entry, err := s.repo.NextPending(ctx, freed.RoomTypeID, freed.StartDate, freed.EndDate, skipped)
		if err != nil {
			if errors.Is(err, waitlisterrors.ErrNotFound) {
				break
			}
			return notified, apperrors.Internal("Failed to find next pending entry", err)
		}

		available, err := s.stayAvailable(ctx, entry)
		if err != nil {
			return notified, err
		}
		if !available {
			skipped = append(skipped, entry.ID)
			continue
		}

		now := time.Now()
		expiresAt := now.Add(s.cfg.WaitlistHoldWindow)
		matched, err := s.repo.MarkNotified(ctx, entry.ID, now, expiresAt)
		if err != nil {
			return notified, apperrors.Internal("Failed to notify waitlist entry", err)
		}
		if matched == 0 {
			// Someone else promoted or cancelled it; move on.
			continue
		}

		s.dispatcher.Dispatch(events.TypeWaitlistNotified, entry.ID, "system", waitlistNotifiedEvent{
			EntryID:    entry.ID,
			UserID:     entry.UserID,
			RoomTypeID: entry.RoomTypeID,
			StartDate:  entry.StartDate,
			EndDate:    entry.EndDate,
			ExpiresAt:  expiresAt,
		})
		notified++

		s.cfg.Log.Info("Waitlist entry notified",
			"id", entry.ID,
			"user_id", entry.UserID,
			"expires_at", expiresAt,
		)
	}

	return notified, nil
}

// stayAvailable reports whether the entry's whole range can be booked now,
// one room for the entry's preferred type or for any single type when the
// entry has no preference.
func (s *waitlistService) stayAvailable(ctx context.Context, entry *model.WaitlistEntry) (bool, error) {
	var availability *ledger.Availability
	var err error
	if entry.RoomTypeID != "" {
		availability, err = s.ledger.Probe(ctx, entry.RoomTypeID, entry.StartDate, entry.EndDate, 1)
	} else {
		availability, err = s.ledger.ProbeAny(ctx, entry.StartDate, entry.EndDate, 1)
	}
	if err != nil {
		return false, err
	}
	return availability.Available, nil
}

func (s *waitlistService) ExpireDue(ctx context.Context) (int64, error) {
	expired, err := s.repo.ExpireDue(ctx, time.Now())
	if err != nil {
		return 0, apperrors.Internal("Failed to expire waitlist holds", err)
	}

	if expired > 0 {
		s.cfg.Log.Info("Expired waitlist holds", "count", expired)
	}
	return expired, nil
}
