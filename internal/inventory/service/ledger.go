package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	inventoryerrors "innkeep/internal/inventory/errors"
	"innkeep/internal/inventory/repository"
	"innkeep/pkg/config"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/model"
)

const lockRetries = 3

// Availability is the result of a read-only capacity probe. ConflictDates
// lists the dates that cannot absorb the requested rooms, including dates
// with no capacity configured at all.
type Availability struct {
	Available     bool     `json:"available"`
	ConflictDates []string `json:"conflict_dates,omitempty"`
}

// LedgerService owns every mutation of the per-day room counters. Reserve and
// release are all-or-nothing across the whole stay range: either every night
// is adjusted or none is.
//
// ReserveIn and ReleaseIn run inside a caller-owned session, so a booking
// write and its inventory adjustment commit as one unit. Callers must hold
// the room-type lock through WithLock for the whole transaction.
type LedgerService interface {
	Reserve(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) error
	Release(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) error
	ReserveIn(sessCtx mongo.SessionContext, roomTypeID string, start, end time.Time, rooms int) error
	ReleaseIn(sessCtx mongo.SessionContext, roomTypeID string, start, end time.Time, rooms int) error
	WithLock(ctx context.Context, roomTypeID string, fn func() error) error
	Probe(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) (*Availability, error)
	ProbeAny(ctx context.Context, start, end time.Time, rooms int) (*Availability, error)
	SetCapacity(ctx context.Context, roomTypeID string, start, end time.Time, totalRooms int) error
}

type ledgerService struct {
	repo     repository.InventoryRepository
	lockRepo repository.RangeLockRepository
	cfg      *config.Config
}

func NewLedgerService(
	repo repository.InventoryRepository,
	lockRepo repository.RangeLockRepository,
	cfg *config.Config,
) LedgerService {
	return &ledgerService{
		repo:     repo,
		lockRepo: lockRepo,
		cfg:      cfg,
	}
}

func (s *ledgerService) Reserve(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) error {
	if _, err := s.validateRange(roomTypeID, start, end, rooms); err != nil {
		return err
	}

	err := s.WithLock(ctx, roomTypeID, func() error {
		return s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
			return s.ReserveIn(sessCtx, roomTypeID, start, end, rooms)
		})
	})
	if err != nil {
		return err
	}

	s.cfg.Log.Info("Inventory reserved",
		"room_type_id", roomTypeID,
		"start_date", model.Day(start),
		"end_date", model.Day(end),
		"rooms", rooms,
	)
	return nil
}

func (s *ledgerService) Release(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) error {
	if _, err := s.validateRange(roomTypeID, start, end, rooms); err != nil {
		return err
	}

	err := s.WithLock(ctx, roomTypeID, func() error {
		return s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
			return s.ReleaseIn(sessCtx, roomTypeID, start, end, rooms)
		})
	})
	if err != nil {
		return err
	}

	s.cfg.Log.Info("Inventory released",
		"room_type_id", roomTypeID,
		"start_date", model.Day(start),
		"end_date", model.Day(end),
		"rooms", rooms,
	)
	return nil
}

// ReserveIn reserves the range inside a caller-owned session, so the
// reservation commits or aborts together with whatever the caller writes in
// the same transaction. The caller must hold the room-type lock via WithLock.
func (s *ledgerService) ReserveIn(sessCtx mongo.SessionContext, roomTypeID string, start, end time.Time, rooms int) error {
	days, err := s.validateRange(roomTypeID, start, end, rooms)
	if err != nil {
		return err
	}

	if err := s.verifyCapacity(sessCtx, roomTypeID, start, end, days, rooms); err != nil {
		return err
	}

	modified, err := s.repo.ReserveRange(sessCtx, roomTypeID, days, rooms)
	if err != nil {
		return apperrors.Internal("Failed to reserve inventory", err)
	}
	// The lock serializes writers, so a short count here means the
	// counters changed underneath us. Abort and surface it.
	if modified != int64(len(days)) {
		return apperrors.Integrity(
			fmt.Sprintf("reserve touched %d of %d days", modified, len(days)),
			inventoryerrors.ErrCapacityShort,
		)
	}
	return nil
}

// ReleaseIn mirrors ReserveIn for returning rooms to the pool.
func (s *ledgerService) ReleaseIn(sessCtx mongo.SessionContext, roomTypeID string, start, end time.Time, rooms int) error {
	days, err := s.validateRange(roomTypeID, start, end, rooms)
	if err != nil {
		return err
	}

	modified, err := s.repo.ReleaseRange(sessCtx, roomTypeID, days, rooms)
	if err != nil {
		return apperrors.Internal("Failed to release inventory", err)
	}
	// A release always mirrors an earlier reserve; a short count means
	// the counters no longer add up.
	if modified != int64(len(days)) {
		return apperrors.Integrity(
			fmt.Sprintf("release touched %d of %d days", modified, len(days)),
			inventoryerrors.ErrReleaseUnderflow,
		)
	}
	return nil
}

// WithLock runs fn holding the advisory lock for the room type, so a caller
// can span its own transaction over ReserveIn and ReleaseIn.
func (s *ledgerService) WithLock(ctx context.Context, roomTypeID string, fn func() error) error {
	release, err := s.acquireLedgerLock(ctx, roomTypeID)
	if err != nil {
		return err
	}
	defer release()

	return fn()
}

func (s *ledgerService) Probe(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) (*Availability, error) {
	days, err := s.validateRange(roomTypeID, start, end, rooms)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.FindRange(ctx, roomTypeID, start, end)
	if err != nil {
		return nil, apperrors.Internal("Failed to read inventory", err)
	}

	conflicts := conflictDates(days, rows, rooms)
	return &Availability{
		Available:     len(conflicts) == 0,
		ConflictDates: conflicts,
	}, nil
}

// ProbeAny reports whether any single room type can absorb the rooms across
// the whole range. Splitting a stay over multiple room types does not count.
func (s *ledgerService) ProbeAny(ctx context.Context, start, end time.Time, rooms int) (*Availability, error) {
	if rooms < 1 {
		return nil, apperrors.InvalidInput("Rooms must be at least 1")
	}
	if len(model.DaysIn(start, end)) == 0 {
		return nil, apperrors.InvalidInput(inventoryerrors.ErrInvalidRange.Error())
	}

	roomTypes, err := s.repo.RoomTypesIn(ctx, start, end)
	if err != nil {
		return nil, apperrors.Internal("Failed to list room types", err)
	}

	for _, roomTypeID := range roomTypes {
		availability, err := s.Probe(ctx, roomTypeID, start, end, rooms)
		if err != nil {
			return nil, err
		}
		if availability.Available {
			return &Availability{Available: true}, nil
		}
	}
	return &Availability{Available: false}, nil
}

func (s *ledgerService) SetCapacity(ctx context.Context, roomTypeID string, start, end time.Time, totalRooms int) error {
	if roomTypeID == "" {
		return apperrors.InvalidInput("Room type ID cannot be empty")
	}
	if totalRooms < 0 {
		return apperrors.InvalidInput("Total rooms cannot be negative")
	}
	days := model.DaysIn(start, end)
	if len(days) == 0 {
		return apperrors.InvalidInput(inventoryerrors.ErrInvalidRange.Error())
	}

	release, err := s.acquireLedgerLock(ctx, roomTypeID)
	if err != nil {
		return err
	}
	defer release()

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		rows, err := s.repo.FindRange(sessCtx, roomTypeID, start, end)
		if err != nil {
			return apperrors.Internal("Failed to read inventory", err)
		}

		// Capacity can never drop below what is already reserved.
		for _, row := range rows {
			if row.ReservedRooms > totalRooms {
				return apperrors.Conflict(fmt.Sprintf(
					"cannot set capacity to %d on %s: %d rooms already reserved",
					totalRooms, model.Day(row.Date).Format("2006-01-02"), row.ReservedRooms,
				))
			}
		}

		for _, day := range days {
			if err := s.repo.UpsertCapacity(sessCtx, roomTypeID, day, totalRooms); err != nil {
				return apperrors.Internal("Failed to set capacity", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cfg.Log.Info("Capacity updated",
		"room_type_id", roomTypeID,
		"start_date", model.Day(start),
		"end_date", model.Day(end),
		"total_rooms", totalRooms,
	)
	return nil
}

func (s *ledgerService) validateRange(roomTypeID string, start, end time.Time, rooms int) ([]time.Time, error) {
	if roomTypeID == "" {
		return nil, apperrors.InvalidInput("Room type ID cannot be empty")
	}
	if rooms < 1 {
		return nil, apperrors.InvalidInput("Rooms must be at least 1")
	}
	if rooms > config.DefaultMaxRoomsPerBooking {
		return nil, apperrors.InvalidInput(fmt.Sprintf("Rooms must be at most %d", config.DefaultMaxRoomsPerBooking))
	}
	days := model.DaysIn(start, end)
	if len(days) == 0 {
		return nil, apperrors.InvalidInput(inventoryerrors.ErrInvalidRange.Error())
	}
	return days, nil
}

// acquireLedgerLock serializes ledger writers per room type. Contention is
// retried briefly; persistent contention surfaces as a conflict the caller
// can retry.
func (s *ledgerService) acquireLedgerLock(ctx context.Context, roomTypeID string) (func(), error) {
	key := "ledger:" + roomTypeID

	var err error
	for attempt := 0; attempt <= lockRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, apperrors.Timeout("Inventory operation cancelled")
			case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
			}
		}
		err = s.lockRepo.Acquire(ctx, key, s.cfg.LedgerLockTTL)
		if err == nil {
			return func() {
				if releaseErr := s.lockRepo.Release(ctx, key); releaseErr != nil {
					s.cfg.Log.Warn("Failed to release ledger lock", "key", key, "error", releaseErr)
				}
			}, nil
		}
		if !errors.Is(err, inventoryerrors.ErrLockHeld) {
			return nil, apperrors.Internal("Failed to acquire ledger lock", err)
		}
	}

	return nil, apperrors.Conflict("Inventory for this room type is being updated by another request")
}

// verifyCapacity checks, under the ledger lock, that every night in the range
// is configured and can absorb the requested rooms. Offending dates are
// reported together.
func (s *ledgerService) verifyCapacity(sessCtx mongo.SessionContext, roomTypeID string, start, end time.Time, days []time.Time, rooms int) error {
	rows, err := s.repo.FindRange(sessCtx, roomTypeID, start, end)
	if err != nil {
		return apperrors.Internal("Failed to read inventory", err)
	}

	if conflicts := conflictDates(days, rows, rooms); len(conflicts) > 0 {
		return apperrors.CapacityConflict("Not enough rooms available for the requested dates", conflicts)
	}
	return nil
}

func conflictDates(days []time.Time, rows []*model.InventoryDay, rooms int) []string {
	byDate := make(map[time.Time]*model.InventoryDay, len(rows))
	for _, row := range rows {
		byDate[model.Day(row.Date)] = row
	}

	var conflicts []string
	for _, day := range days {
		row, ok := byDate[day]
		if !ok || row.AvailableRooms() < rooms {
			conflicts = append(conflicts, day.Format("2006-01-02"))
		}
	}
	return conflicts
}
