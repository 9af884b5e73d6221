package service

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	inventoryerrors "innkeep/internal/inventory/errors"
	"innkeep/pkg/config"
	mongotx "innkeep/pkg/db/mongo"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"
)

type mockInventoryRepository struct {
	findRangeFunc      func(ctx context.Context, roomTypeID string, start, end time.Time) ([]*model.InventoryDay, error)
	roomTypesInFunc    func(ctx context.Context, start, end time.Time) ([]string, error)
	reserveRangeFunc   func(ctx context.Context, roomTypeID string, days []time.Time, rooms int) (int64, error)
	releaseRangeFunc   func(ctx context.Context, roomTypeID string, days []time.Time, rooms int) (int64, error)
	upsertCapacityFunc func(ctx context.Context, roomTypeID string, date time.Time, totalRooms int) error
}

func (m *mockInventoryRepository) FindRange(ctx context.Context, roomTypeID string, start, end time.Time) ([]*model.InventoryDay, error) {
	if m.findRangeFunc != nil {
		return m.findRangeFunc(ctx, roomTypeID, start, end)
	}
	return nil, nil
}

func (m *mockInventoryRepository) RoomTypesIn(ctx context.Context, start, end time.Time) ([]string, error) {
	if m.roomTypesInFunc != nil {
		return m.roomTypesInFunc(ctx, start, end)
	}
	return nil, nil
}

func (m *mockInventoryRepository) ReserveRange(ctx context.Context, roomTypeID string, days []time.Time, rooms int) (int64, error) {
	if m.reserveRangeFunc != nil {
		return m.reserveRangeFunc(ctx, roomTypeID, days, rooms)
	}
	return int64(len(days)), nil
}

func (m *mockInventoryRepository) ReleaseRange(ctx context.Context, roomTypeID string, days []time.Time, rooms int) (int64, error) {
	if m.releaseRangeFunc != nil {
		return m.releaseRangeFunc(ctx, roomTypeID, days, rooms)
	}
	return int64(len(days)), nil
}

func (m *mockInventoryRepository) UpsertCapacity(ctx context.Context, roomTypeID string, date time.Time, totalRooms int) error {
	if m.upsertCapacityFunc != nil {
		return m.upsertCapacityFunc(ctx, roomTypeID, date, totalRooms)
	}
	return nil
}

func (m *mockInventoryRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(mongo.SessionContext(nil))
}

type mockRangeLockRepository struct {
	acquireFunc  func(ctx context.Context, key string, ttl time.Duration) error
	releaseFunc  func(ctx context.Context, key string) error
	acquireCalls int
	releaseCalls int
}

func (m *mockRangeLockRepository) Acquire(ctx context.Context, key string, ttl time.Duration) error {
	m.acquireCalls++
	if m.acquireFunc != nil {
		return m.acquireFunc(ctx, key, ttl)
	}
	return nil
}

func (m *mockRangeLockRepository) Release(ctx context.Context, key string) error {
	m.releaseCalls++
	if m.releaseFunc != nil {
		return m.releaseFunc(ctx, key)
	}
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		LedgerLockTTL: 10 * time.Second,
		Log:           logger.New(logger.Config{Level: logger.ERROR}),
	}
}

func stayDay(offset int) time.Time {
	return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func configuredRange(roomTypeID string, start, end time.Time, total, reserved int) []*model.InventoryDay {
	var rows []*model.InventoryDay
	for _, d := range model.DaysIn(start, end) {
		rows = append(rows, &model.InventoryDay{
			RoomTypeID:    roomTypeID,
			Date:          d,
			TotalRooms:    total,
			ReservedRooms: reserved,
		})
	}
	return rows
}

func TestLedgerReserve_Success(t *testing.T) {
	var reservedDays []time.Time
	repo := &mockInventoryRepository{
		findRangeFunc: func(ctx context.Context, roomTypeID string, start, end time.Time) ([]*model.InventoryDay, error) {
			return configuredRange(roomTypeID, start, end, 10, 4), nil
		},
		reserveRangeFunc: func(ctx context.Context, roomTypeID string, days []time.Time, rooms int) (int64, error) {
			reservedDays = days
			return int64(len(days)), nil
		},
	}
	locks := &mockRangeLockRepository{}
	svc := NewLedgerService(repo, locks, testConfig())

	err := svc.Reserve(context.Background(), "deluxe", stayDay(0), stayDay(3), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reservedDays) != 3 {
		t.Errorf("expected 3 nights reserved, got %d", len(reservedDays))
	}
	if locks.acquireCalls != 1 || locks.releaseCalls != 1 {
		t.Errorf("expected one acquire and one release, got %d/%d", locks.acquireCalls, locks.releaseCalls)
	}
}

func TestLedgerReserveIn_JoinsCallerSession(t *testing.T) {
	var reservedDays []time.Time
	repo := &mockInventoryRepository{
		findRangeFunc: func(ctx context.Context, roomTypeID string, start, end time.Time) ([]*model.InventoryDay, error) {
			return configuredRange(roomTypeID, start, end, 10, 4), nil
		},
		reserveRangeFunc: func(ctx context.Context, roomTypeID string, days []time.Time, rooms int) (int64, error) {
			reservedDays = days
			return int64(len(days)), nil
		},
	}
	locks := &mockRangeLockRepository{}
	svc := NewLedgerService(repo, locks, testConfig())

	// A caller spans its own transaction over the reservation; the ledger
	// only contributes the guarded update and the capacity check.
	err := svc.WithLock(context.Background(), "deluxe", func() error {
		return svc.ReserveIn(mongo.SessionContext(nil), "deluxe", stayDay(0), stayDay(3), 2)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reservedDays) != 3 {
		t.Errorf("expected 3 nights reserved, got %d", len(reservedDays))
	}
	if locks.acquireCalls != 1 || locks.releaseCalls != 1 {
		t.Errorf("expected one acquire and one release, got %d/%d", locks.acquireCalls, locks.releaseCalls)
	}
}

func TestLedgerReserve_CapacityConflictListsDates(t *testing.T) {
	reserveCalled := false
	repo := &mockInventoryRepository{
		findRangeFunc: func(ctx context.Context, roomTypeID string, start, end time.Time) ([]*model.InventoryDay, error) {
			rows := configuredRange(roomTypeID, start, end, 10, 4)
			rows[1].ReservedRooms = 9
			return rows, nil
		},
		reserveRangeFunc: func(ctx context.Context, roomTypeID string, days []time.Time, rooms int) (int64, error) {
			reserveCalled = true
			return int64(len(days)), nil
		},
	}
	svc := NewLedgerService(repo, &mockRangeLockRepository{}, testConfig())

	err := svc.Reserve(context.Background(), "deluxe", stayDay(0), stayDay(3), 2)
	if !apperrors.IsCode(err, apperrors.CodeCapacityConflict) {
		t.Fatalf("expected capacity conflict, got %v", err)
	}
	if reserveCalled {
		t.Error("reserve must not run once a conflict is found")
	}

	appErr := apperrors.AsAppError(err)
	dates, ok := appErr.Details["conflict_dates"].([]string)
	if !ok || len(dates) != 1 || dates[0] != "2026-06-02" {
		t.Errorf("expected conflict on 2026-06-02, got %v", appErr.Details["conflict_dates"])
	}
}

func TestLedgerReserve_MissingDayIsConflict(t *testing.T) {
	repo := &mockInventoryRepository{
		findRangeFunc: func(ctx context.Context, roomTypeID string, start, end time.Time) ([]*model.InventoryDay, error) {
			// Only the first two of three nights are configured.
			return configuredRange(roomTypeID, start, stayDay(2), 10, 0), nil
		},
	}
	svc := NewLedgerService(repo, &mockRangeLockRepository{}, testConfig())

	err := svc.Reserve(context.Background(), "deluxe", stayDay(0), stayDay(3), 1)
	if !apperrors.IsCode(err, apperrors.CodeCapacityConflict) {
		t.Fatalf("expected capacity conflict, got %v", err)
	}
}

func TestLedgerReserve_LockContention(t *testing.T) {
	locks := &mockRangeLockRepository{
		acquireFunc: func(ctx context.Context, key string, ttl time.Duration) error {
			return inventoryerrors.ErrLockHeld
		},
	}
	svc := NewLedgerService(&mockInventoryRepository{}, locks, testConfig())

	err := svc.Reserve(context.Background(), "deluxe", stayDay(0), stayDay(2), 1)
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if locks.acquireCalls != lockRetries+1 {
		t.Errorf("expected %d acquire attempts, got %d", lockRetries+1, locks.acquireCalls)
	}
}

func TestLedgerReserve_GuardShortfallAborts(t *testing.T) {
	repo := &mockInventoryRepository{
		findRangeFunc: func(ctx context.Context, roomTypeID string, start, end time.Time) ([]*model.InventoryDay, error) {
			return configuredRange(roomTypeID, start, end, 10, 0), nil
		},
		reserveRangeFunc: func(ctx context.Context, roomTypeID string, days []time.Time, rooms int) (int64, error) {
			return int64(len(days)) - 1, nil
		},
	}
	svc := NewLedgerService(repo, &mockRangeLockRepository{}, testConfig())

	err := svc.Reserve(context.Background(), "deluxe", stayDay(0), stayDay(3), 1)
	if !apperrors.IsCode(err, apperrors.CodeIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
}

func TestLedgerRelease_UnderflowAborts(t *testing.T) {
	repo := &mockInventoryRepository{
		releaseRangeFunc: func(ctx context.Context, roomTypeID string, days []time.Time, rooms int) (int64, error) {
			return 0, nil
		},
	}
	svc := NewLedgerService(repo, &mockRangeLockRepository{}, testConfig())

	err := svc.Release(context.Background(), "deluxe", stayDay(0), stayDay(2), 1)
	if !apperrors.IsCode(err, apperrors.CodeIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
}

func TestLedgerRelease_Success(t *testing.T) {
	var releasedRooms int
	repo := &mockInventoryRepository{
		releaseRangeFunc: func(ctx context.Context, roomTypeID string, days []time.Time, rooms int) (int64, error) {
			releasedRooms = rooms
			return int64(len(days)), nil
		},
	}
	svc := NewLedgerService(repo, &mockRangeLockRepository{}, testConfig())

	if err := svc.Release(context.Background(), "deluxe", stayDay(0), stayDay(2), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if releasedRooms != 3 {
		t.Errorf("released %d rooms, want 3", releasedRooms)
	}
}

func TestLedgerProbe(t *testing.T) {
	tests := []struct {
		name          string
		rows          func(roomTypeID string, start, end time.Time) []*model.InventoryDay
		rooms         int
		wantAvailable bool
		wantConflicts int
	}{
		{
			name: "all nights available",
			rows: func(roomTypeID string, start, end time.Time) []*model.InventoryDay {
				return configuredRange(roomTypeID, start, end, 5, 2)
			},
			rooms:         3,
			wantAvailable: true,
		},
		{
			name: "one night short",
			rows: func(roomTypeID string, start, end time.Time) []*model.InventoryDay {
				rows := configuredRange(roomTypeID, start, end, 5, 2)
				rows[0].ReservedRooms = 5
				return rows
			},
			rooms:         1,
			wantAvailable: false,
			wantConflicts: 1,
		},
		{
			name: "range not configured",
			rows: func(roomTypeID string, start, end time.Time) []*model.InventoryDay {
				return nil
			},
			rooms:         1,
			wantAvailable: false,
			wantConflicts: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockInventoryRepository{
				findRangeFunc: func(ctx context.Context, roomTypeID string, start, end time.Time) ([]*model.InventoryDay, error) {
					return tt.rows(roomTypeID, start, end), nil
				},
			}
			svc := NewLedgerService(repo, &mockRangeLockRepository{}, testConfig())

			availability, err := svc.Probe(context.Background(), "deluxe", stayDay(0), stayDay(2), tt.rooms)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if availability.Available != tt.wantAvailable {
				t.Errorf("available = %v, want %v", availability.Available, tt.wantAvailable)
			}
			if len(availability.ConflictDates) != tt.wantConflicts {
				t.Errorf("conflicts = %v, want %d dates", availability.ConflictDates, tt.wantConflicts)
			}
		})
	}
}

func TestLedgerProbeAny(t *testing.T) {
	// Two room types in range: "deluxe" is full, "standard" has space on
	// every night, so a no-preference probe finds availability.
	repo := &mockInventoryRepository{
		roomTypesInFunc: func(ctx context.Context, start, end time.Time) ([]string, error) {
			return []string{"deluxe", "standard"}, nil
		},
		findRangeFunc: func(ctx context.Context, roomTypeID string, start, end time.Time) ([]*model.InventoryDay, error) {
			if roomTypeID == "deluxe" {
				return configuredRange(roomTypeID, start, end, 3, 3), nil
			}
			return configuredRange(roomTypeID, start, end, 3, 1), nil
		},
	}
	svc := NewLedgerService(repo, &mockRangeLockRepository{}, testConfig())

	availability, err := svc.ProbeAny(context.Background(), stayDay(0), stayDay(2), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !availability.Available {
		t.Error("expected availability via the standard room type")
	}
}

func TestLedgerProbeAny_NoSingleTypeCoversRange(t *testing.T) {
	// Each room type has one full night; splitting the stay across types
	// does not count as available.
	repo := &mockInventoryRepository{
		roomTypesInFunc: func(ctx context.Context, start, end time.Time) ([]string, error) {
			return []string{"deluxe", "standard"}, nil
		},
		findRangeFunc: func(ctx context.Context, roomTypeID string, start, end time.Time) ([]*model.InventoryDay, error) {
			rows := configuredRange(roomTypeID, start, end, 2, 0)
			if roomTypeID == "deluxe" {
				rows[0].ReservedRooms = 2
			} else {
				rows[1].ReservedRooms = 2
			}
			return rows, nil
		},
	}
	svc := NewLedgerService(repo, &mockRangeLockRepository{}, testConfig())

	availability, err := svc.ProbeAny(context.Background(), stayDay(0), stayDay(2), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if availability.Available {
		t.Error("expected no single room type to cover the range")
	}
}

func TestLedgerSetCapacity_RejectsBelowReserved(t *testing.T) {
	repo := &mockInventoryRepository{
		findRangeFunc: func(ctx context.Context, roomTypeID string, start, end time.Time) ([]*model.InventoryDay, error) {
			return configuredRange(roomTypeID, start, end, 10, 6), nil
		},
	}
	svc := NewLedgerService(repo, &mockRangeLockRepository{}, testConfig())

	err := svc.SetCapacity(context.Background(), "deluxe", stayDay(0), stayDay(2), 4)
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLedgerSetCapacity_UpsertsEveryDay(t *testing.T) {
	var upserts int
	repo := &mockInventoryRepository{
		upsertCapacityFunc: func(ctx context.Context, roomTypeID string, date time.Time, totalRooms int) error {
			upserts++
			return nil
		},
	}
	svc := NewLedgerService(repo, &mockRangeLockRepository{}, testConfig())

	if err := svc.SetCapacity(context.Background(), "deluxe", stayDay(0), stayDay(5), 8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upserts != 5 {
		t.Errorf("expected 5 upserts, got %d", upserts)
	}
}

func TestLedgerValidation(t *testing.T) {
	svc := NewLedgerService(&mockInventoryRepository{}, &mockRangeLockRepository{}, testConfig())

	tests := []struct {
		name string
		call func() error
	}{
		{"empty room type", func() error {
			return svc.Reserve(context.Background(), "", stayDay(0), stayDay(2), 1)
		}},
		{"zero rooms", func() error {
			return svc.Reserve(context.Background(), "deluxe", stayDay(0), stayDay(2), 0)
		}},
		{"inverted range", func() error {
			return svc.Reserve(context.Background(), "deluxe", stayDay(2), stayDay(0), 1)
		}},
		{"too many rooms", func() error {
			return svc.Reserve(context.Background(), "deluxe", stayDay(0), stayDay(2), config.DefaultMaxRoomsPerBooking+1)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
				t.Errorf("expected invalid input, got %v", err)
			}
		})
	}
}
