package service

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	bookingsservice "innkeep/internal/bookings/service"
	ledger "innkeep/internal/inventory/service"
	rulesvalidator "innkeep/internal/rules/validator"
	waitlisterrors "innkeep/internal/waitlist/errors"
	"innkeep/pkg/client"
	"innkeep/pkg/config"
	mongotx "innkeep/pkg/db/mongo"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/events"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"
)

type mockWaitlistRepository struct {
	createFunc        func(ctx context.Context, entry *model.WaitlistEntry) error
	findByIDFunc      func(ctx context.Context, id string) (*model.WaitlistEntry, error)
	duplicateFunc     func(ctx context.Context, userID, roomTypeID string, start, end time.Time) (*model.WaitlistEntry, error)
	countAheadFunc    func(ctx context.Context, entry *model.WaitlistEntry) (int64, error)
	nextPendingFunc   func(ctx context.Context, roomTypeID string, start, end time.Time, excludeIDs []string) (*model.WaitlistEntry, error)
	markNotifiedFunc  func(ctx context.Context, id string, notifiedAt, expiresAt time.Time) (int64, error)
	markConvertedFunc func(ctx context.Context, id string, now time.Time) (int64, error)
	expireDueFunc     func(ctx context.Context, now time.Time) (int64, error)
}

func (m *mockWaitlistRepository) Create(ctx context.Context, entry *model.WaitlistEntry) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, entry)
	}
	entry.ID = "65f100000000000000000001"
	return nil
}

func (m *mockWaitlistRepository) FindByID(ctx context.Context, id string) (*model.WaitlistEntry, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, waitlisterrors.ErrNotFound
}

func (m *mockWaitlistRepository) FindByUser(ctx context.Context, userID string, limit int, offset int64) ([]*model.WaitlistEntry, int64, error) {
	return nil, 0, nil
}

func (m *mockWaitlistRepository) FindActiveDuplicate(ctx context.Context, userID, roomTypeID string, start, end time.Time) (*model.WaitlistEntry, error) {
	if m.duplicateFunc != nil {
		return m.duplicateFunc(ctx, userID, roomTypeID, start, end)
	}
	return nil, waitlisterrors.ErrNotFound
}

func (m *mockWaitlistRepository) CountAhead(ctx context.Context, entry *model.WaitlistEntry) (int64, error) {
	if m.countAheadFunc != nil {
		return m.countAheadFunc(ctx, entry)
	}
	return 0, nil
}

func (m *mockWaitlistRepository) NextPending(ctx context.Context, roomTypeID string, start, end time.Time, excludeIDs []string) (*model.WaitlistEntry, error) {
	if m.nextPendingFunc != nil {
		return m.nextPendingFunc(ctx, roomTypeID, start, end, excludeIDs)
	}
	return nil, waitlisterrors.ErrNotFound
}

func (m *mockWaitlistRepository) MarkNotified(ctx context.Context, id string, notifiedAt, expiresAt time.Time) (int64, error) {
	if m.markNotifiedFunc != nil {
		return m.markNotifiedFunc(ctx, id, notifiedAt, expiresAt)
	}
	return 1, nil
}

func (m *mockWaitlistRepository) MarkConverted(ctx context.Context, id string, now time.Time) (int64, error) {
	if m.markConvertedFunc != nil {
		return m.markConvertedFunc(ctx, id, now)
	}
	return 1, nil
}

func (m *mockWaitlistRepository) MarkExpiredByUser(ctx context.Context, id, userID string) (int64, error) {
	return 1, nil
}

func (m *mockWaitlistRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	if m.expireDueFunc != nil {
		return m.expireDueFunc(ctx, now)
	}
	return 0, nil
}

func (m *mockWaitlistRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(nil)
}

type probeLedger struct {
	availability *ledger.Availability
	probeFunc    func(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) (*ledger.Availability, error)
}

func (p *probeLedger) Reserve(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) error {
	return nil
}

func (p *probeLedger) Release(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) error {
	return nil
}

func (p *probeLedger) ReserveIn(sessCtx mongo.SessionContext, roomTypeID string, start, end time.Time, rooms int) error {
	return nil
}

func (p *probeLedger) ReleaseIn(sessCtx mongo.SessionContext, roomTypeID string, start, end time.Time, rooms int) error {
	return nil
}

func (p *probeLedger) WithLock(ctx context.Context, roomTypeID string, fn func() error) error {
	return fn()
}

func (p *probeLedger) Probe(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) (*ledger.Availability, error) {
	if p.probeFunc != nil {
		return p.probeFunc(ctx, roomTypeID, start, end, rooms)
	}
	if p.availability != nil {
		return p.availability, nil
	}
	return &ledger.Availability{Available: false, ConflictDates: []string{"2026-06-02"}}, nil
}

func (p *probeLedger) ProbeAny(ctx context.Context, start, end time.Time, rooms int) (*ledger.Availability, error) {
	if p.availability != nil {
		return p.availability, nil
	}
	return &ledger.Availability{Available: false}, nil
}

func (p *probeLedger) SetCapacity(ctx context.Context, roomTypeID string, start, end time.Time, totalRooms int) error {
	return nil
}

type mockBookingGateway struct {
	createFunc  func(ctx context.Context, req *bookingsservice.CreateBookingRequest) (*model.Booking, *rulesvalidator.Decision, error)
	failedIDs   []string
	createCalls int
}

func (m *mockBookingGateway) Create(ctx context.Context, req *bookingsservice.CreateBookingRequest) (*model.Booking, *rulesvalidator.Decision, error) {
	m.createCalls++
	if m.createFunc != nil {
		return m.createFunc(ctx, req)
	}
	return &model.Booking{
		ID:          "65f000000000000000000009",
		UserID:      req.UserID,
		RoomTypeID:  req.RoomTypeID,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		RoomsBooked: req.Rooms,
		Status:      model.BookingProvisional,
	}, &rulesvalidator.Decision{Valid: true}, nil
}

func (m *mockBookingGateway) FailPayment(ctx context.Context, id string) error {
	m.failedIDs = append(m.failedIDs, id)
	return nil
}

type dispatchedEvent struct {
	eventType string
	entityID  string
}

type recordingDispatcher struct {
	events []dispatchedEvent
}

func (d *recordingDispatcher) Dispatch(eventType, entityID, actor string, payload any) {
	d.events = append(d.events, dispatchedEvent{eventType, entityID})
}

type fixture struct {
	repo       *mockWaitlistRepository
	ledger     *probeLedger
	bookings   *mockBookingGateway
	dispatcher *recordingDispatcher
	svc        WaitlistService
}

func newFixture(repo *mockWaitlistRepository) *fixture {
	cfg := &config.Config{
		WaitlistHoldWindow: 24 * time.Hour,
		Log:                logger.New(logger.Config{Level: logger.ERROR}),
	}
	ledgerMock := &probeLedger{}
	bookings := &mockBookingGateway{}
	dispatcher := &recordingDispatcher{}

	svc := NewWaitlistService(repo, ledgerMock, bookings, client.StaticGuestResolver{}, dispatcher, cfg)
	return &fixture{
		repo:       repo,
		ledger:     ledgerMock,
		bookings:   bookings,
		dispatcher: dispatcher,
		svc:        svc,
	}
}

func queueDay(offset int) time.Time {
	return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func joinRequest() *JoinRequest {
	return &JoinRequest{
		UserID:     "user-1",
		RoomTypeID: "deluxe",
		StartDate:  queueDay(0),
		EndDate:    queueDay(3),
		Guests:     2,
		Rooms:      1,
	}
}

func notifiedEntry(expiresAt time.Time) *model.WaitlistEntry {
	return &model.WaitlistEntry{
		ID:         "65f100000000000000000001",
		UserID:     "user-1",
		RoomTypeID: "deluxe",
		StartDate:  queueDay(0),
		EndDate:    queueDay(3),
		Guests:     2,
		GuestType:  model.GuestRegular,
		Status:     model.WaitlistNotified,
		ExpiresAt:  expiresAt,
	}
}

func TestWaitlistJoin_Success(t *testing.T) {
	f := newFixture(&mockWaitlistRepository{})

	entry, err := f.svc.Join(context.Background(), joinRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != model.WaitlistPending {
		t.Errorf("status = %s, want PENDING", entry.Status)
	}
	if entry.GuestType != model.GuestRegular {
		t.Errorf("guest type = %s, want REGULAR", entry.GuestType)
	}
}

func TestWaitlistJoin_RejectedWhenRoomsAvailable(t *testing.T) {
	f := newFixture(&mockWaitlistRepository{})
	f.ledger.availability = &ledger.Availability{Available: true}

	_, err := f.svc.Join(context.Background(), joinRequest())
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestWaitlistJoin_AnyRoomType(t *testing.T) {
	f := newFixture(&mockWaitlistRepository{})

	req := joinRequest()
	req.RoomTypeID = ""
	entry, err := f.svc.Join(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.RoomTypeID != "" {
		t.Errorf("room type = %q, want any", entry.RoomTypeID)
	}
}

func TestWaitlistJoin_AnyRoomTypeRejectedWhenSomeTypeFree(t *testing.T) {
	f := newFixture(&mockWaitlistRepository{})
	f.ledger.availability = &ledger.Availability{Available: true}

	req := joinRequest()
	req.RoomTypeID = ""
	_, err := f.svc.Join(context.Background(), req)
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestWaitlistJoin_DuplicateRejected(t *testing.T) {
	repo := &mockWaitlistRepository{
		duplicateFunc: func(ctx context.Context, userID, roomTypeID string, start, end time.Time) (*model.WaitlistEntry, error) {
			return notifiedEntry(time.Now().Add(time.Hour)), nil
		},
	}
	f := newFixture(repo)

	_, err := f.svc.Join(context.Background(), joinRequest())
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestWaitlistPosition(t *testing.T) {
	repo := &mockWaitlistRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.WaitlistEntry, error) {
			entry := notifiedEntry(time.Time{})
			entry.Status = model.WaitlistPending
			return entry, nil
		},
		countAheadFunc: func(ctx context.Context, entry *model.WaitlistEntry) (int64, error) {
			return 4, nil
		},
	}
	f := newFixture(repo)

	position, err := f.svc.Position(context.Background(), "65f100000000000000000001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if position != 5 {
		t.Errorf("position = %d, want 5", position)
	}
}

func TestWaitlistPosition_NonPendingRejected(t *testing.T) {
	repo := &mockWaitlistRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.WaitlistEntry, error) {
			return notifiedEntry(time.Now().Add(time.Hour)), nil
		},
	}
	f := newFixture(repo)

	_, err := f.svc.Position(context.Background(), "65f100000000000000000001")
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestWaitlistConvert_Success(t *testing.T) {
	repo := &mockWaitlistRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.WaitlistEntry, error) {
			return notifiedEntry(time.Now().Add(time.Hour)), nil
		},
	}
	f := newFixture(repo)

	booking, err := f.svc.Convert(context.Background(), "65f100000000000000000001", 1, 30000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.Status != model.BookingProvisional {
		t.Errorf("status = %s, want PROVISIONAL", booking.Status)
	}
	if f.bookings.createCalls != 1 {
		t.Errorf("create calls = %d, want 1", f.bookings.createCalls)
	}
	if len(f.bookings.failedIDs) != 0 {
		t.Error("no unwind expected on a clean conversion")
	}
}

func TestWaitlistConvert_ExpiredHoldRejected(t *testing.T) {
	repo := &mockWaitlistRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.WaitlistEntry, error) {
			return notifiedEntry(time.Now().Add(-time.Minute)), nil
		},
	}
	f := newFixture(repo)

	_, err := f.svc.Convert(context.Background(), "65f100000000000000000001", 1, 30000)
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if f.bookings.createCalls != 0 {
		t.Error("no booking may be created for an expired hold")
	}
}

func TestWaitlistConvert_PendingEntryRejected(t *testing.T) {
	repo := &mockWaitlistRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.WaitlistEntry, error) {
			entry := notifiedEntry(time.Time{})
			entry.Status = model.WaitlistPending
			return entry, nil
		},
	}
	f := newFixture(repo)

	_, err := f.svc.Convert(context.Background(), "65f100000000000000000001", 1, 30000)
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestWaitlistConvert_LostRaceUnwindsBooking(t *testing.T) {
	repo := &mockWaitlistRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.WaitlistEntry, error) {
			return notifiedEntry(time.Now().Add(time.Hour)), nil
		},
		markConvertedFunc: func(ctx context.Context, id string, now time.Time) (int64, error) {
			return 0, nil
		},
	}
	f := newFixture(repo)

	_, err := f.svc.Convert(context.Background(), "65f100000000000000000001", 1, 30000)
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(f.bookings.failedIDs) != 1 || f.bookings.failedIDs[0] != "65f000000000000000000009" {
		t.Errorf("expected the fresh booking to be unwound, got %v", f.bookings.failedIDs)
	}
}

func TestWaitlistNotifyFreed_PromotesFIFO(t *testing.T) {
	queue := []*model.WaitlistEntry{
		notifiedEntry(time.Time{}),
		notifiedEntry(time.Time{}),
		notifiedEntry(time.Time{}),
	}
	for i, e := range queue {
		e.Status = model.WaitlistPending
		e.ID = e.ID[:len(e.ID)-1] + string(rune('1'+i))
	}

	next := 0
	repo := &mockWaitlistRepository{
		nextPendingFunc: func(ctx context.Context, roomTypeID string, start, end time.Time, excludeIDs []string) (*model.WaitlistEntry, error) {
			if next >= len(queue) {
				return nil, waitlisterrors.ErrNotFound
			}
			entry := queue[next]
			next++
			return entry, nil
		},
	}
	f := newFixture(repo)
	f.ledger.availability = &ledger.Availability{Available: true}

	notified, err := f.svc.NotifyFreed(context.Background(), events.InventoryFreed{
		RoomTypeID: "deluxe",
		StartDate:  queueDay(0),
		EndDate:    queueDay(3),
		Rooms:      2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notified != 2 {
		t.Errorf("notified = %d, want 2 (one hold per freed room)", notified)
	}
	if len(f.dispatcher.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(f.dispatcher.events))
	}
	for _, e := range f.dispatcher.events {
		if e.eventType != events.TypeWaitlistNotified {
			t.Errorf("unexpected event type %s", e.eventType)
		}
	}
}

func TestWaitlistNotifyFreed_SkipsRacedEntries(t *testing.T) {
	entries := []*model.WaitlistEntry{
		notifiedEntry(time.Time{}),
		notifiedEntry(time.Time{}),
	}
	for i, e := range entries {
		e.Status = model.WaitlistPending
		e.ID = e.ID[:len(e.ID)-1] + string(rune('1'+i))
	}

	next := 0
	repo := &mockWaitlistRepository{
		nextPendingFunc: func(ctx context.Context, roomTypeID string, start, end time.Time, excludeIDs []string) (*model.WaitlistEntry, error) {
			if next >= len(entries) {
				return nil, waitlisterrors.ErrNotFound
			}
			entry := entries[next]
			next++
			return entry, nil
		},
		markNotifiedFunc: func(ctx context.Context, id string, notifiedAt, expiresAt time.Time) (int64, error) {
			// First entry was cancelled between the read and the update.
			if id == entries[0].ID {
				return 0, nil
			}
			return 1, nil
		},
	}
	f := newFixture(repo)
	f.ledger.availability = &ledger.Availability{Available: true}

	notified, err := f.svc.NotifyFreed(context.Background(), events.InventoryFreed{
		RoomTypeID: "deluxe",
		StartDate:  queueDay(0),
		EndDate:    queueDay(3),
		Rooms:      1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notified != 1 {
		t.Errorf("notified = %d, want 1", notified)
	}
}

func TestWaitlistNotifyFreed_SkipsEntriesStillBlocked(t *testing.T) {
	// The first entry in line wants ten nights; only three were freed and the
	// rest are still sold out. Its hold could never convert, so the freed
	// room goes to the next entry whose whole range is open.
	blocked := notifiedEntry(time.Time{})
	blocked.Status = model.WaitlistPending
	blocked.EndDate = queueDay(10)

	open := notifiedEntry(time.Time{})
	open.Status = model.WaitlistPending
	open.ID = "65f100000000000000000002"

	entries := []*model.WaitlistEntry{blocked, open}
	repo := &mockWaitlistRepository{
		nextPendingFunc: func(ctx context.Context, roomTypeID string, start, end time.Time, excludeIDs []string) (*model.WaitlistEntry, error) {
			for _, entry := range entries {
				excluded := false
				for _, id := range excludeIDs {
					if id == entry.ID {
						excluded = true
						break
					}
				}
				if !excluded {
					return entry, nil
				}
			}
			return nil, waitlisterrors.ErrNotFound
		},
	}
	f := newFixture(repo)
	f.ledger.probeFunc = func(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) (*ledger.Availability, error) {
		if end.Equal(queueDay(10)) {
			return &ledger.Availability{Available: false, ConflictDates: []string{"2026-06-05"}}, nil
		}
		return &ledger.Availability{Available: true}, nil
	}

	notified, err := f.svc.NotifyFreed(context.Background(), events.InventoryFreed{
		RoomTypeID: "deluxe",
		StartDate:  queueDay(0),
		EndDate:    queueDay(3),
		Rooms:      1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notified != 1 {
		t.Fatalf("notified = %d, want 1", notified)
	}
	if len(f.dispatcher.events) != 1 || f.dispatcher.events[0].entityID != open.ID {
		t.Errorf("expected the open entry to be notified, got %+v", f.dispatcher.events)
	}
}

func TestWaitlistExpireDue(t *testing.T) {
	repo := &mockWaitlistRepository{
		expireDueFunc: func(ctx context.Context, now time.Time) (int64, error) {
			return 3, nil
		},
	}
	f := newFixture(repo)

	expired, err := f.svc.ExpireDue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expired != 3 {
		t.Errorf("expired = %d, want 3", expired)
	}
}
