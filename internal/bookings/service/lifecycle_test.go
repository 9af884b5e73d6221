package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	bookingserrors "innkeep/internal/bookings/errors"
	"innkeep/internal/bookings/repository"
	ledger "innkeep/internal/inventory/service"
	ruleserrors "innkeep/internal/rules/errors"
	rulesvalidator "innkeep/internal/rules/validator"
	"innkeep/pkg/client"
	"innkeep/pkg/config"
	mongotx "innkeep/pkg/db/mongo"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/events"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"
)

type mockBookingRepository struct {
	createFunc   func(ctx context.Context, booking *model.Booking) error
	findByIDFunc func(ctx context.Context, id string) (*model.Booking, error)
	confirmFunc  func(ctx context.Context, id, actor string, paidAmount int64) (int64, error)
	cancelFunc   func(ctx context.Context, id, actor string, at time.Time) (int64, error)
	completeFunc func(ctx context.Context, id string, now time.Time) (int64, error)
	dueFunc      func(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error)
	inTx         bool
	txAborted    bool
}

func (m *mockBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, booking)
	}
	booking.ID = "65f000000000000000000001"
	return nil
}

func (m *mockBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, bookingserrors.ErrNotFound
}

func (m *mockBookingRepository) FindAll(ctx context.Context, filter repository.BookingFilter, limit int, offset int64) ([]*model.Booking, error) {
	return nil, nil
}

func (m *mockBookingRepository) Count(ctx context.Context, filter repository.BookingFilter) (int64, error) {
	return 0, nil
}

func (m *mockBookingRepository) Confirm(ctx context.Context, id, actor string, paidAmount int64) (int64, error) {
	if m.confirmFunc != nil {
		return m.confirmFunc(ctx, id, actor, paidAmount)
	}
	return 1, nil
}

func (m *mockBookingRepository) Cancel(ctx context.Context, id, actor string, at time.Time) (int64, error) {
	if m.cancelFunc != nil {
		return m.cancelFunc(ctx, id, actor, at)
	}
	return 1, nil
}

func (m *mockBookingRepository) Complete(ctx context.Context, id string, now time.Time) (int64, error) {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, id, now)
	}
	return 1, nil
}

func (m *mockBookingRepository) FindDueCompletion(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error) {
	if m.dueFunc != nil {
		return m.dueFunc(ctx, now, limit)
	}
	return nil, nil
}

func (m *mockBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	m.inTx = true
	err := fn(mongo.SessionContext(nil))
	m.inTx = false
	if err != nil {
		m.txAborted = true
	}
	return err
}

type mockPaymentRepository struct {
	records []*model.PaymentRecord
	fail    error
}

func (m *mockPaymentRepository) Record(ctx context.Context, record *model.PaymentRecord) error {
	if m.fail != nil {
		return m.fail
	}
	m.records = append(m.records, record)
	return nil
}

func (m *mockPaymentRepository) FindByBooking(ctx context.Context, bookingID string) ([]*model.PaymentRecord, error) {
	return m.records, nil
}

type mockLedger struct {
	reserveFunc  func(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) error
	releaseFunc  func(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) error
	reserveCalls int
	releaseCalls int
	lockCalls    int
}

func (m *mockLedger) Reserve(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) error {
	m.reserveCalls++
	if m.reserveFunc != nil {
		return m.reserveFunc(ctx, roomTypeID, start, end, rooms)
	}
	return nil
}

func (m *mockLedger) Release(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) error {
	m.releaseCalls++
	if m.releaseFunc != nil {
		return m.releaseFunc(ctx, roomTypeID, start, end, rooms)
	}
	return nil
}

func (m *mockLedger) ReserveIn(sessCtx mongo.SessionContext, roomTypeID string, start, end time.Time, rooms int) error {
	m.reserveCalls++
	if m.reserveFunc != nil {
		return m.reserveFunc(sessCtx, roomTypeID, start, end, rooms)
	}
	return nil
}

func (m *mockLedger) ReleaseIn(sessCtx mongo.SessionContext, roomTypeID string, start, end time.Time, rooms int) error {
	m.releaseCalls++
	if m.releaseFunc != nil {
		return m.releaseFunc(sessCtx, roomTypeID, start, end, rooms)
	}
	return nil
}

func (m *mockLedger) WithLock(ctx context.Context, roomTypeID string, fn func() error) error {
	m.lockCalls++
	return fn()
}

func (m *mockLedger) Probe(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) (*ledger.Availability, error) {
	return &ledger.Availability{Available: true}, nil
}

func (m *mockLedger) ProbeAny(ctx context.Context, start, end time.Time, rooms int) (*ledger.Availability, error) {
	return &ledger.Availability{Available: true}, nil
}

func (m *mockLedger) SetCapacity(ctx context.Context, roomTypeID string, start, end time.Time, totalRooms int) error {
	return nil
}

type openPolicyRepository struct{}

func (openPolicyRepository) RuleSetFor(ctx context.Context, guestType string) (*model.RuleSet, error) {
	ruleSet, ok := model.DefaultRuleSets()[guestType]
	if !ok {
		return nil, ruleserrors.ErrRuleSetNotFound
	}
	return &ruleSet, nil
}

func (openPolicyRepository) DepositPolicyFor(ctx context.Context, rooms int) (*model.DepositPolicy, error) {
	return nil, ruleserrors.ErrNoDepositPolicy
}

func (openPolicyRepository) SpecialDaysIn(ctx context.Context, roomTypeID string, start, end time.Time) ([]*model.SpecialDay, error) {
	return nil, nil
}

type dispatchedEvent struct {
	eventType string
	entityID  string
	actor     string
	payload   any
}

type recordingDispatcher struct {
	events []dispatchedEvent
}

func (d *recordingDispatcher) Dispatch(eventType, entityID, actor string, payload any) {
	d.events = append(d.events, dispatchedEvent{eventType, entityID, actor, payload})
}

func (d *recordingDispatcher) has(eventType string) bool {
	for _, e := range d.events {
		if e.eventType == eventType {
			return true
		}
	}
	return false
}

type fixture struct {
	repo       *mockBookingRepository
	payments   *mockPaymentRepository
	ledger     *mockLedger
	dispatcher *recordingDispatcher
	svc        LifecycleService
}

func newFixture(t *testing.T, repo *mockBookingRepository, ledgerMock *mockLedger) *fixture {
	t.Helper()

	log := logger.New(logger.Config{Level: logger.ERROR})
	tiers, err := config.ParseRefundTiers(config.DefaultRefundTiers)
	if err != nil {
		t.Fatalf("failed to parse tiers: %v", err)
	}
	cfg := &config.Config{RefundTiers: tiers, Log: log}

	payments := &mockPaymentRepository{}
	dispatcher := &recordingDispatcher{}
	validator := rulesvalidator.NewStayValidator(openPolicyRepository{}, log)
	guests := client.StaticGuestResolver{"vip-user": model.GuestVIP}

	svc := NewLifecycleService(repo, payments, ledgerMock, validator, guests,
		NewRefundCalculator(tiers), dispatcher, cfg)

	return &fixture{
		repo:       repo,
		payments:   payments,
		ledger:     ledgerMock,
		dispatcher: dispatcher,
		svc:        svc,
	}
}

func futureDay(offset int) time.Time {
	return model.Day(time.Now().AddDate(0, 0, offset))
}

func createRequest() *CreateBookingRequest {
	return &CreateBookingRequest{
		UserID:     "user-1",
		RoomTypeID: "deluxe",
		StartDate:  futureDay(14),
		EndDate:    futureDay(17),
		Rooms:      2,
		TotalPrice: 60000,
	}
}

func activeBooking(status string) *model.Booking {
	return &model.Booking{
		ID:          "65f000000000000000000001",
		UserID:      "user-1",
		RoomTypeID:  "deluxe",
		StartDate:   futureDay(14),
		EndDate:     futureDay(17),
		RoomsBooked: 2,
		GuestType:   model.GuestRegular,
		Status:      status,
		TotalPrice:  60000,
		PaidAmount:  60000,
	}
}

func TestLifecycleCreate_Success(t *testing.T) {
	f := newFixture(t, &mockBookingRepository{}, &mockLedger{})

	booking, decision, err := f.svc.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.Status != model.BookingProvisional {
		t.Errorf("status = %s, want PROVISIONAL", booking.Status)
	}
	if booking.GuestType != model.GuestRegular {
		t.Errorf("guest type = %s, want REGULAR (resolver default)", booking.GuestType)
	}
	if !decision.Valid {
		t.Errorf("expected valid decision, got %v", decision.Errors)
	}
	if f.ledger.reserveCalls != 1 {
		t.Errorf("reserve calls = %d, want 1", f.ledger.reserveCalls)
	}
	if !f.dispatcher.has(events.TypeBookingCreated) {
		t.Error("expected booking.created event")
	}
}

func TestLifecycleCreate_RuleViolationSkipsLedger(t *testing.T) {
	f := newFixture(t, &mockBookingRepository{}, &mockLedger{})

	req := createRequest()
	req.StartDate = futureDay(-2)
	req.EndDate = futureDay(1)

	_, decision, err := f.svc.Create(context.Background(), req)
	if !apperrors.IsCode(err, apperrors.CodePolicyViolation) {
		t.Fatalf("expected policy violation, got %v", err)
	}
	if decision == nil || decision.Valid {
		t.Error("expected invalid decision alongside the error")
	}
	if f.ledger.reserveCalls != 0 {
		t.Error("ledger must not be touched for an invalid stay")
	}
}

func TestLifecycleCreate_CapacityConflictPropagates(t *testing.T) {
	createCalled := false
	repo := &mockBookingRepository{
		createFunc: func(ctx context.Context, booking *model.Booking) error {
			createCalled = true
			return nil
		},
	}
	ledgerMock := &mockLedger{
		reserveFunc: func(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) error {
			return apperrors.CapacityConflict("Not enough rooms available for the requested dates", []string{"2026-06-02"})
		},
	}
	f := newFixture(t, repo, ledgerMock)

	_, _, err := f.svc.Create(context.Background(), createRequest())
	if !apperrors.IsCode(err, apperrors.CodeCapacityConflict) {
		t.Fatalf("expected capacity conflict, got %v", err)
	}
	if createCalled {
		t.Error("booking must not be inserted when the reservation fails")
	}
}

func TestLifecycleCreate_ReservesAndInsertsInOneTransaction(t *testing.T) {
	var reservedInTx, insertedInTx bool
	repo := &mockBookingRepository{}
	repo.createFunc = func(ctx context.Context, booking *model.Booking) error {
		insertedInTx = repo.inTx
		booking.ID = "65f000000000000000000001"
		return nil
	}
	ledgerMock := &mockLedger{
		reserveFunc: func(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) error {
			reservedInTx = repo.inTx
			return nil
		},
	}
	f := newFixture(t, repo, ledgerMock)

	if _, _, err := f.svc.Create(context.Background(), createRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reservedInTx || !insertedInTx {
		t.Errorf("reservation and insert must share one transaction, got reserve=%v insert=%v",
			reservedInTx, insertedInTx)
	}
	if f.ledger.lockCalls != 1 {
		t.Errorf("lock calls = %d, want 1", f.ledger.lockCalls)
	}
}

func TestLifecycleCreate_InsertFailureAbortsReservation(t *testing.T) {
	repo := &mockBookingRepository{
		createFunc: func(ctx context.Context, booking *model.Booking) error {
			return errors.New("write concern error")
		},
	}
	f := newFixture(t, repo, &mockLedger{})

	_, _, err := f.svc.Create(context.Background(), createRequest())
	if !apperrors.IsCode(err, apperrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if !f.repo.txAborted {
		t.Error("the failed insert must abort the shared transaction")
	}
	// The aborted transaction takes the reservation down with it; there is
	// nothing left to compensate.
	if f.ledger.releaseCalls != 0 {
		t.Errorf("release calls = %d, want 0", f.ledger.releaseCalls)
	}
}

func TestLifecycleConfirm_Success(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			b := activeBooking(model.BookingProvisional)
			b.PaidAmount = 0
			return b, nil
		},
	}
	f := newFixture(t, repo, &mockLedger{})

	booking, err := f.svc.Confirm(context.Background(), "65f000000000000000000001", "payment-gateway", 60000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.Status != model.BookingConfirmed {
		t.Errorf("status = %s, want CONFIRMED", booking.Status)
	}
	if len(f.payments.records) != 1 || f.payments.records[0].Kind != model.PaymentSettlement {
		t.Fatalf("expected one settlement record, got %+v", f.payments.records)
	}
	if !f.dispatcher.has(events.TypeBookingConfirmed) {
		t.Error("expected booking.confirmed event")
	}
}

func TestLifecycleConfirm_BelowDeposit(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			b := activeBooking(model.BookingProvisional)
			b.DepositAmount = 20000
			return b, nil
		},
	}
	f := newFixture(t, repo, &mockLedger{})

	_, err := f.svc.Confirm(context.Background(), "65f000000000000000000001", "payment-gateway", 10000)
	if !apperrors.IsCode(err, apperrors.CodePolicyViolation) {
		t.Fatalf("expected policy violation, got %v", err)
	}
	if len(f.payments.records) != 0 {
		t.Error("no payment may be recorded for a rejected confirmation")
	}
}

func TestLifecycleConfirm_NotProvisional(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return activeBooking(model.BookingConfirmed), nil
		},
		confirmFunc: func(ctx context.Context, id, actor string, paidAmount int64) (int64, error) {
			return 0, nil
		},
	}
	f := newFixture(t, repo, &mockLedger{})

	_, err := f.svc.Confirm(context.Background(), "65f000000000000000000001", "payment-gateway", 60000)
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLifecycleCancel_RefundAndRelease(t *testing.T) {
	booking := activeBooking(model.BookingConfirmed)
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			copied := *booking
			return &copied, nil
		},
	}
	var releasedInTx bool
	ledgerMock := &mockLedger{
		releaseFunc: func(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) error {
			releasedInTx = repo.inTx
			return nil
		},
	}
	f := newFixture(t, repo, ledgerMock)

	result, err := f.svc.Cancel(context.Background(), "65f000000000000000000001", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Booking.Status != model.BookingCancelled {
		t.Errorf("status = %s, want CANCELLED", result.Booking.Status)
	}
	// Start is 14 days out, so the most generous tier applies.
	if result.Refund.FeePercent != 0 || result.Refund.RefundAmount != 60000 {
		t.Errorf("unexpected refund: %+v", result.Refund)
	}
	if f.ledger.releaseCalls != 1 {
		t.Errorf("release calls = %d, want 1", f.ledger.releaseCalls)
	}
	if !releasedInTx {
		t.Error("the release must commit with the status flip and the refund")
	}
	if len(f.payments.records) != 1 {
		t.Fatalf("expected one refund record, got %d", len(f.payments.records))
	}
	refund := f.payments.records[0]
	if refund.Kind != model.PaymentRefund || refund.Amount != -60000 {
		t.Errorf("unexpected refund record: %+v", refund)
	}
	if !f.dispatcher.has(events.TypeBookingCancelled) {
		t.Error("expected booking.cancelled event")
	}
}

func TestLifecycleCancel_ReleaseFailureAbortsCancellation(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return activeBooking(model.BookingConfirmed), nil
		},
	}
	ledgerMock := &mockLedger{
		releaseFunc: func(ctx context.Context, roomTypeID string, start, end time.Time, rooms int) error {
			return apperrors.Integrity("release touched 0 of 3 days", errors.New("underflow"))
		},
	}
	f := newFixture(t, repo, ledgerMock)

	_, err := f.svc.Cancel(context.Background(), "65f000000000000000000001", "user-1")
	if !apperrors.IsCode(err, apperrors.CodeIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
	// The transaction rolls back the status flip and the refund record, so
	// the booking never ends up terminal while its rooms stay held.
	if !f.repo.txAborted {
		t.Error("a failed release must abort the cancellation transaction")
	}
	if f.dispatcher.has(events.TypeBookingCancelled) {
		t.Error("no cancellation event may be published for an aborted cancel")
	}
}

func TestLifecycleCancel_TerminalBookingRejected(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return activeBooking(model.BookingCancelled), nil
		},
	}
	f := newFixture(t, repo, &mockLedger{})

	_, err := f.svc.Cancel(context.Background(), "65f000000000000000000001", "user-1")
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if f.ledger.releaseCalls != 0 {
		t.Error("inventory must not be released twice")
	}
	if len(f.payments.records) != 0 {
		t.Error("no second refund may be recorded")
	}
}

func TestLifecycleCancel_RacedTransitionAborts(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return activeBooking(model.BookingConfirmed), nil
		},
		cancelFunc: func(ctx context.Context, id, actor string, at time.Time) (int64, error) {
			return 0, nil
		},
	}
	f := newFixture(t, repo, &mockLedger{})

	_, err := f.svc.Cancel(context.Background(), "65f000000000000000000001", "user-1")
	if !apperrors.IsCode(err, apperrors.CodeIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if f.ledger.releaseCalls != 0 {
		t.Error("inventory must not be released for an aborted cancellation")
	}
}

func TestLifecycleFailPayment_ReleasesWithoutRefund(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			b := activeBooking(model.BookingProvisional)
			b.PaidAmount = 0
			return b, nil
		},
	}
	f := newFixture(t, repo, &mockLedger{})

	if err := f.svc.FailPayment(context.Background(), "65f000000000000000000001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ledger.releaseCalls != 1 {
		t.Errorf("release calls = %d, want 1", f.ledger.releaseCalls)
	}
	if len(f.payments.records) != 0 {
		t.Error("a failed payment must not produce a refund record")
	}
}

func TestLifecycleComplete_DueSweep(t *testing.T) {
	due := []*model.Booking{
		activeBooking(model.BookingConfirmed),
		activeBooking(model.BookingConfirmed),
	}
	due[1].ID = "65f000000000000000000002"

	completed := map[string]bool{}
	repo := &mockBookingRepository{
		dueFunc: func(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error) {
			return due, nil
		},
		completeFunc: func(ctx context.Context, id string, now time.Time) (int64, error) {
			completed[id] = true
			return 1, nil
		},
	}
	f := newFixture(t, repo, &mockLedger{})

	n, err := f.svc.CompleteDue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 || len(completed) != 2 {
		t.Errorf("completed %d bookings, want 2", n)
	}
	if !f.dispatcher.has(events.TypeBookingCompleted) {
		t.Error("expected booking.completed events")
	}
}

func TestLifecycleRefundQuote_TerminalRejected(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return activeBooking(model.BookingCompleted), nil
		},
	}
	f := newFixture(t, repo, &mockLedger{})

	_, err := f.svc.RefundQuote(context.Background(), "65f000000000000000000001", time.Now())
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
