package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	bookingsrepository "innkeep/internal/bookings/repository"
	bookingsservice "innkeep/internal/bookings/service"
	inventoryrepository "innkeep/internal/inventory/repository"
	inventoryservice "innkeep/internal/inventory/service"
	rulesrepository "innkeep/internal/rules/repository"
	rulesvalidator "innkeep/internal/rules/validator"
	waitlistrepository "innkeep/internal/waitlist/repository"
	waitlistservice "innkeep/internal/waitlist/service"
	"innkeep/pkg/client"
	"innkeep/pkg/config"
	"innkeep/pkg/events"
	"innkeep/pkg/notify"
)

const (
	ServiceName     = "sweeper"
	ConsumerGroupID = "innkeep-sweeper"
)

// The sweeper is the background half of the engine: it expires stale waitlist
// holds, completes past-checkout bookings, and promotes waitlist entries
// whenever a cancellation frees inventory.
func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting sweeper")

	bookingService, waitlistService := initServices(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer, err := events.NewConsumer(
		cfg.KafkaBrokers,
		cfg.BookingEventsTopic,
		ConsumerGroupID,
		freedInventoryHandler(waitlistService, cfg),
		cfg.Log,
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create booking events consumer", "error", err)
	}
	defer consumer.Close()

	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			cfg.Log.Error("Booking events consumer stopped", "error", err)
			stop()
		}
	}()

	runSweepLoop(ctx, cfg, bookingService, waitlistService)
	cfg.Log.Info("Sweeper stopped")
}

// freedInventoryHandler reacts to cancellations. Other lifecycle events on the
// topic are acknowledged without action.
func freedInventoryHandler(waitlistService waitlistservice.WaitlistService, cfg *config.Config) events.MessageHandler {
	return func(ctx context.Context, msg events.Message) error {
		if msg.EventType() != events.TypeBookingCancelled {
			return nil
		}

		var freed events.InventoryFreed
		if err := msg.DecodeValue(&freed); err != nil {
			cfg.Log.Error("Undecodable booking.cancelled payload, skipping",
				"key", msg.Key,
				"error", err,
			)
			return nil
		}

		notified, err := waitlistService.NotifyFreed(ctx, freed)
		if err != nil {
			return err
		}
		if notified > 0 {
			cfg.Log.Info("Notified waitlist entries for freed inventory",
				"room_type_id", freed.RoomTypeID,
				"rooms", freed.Rooms,
				"notified", notified,
			)
		}
		return nil
	}
}

func runSweepLoop(
	ctx context.Context,
	cfg *config.Config,
	bookingService bookingsservice.LifecycleService,
	waitlistService waitlistservice.WaitlistService,
) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepOnce(ctx, cfg, bookingService, waitlistService)
		}
	}
}

func sweepOnce(
	ctx context.Context,
	cfg *config.Config,
	bookingService bookingsservice.LifecycleService,
	waitlistService waitlistservice.WaitlistService,
) {
	expired, err := waitlistService.ExpireDue(ctx)
	if err != nil {
		cfg.Log.Error("Waitlist expiry sweep failed", "error", err)
	} else if expired > 0 {
		cfg.Log.Info("Expired stale waitlist holds", "count", expired)
	}

	completed, err := bookingService.CompleteDue(ctx)
	if err != nil {
		cfg.Log.Error("Booking completion sweep failed", "error", err)
	} else if completed > 0 {
		cfg.Log.Info("Completed past-checkout bookings", "count", completed)
	}
}

func initServices(cfg *config.Config) (bookingsservice.LifecycleService, waitlistservice.WaitlistService) {
	policyRepo := rulesrepository.NewMongoPolicyRepository(cfg)
	stayValidator := rulesvalidator.NewStayValidator(policyRepo, cfg.Log)

	inventoryRepo := inventoryrepository.NewMongoInventoryRepository(cfg)
	lockRepo := inventoryrepository.NewRangeLockRepository(cfg)
	ledgerService := inventoryservice.NewLedgerService(inventoryRepo, lockRepo, cfg)

	guests := client.NewGuestResolver(cfg.GuestResolverURL)

	bookingProducer, err := events.NewProducer(cfg.KafkaBrokers, cfg.BookingEventsTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create booking events producer", "error", err)
	}
	bookingService := bookingsservice.NewLifecycleService(
		bookingsrepository.NewMongoBookingRepository(cfg),
		bookingsrepository.NewMongoPaymentRepository(cfg),
		ledgerService,
		stayValidator,
		guests,
		bookingsservice.NewRefundCalculator(cfg.RefundTiers),
		notify.NewDispatcher(bookingProducer, ServiceName, cfg.Log),
		cfg,
	)

	waitlistProducer, err := events.NewProducer(cfg.KafkaBrokers, cfg.WaitlistTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create waitlist events producer", "error", err)
	}
	waitlistService := waitlistservice.NewWaitlistService(
		waitlistrepository.NewMongoWaitlistRepository(cfg),
		ledgerService,
		bookingService,
		guests,
		notify.NewDispatcher(waitlistProducer, ServiceName, cfg.Log),
		cfg,
	)

	return bookingService, waitlistService
}
