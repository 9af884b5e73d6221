package main

import (
	bookingsrepository "innkeep/internal/bookings/repository"
	bookingsservice "innkeep/internal/bookings/service"
	inventoryrepository "innkeep/internal/inventory/repository"
	inventoryservice "innkeep/internal/inventory/service"
	rulesrepository "innkeep/internal/rules/repository"
	rulesvalidator "innkeep/internal/rules/validator"
	"innkeep/internal/waitlist/handler"
	"innkeep/internal/waitlist/repository"
	"innkeep/internal/waitlist/service"
	"innkeep/pkg/app"
	"innkeep/pkg/client"
	"innkeep/pkg/config"
	"innkeep/pkg/events"
	"innkeep/pkg/notify"
)

const ServiceName = "waitlist"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Waitlist service")
	waitlistService := initServices(cfg)
	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(handler.NewWaitlistHandler(waitlistService, cfg.Log))
	serverApp.Run()
}

// Converting a waitlist hold creates a real booking, so the waitlist service
// carries the full booking stack behind its gateway.
func initServices(cfg *config.Config) service.WaitlistService {
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

	waitlistService := service.NewWaitlistService(
		repository.NewMongoWaitlistRepository(cfg),
		ledgerService,
		bookingService,
		guests,
		notify.NewDispatcher(waitlistProducer, ServiceName, cfg.Log),
		cfg,
	)

	cfg.Log.Info("Waitlist service initialized", "database", cfg.MongoDatabaseName)
	return waitlistService
}
