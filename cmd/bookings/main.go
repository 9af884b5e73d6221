package main

import (
	"innkeep/internal/bookings/handler"
	"innkeep/internal/bookings/repository"
	"innkeep/internal/bookings/service"
	inventoryrepository "innkeep/internal/inventory/repository"
	inventoryservice "innkeep/internal/inventory/service"
	rulesrepository "innkeep/internal/rules/repository"
	rulesvalidator "innkeep/internal/rules/validator"
	"innkeep/pkg/app"
	"innkeep/pkg/client"
	"innkeep/pkg/config"
	"innkeep/pkg/events"
	"innkeep/pkg/notify"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Bookings service")
	bookingService := initServices(cfg)
	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(handler.NewBookingHandler(bookingService, cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config) service.LifecycleService {
	policyRepo := rulesrepository.NewMongoPolicyRepository(cfg)
	stayValidator := rulesvalidator.NewStayValidator(policyRepo, cfg.Log)

	inventoryRepo := inventoryrepository.NewMongoInventoryRepository(cfg)
	lockRepo := inventoryrepository.NewRangeLockRepository(cfg)
	ledgerService := inventoryservice.NewLedgerService(inventoryRepo, lockRepo, cfg)

	producer, err := events.NewProducer(cfg.KafkaBrokers, cfg.BookingEventsTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	dispatcher := notify.NewDispatcher(producer, ServiceName, cfg.Log)

	bookingService := service.NewLifecycleService(
		repository.NewMongoBookingRepository(cfg),
		repository.NewMongoPaymentRepository(cfg),
		ledgerService,
		stayValidator,
		client.NewGuestResolver(cfg.GuestResolverURL),
		service.NewRefundCalculator(cfg.RefundTiers),
		dispatcher,
		cfg,
	)

	cfg.Log.Info("Booking lifecycle service initialized", "database", cfg.MongoDatabaseName)
	return bookingService
}
