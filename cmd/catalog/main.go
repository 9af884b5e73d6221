package main

import (
	"innkeep/internal/catalog/handler"
	"innkeep/internal/catalog/repository"
	"innkeep/internal/catalog/service"
	inventoryrepository "innkeep/internal/inventory/repository"
	inventoryservice "innkeep/internal/inventory/service"
	"innkeep/pkg/app"
	"innkeep/pkg/config"
)

const ServiceName = "catalog"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Catalog service")
	catalogService := initServices(cfg)
	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(handler.NewCatalogHandler(catalogService, cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config) service.CatalogService {
	inventoryRepo := inventoryrepository.NewMongoInventoryRepository(cfg)
	lockRepo := inventoryrepository.NewRangeLockRepository(cfg)
	ledgerService := inventoryservice.NewLedgerService(inventoryRepo, lockRepo, cfg)

	catalogService := service.NewCatalogService(
		repository.NewMongoCatalogRepository(cfg),
		ledgerService,
		cfg,
	)

	cfg.Log.Info("Catalog service initialized", "database", cfg.MongoDatabaseName)
	return catalogService
}
