package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/stackvps/reseller-platform/provision-service/internal/client"
	"github.com/stackvps/reseller-platform/provision-service/internal/config"
	"github.com/stackvps/reseller-platform/provision-service/internal/db"
	"github.com/stackvps/reseller-platform/provision-service/internal/http"
	"github.com/stackvps/reseller-platform/provision-service/internal/provider"
	"github.com/stackvps/reseller-platform/provision-service/internal/repository"
	"github.com/stackvps/reseller-platform/provision-service/internal/service"
)

func main() {
	logger := logrus.New()
	logger.Info("Starting Provision Service...")

	// Load configuration
	cfg := config.Load()

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if cfg.Server.Mode == "release" {
		if err := cfg.Validate(); err != nil {
			logger.Fatalf("Invalid configuration: %v", err)
		}
	}

	// Initialize database
	pool, err := db.NewPool(cfg.Database.DSN())
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Initialize repositories
	orderRepo := repository.NewOrderRepository(pool)
	logRepo := repository.NewLogRepository(pool)

	// Initialize provider adapters
	adapters := map[string]provider.Adapter{
		provider.NameHostycare: provider.NewHostycareClient(cfg.Hostycare.APIURL, cfg.Hostycare.APIKey, logger),
		provider.NameSmartVPS:  provider.NewSmartVPSClient(cfg.SmartVPS.APIURL, cfg.SmartVPS.APIToken, logger),
	}

	// Initialize notification client
	notifyClient := client.NewNotifyClient(cfg.Notify.ServiceURL, cfg.InternalSecret)

	// Initialize services
	provisionService := service.NewProvisionService(
		cfg,
		orderRepo,
		logRepo,
		adapters,
		notifyClient,
		logger,
	)

	batchService := service.NewBatchService(cfg, orderRepo, provisionService, logger)

	// Stale-lease reaper keeps crashed attempts from sticking orders in
	// 'provisioning'
	reaper := service.NewReaper(orderRepo, cfg.Provision.ReaperInterval, cfg.Provision.StaleAfter, logger)
	reaper.Start()
	defer reaper.Stop()

	// Initialize HTTP server
	server := http.NewServer(cfg, provisionService, batchService)

	// Start server in goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Infof("Server starting on %s", addr)
		if err := server.Run(addr); err != nil {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	logger.Info("Server exited")
}
