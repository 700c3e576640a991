package main

import (
	"context"
	"fmt"
	"log"

	"github.com/ridwanfathin/receipt-sync-service/internal/app"
	"github.com/ridwanfathin/receipt-sync-service/internal/config"
	"github.com/ridwanfathin/receipt-sync-service/internal/gateway"
	"github.com/ridwanfathin/receipt-sync-service/internal/handler"
	"github.com/ridwanfathin/receipt-sync-service/internal/logging"
	"github.com/ridwanfathin/receipt-sync-service/internal/server"
)

// @title Receipt Sync Service API
// @version 1.0
// @description Offline-first receipt store with a durable sync queue to a remote backend
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration
	log.Println("Loading configuration...")
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logOutput, logCloser := logging.Setup(logging.Config{File: cfg.LogFile})
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	handlers := server.Handlers{
		Receipt: handler.NewReceiptHandler(application.Service),
		Sync:    handler.NewSyncHandler(application.Service),
	}
	if cfg.RemoteBackend == gateway.BackendDrive {
		handlers.Drive = handler.NewDriveHandler(application.DriveAuth)
	}

	application.Monitor.Start(ctx)
	go application.Service.RunSyncLoop(ctx, cfg.SyncInterval)

	// Create and configure server
	log.Println("Configuring server...")
	appServer := server.NewServer(cfg, handlers, logOutput)

	// Start server (blocking call)
	log.Printf("Starting server on port %d...", cfg.Port)
	if err := appServer.Start(); err != nil {
		log.Printf("Server error: %v", err)
	}

	cancel()
	application.Close()

	fmt.Println("Server shutdown complete")
}
