// Package app assembles the local store, sync machinery and receipt service
// from configuration. It is shared by the HTTP server and the admin CLI.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/ridwanfathin/receipt-sync-service/internal/config"
	"github.com/ridwanfathin/receipt-sync-service/internal/database"
	"github.com/ridwanfathin/receipt-sync-service/internal/gateway"
	"github.com/ridwanfathin/receipt-sync-service/internal/imageutil"
	"github.com/ridwanfathin/receipt-sync-service/internal/network"
	"github.com/ridwanfathin/receipt-sync-service/internal/oauth"
	"github.com/ridwanfathin/receipt-sync-service/internal/openrouter"
	"github.com/ridwanfathin/receipt-sync-service/internal/repository"
	"github.com/ridwanfathin/receipt-sync-service/internal/service"
	"github.com/ridwanfathin/receipt-sync-service/internal/syncer"
	"github.com/ridwanfathin/receipt-sync-service/internal/worker"
)

// App holds the wired components
type App struct {
	Config    *config.Config
	DB        *database.SQLiteDB
	Store     *repository.SQLiteStore
	Monitor   *network.Monitor
	Runner    *worker.Runner
	DriveAuth *oauth.Manager
	Remote    gateway.RemoteGateway
	Postgres  *database.PostgresDB
	Service   *service.ReceiptServiceImpl
}

// New opens the local store and builds every component. ctx must outlive the
// App because the Drive token source refreshes with it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Open the local store
	log.Printf("Opening local store in %s...", cfg.DataDir)
	db, err := database.OpenSQLite(ctx, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	a := &App{
		Config: cfg,
		DB:     db,
		Store:  repository.NewSQLiteStore(db),
		Monitor: network.NewMonitor(network.Config{
			ProbeURL:      cfg.SyncProbeURL,
			ProbeInterval: cfg.SyncProbeInterval,
			InitialOnline: cfg.StartOnline,
		}),
		Runner: worker.NewRunner(cfg.RunnerQueueSize),
	}

	a.DriveAuth = oauth.NewManager(oauth.Config{
		ClientID:     cfg.DriveClientID,
		ClientSecret: cfg.DriveClientSecret,
		RedirectURL:  cfg.DriveRedirectURL,
	}, a.Store)

	if err := a.connectRemote(ctx); err != nil {
		a.Close()
		return nil, err
	}

	visionClient := openrouter.NewClient(&openrouter.Config{
		APIKey:    cfg.VisionAPIKey,
		APIURL:    cfg.VisionAPIURL,
		ModelID:   cfg.VisionModelID,
		Timeout:   cfg.VisionTimeout,
		MaxTokens: cfg.VisionMaxTokens,
	})

	a.Service = service.NewReceiptService(a.Store, a.Runner, syncer.New(a.Store, a.Remote, a.Monitor.Online), a.Monitor, visionClient, service.Config{
		MaxWorkers: cfg.MaxWorkers,
		Image: &imageutil.ProcessConfig{
			MaxDimension: cfg.ImageMaxDimension,
			Quality:      cfg.ImageQuality,
			TargetSizeKB: cfg.ImageTargetSizeKB,
		},
	})
	return a, nil
}

func (a *App) connectRemote(ctx context.Context) error {
	cfg := a.Config
	log.Printf("Configuring remote backend %q...", cfg.RemoteBackend)

	opts := gateway.Options{
		Backend: cfg.RemoteBackend,
		Drive:   &gateway.DriveConfig{FolderID: cfg.DriveFolderID, TokenSource: a.DriveAuth.TokenSource(ctx)},
		S3: &gateway.S3Config{
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			AccessKeySecret: cfg.S3AccessKeySecret,
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			PathSuffix:      cfg.S3PathSuffix,
		},
	}
	if cfg.RemoteBackend == gateway.BackendPostgres {
		pg, err := database.NewPostgresDB(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("failed to connect to remote database: %w", err)
		}
		a.Postgres = pg
		opts.Postgres = pg
	}

	remote, err := gateway.New(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to create remote gateway: %w", err)
	}
	a.Remote = remote
	return nil
}

// Close stops the background components and closes the stores
func (a *App) Close() {
	a.Monitor.Stop()
	a.Runner.Stop()
	if a.Postgres != nil {
		a.Postgres.Close()
	}
	if err := a.DB.Close(); err != nil {
		log.Printf("Failed to close local store: %v", err)
	}
}
