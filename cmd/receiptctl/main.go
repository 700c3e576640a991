// Command receiptctl inspects and maintains the local receipt store.
// Stop the server first: both open the same SQLite file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ridwanfathin/receipt-sync-service/internal/app"
	"github.com/ridwanfathin/receipt-sync-service/internal/config"
)

var dataDir string

var rootCmd = &cobra.Command{
	Use:           "receiptctl",
	Short:         "Admin tool for the receipt sync service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "local store directory (overrides DATA_DIR)")
}

// openApp loads configuration and wires the application for one command
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return app.New(ctx, cfg)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
