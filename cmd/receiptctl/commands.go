package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ridwanfathin/receipt-sync-service/internal/config"
	"github.com/ridwanfathin/receipt-sync-service/internal/database"
	"github.com/ridwanfathin/receipt-sync-service/internal/gateway"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show local store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Service.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), stats)
	},
}

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a JSON backup of every receipt",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		export, err := a.Service.Export(cmd.Context())
		if err != nil {
			return err
		}

		if exportOutput == "" || exportOutput == "-" {
			return writeJSON(cmd.OutOrStdout(), export)
		}
		f, err := os.Create(exportOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := writeJSON(f, export); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d receipts to %s\n", len(export.Receipts), exportOutput)
		return nil
	},
}

var drainForce bool

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Replay queued operations against the remote backend",
	Long: `Run one drain pass over the sync queue.

The connectivity state starts from START_ONLINE. Use --force to treat the
remote as reachable regardless.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if drainForce {
			a.Monitor.SetOnline(true)
		}

		start := time.Now()
		result, err := a.Service.ProcessSyncQueue(cmd.Context())
		if err != nil {
			return err
		}
		if result.Offline {
			fmt.Fprintln(cmd.OutOrStdout(), "Offline, nothing drained")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Drained %d operations in %v: %d succeeded, %d retried, %d failed\n",
			result.Processed, time.Since(start).Round(time.Millisecond), result.Succeeded, result.Retried, result.Failed)
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List queued operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.Service.SyncQueue(cmd.Context())
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tRECEIPT\tSTATUS\tATTEMPTS\tQUEUED\tLAST ERROR")
		for _, op := range ops {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
				op.ID, op.Kind, op.ReceiptID, op.Status, op.Attempts, op.MaxAttempts,
				time.UnixMilli(op.Timestamp).Format(time.RFC3339), op.LastError)
		}
		return w.Flush()
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <opId>",
	Short: "Reset the attempts of a queued operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid operation ID %q", args[0])
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		op, err := a.Service.RetryOperation(cmd.Context(), opID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Operation %d (%s %s) is pending again\n", op.ID, op.Kind, op.ReceiptID)
		return nil
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard <opId>",
	Short: "Drop a queued operation; its receipt stays local only",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid operation ID %q", args[0])
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service.DiscardOperation(cmd.Context(), opID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Operation %d discarded\n", opID)
		return nil
	},
}

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every local receipt, image, queued operation and setting",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearYes {
			return fmt.Errorf("refusing to clear without --yes")
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service.ClearAll(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Local data cleared")
		return nil
	},
}

var migrateRemoteCmd = &cobra.Command{
	Use:   "migrate-remote",
	Short: "Create the remote_receipts table in POSTGRES_DB_URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if cfg.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_DB_URL environment variable not set")
		}

		pg, err := database.NewPostgresDB(cmd.Context(), cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := gateway.NewPostgresGateway(pg).EnsureSchema(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Remote schema is up to date")
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
	drainCmd.Flags().BoolVar(&drainForce, "force", false, "assume the remote is reachable")
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "confirm deletion")

	rootCmd.AddCommand(statsCmd, exportCmd, drainCmd, queueCmd, retryCmd, discardCmd, clearCmd, migrateRemoteCmd)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
