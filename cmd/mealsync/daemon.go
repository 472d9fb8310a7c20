package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mealjournal/mealsync/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run periodic sync passes in the background",
	Long: `Run the sync daemon.

The daemon runs a sync pass for every tracked user on a fixed interval,
backs off per user after failures, and periodically prunes expired
deletion tombstones from the remote store.

Example usage:
  mealsync daemon                  # Sync every interval from the config
  mealsync daemon --interval 10s   # Override the pass interval`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if interval, _ := cmd.Flags().GetDuration("interval"); interval > 0 {
			cfg.SyncInterval = interval
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		engine, store, cleanup, err := buildEngine(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		d, err := daemon.NewWithConfig(engine, store, &daemon.Config{
			SyncInterval:  cfg.SyncInterval,
			PruneInterval: cfg.PruneInterval,
			MaxBackoff:    10 * time.Minute,
			Logger:        newLogger(cfg, "[daemon] "),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if cfg.UserID != "" {
			if err := d.TrackUser(ctx, cfg.UserID); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		fmt.Printf("Daemon started (interval %v). Press Ctrl+C to stop...\n", cfg.SyncInterval)
		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	daemonCmd.Flags().Duration("interval", 0, "Sync pass interval (overrides config)")
	rootCmd.AddCommand(daemonCmd)
}
