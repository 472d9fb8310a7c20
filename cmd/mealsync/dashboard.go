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
	"github.com/mealjournal/mealsync/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Start the real-time sync monitoring dashboard",
	Long: `Start a WebSocket dashboard server alongside the sync daemon.

Every finished sync pass is broadcast to connected clients, together with
rolling cache statistics.

WebSocket messages include:
- sync_pass: One sync pass finished (cursor movement, counts, errors)
- stats: Cache statistics (users, cached meals, pass totals)

Example usage:
  mealsync dashboard               # Start on the configured port
  mealsync dashboard --port 9000   # Start on a custom port

Connect with a WebSocket client:
  ws://localhost:8080/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.DashboardPort = port
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		engine, store, cleanup, err := buildEngine(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		server := dashboard.NewServer(&dashboard.Config{
			Port:   cfg.DashboardPort,
			Logger: newLogger(cfg, "[dashboard] "),
		})
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
			os.Exit(1)
		}

		handler := dashboard.NewHandler(server, store, newLogger(cfg, "[dashboard] "))
		engine.AddListener(handler.OnPass)

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

		fmt.Printf("Dashboard server started on http://localhost:%d\n", cfg.DashboardPort)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", cfg.DashboardPort)
		fmt.Println("\nPress Ctrl+C to stop...")

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(dashboardCmd)
}
