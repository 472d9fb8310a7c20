package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cache's sync position",
	Long: `Display the local cache's position relative to the remote store.

Shows:
  - Cache file location
  - Delta cursor (highest fully applied stamp)
  - Local vs remote meal counts and whether the cache is stale`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		userID, err := requireUser(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		engine, store, cleanup, err := buildEngine(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		status, err := engine.UserStatus(ctx, userID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\nCache: %s\n", store.Path())
		fmt.Printf("User:  %s\n\n", status.UserID)
		if status.Cursor == 0 {
			fmt.Println("Cursor: none (no completed pass yet)")
		} else {
			fmt.Printf("Cursor: %d (%s)\n", status.Cursor,
				time.UnixMilli(status.Cursor).Format(time.RFC3339))
		}
		fmt.Printf("Meals:  %d local / %d remote\n", status.LocalMeals, status.RemoteMeals)
		if status.Stale {
			fmt.Println("State:  stale (run 'mealsync sync')")
		} else {
			fmt.Println("State:  converged")
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
