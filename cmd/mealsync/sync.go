package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass against the remote store",
	Long: `Run a single sync pass for the configured user.

The pass:
  1. Checks staleness (local meal count vs the remote counter)
  2. Fetches meal updates stamped after the local cursor
  3. Fetches deletion tombstones stamped after the local cursor
  4. Applies updates, then deletions, to the cache
  5. Advances the cursor to the highest stamp observed

A new or visibly stale cache takes a full fetch instead of a delta. On any
failure the cursor stays put and the cache keeps serving its last state.`,
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

		engine, _, cleanup, err := buildEngine(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		sum, err := engine.SyncUser(ctx, userID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: sync failed: %v\n", err)
			os.Exit(1)
		}

		mode := "delta"
		if sum.FullFetch {
			mode = "full"
		}
		fmt.Printf("Sync complete (%s) in %v\n", mode, sum.Duration.Round(time.Millisecond))
		fmt.Printf("   Applied: %d\n", sum.Updated)
		fmt.Printf("   Deleted: %d\n", sum.Deleted)
		fmt.Printf("   Cursor:  %d -> %d\n", sum.CursorBefore, sum.CursorAfter)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
