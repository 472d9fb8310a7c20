package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mealjournal/mealsync/internal/journal"
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export cached meals as JSON Lines",
	Long: `Write the user's cached meals to a JSONL file, one meal per line.

Export reads only the local cache, so it works offline; run 'mealsync sync'
first if the cache may be stale. With no file argument the stream goes to
stdout.`,
	Args: cobra.MaximumNArgs(1),
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

		store, err := openCache(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		meals, err := store.ListMeals(ctx, userID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		out := os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer f.Close()
			out = f
		}

		if err := journal.WriteJSONL(out, meals); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(args) == 1 {
			fmt.Printf("Exported %d meals to %s\n", len(meals), args[0])
		}
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import meals from a JSON Lines file",
	Long: `Batch-write meals from a JSONL file into the remote store and mirror
them into the cache.

The remote store stamps every imported meal, so other devices pick the
batch up through normal delta sync. Meals without an id get a fresh one.
The import is all-or-nothing: a malformed line aborts it.`,
	Args: cobra.ExactArgs(1),
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

		f, err := os.Open(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()

		engine, _, cleanup, err := buildEngine(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		n, err := engine.Import(ctx, userID, f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: import failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Imported %d meals from %s\n", n, args[0])
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
