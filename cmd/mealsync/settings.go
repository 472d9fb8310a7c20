package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var combineCmd = &cobra.Command{
	Use:   "combine <minutes>",
	Short: "Set the user's meal-combining window",
	Long: `Set how many minutes after a meal's start a newly logged item still
joins that meal instead of starting a new one.

The window is stored on the user's remote profile, so every device picks
it up. The default for new users is 30 minutes.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		minutes, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || minutes <= 0 {
			fmt.Fprintf(os.Stderr, "Error: minutes must be a positive integer\n")
			os.Exit(1)
		}

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

		if err := engine.SetCombineWindow(ctx, userID, minutes); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Combine window set to %d minutes\n", minutes)
	},
}

func init() {
	rootCmd.AddCommand(combineCmd)
}
