package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mealjournal/mealsync/internal/filter"
	"github.com/mealjournal/mealsync/internal/journal"
	"github.com/mealjournal/mealsync/internal/remote"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached meals, newest first",
	Long: `List the user's meals from the local cache.

Optional symptom filters restrict the output:

  mealsync list --where "Pain>=5"                    # single predicate
  mealsync list --where "Pain>=5" --where "Nausea==0"
  mealsync list --any --where "Pain>=8" --where "Bloating>=8"

Filters combine with AND by default; --any switches to OR. A meal that
never recorded a filtered symptom does not match its predicate.`,
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

		wheres, _ := cmd.Flags().GetStringArray("where")
		if len(wheres) > 0 {
			query, err := parseQuery(wheres, cmd.Flags().Changed("any"))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			meals, err = query.Apply(meals)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		if len(meals) == 0 {
			fmt.Println("No meals")
			return
		}
		for _, meal := range meals {
			fmt.Printf("%s  %s", meal.Started().Format("2006-01-02 15:04"), meal.MealID)
			if len(meal.MealSymptoms) > 0 {
				fmt.Printf("  %s", formatSymptoms(meal.MealSymptoms))
			}
			if meal.SymptomNotes != "" {
				fmt.Printf("  (%s)", meal.SymptomNotes)
			}
			fmt.Println()
		}
	},
}

var logCmd = &cobra.Command{
	Use:   "log <pic-id>",
	Short: "Log a photographed food item",
	Long: `Record a food item in the journal.

If the item falls within the combine window after the most recent meal's
start, it joins that meal; otherwise a new meal is created around it with
a zeroed entry for every registered symptom.`,
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

		engine, _, cleanup, err := buildEngine(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		notes, _ := cmd.Flags().GetString("notes")
		item := &journal.MealItem{
			PicID:     args[0],
			Notes:     notes,
			TimeStamp: time.Now().UnixMilli(),
		}

		res, err := engine.LogItem(ctx, userID, item)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if res.NewMeal {
			fmt.Printf("Started new meal %s\n", res.MealID)
		} else {
			fmt.Printf("Added to meal %s\n", res.MealID)
		}
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <meal-id>",
	Short: "Delete a meal everywhere",
	Long: `Delete a meal from the remote store and the cache.

The remote store records a deletion tombstone before removing the
document, so other devices pick the deletion up through delta sync.`,
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

		engine, _, cleanup, err := buildEngine(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		if err := engine.DeleteMeal(ctx, userID, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted meal %s\n", args[0])
	},
}

var symptomsCmd = &cobra.Command{
	Use:   "symptoms <meal-id>",
	Short: "Update a meal's symptoms and notes",
	Long: `Update symptom intensities or notes on a meal.

  mealsync symptoms <meal-id> --set Pain=7 --set Nausea=2
  mealsync symptoms <meal-id> --notes "worse after coffee"
  mealsync symptoms <meal-id> --register "Brain Fog"

--register adds a new symptom name to the user's registry and seeds a
zero entry for it on the most recent meal; new meals then include it
automatically. Intensities range from 0 to 10.`,
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

		engine, _, cleanup, err := buildEngine(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		if name, _ := cmd.Flags().GetString("register"); name != "" {
			if err := engine.RegisterSymptom(ctx, userID, name); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Registered symptom %q\n", name)
			return
		}

		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "Error: meal id required (or use --register)")
			os.Exit(1)
		}

		patch := remote.MealPatch{}
		if cmd.Flags().Changed("notes") {
			notes, _ := cmd.Flags().GetString("notes")
			patch.SymptomNotes = &notes
		}
		sets, _ := cmd.Flags().GetStringArray("set")
		if len(sets) > 0 {
			patch.Symptoms = make(map[string]int64, len(sets))
			for _, set := range sets {
				name, value, err := parseSymptomSet(set)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					os.Exit(1)
				}
				patch.Symptoms[name] = value
			}
		}

		if err := engine.UpdateSymptoms(ctx, userID, args[0], patch); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated meal %s\n", args[0])
	},
}

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Wipe the local meal cache",
	Long: `Remove every cached meal for the user and reset the sync cursor.

The remote store is untouched; the next sync pass repopulates the cache
with a full fetch. Useful when the cache is suspected to be corrupt.`,
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

		if err := store.WipeMeals(ctx, userID); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Cache wiped; next sync will run a full fetch")
	},
}

// parseQuery turns --where strings like "Pain>=5" into a filter query.
func parseQuery(wheres []string, anyMode bool) (filter.Query, error) {
	mode := filter.ModeAnd
	if anyMode {
		mode = filter.ModeOr
	}
	q := filter.Query{Mode: mode}

	for _, where := range wheres {
		var op filter.Op
		var idx int
		for _, candidate := range []filter.Op{filter.OpLE, filter.OpEQ, filter.OpGE} {
			if i := strings.Index(where, string(candidate)); i > 0 {
				op, idx = candidate, i
				break
			}
		}
		if op == "" {
			return q, fmt.Errorf("invalid filter %q (want NAME<=N, NAME==N or NAME>=N)", where)
		}

		name := strings.TrimSpace(where[:idx])
		value, err := strconv.ParseInt(strings.TrimSpace(where[idx+2:]), 10, 64)
		if err != nil {
			return q, fmt.Errorf("invalid filter value in %q: %w", where, err)
		}
		q.Predicates = append(q.Predicates, filter.Predicate{
			Symptom: name,
			Op:      op,
			Value:   value,
			Active:  true,
		})
	}
	return q, nil
}

// parseSymptomSet splits "Name=Value" into its parts.
func parseSymptomSet(s string) (string, int64, error) {
	idx := strings.LastIndex(s, "=")
	if idx <= 0 {
		return "", 0, fmt.Errorf("invalid --set %q (want NAME=VALUE)", s)
	}
	name := strings.TrimSpace(s[:idx])
	value, err := strconv.ParseInt(strings.TrimSpace(s[idx+1:]), 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid --set value in %q: %w", s, err)
	}
	return name, value, nil
}

// formatSymptoms renders only the nonzero entries, sorted by name.
func formatSymptoms(symptoms map[string]int64) string {
	names := make([]string, 0, len(symptoms))
	for name, value := range symptoms {
		if value != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, symptoms[name])
	}
	return strings.Join(parts, " ")
}

func init() {
	listCmd.Flags().StringArray("where", nil, "Symptom predicate (NAME<=N, NAME==N, NAME>=N); repeatable")
	listCmd.Flags().Bool("any", false, "Match any predicate instead of all")

	logCmd.Flags().String("notes", "", "Notes for the item")

	symptomsCmd.Flags().StringArray("set", nil, "Symptom intensity (NAME=VALUE, 0-10); repeatable")
	symptomsCmd.Flags().String("notes", "", "Symptom notes for the meal")
	symptomsCmd.Flags().String("register", "", "Register a new symptom name")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(symptomsCmd)
	rootCmd.AddCommand(wipeCmd)
}
