package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/mealjournal/mealsync/internal/filter"
	"github.com/mealjournal/mealsync/internal/journal"
	"github.com/mealjournal/mealsync/internal/remote"
)

// Write-through mutation paths. Every mutation goes to the remote store
// first (which assigns the authoritative lastUpdated stamp) and is then
// mirrored into the cache. If the local mirror write fails, the next delta
// pass re-fetches the stamped entity and heals the cache; the remote write
// is what must not be lost.

// LogResult describes where a logged item landed.
type LogResult struct {
	MealID   string
	ItemID   string
	NewMeal  bool
	Combined bool
}

// LogItem records a photographed food item. If the item's timestamp falls
// within the user's combine window after the most recent meal's start, the
// item is appended to that meal; otherwise a new meal is created around it.
func (e *Engine) LogItem(ctx context.Context, userID string, item *journal.MealItem) (*LogResult, error) {
	if item == nil || item.TimeStamp <= 0 {
		return nil, fmt.Errorf("item with a positive timestamp is required")
	}

	profile, err := e.remote.EnsureUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	window := profile.CombineMinutes
	if window <= 0 {
		window = journal.DefaultCombineMinutes
	}

	recent, err := e.remote.MostRecentMeal(ctx, userID)
	if err != nil && !errors.Is(err, remote.ErrNoMeals) {
		return nil, err
	}

	if recent != nil && item.TimeStamp >= recent.MealStarted &&
		item.TimeStamp-recent.MealStarted <= window*60_000 {
		itemID, err := e.remote.AddMealItem(ctx, userID, recent.MealID, item)
		if err != nil {
			return nil, err
		}
		e.log.Printf("Combined item into meal %s for user %s", recent.MealID, userID)
		return &LogResult{MealID: recent.MealID, ItemID: itemID, Combined: true}, nil
	}

	return e.startMeal(ctx, userID, item)
}

// startMeal creates a fresh meal around the item, seeded with a zeroed
// entry for every registered symptom so the meal is immediately editable.
func (e *Engine) startMeal(ctx context.Context, userID string, item *journal.MealItem) (*LogResult, error) {
	symptoms, err := e.remote.FetchSymptoms(ctx, userID)
	if err != nil {
		return nil, err
	}

	meal := &journal.Meal{
		UserID:       userID,
		MealID:       uuid.NewString(),
		MealStarted:  item.TimeStamp,
		MealSymptoms: journal.NewSymptomMap(symptoms),
	}

	stamp, err := e.remote.CreateMeal(ctx, userID, meal)
	if err != nil {
		return nil, err
	}
	meal.LastUpdated = stamp

	itemID, err := e.remote.AddMealItem(ctx, userID, meal.MealID, item)
	if err != nil {
		return nil, err
	}

	if err := e.cache.UpsertMeal(ctx, meal); err != nil {
		return nil, err
	}

	// A new meal re-arms the user's post-meal reminders.
	reminders, err := e.cache.ListReminders(ctx)
	if err != nil {
		return nil, err
	}
	for _, rem := range reminders {
		if err := e.scheduleReminder(ctx, rem.ReminderID); err != nil {
			return nil, err
		}
	}

	e.log.Printf("Started meal %s for user %s", meal.MealID, userID)
	return &LogResult{MealID: meal.MealID, ItemID: itemID, NewMeal: true}, nil
}

// UpdateSymptoms applies a partial symptom mutation to a meal, remote
// first, then mirrors the patched entity into the cache.
func (e *Engine) UpdateSymptoms(ctx context.Context, userID, mealID string, patch remote.MealPatch) error {
	if patch.IsEmpty() {
		return fmt.Errorf("nothing to update for meal %s", mealID)
	}
	for name, value := range patch.Symptoms {
		if value < journal.MinSymptomValue || value > journal.MaxSymptomValue {
			return fmt.Errorf("symptom %q value %d out of range [%d, %d]",
				name, value, journal.MinSymptomValue, journal.MaxSymptomValue)
		}
	}

	stamp, err := e.remote.UpdateMeal(ctx, userID, mealID, patch)
	if err != nil {
		return err
	}

	meal, err := e.cache.GetMeal(ctx, userID, mealID)
	if errors.Is(err, sql.ErrNoRows) {
		// Not cached yet; the next delta pass picks up the stamped doc.
		return nil
	}
	if err != nil {
		return err
	}

	if patch.SymptomNotes != nil {
		meal.SymptomNotes = *patch.SymptomNotes
	}
	for name, value := range patch.Symptoms {
		meal.MealSymptoms[name] = value
	}
	meal.LastUpdated = stamp

	return e.cache.UpsertMeal(ctx, meal)
}

// DeleteMeal removes a meal everywhere: tombstone plus document removal
// remotely, then the cached row. A failure after the remote delete leaves
// a stale cached row that the tombstone removes on the next pass.
func (e *Engine) DeleteMeal(ctx context.Context, userID, mealID string) error {
	if _, err := e.remote.DeleteMeal(ctx, userID, mealID); err != nil {
		return err
	}
	return e.cache.DeleteMeal(ctx, userID, mealID)
}

// RegisterSymptom adds a new symptom name to the user's registry. The
// remote adapter also stamps a zero entry onto the most recent meal, which
// the next delta pass mirrors locally.
func (e *Engine) RegisterSymptom(ctx context.Context, userID, name string) error {
	return e.remote.RegisterSymptom(ctx, userID, name)
}

// SetCombineWindow updates the user's meal-combining window, in minutes.
func (e *Engine) SetCombineWindow(ctx context.Context, userID string, minutes int64) error {
	return e.remote.SetCombineWindow(ctx, userID, minutes)
}

// GetFilteredMeals returns the cached meals matching the query, newest
// first. Purely local, like GetMeals.
func (e *Engine) GetFilteredMeals(ctx context.Context, userID string, q filter.Query) ([]*journal.Meal, error) {
	meals, err := e.cache.ListMeals(ctx, userID)
	if err != nil {
		return nil, err
	}
	return q.Apply(meals)
}

// Export writes the user's cached meals as JSON Lines.
func (e *Engine) Export(ctx context.Context, userID string, w io.Writer) (int, error) {
	meals, err := e.cache.ListMeals(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := journal.WriteJSONL(w, meals); err != nil {
		return 0, err
	}
	return len(meals), nil
}

// Import reads JSON Lines meals, batch-writes them to the remote store
// (which stamps them) and mirrors them into the cache. Meals without an id
// get a fresh one; the cursor is left alone so the next delta pass verifies
// the batch end to end.
func (e *Engine) Import(ctx context.Context, userID string, r io.Reader) (int, error) {
	meals, err := journal.ReadJSONL(r)
	if err != nil {
		return 0, err
	}
	if len(meals) == 0 {
		return 0, nil
	}

	for i, meal := range meals {
		meal.UserID = userID
		if meal.MealID == "" {
			meal.MealID = uuid.NewString()
		}
		if err := meal.Validate(); err != nil {
			return 0, fmt.Errorf("invalid meal at line %d: %w", i+1, err)
		}
	}

	if _, err := e.remote.EnsureUser(ctx, userID); err != nil {
		return 0, err
	}

	stamp, err := e.remote.ImportMeals(ctx, userID, meals)
	if err != nil {
		return 0, err
	}

	for _, meal := range meals {
		meal.LastUpdated = stamp
		if err := e.cache.UpsertMeal(ctx, meal); err != nil {
			return 0, err
		}
	}

	return len(meals), nil
}
