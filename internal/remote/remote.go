// Package remote provides the adapter over the authoritative cloud document
// store. The adapter is a stateless query/mutation facade: it performs no
// retries and holds no cursor state. Retry policy belongs to the sync
// engine, which is the only component that knows whether a cursor was
// already partially advanced.
//
// Stamp discipline: every mutation sets the entity's lastUpdated stamp from
// the adapter's clock inside the same call that performs the mutation.
// Client-supplied stamps are never accepted; a skewed device clock must not
// be able to corrupt the global ordering that delta sync depends on.
package remote

import (
	"context"
	"errors"

	"github.com/mealjournal/mealsync/internal/journal"
)

// ErrNoMeals is returned by MostRecentMeal when the user has no meals yet.
var ErrNoMeals = errors.New("remote: user has no meals")

// MealPatch describes a partial meal mutation. Nil/empty fields are left
// untouched; Symptoms entries overwrite individual symptom values without
// disturbing the rest of the map.
type MealPatch struct {
	SymptomNotes *string
	Symptoms     map[string]int64
}

// IsEmpty reports whether the patch would change nothing.
func (p MealPatch) IsEmpty() bool {
	return p.SymptomNotes == nil && len(p.Symptoms) == 0
}

// Store is the query/mutation interface over the remote document store.
//
// Fetch results are unordered within a result set. Any network failure
// surfaces as an error on the operation; callers decide whether and when
// to retry.
type Store interface {
	// EnsureUser returns the user's remote profile, creating the profile
	// document (and seeding the symptom registry) on first contact.
	EnsureUser(ctx context.Context, userID string) (*journal.Profile, error)

	// FetchUpdatesSince returns all meals with lastUpdated > cursor.
	FetchUpdatesSince(ctx context.Context, userID string, cursor int64) ([]*journal.Meal, error)

	// FetchDeletionsSince returns all tombstones with lastUpdated > cursor.
	FetchDeletionsSince(ctx context.Context, userID string, cursor int64) ([]*journal.Tombstone, error)

	// FetchAllMeals returns every meal document for the user. Used only by
	// the full-fetch path when the cache was never populated or was wiped.
	FetchAllMeals(ctx context.Context, userID string) ([]*journal.Meal, error)

	// CreateMeal writes a new meal document, stamps it, and increments the
	// user's meal counter. Returns the assigned stamp.
	CreateMeal(ctx context.Context, userID string, meal *journal.Meal) (int64, error)

	// ImportMeals batch-writes meal documents (journal restore), stamping
	// each, and adjusts the meal counter by the number written. Returns the
	// stamp shared by the batch.
	ImportMeals(ctx context.Context, userID string, meals []*journal.Meal) (int64, error)

	// UpdateMeal applies a partial mutation and stamps the document in the
	// same update. Returns the assigned stamp.
	UpdateMeal(ctx context.Context, userID, mealID string, patch MealPatch) (int64, error)

	// DeleteMeal appends a tombstone, removes the meal document, and
	// decrements the meal counter, in that order. The tombstone is written
	// first so a failure between the two steps can only leave an orphaned
	// document that a retried delete (idempotent) cleans up, never a
	// deletion other devices would miss. Returns the tombstone stamp.
	DeleteMeal(ctx context.Context, userID, mealID string) (int64, error)

	// MostRecentMeal returns the meal with the greatest mealStarted, or
	// ErrNoMeals. Drives the combine-window decision on the append path.
	MostRecentMeal(ctx context.Context, userID string) (*journal.Meal, error)

	// AddMealItem appends a photographed item to an existing meal and
	// returns the item's remote id. Image bytes are out of scope; the item
	// carries only the content-addressed picture id.
	AddMealItem(ctx context.Context, userID, mealID string, item *journal.MealItem) (string, error)

	// FetchSymptoms returns the user's registered symptom names.
	FetchSymptoms(ctx context.Context, userID string) ([]string, error)

	// RegisterSymptom adds a symptom name to the registry and pushes a zero
	// entry for it onto the user's most recent meal (stamped), so the new
	// symptom is immediately editable on the latest entry.
	RegisterSymptom(ctx context.Context, userID, name string) error

	// ListReminders returns the ids of the user's remote reminders.
	ListReminders(ctx context.Context, userID string) ([]string, error)

	// SetCombineWindow updates the user's combine window, in minutes.
	SetCombineWindow(ctx context.Context, userID string, minutes int64) error

	// PruneTombstones removes tombstones with lastUpdated < olderThan and
	// returns how many were removed. Purely a maintenance operation; delta
	// correctness never depends on pruning.
	PruneTombstones(ctx context.Context, userID string, olderThan int64) (int, error)
}
