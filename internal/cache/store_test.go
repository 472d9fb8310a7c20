package cache

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mealjournal/mealsync/internal/journal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.InitSchema(ctx); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	// Idempotent: a second run must not fail.
	if err := store.InitSchema(ctx); err != nil {
		t.Fatalf("second InitSchema failed: %v", err)
	}
	return store
}

func testMeal(id string, started int64) *journal.Meal {
	return &journal.Meal{
		UserID:      "user-1",
		MealID:      id,
		MealStarted: started,
		MealSymptoms: map[string]int64{
			"Bloating": 3,
			"Pain":     7,
		},
	}
}

func TestUpsertAndGetMeal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	meal := testMeal("m1", 1000)
	meal.SymptomNotes = "after lunch"
	if err := store.UpsertMeal(ctx, meal); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := store.GetMeal(ctx, "user-1", "m1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.SymptomNotes != "after lunch" || got.MealStarted != 1000 {
		t.Errorf("unexpected meal: %+v", got)
	}
	if got.MealSymptoms["Pain"] != 7 || got.MealSymptoms["Bloating"] != 3 {
		t.Errorf("unexpected symptoms: %+v", got.MealSymptoms)
	}
}

func TestUpsertReplacesSymptomSet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	meal := testMeal("m1", 1000)
	if err := store.UpsertMeal(ctx, meal); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	// Replacement snapshot drops Bloating and introduces a symptom name
	// that never existed when the schema was created.
	meal.MealSymptoms = map[string]int64{
		"Pain":      2,
		"Brain Fog": 5,
	}
	if err := store.UpsertMeal(ctx, meal); err != nil {
		t.Fatalf("replacement upsert failed: %v", err)
	}

	got, err := store.GetMeal(ctx, "user-1", "m1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got.MealSymptoms) != 2 {
		t.Fatalf("expected 2 symptom entries, got %+v", got.MealSymptoms)
	}
	if _, ok := got.MealSymptoms["Bloating"]; ok {
		t.Error("removed symptom Bloating survived the replacement")
	}
	if got.MealSymptoms["Brain Fog"] != 5 {
		t.Errorf("expected Brain Fog=5, got %d", got.MealSymptoms["Brain Fog"])
	}
}

func TestUpsertRejectsInvalidMeal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	bad := testMeal("m1", 1000)
	bad.MealSymptoms["Pain"] = 42
	if err := store.UpsertMeal(ctx, bad); err == nil {
		t.Error("expected out-of-range intensity to be rejected")
	}
	if err := store.UpsertMeal(ctx, &journal.Meal{UserID: "user-1", MealID: "m2"}); err == nil {
		t.Error("expected missing start time to be rejected")
	}
}

func TestDeleteMealIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.UpsertMeal(ctx, testMeal("m1", 1000)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := store.DeleteMeal(ctx, "user-1", "m1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := store.DeleteMeal(ctx, "user-1", "m1"); err != nil {
		t.Fatalf("repeated delete failed: %v", err)
	}
	if err := store.DeleteMeal(ctx, "user-1", "never-existed"); err != nil {
		t.Fatalf("delete of unknown meal failed: %v", err)
	}

	if _, err := store.GetMeal(ctx, "user-1", "m1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows for deleted meal, got %v", err)
	}

	var orphans int64
	err := store.Conn().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM meal_symptoms WHERE meal_id = 'm1'").Scan(&orphans)
	if err != nil {
		t.Fatalf("orphan query failed: %v", err)
	}
	if orphans != 0 {
		t.Errorf("expected no orphaned symptom rows, got %d", orphans)
	}
}

func TestListMealsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i, id := range []string{"oldest", "middle", "newest"} {
		if err := store.UpsertMeal(ctx, testMeal(id, int64(1000*(i+1)))); err != nil {
			t.Fatalf("upsert %s failed: %v", id, err)
		}
	}

	meals, err := store.ListMeals(ctx, "user-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(meals) != 3 {
		t.Fatalf("expected 3 meals, got %d", len(meals))
	}
	if meals[0].MealID != "newest" || meals[2].MealID != "oldest" {
		t.Errorf("wrong order: %s, %s, %s", meals[0].MealID, meals[1].MealID, meals[2].MealID)
	}
	if meals[0].MealSymptoms["Pain"] != 7 {
		t.Errorf("symptoms not attached on list: %+v", meals[0].MealSymptoms)
	}

	count, err := store.CountMeals(ctx, "user-1")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
}

func TestCursorIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	meta, err := store.GetOrCreateUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !meta.IsFirstTime || meta.LastFetched != 0 {
		t.Fatalf("unexpected fresh user: %+v", meta)
	}

	if err := store.AdvanceCursor(ctx, "user-1", 500); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	// Regression attempts are silently ignored.
	if err := store.AdvanceCursor(ctx, "user-1", 300); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if err := store.AdvanceCursor(ctx, "user-1", 500); err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	meta, err = store.GetOrCreateUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if meta.LastFetched != 500 {
		t.Errorf("expected cursor 500, got %d", meta.LastFetched)
	}
	if meta.IsFirstTime {
		t.Error("first-time flag not cleared by a committed advance")
	}
}

func TestWipeMealsResetsCursor(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.GetOrCreateUser(ctx, "user-1"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := store.AdvanceCursor(ctx, "user-1", 900); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if err := store.UpsertMeal(ctx, testMeal("m1", 1000)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if err := store.WipeMeals(ctx, "user-1"); err != nil {
		t.Fatalf("wipe failed: %v", err)
	}

	count, _ := store.CountMeals(ctx, "user-1")
	if count != 0 {
		t.Errorf("expected empty cache after wipe, got %d meals", count)
	}
	meta, _ := store.GetOrCreateUser(ctx, "user-1")
	if meta.LastFetched != 0 {
		t.Errorf("expected cursor reset to 0, got %d", meta.LastFetched)
	}
}

func TestRemindersPreserveScheduledFlag(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.AddReminder(ctx, "r1"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := store.SetReminderScheduled(ctx, "r1", true); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	// Re-adding during a reconcile pass must not reset the flag.
	if err := store.AddReminder(ctx, "r1"); err != nil {
		t.Fatalf("re-add failed: %v", err)
	}

	reminders, err := store.ListReminders(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(reminders) != 1 || !reminders[0].IsScheduled {
		t.Errorf("unexpected reminders: %+v", reminders)
	}

	if err := store.DeleteReminder(ctx, "r1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := store.DeleteReminder(ctx, "r1"); err != nil {
		t.Fatalf("repeated delete failed: %v", err)
	}
	reminders, _ = store.ListReminders(ctx)
	if len(reminders) != 0 {
		t.Errorf("expected no reminders, got %+v", reminders)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a := testMeal("a1", 1000)
	b := testMeal("b1", 2000)
	b.UserID = "user-2"
	if err := store.UpsertMeal(ctx, a); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := store.UpsertMeal(ctx, b); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	meals, err := store.ListMeals(ctx, "user-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(meals) != 1 || meals[0].MealID != "a1" {
		t.Errorf("expected only user-1 meals, got %+v", meals)
	}

	if err := store.WipeMeals(ctx, "user-2"); err != nil {
		t.Fatalf("wipe failed: %v", err)
	}
	count, _ := store.CountMeals(ctx, "user-1")
	if count != 1 {
		t.Errorf("wipe of user-2 touched user-1's meals")
	}
}
