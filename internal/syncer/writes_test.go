package syncer

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	source := newFakeRemote()
	source.seedMeal("m1", 1000, map[string]int64{"Pain": 6})
	source.seedMeal("m2", 2000, map[string]int64{"Nausea": 1})

	eng, _ := newTestEngine(t, source, Config{})
	if _, err := eng.SyncUser(ctx, testUser); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	var backup bytes.Buffer
	n, err := eng.Export(ctx, testUser, &backup)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 exported meals, got %d", n)
	}

	// Restore into a fresh remote store and cache.
	target := newFakeRemote()
	eng2, store2 := newTestEngine(t, target, Config{})

	n, err = eng2.Import(ctx, testUser, &backup)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 imported meals, got %d", n)
	}

	if len(target.meals) != 2 {
		t.Errorf("expected 2 remote meals after import, got %d", len(target.meals))
	}
	if target.profile.MealNum != 2 {
		t.Errorf("expected meal counter 2 after import, got %d", target.profile.MealNum)
	}

	meal, err := store2.GetMeal(ctx, testUser, "m1")
	if err != nil {
		t.Fatalf("imported meal not cached: %v", err)
	}
	if meal.MealSymptoms["Pain"] != 6 {
		t.Errorf("symptoms lost in restore: %+v", meal.MealSymptoms)
	}
}

func TestImportAssignsMissingIDs(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	eng, _ := newTestEngine(t, rem, Config{})

	input := `{"meal_started":1000,"meal_symptoms":{"Pain":2}}
`
	n, err := eng.Import(ctx, testUser, strings.NewReader(input))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 imported meal, got %d", n)
	}
	for id, meal := range rem.meals {
		if id == "" || meal.MealID == "" {
			t.Error("imported meal missing an assigned id")
		}
		if meal.UserID != testUser {
			t.Errorf("expected user id stamped on import, got %q", meal.UserID)
		}
	}
}

func TestImportRejectsInvalidBackup(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	eng, _ := newTestEngine(t, rem, Config{})

	// Out-of-range intensity: the whole import aborts, nothing is written.
	input := `{"meal_started":1000,"meal_symptoms":{"Pain":99}}
`
	if _, err := eng.Import(ctx, testUser, strings.NewReader(input)); err == nil {
		t.Fatal("expected import to reject invalid backup")
	}
	if len(rem.meals) != 0 {
		t.Errorf("invalid import wrote %d meals", len(rem.meals))
	}
}

func TestGetMealsSyncsWhenStale(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	rem.seedMeal("m1", 1000, map[string]int64{"Pain": 4})

	eng, _ := newTestEngine(t, rem, Config{})

	// No explicit sync: the stale read itself runs the pass.
	meals, err := eng.GetMeals(ctx, testUser)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(meals) != 1 || meals[0].MealSymptoms["Pain"] != 4 {
		t.Fatalf("expected stale read to sync first, got %+v", meals)
	}

	// A failing remote degrades to serving the cache instead of erroring.
	rem.seedMeal("m2", 2000, nil)
	rem.failUpdateFetch = true
	meals, err = eng.GetMeals(ctx, testUser)
	if err != nil {
		t.Fatalf("read after remote failure failed: %v", err)
	}
	if len(meals) != 1 {
		t.Errorf("expected 1 cached meal while remote is down, got %d", len(meals))
	}
}

func TestUserStatus(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	rem.seedMeal("m1", 1000, nil)

	eng, _ := newTestEngine(t, rem, Config{})

	status, err := eng.UserStatus(ctx, testUser)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !status.Stale || status.LocalMeals != 0 || status.RemoteMeals != 1 {
		t.Errorf("unexpected pre-sync status: %+v", status)
	}

	if _, err := eng.SyncUser(ctx, testUser); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	status, err = eng.UserStatus(ctx, testUser)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Stale || status.LocalMeals != 1 || status.Cursor == 0 {
		t.Errorf("unexpected post-sync status: %+v", status)
	}
}
