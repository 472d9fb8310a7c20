package cache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mealjournal/mealsync/internal/journal"
)

// UpsertMeal inserts or replaces a meal and its full symptom-entry set.
//
// The incoming snapshot is authoritative for the entity: replacing a meal
// clears all existing symptom rows and rewrites them from the snapshot, so
// symptom names deleted remotely disappear locally too. The meal row and
// its symptom rows are written in one transaction.
func (s *Store) UpsertMeal(ctx context.Context, meal *journal.Meal) error {
	if err := meal.Validate(); err != nil {
		return fmt.Errorf("invalid meal: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
	INSERT INTO meals (user_id, meal_id, meal_started, symptom_notes)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(meal_id) DO UPDATE SET
		user_id = excluded.user_id,
		meal_started = excluded.meal_started,
		symptom_notes = excluded.symptom_notes
	`
	if _, err := tx.ExecContext(ctx, upsert,
		meal.UserID, meal.MealID, meal.MealStarted, meal.SymptomNotes); err != nil {
		return fmt.Errorf("failed to upsert meal %s: %w", meal.MealID, err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM meal_symptoms WHERE user_id = ? AND meal_id = ?",
		meal.UserID, meal.MealID); err != nil {
		return fmt.Errorf("failed to clear symptom entries for meal %s: %w", meal.MealID, err)
	}

	for name, value := range meal.MealSymptoms {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO meal_symptoms (user_id, meal_id, property, value) VALUES (?, ?, ?, ?)",
			meal.UserID, meal.MealID, name, value); err != nil {
			return fmt.Errorf("failed to write symptom %q for meal %s: %w", name, meal.MealID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit meal upsert: %w", err)
	}

	return nil
}

// DeleteMeal removes a meal row and all its symptom entries.
// Deleting a meal that doesn't exist is a no-op, not an error.
func (s *Store) DeleteMeal(ctx context.Context, userID, mealID string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM meals WHERE user_id = ? AND meal_id = ?", userID, mealID); err != nil {
		return fmt.Errorf("failed to delete meal %s: %w", mealID, err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM meal_symptoms WHERE user_id = ? AND meal_id = ?", userID, mealID); err != nil {
		return fmt.Errorf("failed to delete symptom entries for meal %s: %w", mealID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit meal delete: %w", err)
	}

	return nil
}

// ListMeals returns all meals for the user ordered by start time descending,
// each with its symptom map reconstructed from the entry rows.
func (s *Store) ListMeals(ctx context.Context, userID string) ([]*journal.Meal, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT user_id, meal_id, meal_started, symptom_notes FROM meals WHERE user_id = ? ORDER BY meal_started DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query meals: %w", err)
	}
	defer rows.Close()

	meals, byID, err := scanMeals(rows)
	if err != nil {
		return nil, err
	}
	if len(meals) == 0 {
		return meals, nil
	}

	sympRows, err := s.conn.QueryContext(ctx,
		"SELECT meal_id, property, value FROM meal_symptoms WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query symptom entries: %w", err)
	}
	defer sympRows.Close()

	for sympRows.Next() {
		var mealID, property string
		var value int64
		if err := sympRows.Scan(&mealID, &property, &value); err != nil {
			return nil, fmt.Errorf("failed to scan symptom entry: %w", err)
		}
		if meal, ok := byID[mealID]; ok {
			meal.MealSymptoms[property] = value
		}
	}
	if err := sympRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symptom entries: %w", err)
	}

	return meals, nil
}

// GetMeal retrieves a single meal with its symptom map.
// Returns sql.ErrNoRows if the meal is not cached.
func (s *Store) GetMeal(ctx context.Context, userID, mealID string) (*journal.Meal, error) {
	meal := &journal.Meal{MealSymptoms: map[string]int64{}}
	err := s.conn.QueryRowContext(ctx,
		"SELECT user_id, meal_id, meal_started, symptom_notes FROM meals WHERE user_id = ? AND meal_id = ?",
		userID, mealID).
		Scan(&meal.UserID, &meal.MealID, &meal.MealStarted, &meal.SymptomNotes)
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryContext(ctx,
		"SELECT property, value FROM meal_symptoms WHERE user_id = ? AND meal_id = ?",
		userID, mealID)
	if err != nil {
		return nil, fmt.Errorf("failed to query symptom entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var property string
		var value int64
		if err := rows.Scan(&property, &value); err != nil {
			return nil, fmt.Errorf("failed to scan symptom entry: %w", err)
		}
		meal.MealSymptoms[property] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symptom entries: %w", err)
	}

	return meal, nil
}

// CountMeals returns the number of cached meals for the user. The sync
// engine compares this against the remote meal counter to decide between
// a full and a delta fetch.
func (s *Store) CountMeals(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM meals WHERE user_id = ?", userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count meals: %w", err)
	}
	return count, nil
}

// WipeMeals removes every cached meal and symptom entry for the user,
// forcing the next sync pass down the full-fetch path. The user's cursor
// is reset in the same transaction so stale deltas aren't skipped.
func (s *Store) WipeMeals(ctx context.Context, userID string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM meals WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to wipe meals: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM meal_symptoms WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to wipe symptom entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE users SET last_fetched = 0 WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit wipe: %w", err)
	}

	return nil
}

// scanMeals scans meal rows and returns them alongside an id index used to
// attach symptom entries.
func scanMeals(rows *sql.Rows) ([]*journal.Meal, map[string]*journal.Meal, error) {
	meals := []*journal.Meal{}
	byID := make(map[string]*journal.Meal)

	for rows.Next() {
		meal := &journal.Meal{MealSymptoms: map[string]int64{}}
		if err := rows.Scan(&meal.UserID, &meal.MealID, &meal.MealStarted, &meal.SymptomNotes); err != nil {
			return nil, nil, fmt.Errorf("failed to scan meal: %w", err)
		}
		meals = append(meals, meal)
		byID[meal.MealID] = meal
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating meals: %w", err)
	}

	return meals, byID, nil
}
