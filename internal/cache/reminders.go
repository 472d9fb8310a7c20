package cache

import (
	"context"
	"fmt"

	"github.com/mealjournal/mealsync/internal/journal"
)

// AddReminder mirrors a remote reminder locally. Adding an id that already
// exists is a no-op so the is_scheduled flag survives repeated reconcile
// passes.
func (s *Store) AddReminder(ctx context.Context, reminderID string) error {
	if reminderID == "" {
		return fmt.Errorf("reminder id is required")
	}
	_, err := s.conn.ExecContext(ctx,
		"INSERT OR IGNORE INTO reminders (reminder_id, is_scheduled) VALUES (?, 0)",
		reminderID)
	if err != nil {
		return fmt.Errorf("failed to add reminder %s: %w", reminderID, err)
	}
	return nil
}

// SetReminderScheduled records whether the local notification for this
// reminder has been registered with the platform.
func (s *Store) SetReminderScheduled(ctx context.Context, reminderID string, scheduled bool) error {
	flag := 0
	if scheduled {
		flag = 1
	}
	_, err := s.conn.ExecContext(ctx,
		"UPDATE reminders SET is_scheduled = ? WHERE reminder_id = ?", flag, reminderID)
	if err != nil {
		return fmt.Errorf("failed to update reminder %s: %w", reminderID, err)
	}
	return nil
}

// DeleteReminder removes a mirrored reminder. Idempotent.
func (s *Store) DeleteReminder(ctx context.Context, reminderID string) error {
	_, err := s.conn.ExecContext(ctx,
		"DELETE FROM reminders WHERE reminder_id = ?", reminderID)
	if err != nil {
		return fmt.Errorf("failed to delete reminder %s: %w", reminderID, err)
	}
	return nil
}

// ListReminders returns all mirrored reminders ordered by id.
func (s *Store) ListReminders(ctx context.Context) ([]*journal.Reminder, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT reminder_id, is_scheduled FROM reminders ORDER BY reminder_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*journal.Reminder
	for rows.Next() {
		rem := &journal.Reminder{}
		var scheduled int64
		if err := rows.Scan(&rem.ReminderID, &scheduled); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		rem.IsScheduled = scheduled != 0
		reminders = append(reminders, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminders: %w", err)
	}

	return reminders, nil
}
