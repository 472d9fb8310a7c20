package cache

import (
	"context"
	"fmt"

	"github.com/mealjournal/mealsync/internal/journal"
)

// GetOrCreateUser returns the sync metadata row for the user, creating it
// with a zero cursor on first sight. A zero cursor means the next delta
// query matches every document, which is exactly what a fresh cache needs.
func (s *Store) GetOrCreateUser(ctx context.Context, userID string) (*journal.UserMeta, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	if _, err := s.conn.ExecContext(ctx,
		"INSERT OR IGNORE INTO users (user_id, is_first_time, last_fetched) VALUES (?, 1, 0)",
		userID); err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", userID, err)
	}

	meta := &journal.UserMeta{}
	var firstTime int64
	err := s.conn.QueryRowContext(ctx,
		"SELECT user_id, is_first_time, last_fetched FROM users WHERE user_id = ?",
		userID).Scan(&meta.UserID, &firstTime, &meta.LastFetched)
	if err != nil {
		return nil, fmt.Errorf("failed to read user %s: %w", userID, err)
	}
	meta.IsFirstTime = firstTime != 0

	return meta, nil
}

// AdvanceCursor sets the user's last_fetched stamp. The caller must only
// invoke this after a delta has been fully applied; the sync engine also
// clears the first-time flag here since a completed pass means the cache
// has been populated at least once.
//
// The cursor never moves backwards: an advance to a stamp at or below the
// current one is ignored, so overlapping re-fetches after a failed pass
// can't regress it.
func (s *Store) AdvanceCursor(ctx context.Context, userID string, stamp int64) error {
	_, err := s.conn.ExecContext(ctx,
		"UPDATE users SET last_fetched = ?, is_first_time = 0 WHERE user_id = ? AND last_fetched < ?",
		stamp, userID, stamp)
	if err != nil {
		return fmt.Errorf("failed to advance cursor for user %s: %w", userID, err)
	}
	return nil
}

// ListUsers returns all known sync metadata rows, ordered by user id.
// Used by the daemon to decide which users need periodic passes.
func (s *Store) ListUsers(ctx context.Context) ([]*journal.UserMeta, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT user_id, is_first_time, last_fetched FROM users ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*journal.UserMeta
	for rows.Next() {
		meta := &journal.UserMeta{}
		var firstTime int64
		if err := rows.Scan(&meta.UserID, &firstTime, &meta.LastFetched); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		meta.IsFirstTime = firstTime != 0
		users = append(users, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}
