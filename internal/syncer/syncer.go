// Package syncer implements cursor-based delta synchronization between the
// local cache and the remote document store.
//
// A sync pass is the unit of work: check staleness, fetch updates, fetch
// deletions, apply both to the cache, then advance the cursor. The cursor
// only moves after a fully applied pass and only to the maximum lastUpdated
// stamp actually observed, so a failed or interrupted pass re-fetches a
// window it has already partially applied. Every application is idempotent,
// making the re-fetch harmless.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mealjournal/mealsync/internal/cache"
	"github.com/mealjournal/mealsync/internal/journal"
	"github.com/mealjournal/mealsync/internal/remote"
)

// ErrPassInFlight is returned when a sync pass is requested for a user who
// already has one running. Passes are single-flight per user; the caller
// should treat this as "already being handled", not as a failure.
var ErrPassInFlight = errors.New("syncer: sync pass already in flight for user")

// State identifies where in a pass the engine currently is. States exist
// for observability; transitions are logged and the terminal state is
// carried on the pass summary.
type State string

const (
	StateIdle           State = "IDLE"
	StateCheckStaleness State = "CHECKING_STALENESS"
	StateFetchUpdates   State = "FETCHING_UPDATES"
	StateFetchDeletions State = "FETCHING_DELETIONS"
	StateApplying       State = "APPLYING"
	StateAdvanceCursor  State = "ADVANCING_CURSOR"
	StateError          State = "ERROR"
)

// DefaultTombstoneRetention is how long tombstones are kept before the
// maintenance pruner may remove them. Any device offline longer than this
// must take the full-fetch path to avoid resurrecting deleted meals.
const DefaultTombstoneRetention = 720 * time.Hour

// ReminderScheduler registers and cancels platform notifications for
// reminders. The engine treats it as a black box: it reconciles which
// reminders should exist and delegates the actual scheduling.
type ReminderScheduler interface {
	Schedule(ctx context.Context, reminderID string) error
	Cancel(ctx context.Context, reminderID string) error
}

// Summary describes one completed (or failed) sync pass.
type Summary struct {
	UserID       string        `json:"userId"`
	FullFetch    bool          `json:"fullFetch"`
	Updated      int           `json:"updated"`
	Deleted      int           `json:"deleted"`
	CursorBefore int64         `json:"cursorBefore"`
	CursorAfter  int64         `json:"cursorAfter"`
	Duration     time.Duration `json:"duration"`
	State        State         `json:"state"`
	Error        string        `json:"error,omitempty"`
}

// Config holds the engine's tunables. The zero value is usable.
type Config struct {
	// TombstoneRetention bounds how far back tombstones are preserved.
	// Zero means DefaultTombstoneRetention.
	TombstoneRetention time.Duration

	// Scheduler receives reminder schedule/cancel requests. Nil disables
	// notification scheduling; the reminder mirror is still maintained.
	Scheduler ReminderScheduler

	// Logger for pass progress. Nil means a default logger on stderr.
	Logger *log.Logger
}

// Engine coordinates sync passes and write-through mutations. All methods
// are safe for concurrent use.
type Engine struct {
	cache     *cache.Store
	remote    remote.Store
	sched     ReminderScheduler
	log       *log.Logger
	retention time.Duration

	mu        sync.Mutex
	inflight  map[string]bool
	listeners []func(Summary)
}

// New creates a sync engine over the given cache and remote store.
func New(store *cache.Store, rem remote.Store, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[syncer] ", log.LstdFlags)
	}
	retention := cfg.TombstoneRetention
	if retention <= 0 {
		retention = DefaultTombstoneRetention
	}
	return &Engine{
		cache:     store,
		remote:    rem,
		sched:     cfg.Scheduler,
		log:       logger,
		retention: retention,
		inflight:  make(map[string]bool),
	}
}

// AddListener registers a callback invoked with the summary of every
// finished pass, including failed ones. Callbacks run synchronously at the
// end of the pass and must not block.
func (e *Engine) AddListener(fn func(Summary)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *Engine) notify(s Summary) {
	e.mu.Lock()
	fns := make([]func(Summary), len(e.listeners))
	copy(fns, e.listeners)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// acquire marks the user's pass slot taken. Returns false when a pass is
// already running.
func (e *Engine) acquire(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight[userID] {
		return false
	}
	e.inflight[userID] = true
	return true
}

func (e *Engine) release(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, userID)
}

// SyncUser runs one sync pass for the user and returns its summary. If a
// pass for the same user is already running, ErrPassInFlight is returned
// immediately without touching any state.
//
// On error the cursor is left untouched and the cache keeps serving
// whatever it already held; partially applied entities are safe because
// the next pass re-fetches and re-applies the same window.
func (e *Engine) SyncUser(ctx context.Context, userID string) (Summary, error) {
	if userID == "" {
		return Summary{}, fmt.Errorf("user id is required")
	}
	if !e.acquire(userID) {
		return Summary{}, ErrPassInFlight
	}
	defer e.release(userID)

	start := time.Now()
	summary, err := e.runPass(ctx, userID)
	summary.UserID = userID
	summary.Duration = time.Since(start)
	if err != nil {
		summary.State = StateError
		summary.Error = err.Error()
		e.log.Printf("Sync pass failed for user %s: %v", userID, err)
	} else {
		summary.State = StateIdle
		e.log.Printf("Sync pass for user %s: %d updated, %d deleted, cursor %d -> %d (full=%v, %v)",
			userID, summary.Updated, summary.Deleted,
			summary.CursorBefore, summary.CursorAfter, summary.FullFetch, summary.Duration)
	}
	e.notify(summary)
	return summary, err
}

func (e *Engine) runPass(ctx context.Context, userID string) (Summary, error) {
	var sum Summary

	e.transition(userID, StateCheckStaleness)
	meta, err := e.cache.GetOrCreateUser(ctx, userID)
	if err != nil {
		return sum, err
	}
	sum.CursorBefore = meta.LastFetched
	sum.CursorAfter = meta.LastFetched

	profile, err := e.remote.EnsureUser(ctx, userID)
	if err != nil {
		return sum, fmt.Errorf("staleness check failed: %w", err)
	}

	localCount, err := e.cache.CountMeals(ctx, userID)
	if err != nil {
		return sum, err
	}

	// Full fetch when the cache was never populated or has visibly fallen
	// behind the remote counter. Drift the other way (local > remote) is
	// ignored: the counter is a heuristic and delta sync self-heals.
	full := meta.IsFirstTime || localCount < profile.MealNum
	sum.FullFetch = full

	var maxStamp int64
	if full {
		maxStamp, sum.Updated, err = e.applyFullFetch(ctx, userID)
		if err != nil {
			return sum, err
		}
	} else {
		maxStamp, sum.Updated, sum.Deleted, err = e.applyDelta(ctx, userID, meta.LastFetched)
		if err != nil {
			return sum, err
		}
	}

	if err := e.reconcileReminders(ctx, userID); err != nil {
		return sum, err
	}

	e.transition(userID, StateAdvanceCursor)
	if maxStamp > meta.LastFetched {
		if err := e.cache.AdvanceCursor(ctx, userID, maxStamp); err != nil {
			return sum, err
		}
		sum.CursorAfter = maxStamp
	} else if meta.IsFirstTime {
		// Empty remote store on first contact: nothing to apply, but the
		// cache is now authoritatively populated (with nothing), so clear
		// the first-time flag by committing the existing cursor.
		if err := e.cache.AdvanceCursor(ctx, userID, meta.LastFetched+1); err != nil {
			return sum, err
		}
		sum.CursorAfter = meta.LastFetched + 1
	}

	return sum, nil
}

// applyDelta fetches and applies the update and deletion windows above the
// cursor. Updates are applied before deletions so a meal that was both
// updated and deleted inside the window ends up deleted.
func (e *Engine) applyDelta(ctx context.Context, userID string, cursor int64) (maxStamp int64, updated, deleted int, err error) {
	e.transition(userID, StateFetchUpdates)
	updates, err := e.remote.FetchUpdatesSince(ctx, userID, cursor)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("update fetch failed: %w", err)
	}

	e.transition(userID, StateFetchDeletions)
	tombstones, err := e.remote.FetchDeletionsSince(ctx, userID, cursor)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("deletion fetch failed: %w", err)
	}

	e.transition(userID, StateApplying)
	for _, meal := range updates {
		meal.UserID = userID
		if err := e.cache.UpsertMeal(ctx, meal); err != nil {
			return 0, 0, 0, fmt.Errorf("failed to apply update for meal %s: %w", meal.MealID, err)
		}
		updated++
		if meal.LastUpdated > maxStamp {
			maxStamp = meal.LastUpdated
		}
	}
	for _, ts := range tombstones {
		if err := e.cache.DeleteMeal(ctx, userID, ts.MealID); err != nil {
			return 0, 0, 0, fmt.Errorf("failed to apply deletion for meal %s: %w", ts.MealID, err)
		}
		deleted++
		if ts.LastUpdated > maxStamp {
			maxStamp = ts.LastUpdated
		}
	}

	return maxStamp, updated, deleted, nil
}

// applyFullFetch replaces the cached meal set with the complete remote set.
// Local meals absent from the remote are removed afterwards, so deletions
// that happened while the cache was stale take effect without consulting
// the tombstone log.
func (e *Engine) applyFullFetch(ctx context.Context, userID string) (maxStamp int64, updated int, err error) {
	e.transition(userID, StateFetchUpdates)
	meals, err := e.remote.FetchAllMeals(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("full fetch failed: %w", err)
	}

	e.transition(userID, StateApplying)
	remoteIDs := make(map[string]bool, len(meals))
	for _, meal := range meals {
		meal.UserID = userID
		if err := e.cache.UpsertMeal(ctx, meal); err != nil {
			return 0, 0, fmt.Errorf("failed to apply meal %s: %w", meal.MealID, err)
		}
		remoteIDs[meal.MealID] = true
		updated++
		if meal.LastUpdated > maxStamp {
			maxStamp = meal.LastUpdated
		}
	}

	local, err := e.cache.ListMeals(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	for _, meal := range local {
		if !remoteIDs[meal.MealID] {
			if err := e.cache.DeleteMeal(ctx, userID, meal.MealID); err != nil {
				return 0, 0, fmt.Errorf("failed to drop stale meal %s: %w", meal.MealID, err)
			}
		}
	}

	return maxStamp, updated, nil
}

// reconcileReminders diffs the remote reminder list against the local
// mirror: new ids are mirrored and scheduled, ids gone remotely are
// cancelled and removed.
func (e *Engine) reconcileReminders(ctx context.Context, userID string) error {
	remoteIDs, err := e.remote.ListReminders(ctx, userID)
	if err != nil {
		return fmt.Errorf("reminder fetch failed: %w", err)
	}
	remoteSet := make(map[string]bool, len(remoteIDs))
	for _, id := range remoteIDs {
		remoteSet[id] = true
	}

	local, err := e.cache.ListReminders(ctx)
	if err != nil {
		return err
	}
	localSet := make(map[string]bool, len(local))
	for _, rem := range local {
		localSet[rem.ReminderID] = true
	}

	for _, id := range remoteIDs {
		if localSet[id] {
			continue
		}
		if err := e.cache.AddReminder(ctx, id); err != nil {
			return err
		}
		if err := e.scheduleReminder(ctx, id); err != nil {
			return err
		}
	}

	for _, rem := range local {
		if remoteSet[rem.ReminderID] {
			continue
		}
		if e.sched != nil && rem.IsScheduled {
			if err := e.sched.Cancel(ctx, rem.ReminderID); err != nil {
				return fmt.Errorf("failed to cancel reminder %s: %w", rem.ReminderID, err)
			}
		}
		if err := e.cache.DeleteReminder(ctx, rem.ReminderID); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) scheduleReminder(ctx context.Context, reminderID string) error {
	if e.sched == nil {
		return nil
	}
	if err := e.sched.Schedule(ctx, reminderID); err != nil {
		return fmt.Errorf("failed to schedule reminder %s: %w", reminderID, err)
	}
	return e.cache.SetReminderScheduled(ctx, reminderID, true)
}

// PruneTombstones removes remote tombstones older than the retention
// window, measured back from the user's cursor. A user with no committed
// cursor is skipped; pruning anything before the first full pass could
// hide deletions from it.
func (e *Engine) PruneTombstones(ctx context.Context, userID string) (int, error) {
	meta, err := e.cache.GetOrCreateUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if meta.LastFetched == 0 {
		return 0, nil
	}
	olderThan := meta.LastFetched - e.retention.Milliseconds()
	if olderThan <= 0 {
		return 0, nil
	}
	return e.remote.PruneTombstones(ctx, userID, olderThan)
}

// Status reports the user's sync position without running a pass.
type Status struct {
	UserID      string `json:"userId"`
	Cursor      int64  `json:"cursor"`
	LocalMeals  int64  `json:"localMeals"`
	RemoteMeals int64  `json:"remoteMeals"`
	FirstTime   bool   `json:"firstTime"`
	Stale       bool   `json:"stale"`
}

// UserStatus compares the local cache against the remote counter and
// returns the user's current sync position.
func (e *Engine) UserStatus(ctx context.Context, userID string) (*Status, error) {
	meta, err := e.cache.GetOrCreateUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	localCount, err := e.cache.CountMeals(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := e.remote.EnsureUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Status{
		UserID:      userID,
		Cursor:      meta.LastFetched,
		LocalMeals:  localCount,
		RemoteMeals: profile.MealNum,
		FirstTime:   meta.IsFirstTime,
		Stale:       meta.IsFirstTime || localCount < profile.MealNum,
	}, nil
}

// GetMeals returns the user's meals, newest first. A visibly stale cache
// triggers a sync pass first; if that pass fails (offline, remote outage)
// the cached contents are returned anyway, stale but available.
func (e *Engine) GetMeals(ctx context.Context, userID string) ([]*journal.Meal, error) {
	status, err := e.UserStatus(ctx, userID)
	if err == nil && status.Stale {
		if _, err := e.SyncUser(ctx, userID); err != nil && !errors.Is(err, ErrPassInFlight) {
			e.log.Printf("Serving stale cache for user %s: %v", userID, err)
		}
	}
	return e.cache.ListMeals(ctx, userID)
}

func (e *Engine) transition(userID string, s State) {
	e.log.Printf("User %s: %s", userID, s)
}
