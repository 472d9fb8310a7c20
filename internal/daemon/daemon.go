// Package daemon provides the background sync daemon.
//
// The daemon:
// 1. Runs periodic sync passes for every tracked user
// 2. Backs off per user after failed passes
// 3. Periodically prunes expired remote tombstones
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mealjournal/mealsync/internal/cache"
	"github.com/mealjournal/mealsync/internal/syncer"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often each tracked user gets a sync pass.
	SyncInterval time.Duration

	// PruneInterval is how often tombstone pruning runs.
	PruneInterval time.Duration

	// MaxBackoff caps the per-user retry delay after repeated failures.
	MaxBackoff time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:  30 * time.Second,
		PruneInterval: 6 * time.Hour,
		MaxBackoff:    10 * time.Minute,
		Logger:        log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon drives periodic sync passes against the remote store.
type Daemon struct {
	engine *syncer.Engine
	store  *cache.Store
	config *Config

	backoff   map[string]time.Duration
	nextTry   map[string]time.Time
	backoffMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Daemon instance with default configuration.
//
// Use Start() to begin the periodic passes.
func New(engine *syncer.Engine, store *cache.Store) (*Daemon, error) {
	return NewWithConfig(engine, store, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(engine *syncer.Engine, store *cache.Store, config *Config) (*Daemon, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.SyncInterval <= 0 {
		return nil, fmt.Errorf("sync interval must be positive")
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 10 * time.Minute
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		engine:  engine,
		store:   store,
		config:  config,
		backoff: make(map[string]time.Duration),
		nextTry: make(map[string]time.Time),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// TrackUser registers a user for periodic passes. Tracking is persistent:
// the user row lands in the cache, so a restarted daemon picks it up again.
func (d *Daemon) TrackUser(ctx context.Context, userID string) error {
	_, err := d.store.GetOrCreateUser(ctx, userID)
	return err
}

// Start begins the daemon's operation.
//
// An immediate pass runs for every tracked user, then passes repeat every
// SyncInterval. This blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	d.syncAll()

	d.wg.Add(2)
	go d.syncLoop()
	go d.pruneLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. A pass already in progress runs
// to completion; the cursor discipline makes an interrupted schedule safe
// regardless.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")
	d.cancel()
	d.wg.Wait()
	d.config.Logger.Println("Daemon stopped")
	return nil
}

// syncLoop runs periodic passes for all tracked users.
func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.syncAll()
		}
	}
}

// syncAll runs one pass per tracked user, honoring per-user backoff.
func (d *Daemon) syncAll() {
	users, err := d.store.ListUsers(d.ctx)
	if err != nil {
		d.config.Logger.Printf("Error listing users: %v", err)
		return
	}

	for _, user := range users {
		if d.ctx.Err() != nil {
			return
		}
		if !d.shouldAttempt(user.UserID) {
			continue
		}

		_, err := d.engine.SyncUser(d.ctx, user.UserID)
		switch {
		case err == nil:
			d.clearBackoff(user.UserID)
		case errors.Is(err, syncer.ErrPassInFlight):
			// Another caller (CLI, dashboard) is already on it.
		default:
			d.recordFailure(user.UserID)
		}
	}
}

// shouldAttempt reports whether the user's backoff window has elapsed.
func (d *Daemon) shouldAttempt(userID string) bool {
	d.backoffMu.Lock()
	defer d.backoffMu.Unlock()
	next, ok := d.nextTry[userID]
	return !ok || time.Now().After(next)
}

// recordFailure doubles the user's retry delay, up to MaxBackoff.
func (d *Daemon) recordFailure(userID string) {
	d.backoffMu.Lock()
	defer d.backoffMu.Unlock()

	delay := d.backoff[userID]
	if delay == 0 {
		delay = d.config.SyncInterval
	} else {
		delay *= 2
	}
	if delay > d.config.MaxBackoff {
		delay = d.config.MaxBackoff
	}
	d.backoff[userID] = delay
	d.nextTry[userID] = time.Now().Add(delay)
	d.config.Logger.Printf("User %s backing off for %v", userID, delay)
}

func (d *Daemon) clearBackoff(userID string) {
	d.backoffMu.Lock()
	defer d.backoffMu.Unlock()
	delete(d.backoff, userID)
	delete(d.nextTry, userID)
}

// pruneLoop periodically removes expired remote tombstones.
func (d *Daemon) pruneLoop() {
	defer d.wg.Done()

	if d.config.PruneInterval <= 0 {
		return
	}

	ticker := time.NewTicker(d.config.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.pruneAll()
		}
	}
}

func (d *Daemon) pruneAll() {
	users, err := d.store.ListUsers(d.ctx)
	if err != nil {
		d.config.Logger.Printf("Error listing users: %v", err)
		return
	}
	for _, user := range users {
		if d.ctx.Err() != nil {
			return
		}
		n, err := d.engine.PruneTombstones(d.ctx, user.UserID)
		if err != nil {
			d.config.Logger.Printf("Error pruning tombstones for %s: %v", user.UserID, err)
			continue
		}
		if n > 0 {
			d.config.Logger.Printf("Pruned %d tombstones for %s", n, user.UserID)
		}
	}
}
