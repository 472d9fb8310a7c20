// Package dashboard event handling: bridges sync engine pass summaries to
// WebSocket broadcasts.
package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/mealjournal/mealsync/internal/cache"
	"github.com/mealjournal/mealsync/internal/syncer"
)

// Handler subscribes to sync pass summaries and formats them as dashboard
// messages. Register OnPass with the engine via AddListener.
type Handler struct {
	server *Server
	store  *cache.Store
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a new event handler connected to a dashboard server.
// The cache store is used for the meal and user totals in stats broadcasts.
func NewHandler(server *Server, store *cache.Store, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		server: server,
		store:  store,
		logger: logger,
		stats: StatsData{
			Cursors: make(map[string]int64),
		},
	}
}

// OnPass handles a finished sync pass. Safe to call concurrently; the
// engine invokes it synchronously at the end of every pass.
func (h *Handler) OnPass(sum syncer.Summary) {
	h.mu.Lock()
	h.stats.PassesRun++
	if sum.Error != "" {
		h.stats.PassesFailed++
	} else {
		h.stats.Applied += sum.Updated
		h.stats.Deleted += sum.Deleted
		h.stats.Cursors[sum.UserID] = sum.CursorAfter
	}
	h.mu.Unlock()

	dataJSON, err := json.Marshal(sum)
	if err != nil {
		h.logger.Printf("Failed to marshal pass summary: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypePass,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})

	h.broadcastStats()
}

// broadcastStats refreshes the cache-wide totals and sends the stats
// snapshot to all clients.
func (h *Handler) broadcastStats() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h.mu.Lock()
	if users, err := h.store.ListUsers(ctx); err == nil {
		h.stats.Users = len(users)
		var total int64
		for _, user := range users {
			if n, err := h.store.CountMeals(ctx, user.UserID); err == nil {
				total += n
			}
		}
		h.stats.CachedMeals = total
	}
	snapshot := h.statsLocked()
	h.mu.Unlock()

	dataJSON, err := json.Marshal(snapshot)
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

// statsLocked deep-copies the stats. Callers must hold mu.
func (h *Handler) statsLocked() StatsData {
	out := h.stats
	out.Cursors = make(map[string]int64, len(h.stats.Cursors))
	for user, cursor := range h.stats.Cursors {
		out.Cursors[user] = cursor
	}
	return out
}

// GetStats returns the current statistics snapshot.
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statsLocked()
}
