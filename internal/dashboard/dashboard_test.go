package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mealjournal/mealsync/internal/cache"
	"github.com/mealjournal/mealsync/internal/syncer"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(&Config{Port: 0, Logger: log.New(io.Discard, "", 0)})
	if err := s.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestHealthEndpoint(t *testing.T) {
	s := startTestServer(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/health", s.GetAddr()))
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected health body: %+v", body)
	}
}

func TestBroadcastReachesClient(t *testing.T) {
	s := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", s.GetAddr()), nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// First frame is the welcome message.
	_, welcome, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read welcome: %v", err)
	}
	var welcomeMsg Message
	if err := json.Unmarshal(welcome, &welcomeMsg); err != nil {
		t.Fatalf("failed to decode welcome: %v", err)
	}
	if welcomeMsg.Type != MessageTypeStats {
		t.Errorf("expected stats welcome, got %s", welcomeMsg.Type)
	}

	payload, _ := json.Marshal(syncer.Summary{UserID: "user-1", Updated: 3})
	s.Broadcast(Message{Type: MessageTypePass, Data: payload})

	_, frame, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		t.Fatalf("failed to decode broadcast: %v", err)
	}
	if msg.Type != MessageTypePass {
		t.Errorf("expected sync_pass message, got %s", msg.Type)
	}
	var sum syncer.Summary
	if err := json.Unmarshal(msg.Data, &sum); err != nil {
		t.Fatalf("failed to decode summary: %v", err)
	}
	if sum.UserID != "user-1" || sum.Updated != 3 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}

func TestHandlerAccumulatesStats(t *testing.T) {
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	defer store.Close()
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	s := NewServer(&Config{Port: 0, Logger: log.New(io.Discard, "", 0)})
	h := NewHandler(s, store, log.New(io.Discard, "", 0))

	h.OnPass(syncer.Summary{UserID: "user-1", Updated: 2, Deleted: 1, CursorAfter: 40})
	h.OnPass(syncer.Summary{UserID: "user-1", Error: "network down", State: syncer.StateError})

	stats := h.GetStats()
	if stats.PassesRun != 2 || stats.PassesFailed != 1 {
		t.Errorf("unexpected pass counts: %+v", stats)
	}
	if stats.Applied != 2 || stats.Deleted != 1 {
		t.Errorf("unexpected apply totals: %+v", stats)
	}
	if stats.Cursors["user-1"] != 40 {
		t.Errorf("expected cursor 40 recorded, got %d", stats.Cursors["user-1"])
	}

	// Mutating the snapshot must not leak back into the handler.
	stats.Cursors["user-1"] = 0
	if h.GetStats().Cursors["user-1"] != 40 {
		t.Error("stats snapshot is not a copy")
	}
}
