package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"typestake/internal/logger"
)

// Hub fans duel updates out to websocket subscribers. It implements
// service.Notifier.
type Hub struct {
	Rooms map[uint64]*Room
	mu    sync.RWMutex

	snapshotFn SnapshotFunc
}

// SnapshotFunc returns the current state of a duel for a watcher's sync request.
type SnapshotFunc func(ctx context.Context, duelID uint64) (interface{}, error)

var errNoSnapshot = errors.New("no snapshot source")

// SetSnapshot installs the source answering "sync" frames.
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.mu.Lock()
	h.snapshotFn = fn
	h.mu.Unlock()
}

func (h *Hub) snapshot(ctx context.Context, duelID uint64) (interface{}, error) {
	h.mu.RLock()
	fn := h.snapshotFn
	h.mu.RUnlock()
	if fn == nil {
		return nil, errNoSnapshot
	}
	return fn(ctx, duelID)
}

func NewHub() *Hub {
	return &Hub{
		Rooms: make(map[uint64]*Room),
	}
}

// Join subscribes c to its duel's room.
func (h *Hub) Join(c *Client) *Room {
	h.mu.Lock()
	room, ok := h.Rooms[c.DuelID]
	if !ok {
		room = NewRoom(c.DuelID)
		h.Rooms[c.DuelID] = room
	}
	h.mu.Unlock()

	room.add(c)
	logger.Debug("ws: client joined", "client", c.ID, "duel_id", c.DuelID, "clients", room.size())
	return room
}

func (h *Hub) OnDisconnect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.Rooms[c.DuelID]
	if !ok {
		return
	}
	if room.remove(c) == 0 {
		delete(h.Rooms, c.DuelID)
	}
	logger.Debug("ws: client left", "client", c.ID, "duel_id", c.DuelID)
}

// Publish sends an event to everyone watching the duel.
func (h *Hub) Publish(duelID uint64, event string, data interface{}) {
	h.mu.RLock()
	room, ok := h.Rooms[duelID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	sent, dropped := room.broadcast(encode(Envelope{Type: event, DuelID: duelID, Data: data}))
	if dropped > 0 {
		logger.Warn("ws: slow clients skipped", "duel_id", duelID, "event", event, "sent", sent, "dropped", dropped)
	}
}

// Watchers returns the number of connections watching the duel.
func (h *Hub) Watchers(duelID uint64) int {
	h.mu.RLock()
	room, ok := h.Rooms[duelID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	return room.size()
}

func (h *Hub) StartCleanup() {
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			h.cleanupStaleRooms()
		}
	}()
}

func (h *Hub) cleanupStaleRooms() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()

	for duelID, room := range h.Rooms {
		if room.size() == 0 && now.Sub(room.createdAt) > time.Hour {
			delete(h.Rooms, duelID)
			logger.Info("ws: cleaned up stale room", "duel_id", duelID)
		}
	}
}
