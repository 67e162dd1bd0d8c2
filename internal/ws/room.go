package ws

import (
	"sync"
	"time"
)

// Room is the set of connections watching one duel.
type Room struct {
	DuelID  uint64
	Clients map[*Client]struct{}

	mu        sync.RWMutex
	createdAt time.Time
}

func NewRoom(duelID uint64) *Room {
	return &Room{
		DuelID:    duelID,
		Clients:   make(map[*Client]struct{}),
		createdAt: time.Now(),
	}
}

func (r *Room) add(c *Client) {
	r.mu.Lock()
	r.Clients[c] = struct{}{}
	r.mu.Unlock()
}

// remove drops c and reports how many clients are left.
func (r *Room) remove(c *Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Clients, c)
	return len(r.Clients)
}

func (r *Room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Clients)
}

// broadcast queues msg on every client. A client whose buffer is full is
// skipped; the push channel is advisory and clients re-fetch over HTTP.
func (r *Room) broadcast(msg []byte) (sent, dropped int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.Clients {
		if c.trySend(msg) {
			sent++
		} else {
			dropped++
		}
	}
	return sent, dropped
}
