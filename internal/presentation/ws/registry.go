package ws

import (
	"sync"
)

// Registry tracks connected clients per room. It is the lifecycle manager's
// notifier: when a room expires, every client in it gets a room.closed frame
// and is disconnected.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[*Client]struct{}),
	}
}

func (reg *Registry) add(c *Client) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.rooms[c.roomID] == nil {
		reg.rooms[c.roomID] = make(map[*Client]struct{})
	}
	reg.rooms[c.roomID][c] = struct{}{}
}

func (reg *Registry) remove(c *Client) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if clients, ok := reg.rooms[c.roomID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(reg.rooms, c.roomID)
		}
	}
}

func (reg *Registry) clients(roomID string) []*Client {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	out := make([]*Client, 0, len(reg.rooms[roomID]))
	for c := range reg.rooms[roomID] {
		out = append(out, c)
	}
	return out
}

// RoomClosed implements the lifecycle notifier.
func (reg *Registry) RoomClosed(roomID string) {
	for _, c := range reg.clients(roomID) {
		c.enqueue(roomClosedMessage())
		c.shutdown()
	}
}

// ConnectedCount reports live connections in a room.
func (reg *Registry) ConnectedCount(roomID string) int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms[roomID])
}
