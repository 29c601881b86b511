package realtime

import "sync"

// Conn is one live realtime connection as seen by the registry.
type Conn interface {
	ID() string
	// Send queues env for delivery without blocking. It returns false when
	// the connection is closed or its queue is full.
	Send(env Envelope) bool
}

// Registry maps a user id to the connections authenticated as that user.
type Registry interface {
	Add(userID string, c Conn)
	Remove(userID string, c Conn)
	Lookup(userID string) []Conn
}

type MemoryRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Conn
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{rooms: make(map[string]map[string]Conn)}
}

func (r *MemoryRegistry) Add(userID string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[userID]
	if !ok {
		room = make(map[string]Conn)
		r.rooms[userID] = room
	}
	room[c.ID()] = c
}

func (r *MemoryRegistry) Remove(userID string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[userID]
	if !ok {
		return
	}
	delete(room, c.ID())
	if len(room) == 0 {
		delete(r.rooms, userID)
	}
}

func (r *MemoryRegistry) Lookup(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[userID]
	out := make([]Conn, 0, len(room))
	for _, c := range room {
		out = append(out, c)
	}
	return out
}
