package realtime

import (
	"sync"

	"github.com/segmentio/ksuid"

	"github.com/harentsoaR/medrec-api/internal/models"
)

// client is the server side of one websocket. send is never closed, so a
// late Emit after shutdown is dropped instead of panicking.
type client struct {
	id   string
	send chan Envelope

	doneOnce sync.Once
	done     chan struct{}

	mu     sync.Mutex
	userID string
	role   models.Role
}

func newClient(queue int) *client {
	return &client{
		id:   ksuid.New().String(),
		send: make(chan Envelope, queue),
		done: make(chan struct{}),
	}
}

func (c *client) ID() string { return c.id }

func (c *client) Send(env Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *client) Done() <-chan struct{} { return c.done }

func (c *client) close() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *client) user() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *client) identity() (string, models.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.role
}

// bind sets the authenticated user and returns the previous one.
func (c *client) bind(userID string, role models.Role) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.userID
	c.userID, c.role = userID, role
	return prev
}
