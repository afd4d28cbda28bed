// Package dispatch implements turret's dispatcher (spec.md §4.8): the
// single state machine that authenticates every inbound envelope,
// authorizes agent invocations, correlates them with the registered
// repeater, and routes replies back. Cyclic references between agents,
// pending requests, and repeaters are modeled as string ids into arenas
// the dispatcher owns, not as mutual pointers (spec.md §9).
package dispatch

import (
	"sync"

	"github.com/ehrlich-b/turret/internal/bunker"
	"github.com/ehrlich-b/turret/internal/transport"
	"github.com/google/uuid"
)

// connection is one live stream-socket session. Its principal is unbound
// ("") until the first valid envelope pins it; afterward every other
// principal on the same connection is UNAUTHENTICATED.
type connection struct {
	id    string
	class bunker.Class // which listener accepted it: agent or repeater
	conn  *transport.Conn

	// Touched only by this connection's own read-loop goroutine; no lock
	// needed for the fields below.
	principal         string
	hasRegistered     bool
	registeredActions []string
	seenRequestIDs    map[string]bool
}

func newConnection(class bunker.Class, c *transport.Conn) *connection {
	return &connection{
		id:             uuid.NewString(),
		class:          class,
		conn:           c,
		seenRequestIDs: make(map[string]bool),
	}
}

// arena is the dispatcher's registry of live connections, keyed by id.
type arena struct {
	mu    sync.Mutex
	byID  map[string]*connection
}

func newArena() *arena {
	return &arena{byID: make(map[string]*connection)}
}

func (a *arena) add(c *connection) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byID[c.id] = c
}

func (a *arena) remove(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.byID, id)
}

func (a *arena) get(id string) (*connection, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.byID[id]
	return c, ok
}

func (a *arena) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byID)
}

// closeAll closes every live connection's underlying socket. Each
// connection's own read loop observes the resulting error and runs its
// normal onDisconnect cleanup; closeAll does not remove entries itself.
func (a *arena) closeAll() {
	a.mu.Lock()
	conns := make([]*connection, 0, len(a.byID))
	for _, c := range a.byID {
		conns = append(conns, c)
	}
	a.mu.Unlock()

	for _, c := range conns {
		c.conn.Close()
	}
}
