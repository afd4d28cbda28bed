// Package directory tracks, for each action, which repeater owns it and
// whether that repeater currently has a live connection registered to
// serve it (spec.md §4.7). At most one live registration may exist per
// action at a time (I3 extended to the live binding).
package directory

import (
	"fmt"
	"sync"

	"github.com/ehrlich-b/turret/internal/bunker"
)

// ErrAlreadyRegistered is returned when a repeater tries to register an
// action that another live connection already owns.
var ErrAlreadyRegistered = fmt.Errorf("directory: action already has a live registration")

// ErrNotOwner is returned when a repeater tries to register an action
// the bunker does not assign to it.
var ErrNotOwner = fmt.Errorf("directory: repeater does not own this action")

// binding is the live connection currently serving an action.
type binding struct {
	repeaterID   string
	connectionID string
}

// Directory resolves action names to their configured owning repeater,
// and tracks which connection (if any) is currently live for each.
type Directory struct {
	mu           sync.Mutex
	actionOwner  map[string]string   // action -> repeater id, from the bunker
	live         map[string]binding  // action -> live binding, if registered
	connActions  map[string][]string // connection id -> actions it registered, for cleanup on disconnect
}

// New builds a Directory from a validated bunker document's static
// action table.
func New(doc *bunker.Document) *Directory {
	owner := make(map[string]string, len(doc.Actions))
	for action, repeaterID := range doc.Actions {
		owner[action] = repeaterID
	}
	return &Directory{
		actionOwner: owner,
		live:        make(map[string]binding),
		connActions: make(map[string][]string),
	}
}

// RepeaterFor returns the repeater id statically assigned to action, or
// ok=false if no such action exists.
func (d *Directory) RepeaterFor(action string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.actionOwner[action]
	return id, ok
}

// Register binds action to connectionID on behalf of repeaterID. It
// fails if repeaterID is not the bunker-assigned owner of action, or if
// another connection already holds a live registration for it.
func (d *Directory) Register(action, repeaterID, connectionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	owner, ok := d.actionOwner[action]
	if !ok || owner != repeaterID {
		return ErrNotOwner
	}
	if existing, ok := d.live[action]; ok {
		return fmt.Errorf("%w: held by connection %s", ErrAlreadyRegistered, existing.connectionID)
	}

	d.live[action] = binding{repeaterID: repeaterID, connectionID: connectionID}
	d.connActions[connectionID] = append(d.connActions[connectionID], action)
	return nil
}

// LiveRepeaterFor returns the connection id currently serving action, or
// ok=false if no connection is registered for it right now.
func (d *Directory) LiveRepeaterFor(action string) (connectionID string, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.live[action]
	if !ok {
		return "", false
	}
	return b.connectionID, true
}

// ReleaseConnection clears every live registration held by connectionID.
// Called when a repeater connection closes, so a dead connection never
// leaves an action permanently unreachable.
func (d *Directory) ReleaseConnection(connectionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, action := range d.connActions[connectionID] {
		if b, ok := d.live[action]; ok && b.connectionID == connectionID {
			delete(d.live, action)
		}
	}
	delete(d.connActions, connectionID)
}
