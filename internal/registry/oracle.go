package registry

import "github.com/ehrlich-b/turret/internal/bunker"

// Oracle answers whether an agent may invoke a given action. It is
// exact-match only: absence from the allow-list is denial, there is no
// wildcard or inheritance (spec.md §4.6).
type Oracle struct {
	allow map[string]map[string]bool // agent id -> action name -> true
}

// NewOracle builds an Oracle from a validated bunker document.
func NewOracle(doc *bunker.Document) *Oracle {
	o := &Oracle{allow: make(map[string]map[string]bool, len(doc.Permissions))}
	for agentID, perm := range doc.Permissions {
		actions := make(map[string]bool, len(perm.Allow))
		for _, a := range perm.Allow {
			actions[a] = true
		}
		o.allow[agentID] = actions
	}
	return o
}

// Allows reports whether agentID may invoke action. An agent with no
// permissions entry at all is denied everything.
func (o *Oracle) Allows(agentID, action string) bool {
	actions, ok := o.allow[agentID]
	if !ok {
		return false
	}
	return actions[action]
}
