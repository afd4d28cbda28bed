// Package registry implements turret's principal registry and
// permission oracle (spec.md §4.5, §4.6): who may speak as whom, and
// what an authenticated agent may invoke. Both are read-only views over
// the engaged bunker document; neither holds any state of its own beyond
// that snapshot.
package registry

import (
	"crypto/ed25519"
	"fmt"

	"github.com/ehrlich-b/turret/internal/bunker"
)

// Registry resolves a principal id to its class and public key.
type Registry struct {
	pubKeys map[string]ed25519.PublicKey
	classes map[string]bunker.Class
}

// New builds a Registry from a validated bunker document. Callers must
// validate the document first (bunker.Validate does this at load time);
// New does not re-check I1-I4.
func New(doc *bunker.Document) (*Registry, error) {
	r := &Registry{
		pubKeys: make(map[string]ed25519.PublicKey, len(doc.Agents)+len(doc.Repeaters)),
		classes: make(map[string]bunker.Class, len(doc.Agents)+len(doc.Repeaters)),
	}
	for id, p := range doc.Agents {
		pub, err := bunker.DecodePublicKey(p.Ed25519PubKeyB64)
		if err != nil {
			return nil, fmt.Errorf("registry: agent %q: %w", id, err)
		}
		r.pubKeys[id] = pub
		r.classes[id] = bunker.ClassAgent
	}
	for id, p := range doc.Repeaters {
		pub, err := bunker.DecodePublicKey(p.Ed25519PubKeyB64)
		if err != nil {
			return nil, fmt.Errorf("registry: repeater %q: %w", id, err)
		}
		r.pubKeys[id] = pub
		r.classes[id] = bunker.ClassRepeater
	}
	return r, nil
}

// Lookup returns the class and public key registered for id, or
// ok=false if id is unknown.
func (r *Registry) Lookup(id string) (bunker.Class, ed25519.PublicKey, bool) {
	class, ok := r.classes[id]
	if !ok {
		return 0, nil, false
	}
	return class, r.pubKeys[id], true
}

// IsClass reports whether id is registered as class.
func (r *Registry) IsClass(id string, class bunker.Class) bool {
	c, ok := r.classes[id]
	return ok && c == class
}
