// Package bunker owns the encrypted persisted-state lifecycle: loading,
// decrypting, parsing, and validating the bunker document, and holding
// the resulting policy in memory for the life of an engagement
// (spec.md §3, §4.4).
package bunker

import (
	"fmt"
	"sort"
)

// Document is the decrypted state root, shaped exactly as spec.md §3/§6
// describes it. Field names match the persisted keys so that the YAML
// on disk and the in-memory struct read the same way.
type Document struct {
	Version     int                    `yaml:"version"`
	Operators   Operators              `yaml:"operators"`
	Agents      map[string]Principal   `yaml:"agents"`
	Repeaters   map[string]Principal   `yaml:"repeaters"`
	Actions     map[string]string      `yaml:"actions"` // action name -> repeater id
	Permissions map[string]Permission  `yaml:"permissions"`
	Secrets     map[string]string      `yaml:"secrets"`
}

// Operators holds the operator-facing, core-opaque recipient list. The
// core never interprets a recipient string; it only requires the list be
// non-empty (I4).
type Operators struct {
	Recipients []string `yaml:"recipients"`
}

// Principal is one agent or repeater entry: an Ed25519 public key,
// base64-encoded on disk.
type Principal struct {
	Ed25519PubKeyB64 string `yaml:"ed25519_pubkey_b64"`
}

// Permission is one agent's allow-list of action names.
type Permission struct {
	Allow []string `yaml:"allow"`
}

// Class classifies a principal id as an agent or a repeater.
type Class int

const (
	ClassAgent Class = iota + 1
	ClassRepeater
)

func (c Class) String() string {
	switch c {
	case ClassAgent:
		return "agent"
	case ClassRepeater:
		return "repeater"
	default:
		return "unknown"
	}
}

// ValidationError reports every invariant violation found in a document,
// so an operator fixing a bunker sees the whole list at once rather than
// one failure at a time.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("bunker: %s", e.Problems[0])
	}
	return fmt.Sprintf("bunker: %d validation problems: %v", len(e.Problems), e.Problems)
}

// Validate checks every invariant in spec.md §3 (I1-I4) plus the
// structural rules in §4.4. It returns nil only if the document may be
// loaded as-is.
func Validate(d *Document) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if d.Version != 1 {
		add("version must be 1, got %d", d.Version)
	}
	if len(d.Operators.Recipients) == 0 {
		add("operators.recipients must be non-empty") // I4
	}

	seenIDs := make(map[string]Class)
	checkDistinctNonEmpty := func(table map[string]Principal, class Class, label string) {
		for id, p := range table {
			if id == "" {
				add("%s: empty id not allowed", label)
				continue
			}
			if existing, ok := seenIDs[id]; ok {
				add("id %q used as both %s and %s", id, existing, class)
			} else {
				seenIDs[id] = class
			}
			if _, err := DecodePublicKey(p.Ed25519PubKeyB64); err != nil {
				add("%s %q: %v", label, id, err)
			}
		}
	}
	checkDistinctNonEmpty(d.Agents, ClassAgent, "agents")
	checkDistinctNonEmpty(d.Repeaters, ClassRepeater, "repeaters")

	actionIDs := make(map[string]bool)
	for name, repeaterID := range d.Actions {
		if name == "" {
			add("actions: empty action name not allowed")
			continue
		}
		if actionIDs[name] {
			add("action %q declared more than once", name)
		}
		actionIDs[name] = true
		if _, ok := d.Repeaters[repeaterID]; !ok {
			add("actions.%s: repeater id %q does not resolve", name, repeaterID) // I3
		}
	}

	for agentID, perm := range d.Permissions {
		if _, ok := d.Agents[agentID]; !ok {
			add("permissions.%s: agent id does not resolve", agentID) // I2
		}
		for _, action := range perm.Allow {
			if _, ok := d.Actions[action]; !ok {
				add("permissions.%s: action %q does not exist in actions", agentID, action) // I1
			}
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return &ValidationError{Problems: problems}
	}
	return nil
}
