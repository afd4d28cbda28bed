package bunker

import "sync"

// SecretArena holds the decrypted secrets map for the life of an
// engagement, mlocked where the platform supports it, and zeroized on
// Close. It never hands out the underlying map: callers go through
// Lookup so the arena stays the one place a secret value exists as a
// Go string's backing bytes for longer than a single call.
type SecretArena struct {
	mu      sync.Mutex
	values  map[string][]byte
	closed  bool
}

// NewSecretArena copies secrets into mlocked buffers it owns.
func NewSecretArena(secrets map[string]string) (*SecretArena, error) {
	a := &SecretArena{values: make(map[string][]byte, len(secrets))}
	for name, value := range secrets {
		buf := []byte(value)
		if err := lockMemory(buf); err != nil {
			// best-effort: continue without mlock rather than fail engage
			_ = err
		}
		a.values[name] = buf
	}
	return a, nil
}

// Lookup returns a copy of the named secret. A copy, not the arena's own
// buffer, so the caller's use of the value can't accidentally extend the
// mlocked buffer's lifetime or let it be mutated.
func (a *SecretArena) Lookup(name string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, false
	}
	v, ok := a.values[name]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

// Close zeroizes every held secret and munlocks its backing memory. It is
// idempotent and must be called on disengage (spec.md §3: "operator
// private keys... never persist beyond the operator's own storage", and
// by extension no in-memory secret outlives its engagement).
func (a *SecretArena) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	for name, v := range a.values {
		for i := range v {
			v[i] = 0
		}
		_ = unlockMemory(v)
		delete(a.values, name)
	}
	a.closed = true
}
