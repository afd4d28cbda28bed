package dispatch

import (
	"time"

	"github.com/ehrlich-b/turret/internal/signing"
	"github.com/ehrlich-b/turret/internal/wire"
)

// authResult is the outcome of authenticating one envelope against the
// principal registry and replay window (spec.md §4.8 step 2).
type authResult struct {
	principal string
	ok        bool
	code      wire.Code
}

// authenticate resolves env.Principal, verifies its signature, and checks
// the replay window. It does not yet decide whether the principal's
// class matches the listener or whether it may re-pin an already-bound
// connection id; callers apply the connection-pinning rule themselves
// (it needs the connection, which this function doesn't take, to keep
// the pinning policy in one place: handleEnvelope).
func (d *Dispatcher) authenticate(env wire.Envelope, now time.Time) authResult {
	principal := string(env.Principal)

	_, pub, ok := d.registry.Lookup(principal)
	if !ok {
		return authResult{ok: false, code: wire.CodeUnauthenticated}
	}

	if !signing.Verify(pub, env.Principal, env.TsMs, env.Nonce, env.Body, env.Sig) {
		return authResult{ok: false, code: wire.CodeUnauthenticated}
	}

	nowMs := now.UnixMilli()
	if !d.replay.Check(principal, string(env.Nonce), int64(env.TsMs), nowMs) {
		return authResult{ok: false, code: wire.CodeReplay}
	}

	return authResult{principal: principal, ok: true}
}
