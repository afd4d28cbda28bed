package dispatch

import (
	"github.com/ehrlich-b/turret/internal/wire"
)

// handleRegister implements spec.md §4.6/§4.8 step 4. A register fails as
// a whole on the first problem found; no partial state is committed.
func (d *Dispatcher) handleRegister(c *connection, env wire.Envelope) bool {
	body, err := wire.DecodeRegister(env.Body)
	if err != nil {
		d.replyError(c, nil, wire.CodeBadRequest, "malformed register body")
		return false
	}

	if string(body.RepeaterID) != c.principal {
		d.replyError(c, nil, wire.CodeBadRequest, "repeater_id does not match authenticated principal")
		return false
	}

	actions := make([]string, len(body.Actions))
	for i, a := range body.Actions {
		actions[i] = string(a)
	}

	for _, action := range actions {
		owner, exists := d.dir.RepeaterFor(action)
		if !exists {
			d.replyError(c, nil, wire.CodeUnknownAction, "action not recognized: "+action)
			return false
		}
		if owner != c.principal {
			d.replyError(c, nil, wire.CodeDenied, "repeater does not own action: "+action)
			return false
		}
	}

	// All actions validated against the static table; now try to commit
	// the live bindings. The directory itself enforces at-most-one-live
	// (I5); a collision here is a double-registration race, reported as
	// BAD_REQUEST per §4.6.
	for _, action := range actions {
		if err := d.dir.Register(action, c.principal, c.id); err != nil {
			d.dir.ReleaseConnection(c.id) // undo any earlier bindings from this same register
			d.replyError(c, nil, wire.CodeBadRequest, "action already has a live registration: "+action)
			return false
		}
	}

	c.hasRegistered = true
	c.registeredActions = actions
	return true
}

// handleInvoke implements spec.md §4.8 step 5.
func (d *Dispatcher) handleInvoke(c *connection, env wire.Envelope) bool {
	body, err := wire.DecodeInvoke(env.Body)
	if err != nil {
		d.replyError(c, nil, wire.CodeBadRequest, "malformed invoke body")
		return false
	}
	requestID := string(body.RequestID)
	action := string(body.Action)

	if c.seenRequestIDs[requestID] {
		d.replyError(c, body.RequestID, wire.CodeBadRequest, "duplicate request_id on this connection")
		return true
	}

	if _, exists := d.dir.RepeaterFor(action); !exists {
		d.audit(c.principal, action, wire.CodeUnknownAction)
		d.replyError(c, body.RequestID, wire.CodeUnknownAction, "unknown action: "+action)
		return true
	}
	if !d.oracle.Allows(c.principal, action) {
		d.audit(c.principal, action, wire.CodeDenied)
		d.replyError(c, body.RequestID, wire.CodeDenied, "agent not permitted to invoke: "+action)
		return true
	}
	repeaterConnID, live := d.dir.LiveRepeaterFor(action)
	if !live {
		d.audit(c.principal, action, wire.CodeNoRepeater)
		d.replyError(c, body.RequestID, wire.CodeNoRepeater, "no live repeater for action: "+action)
		return true
	}
	repeaterConn, ok := d.arena.get(repeaterConnID)
	if !ok {
		d.audit(c.principal, action, wire.CodeNoRepeater)
		d.replyError(c, body.RequestID, wire.CodeNoRepeater, "repeater connection gone")
		return true
	}

	d.mu.Lock()
	pendingForAgent := 0
	for _, e := range d.pending.entries {
		if e.agentConnID == c.id {
			pendingForAgent++
		}
	}
	if pendingForAgent >= d.limits.MaxPendingPerAgent {
		d.mu.Unlock()
		d.replyError(c, body.RequestID, wire.CodeInternal, "too many pending requests for this agent")
		return true
	}
	d.pending.put(pendingKey{repeaterConnID: repeaterConnID, requestID: requestID}, pendingEntry{
		agentConnID: c.id,
		action:      action,
		deadline:    d.clock().Add(d.limits.RequestTimeout),
	})
	d.mu.Unlock()

	c.seenRequestIDs[requestID] = true

	forwardBody, err := wire.EncodeInvoke(wire.InvokeBody{RequestID: body.RequestID, Action: body.Action, Params: body.Params})
	if err != nil {
		d.replyError(c, body.RequestID, wire.CodeInternal, "encoding forwarded invoke failed")
		return true
	}
	forward := d.turretEnvelope(wire.TypeInvoke, forwardBody)
	if err := repeaterConn.conn.WriteEnvelope(forward); err != nil {
		d.mu.Lock()
		d.pending.take(pendingKey{repeaterConnID: repeaterConnID, requestID: requestID})
		d.mu.Unlock()
		d.audit(c.principal, action, wire.CodeNoRepeater)
		d.replyError(c, body.RequestID, wire.CodeNoRepeater, "forwarding to repeater failed")
		return true
	}
	d.audit(c.principal, action, 0)
	return true
}

// handleRepeaterReply implements spec.md §4.8 step 6.
func (d *Dispatcher) handleRepeaterReply(c *connection, env wire.Envelope) bool {
	var requestID string
	switch env.Type {
	case wire.TypeResult:
		b, err := wire.DecodeResult(env.Body)
		if err != nil {
			d.replyError(c, nil, wire.CodeBadRequest, "malformed result body")
			return true
		}
		requestID = string(b.RequestID)
	case wire.TypeError:
		b, err := wire.DecodeError(env.Body)
		if err != nil {
			d.replyError(c, nil, wire.CodeBadRequest, "malformed error body")
			return true
		}
		requestID = string(b.RequestID)
	}

	d.mu.Lock()
	entry, ok := d.pending.take(pendingKey{repeaterConnID: c.id, requestID: requestID})
	d.mu.Unlock()

	if !ok {
		d.replyError(c, []byte(requestID), wire.CodeBadRequest, "unknown request_id")
		return true
	}

	agentConn, ok := d.arena.get(entry.agentConnID)
	if !ok {
		// Agent connection is gone; late reply is simply dropped.
		return true
	}

	forward := d.turretEnvelope(env.Type, env.Body)
	if err := agentConn.conn.WriteEnvelope(forward); err != nil {
		return true
	}
	return true
}
