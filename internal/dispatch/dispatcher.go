package dispatch

import (
	"context"
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/ehrlich-b/turret/internal/bunker"
	"github.com/ehrlich-b/turret/internal/directory"
	"github.com/ehrlich-b/turret/internal/logger"
	"github.com/ehrlich-b/turret/internal/registry"
	"github.com/ehrlich-b/turret/internal/replay"
	"github.com/ehrlich-b/turret/internal/signing"
	"github.com/ehrlich-b/turret/internal/transport"
	"github.com/ehrlich-b/turret/internal/wire"
	"github.com/google/uuid"
)

// Limits bounds dispatcher resource consumption (spec.md §5): concurrent
// connections, pending requests per agent, and the per-request deadline.
// The replay window has no count cap; it is bounded only by its
// time-based eviction. Zero fields fall back to the defaults chosen in
// SPEC_FULL.md's resolution of Open Question (c).
type Limits struct {
	MaxConnections     int
	MaxPendingPerAgent int
	RequestTimeout     time.Duration
}

// DefaultLimits are the bounds turretd applies unless configured
// otherwise.
var DefaultLimits = Limits{
	MaxConnections:     256,
	MaxPendingPerAgent: 256,
	RequestTimeout:     30 * time.Second,
}

// Dispatcher is turret's single authoritative state machine (C9). All
// shared mutable state -- the action directory and the pending-request
// table -- is owned here; the pending table is protected by mu and the
// directory by its own lock. Connection-local state
// (principal pin, seen request ids) is touched only by that connection's
// own read-loop goroutine.
type Dispatcher struct {
	mu sync.Mutex

	registry *registry.Registry
	oracle   *registry.Oracle
	dir      *directory.Directory
	replay   *replay.Window

	arena   *arena
	pending *pendingTable

	turretPrincipal string
	turretPriv      ed25519.PrivateKey

	limits Limits
	clock  func() time.Time

	auditFunc func(principal, action string, code uint16)
}

// SetAuditLog registers a callback invoked once per dispatch decision
// (spec.md §9's audit surface): the deciding principal, the action name,
// and the wire.Code the dispatcher answered with (0 for a forwarded
// invoke that hasn't resolved to a repeater reply yet). nil disables
// auditing, which is the zero-value behavior.
func (d *Dispatcher) SetAuditLog(fn func(principal, action string, code uint16)) {
	d.auditFunc = fn
}

func (d *Dispatcher) audit(principal, action string, code wire.Code) {
	logger.Debug("dispatch: decision",
		logger.FieldPrincipal, principal,
		logger.FieldAction, action,
		logger.FieldCode, uint16(code))
	if d.auditFunc != nil {
		d.auditFunc(principal, action, uint16(code))
	}
}

// New builds a Dispatcher over an engaged bunker's derived components.
// turretPriv may be nil, in which case forwarded invokes go out unsigned
// (spec.md §9 Open Question (a), "MAY be unsigned in scaffolding").
func New(reg *registry.Registry, oracle *registry.Oracle, dir *directory.Directory, window *replay.Window, turretPrincipal string, turretPriv ed25519.PrivateKey, limits Limits) *Dispatcher {
	if limits.MaxConnections == 0 {
		limits.MaxConnections = DefaultLimits.MaxConnections
	}
	if limits.MaxPendingPerAgent == 0 {
		limits.MaxPendingPerAgent = DefaultLimits.MaxPendingPerAgent
	}
	if limits.RequestTimeout == 0 {
		limits.RequestTimeout = DefaultLimits.RequestTimeout
	}
	return &Dispatcher{
		registry:        reg,
		oracle:          oracle,
		dir:             dir,
		replay:          window,
		arena:           newArena(),
		pending:         newPendingTable(),
		turretPrincipal: turretPrincipal,
		turretPriv:      turretPriv,
		limits:          limits,
		clock:           time.Now,
	}
}

// ServeAgentConn runs the read loop for one accepted agent-socket
// connection until it closes or ctx is cancelled.
func (d *Dispatcher) ServeAgentConn(ctx context.Context, raw *transport.Conn) {
	d.serveConn(ctx, raw, bunker.ClassAgent)
}

// ServeRepeaterConn runs the read loop for one accepted repeater-socket
// connection until it closes or ctx is cancelled.
func (d *Dispatcher) ServeRepeaterConn(ctx context.Context, raw *transport.Conn) {
	d.serveConn(ctx, raw, bunker.ClassRepeater)
}

func (d *Dispatcher) serveConn(ctx context.Context, raw *transport.Conn, class bunker.Class) {
	if d.arena.count() >= d.limits.MaxConnections {
		raw.Close()
		return
	}

	c := newConnection(class, raw)
	d.arena.add(c)
	defer d.onDisconnect(c)

	for {
		select {
		case <-ctx.Done():
			raw.Close()
			return
		default:
		}

		env, err := raw.ReadEnvelope()
		if err != nil {
			return
		}
		if !d.handleEnvelope(c, env) {
			return
		}
	}
}

// handleEnvelope processes one envelope on connection c. It returns false
// if the connection must be closed afterward.
func (d *Dispatcher) handleEnvelope(c *connection, env wire.Envelope) bool {
	now := d.clock()

	auth := d.authenticate(env, now)
	if !auth.ok {
		d.replyError(c, requestIDOf(env), auth.code, "authentication failed")
		// REPLAY never closes the connection (spec.md §8 scenario 4: a
		// replayed envelope just gets an error reply). A pre-pin
		// UNAUTHENTICATED -- this connection hasn't bound a principal yet
		// -- doesn't close either; only a signature/identity failure on an
		// already-pinned connection does (spec.md §4.7's closing list).
		if auth.code == wire.CodeReplay {
			return true
		}
		return c.principal == ""
	}

	if c.principal == "" {
		c.principal = auth.principal
	} else if c.principal != auth.principal {
		d.replyError(c, requestIDOf(env), wire.CodeUnauthenticated, "principal mismatch on pinned connection")
		return false
	}

	if !d.registry.IsClass(auth.principal, c.class) {
		d.replyError(c, requestIDOf(env), wire.CodeBadRequest, "principal class does not match listener")
		return false
	}

	switch c.class {
	case bunker.ClassRepeater:
		return d.handleRepeaterEnvelope(c, env)
	case bunker.ClassAgent:
		return d.handleAgentEnvelope(c, env)
	default:
		return false
	}
}

func (d *Dispatcher) handleAgentEnvelope(c *connection, env wire.Envelope) bool {
	if env.Type != wire.TypeInvoke {
		d.replyError(c, requestIDOf(env), wire.CodeBadRequest, "agent socket accepts only invoke")
		return false
	}
	return d.handleInvoke(c, env)
}

func (d *Dispatcher) handleRepeaterEnvelope(c *connection, env wire.Envelope) bool {
	switch env.Type {
	case wire.TypeRegister:
		if c.hasRegistered {
			d.replyError(c, nil, wire.CodeBadRequest, "repeater already registered")
			return false
		}
		return d.handleRegister(c, env)
	case wire.TypeResult, wire.TypeError:
		if !c.hasRegistered {
			d.replyError(c, requestIDOf(env), wire.CodeBadRequest, "first envelope from a repeater must be register")
			return false
		}
		return d.handleRepeaterReply(c, env)
	default:
		d.replyError(c, requestIDOf(env), wire.CodeBadRequest, "unexpected message type from repeater socket")
		return false
	}
}

// requestIDOf best-effort extracts a request_id from an envelope body for
// error replies, per spec.md §4.8 step 1 ("reply error{request_id=∅,
// code=BAD_REQUEST} if a request_id is recoverable"). It returns nil if
// none can be recovered.
func requestIDOf(env wire.Envelope) []byte {
	switch env.Type {
	case wire.TypeInvoke:
		if b, err := wire.DecodeInvoke(env.Body); err == nil {
			return b.RequestID
		}
	case wire.TypeResult:
		if b, err := wire.DecodeResult(env.Body); err == nil {
			return b.RequestID
		}
	case wire.TypeError:
		if b, err := wire.DecodeError(env.Body); err == nil {
			return b.RequestID
		}
	}
	return nil
}

// replyError writes a best-effort error envelope back to c. Turret's
// own outbound envelopes are signed when turretPriv is configured, and
// left unsigned otherwise (spec.md §4.2: receivers must treat unsigned
// errors from turret as best-effort diagnostics).
func (d *Dispatcher) replyError(c *connection, requestID []byte, code wire.Code, message string) {
	body, err := wire.EncodeError(wire.ErrorBody{RequestID: requestID, Code: code, Message: message})
	if err != nil {
		logger.Error("dispatch: encoding error body", logger.FieldErr, err)
		return
	}
	env := d.turretEnvelope(wire.TypeError, body)
	if err := c.conn.WriteEnvelope(env); err != nil {
		logger.Debug("dispatch: writing error reply failed",
			logger.FieldErr, err,
			logger.FieldConn, c.id,
			logger.FieldPrincipal, c.principal,
			logger.FieldRequestID, string(requestID),
			logger.FieldCode, uint16(code))
	}
}

// turretEnvelope builds an outbound envelope carrying turret's own
// principal, signing it if a turret signing key is configured.
func (d *Dispatcher) turretEnvelope(t wire.Type, body []byte) wire.Envelope {
	nonce := []byte(uuid.NewString())
	tsMs := uint64(d.clock().UnixMilli())
	principal := []byte(d.turretPrincipal)

	env := wire.Envelope{
		Type:      t,
		Principal: principal,
		TsMs:      tsMs,
		Nonce:     nonce,
		Body:      body,
		Sig:       make([]byte, ed25519.SignatureSize),
	}
	if d.turretPriv != nil {
		env.Sig = signing.Sign(d.turretPriv, principal, tsMs, nonce, body)
	}
	return env
}

// onDisconnect implements spec.md §4.8 step 7 for whichever class c was.
func (d *Dispatcher) onDisconnect(c *connection) {
	d.arena.remove(c.id)
	raw := c.conn
	raw.Close()

	if c.class == bunker.ClassRepeater {
		d.dir.ReleaseConnection(c.id)

		d.mu.Lock()
		expired := d.pending.removeByRepeater(c.id)
		d.mu.Unlock()

		for _, e := range expired {
			d.deliverNoRepeater(e)
		}
	} else {
		d.mu.Lock()
		d.pending.removeByAgent(c.id)
		d.mu.Unlock()
	}
}

func (d *Dispatcher) deliverNoRepeater(e pendingEntry) {
	agentConn, ok := d.arena.get(e.agentConnID)
	if !ok {
		return
	}
	body, err := wire.EncodeError(wire.ErrorBody{Code: wire.CodeNoRepeater, Message: "repeater disconnected"})
	if err != nil {
		logger.Error("dispatch: encoding NO_REPEATER body", logger.FieldErr, err)
		return
	}
	env := d.turretEnvelope(wire.TypeError, body)
	if err := agentConn.conn.WriteEnvelope(env); err != nil {
		logger.Debug("dispatch: delivering NO_REPEATER failed",
			logger.FieldErr, err,
			logger.FieldAction, e.action)
	}
}

// SweepDeadlines fails every pending request past its deadline with
// INTERNAL (spec.md §4.8 step 8). Intended to be called periodically by
// the lifecycle controller's scheduler.
func (d *Dispatcher) SweepDeadlines() {
	now := d.clock()

	d.mu.Lock()
	expired := d.pending.sweepExpired(now)
	d.mu.Unlock()

	for k, e := range expired {
		agentConn, ok := d.arena.get(e.agentConnID)
		if !ok {
			continue
		}
		body, err := wire.EncodeError(wire.ErrorBody{RequestID: []byte(k.requestID), Code: wire.CodeInternal, Message: "request deadline exceeded"})
		if err != nil {
			logger.Error("dispatch: encoding deadline error body", logger.FieldErr, err)
			continue
		}
		env := d.turretEnvelope(wire.TypeError, body)
		if err := agentConn.conn.WriteEnvelope(env); err != nil {
			logger.Debug("dispatch: delivering deadline error failed",
				logger.FieldErr, err,
				logger.FieldAction, e.action,
				logger.FieldRequestID, k.requestID)
		}
	}
}

// ConnectionCount reports the number of currently live connections, for
// metrics.
func (d *Dispatcher) ConnectionCount() int {
	return d.arena.count()
}

// PendingCount reports the number of in-flight invoke requests, for
// metrics.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending.len()
}

// Shutdown implements the disengaging state (spec.md §4.9): every
// pending request is failed to its agent before any connection closes,
// then every connection is closed so no new work can start. It is
// best-effort — a write to an agent connection that is itself mid-close
// is simply dropped, matching replyError's posture elsewhere.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	drained := d.pending.drainAll()
	d.mu.Unlock()

	for _, e := range drained {
		agentConn, ok := d.arena.get(e.agentConnID)
		if !ok {
			continue
		}
		body, err := wire.EncodeError(wire.ErrorBody{Code: wire.CodeInternal, Message: "engagement disengaging"})
		if err != nil {
			continue
		}
		agentConn.conn.WriteEnvelope(d.turretEnvelope(wire.TypeError, body))
	}

	d.arena.closeAll()
}
