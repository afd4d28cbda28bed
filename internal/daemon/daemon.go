// Package daemon is turret's lifecycle controller (spec.md §4.9, C10):
// the finite state machine that fires up a bunker, engages its sockets,
// and disengages cleanly, structured the way the teacher repo's
// internal/daemon/daemon.go wires its own store, transport server, and
// signal handling together.
package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/ehrlich-b/turret/internal/audit"
	"github.com/ehrlich-b/turret/internal/bunker"
	"github.com/ehrlich-b/turret/internal/config"
	"github.com/ehrlich-b/turret/internal/directory"
	"github.com/ehrlich-b/turret/internal/dispatch"
	"github.com/ehrlich-b/turret/internal/logger"
	"github.com/ehrlich-b/turret/internal/metrics"
	"github.com/ehrlich-b/turret/internal/registry"
	"github.com/ehrlich-b/turret/internal/replay"
	"github.com/ehrlich-b/turret/internal/signing"
	"github.com/ehrlich-b/turret/internal/transport"
	"github.com/ehrlich-b/turret/internal/unlock"
)

// State is one of the four lifecycle states spec.md §4.9 names.
type State int

const (
	StateCold State = iota
	StateUnlocking
	StateEngaged
	StateDisengaging
)

func (s State) String() string {
	switch s {
	case StateCold:
		return "cold"
	case StateUnlocking:
		return "unlocking"
	case StateEngaged:
		return "engaged"
	case StateDisengaging:
		return "disengaging"
	default:
		return "unknown"
	}
}

// Engagement holds everything constructed at fire-up/engage that must be
// torn down at disengage.
type Engagement struct {
	cfg *config.Config

	doc     *bunker.Document
	secrets *bunker.SecretArena
	dispatcher *dispatch.Dispatcher

	auditLog *audit.Log

	agentListener    *transport.Listener
	repeaterListener *transport.Listener

	bunkerWatcher *bunker.Watcher

	cron *robfigcron.Cron

	state State
}

// engagedSingleton rejects concurrent Engage calls within a process
// (spec.md §4.9: "Concurrent engage is rejected").
var engagedSingleton = make(chan struct{}, 1)

// Run performs fire-up, engage, and blocks until ctx is cancelled, then
// disengages. This is the body cmd/turretd's main loop calls.
func Run(ctx context.Context, cfg *config.Config) error {
	select {
	case engagedSingleton <- struct{}{}:
	default:
		return fmt.Errorf("daemon: an engagement is already active in this process")
	}
	defer func() { <-engagedSingleton }()

	e, err := FireUp(cfg)
	if err != nil {
		return fmt.Errorf("daemon: fire-up failed: %w", err)
	}

	if err := e.Engage(ctx); err != nil {
		e.Disengage()
		return fmt.Errorf("daemon: engage failed: %w", err)
	}

	<-ctx.Done()
	e.Disengage()
	return nil
}

// FireUp decrypts the bunker and builds the in-memory policy, but does
// not yet open any socket (spec.md §4.9: "unlocking tries host identity,
// then operator"). No Engagement exists while this runs, so
// StateUnlocking is never recorded; the returned Engagement starts in
// StateCold with the document loaded.
func FireUp(cfg *config.Config) (*Engagement, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating bunker directory %s: %w", cfg.Dir, err)
	}

	hostIdentity, err := bunker.LoadHostIdentity(cfg.HostIdentityFilePath())
	if err != nil {
		return nil, fmt.Errorf("loading host identity: %w", err)
	}
	store := bunker.NewStore(cfg.BunkerFilePath(), hostIdentity)

	doc, err := store.Load(nil)
	if err != nil {
		logger.Warn("daemon: host identity could not decrypt bunker, falling back to operator unlock", logger.FieldErr, err)
		operatorIdentity, promptErr := unlock.PromptPassphrase("bunker passphrase: ")
		if promptErr != nil {
			return nil, fmt.Errorf("bunker locked and operator unlock unavailable: %w", promptErr)
		}
		doc, err = store.Load(operatorIdentity)
		if err != nil {
			return nil, fmt.Errorf("decrypting bunker: %w", err)
		}
	}

	secrets, err := bunker.NewSecretArena(doc.Secrets)
	if err != nil {
		return nil, fmt.Errorf("loading secrets: %w", err)
	}
	doc.Secrets = nil // the arena is now the only holder of secret values

	return &Engagement{cfg: cfg, doc: doc, secrets: secrets, state: StateCold}, nil
}

// Engage opens both socket listeners and the dispatcher they feed,
// transitioning to StateEngaged. Pending requests and the replay window
// are created fresh here, as spec.md §4.9 requires.
func (e *Engagement) Engage(ctx context.Context) error {
	reg, err := registry.New(e.doc)
	if err != nil {
		return fmt.Errorf("building principal registry: %w", err)
	}
	oracle := registry.NewOracle(e.doc)
	dir := directory.New(e.doc)
	window := replay.New()

	seed := bunker.SigningSeed(e.doc)
	turretPub, turretPriv, err := signing.DeriveTurretKey(seed)
	if err != nil {
		return fmt.Errorf("deriving turret signing key: %w", err)
	}
	logger.Info("daemon: turret signing principal derived", "pubkey_len", len(turretPub))

	limits := dispatch.Limits{
		MaxConnections:     e.cfg.MaxConnections,
		MaxPendingPerAgent: e.cfg.MaxPendingPerAgent,
		RequestTimeout:     e.cfg.RequestDeadline(),
	}
	e.dispatcher = dispatch.New(reg, oracle, dir, window, "turret", turretPriv, limits)

	auditLog, err := audit.Open(e.cfg.AuditDBFilePath())
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	e.auditLog = auditLog
	e.dispatcher.SetAuditLog(func(principal, action string, code uint16) {
		if err := auditLog.Record(time.Now().UnixMilli(), principal, action, code); err != nil {
			logger.Warn("daemon: recording audit event failed",
				logger.FieldErr, err,
				logger.FieldPrincipal, principal,
				logger.FieldAction, action,
				logger.FieldCode, code)
		}
		metrics.DispatchOutcomes.WithLabelValues(strconv.Itoa(int(code))).Inc()
	})

	agentLn, err := transport.Listen(e.cfg.AgentSocketPath())
	if err != nil {
		return fmt.Errorf("listening on agent socket: %w", err)
	}
	e.agentListener = agentLn

	repeaterLn, err := transport.Listen(e.cfg.RepeaterSocketPath())
	if err != nil {
		agentLn.Close()
		return fmt.Errorf("listening on repeater socket: %w", err)
	}
	e.repeaterListener = repeaterLn

	go func() {
		if err := e.agentListener.Serve(ctx, func(raw net.Conn) {
			e.dispatcher.ServeAgentConn(ctx, transport.NewConn(raw))
		}); err != nil {
			logger.Error("daemon: agent listener stopped", logger.FieldErr, err)
		}
	}()
	go func() {
		if err := e.repeaterListener.Serve(ctx, func(raw net.Conn) {
			e.dispatcher.ServeRepeaterConn(ctx, transport.NewConn(raw))
		}); err != nil {
			logger.Error("daemon: repeater listener stopped", logger.FieldErr, err)
		}
	}()
	go func() {
		if err := metrics.Serve(ctx, e.cfg.MetricsSocketPath()); err != nil {
			logger.Error("daemon: metrics listener stopped", logger.FieldErr, err)
		}
	}()

	e.cron = robfigcron.New(robfigcron.WithSeconds())
	if _, err := e.cron.AddFunc("@every 1s", func() {
		e.dispatcher.SweepDeadlines()
		window.Evict(time.Now().UnixMilli())
		metrics.ConnectionsLive.Set(float64(e.dispatcher.ConnectionCount()))
		metrics.PendingRequests.Set(float64(e.dispatcher.PendingCount()))
		metrics.ReplayWindowSize.Set(float64(window.Len()))
	}); err != nil {
		return fmt.Errorf("scheduling deadline sweep: %w", err)
	}
	e.cron.Start()

	if err := writePIDFile(e.cfg.PIDFilePath()); err != nil {
		logger.Warn("daemon: could not write pid file", logger.FieldErr, err)
	}

	watcher, err := bunker.NewWatcher(e.cfg.BunkerFilePath())
	if err != nil {
		logger.Warn("daemon: bunker file watch unavailable", logger.FieldErr, err)
	} else {
		e.bunkerWatcher = watcher
		go func() {
			for range watcher.Events() {
				logger.Warn("daemon: bunker file changed on disk while engaged; this engagement is still serving the policy it fired up with")
			}
		}()
	}

	e.state = StateEngaged
	logger.Info("daemon: engaged",
		"agent_socket", e.cfg.AgentSocketPath(),
		"repeater_socket", e.cfg.RepeaterSocketPath(),
		"metrics_socket", e.cfg.MetricsSocketPath(),
	)
	return nil
}

// Disengage stops accepting new connections, fails outstanding pending
// requests, closes every connection, and zeroizes the secrets held in
// the SecretArena (spec.md §4.9, §9 "Secrets are pinned memory...
// best-effort zeroize"). The rest of the loaded Document (keys, actions,
// permissions) is not cleared.
func (e *Engagement) Disengage() {
	e.state = StateDisengaging

	if e.cron != nil {
		cronCtx := e.cron.Stop()
		<-cronCtx.Done()
	}
	if e.dispatcher != nil {
		e.dispatcher.Shutdown()
	}
	if e.bunkerWatcher != nil {
		e.bunkerWatcher.Close()
	}
	if e.agentListener != nil {
		e.agentListener.Close()
	}
	if e.repeaterListener != nil {
		e.repeaterListener.Close()
	}
	if e.auditLog != nil {
		e.auditLog.Close()
	}
	if e.secrets != nil {
		e.secrets.Close()
	}
	os.Remove(e.cfg.PIDFilePath())

	e.state = StateCold
	logger.Info("daemon: disengaged")
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
