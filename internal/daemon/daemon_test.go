package daemon

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"net"
	"path/filepath"
	"testing"
	"time"

	"filippo.io/age"

	"github.com/ehrlich-b/turret/internal/bunker"
	"github.com/ehrlich-b/turret/internal/config"
	"github.com/ehrlich-b/turret/internal/signing"
	"github.com/ehrlich-b/turret/internal/transport"
	"github.com/ehrlich-b/turret/internal/wire"
	"github.com/google/uuid"
)

func writeTestBunker(t *testing.T, dir string) (agentPub ed25519.PublicKey, agentPriv ed25519.PrivateKey, repeaterPub ed25519.PublicKey, repeaterPriv ed25519.PrivateKey) {
	t.Helper()

	agentPub, agentPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	repeaterPub, repeaterPriv, err = ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}

	operatorIdentity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatal(err)
	}

	doc := &bunker.Document{
		Version:   1,
		Operators: bunker.Operators{Recipients: []string{operatorIdentity.Recipient().String()}},
		Agents: map[string]bunker.Principal{
			"agent-one": {Ed25519PubKeyB64: base64.StdEncoding.EncodeToString(agentPub)},
		},
		Repeaters: map[string]bunker.Principal{
			"repeater-one": {Ed25519PubKeyB64: base64.StdEncoding.EncodeToString(repeaterPub)},
		},
		Actions: map[string]string{
			"notify.send": "repeater-one",
		},
		Permissions: map[string]bunker.Permission{
			"agent-one": {Allow: []string{"notify.send"}},
		},
		Secrets: map[string]string{},
	}

	hostIdentity, err := bunker.LoadHostIdentity(filepath.Join(dir, "host.key"))
	if err != nil {
		t.Fatal(err)
	}
	store := bunker.NewStore(filepath.Join(dir, "bunker.age"), hostIdentity)
	if err := store.Save(doc); err != nil {
		t.Fatalf("seeding bunker: %v", err)
	}

	return agentPub, agentPriv, repeaterPub, repeaterPriv
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Dir:                    dir,
		BunkerPath:             "bunker.age",
		HostIdentityPath:       "host.key",
		AgentSocket:            "agent.sock",
		RepeaterSocket:         "repeater.sock",
		MetricsSocket:          "metrics.sock",
		AuditDBPath:            "audit.db",
		PIDFile:                "turretd.pid",
		LogLevel:               "info",
		MaxConnections:         16,
		MaxPendingPerAgent:     16,
		RequestDeadlineSeconds: 2,
	}
}

func TestEngagementFireUpEngageDisengage(t *testing.T) {
	dir := t.TempDir()
	writeTestBunker(t, dir)
	cfg := testConfig(dir)

	e, err := FireUp(cfg)
	if err != nil {
		t.Fatalf("FireUp: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := e.Engage(ctx); err != nil {
		t.Fatalf("Engage: %v", err)
	}
	if e.state != StateEngaged {
		t.Fatalf("expected StateEngaged, got %v", e.state)
	}

	// Give the accept goroutines a moment to start before disengaging.
	time.Sleep(50 * time.Millisecond)

	e.Disengage()
	if e.state != StateCold {
		t.Fatalf("expected StateCold after disengage, got %v", e.state)
	}
}

func TestEngagementRejectsConcurrentEngage(t *testing.T) {
	dir := t.TempDir()
	writeTestBunker(t, dir)
	cfg := testConfig(dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- Run(ctx, cfg) }()

	time.Sleep(100 * time.Millisecond)

	if err := Run(context.Background(), cfg); err == nil {
		t.Fatal("expected concurrent Run to be rejected")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("first Run returned error: %v", err)
	}
}

func TestEngagedDispatcherAcceptsAuthenticatedInvoke(t *testing.T) {
	dir := t.TempDir()
	_, agentPriv, _, _ := writeTestBunker(t, dir)
	cfg := testConfig(dir)

	e, err := FireUp(cfg)
	if err != nil {
		t.Fatalf("FireUp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.Engage(ctx); err != nil {
		t.Fatalf("Engage: %v", err)
	}
	defer e.Disengage()

	time.Sleep(50 * time.Millisecond)

	raw, err := dialWithRetry(cfg.AgentSocketPath())
	if err != nil {
		t.Fatalf("dialing agent socket: %v", err)
	}
	defer raw.Close()
	conn := transport.NewConn(raw)

	reqID := []byte(uuid.NewString())
	body, err := wire.EncodeInvoke(wire.InvokeBody{RequestID: reqID, Action: []byte("notify.send"), Params: []byte("{}")})
	if err != nil {
		t.Fatal(err)
	}
	nonce := []byte(uuid.NewString())
	tsMs := uint64(time.Now().UnixMilli())
	principal := []byte("agent-one")
	env := wire.Envelope{
		Type:      wire.TypeInvoke,
		Principal: principal,
		TsMs:      tsMs,
		Nonce:     nonce,
		Body:      body,
		Sig:       signing.Sign(agentPriv, principal, tsMs, nonce, body),
	}
	if err := conn.WriteEnvelope(env); err != nil {
		t.Fatalf("writing invoke: %v", err)
	}

	// No repeater is connected, so the dispatcher must answer NO_REPEATER
	// rather than hang (spec.md §8 "no repeater registered" scenario).
	reply, err := conn.ReadEnvelope()
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if reply.Type != wire.TypeError {
		t.Fatalf("expected error envelope, got type %v", reply.Type)
	}
	errBody, err := wire.DecodeError(reply.Body)
	if err != nil {
		t.Fatal(err)
	}
	if errBody.Code != wire.CodeNoRepeater {
		t.Fatalf("expected NO_REPEATER, got %v", errBody.Code)
	}
}

func dialWithRetry(path string) (net.Conn, error) {
	var lastErr error
	for i := 0; i < 20; i++ {
		c, err := net.Dial("unix", path)
		if err == nil {
			return c, nil
		}
		lastErr = err
		time.Sleep(20 * time.Millisecond)
	}
	return nil, lastErr
}
