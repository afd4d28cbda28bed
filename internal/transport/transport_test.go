package transport

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/ehrlich-b/turret/internal/wire"
)

func TestListenerServeRoundTripsEnvelope(t *testing.T) {
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "turret.sock")

	ln, err := Listen(socketPath)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan wire.Envelope, 1)
	go ln.Serve(ctx, func(raw net.Conn) {
		c := NewConn(raw)
		env, err := c.ReadEnvelope()
		if err != nil {
			t.Errorf("server read: %v", err)
			return
		}
		received <- env
	})

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()
	var d net.Dialer
	raw, err := d.DialContext(dialCtx, "unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	client := NewConn(raw)

	want := wire.Envelope{
		Type:      wire.TypeInvoke,
		Principal: []byte("agent-1"),
		TsMs:      1700000000000,
		Nonce:     []byte("n1"),
		Body:      []byte("body"),
		Sig:       make([]byte, 64),
	}
	if err := client.WriteEnvelope(want); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-received:
		if string(got.Principal) != string(want.Principal) || got.Type != want.Type {
			t.Fatalf("unexpected envelope: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive envelope")
	}
}
