package directory

import (
	"testing"

	"github.com/ehrlich-b/turret/internal/bunker"
)

func newTestDirectory() *Directory {
	return New(&bunker.Document{
		Actions: map[string]string{
			"fs.read": "repeater-1",
		},
	})
}

func TestRepeaterForKnownAndUnknownAction(t *testing.T) {
	d := newTestDirectory()
	id, ok := d.RepeaterFor("fs.read")
	if !ok || id != "repeater-1" {
		t.Fatalf("unexpected: id=%q ok=%v", id, ok)
	}
	if _, ok := d.RepeaterFor("fs.write"); ok {
		t.Fatal("expected unconfigured action to report not found")
	}
}

func TestRegisterRejectsNonOwner(t *testing.T) {
	d := newTestDirectory()
	if err := d.Register("fs.read", "repeater-2", "conn-1"); err != ErrNotOwner {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestRegisterSucceedsForOwner(t *testing.T) {
	d := newTestDirectory()
	if err := d.Register("fs.read", "repeater-1", "conn-1"); err != nil {
		t.Fatalf("expected registration to succeed: %v", err)
	}
	connID, ok := d.LiveRepeaterFor("fs.read")
	if !ok || connID != "conn-1" {
		t.Fatalf("unexpected live binding: connID=%q ok=%v", connID, ok)
	}
}

func TestRegisterRejectsSecondLiveRegistration(t *testing.T) {
	d := newTestDirectory()
	if err := d.Register("fs.read", "repeater-1", "conn-1"); err != nil {
		t.Fatal(err)
	}
	err := d.Register("fs.read", "repeater-1", "conn-2")
	if err == nil {
		t.Fatal("expected second live registration for the same action to be rejected") // P7
	}
}

func TestReleaseConnectionClearsItsBindingsOnly(t *testing.T) {
	d := New(&bunker.Document{
		Actions: map[string]string{
			"fs.read":  "repeater-1",
			"net.http": "repeater-1",
		},
	})
	if err := d.Register("fs.read", "repeater-1", "conn-1"); err != nil {
		t.Fatal(err)
	}
	if err := d.Register("net.http", "repeater-1", "conn-2"); err != nil {
		t.Fatal(err)
	}

	d.ReleaseConnection("conn-1")

	if _, ok := d.LiveRepeaterFor("fs.read"); ok {
		t.Fatal("expected fs.read binding to be cleared")
	}
	if connID, ok := d.LiveRepeaterFor("net.http"); !ok || connID != "conn-2" {
		t.Fatal("expected net.http binding held by conn-2 to remain untouched")
	}
}

func TestRegisterAfterReleaseAllowsNewConnection(t *testing.T) {
	d := newTestDirectory()
	if err := d.Register("fs.read", "repeater-1", "conn-1"); err != nil {
		t.Fatal(err)
	}
	d.ReleaseConnection("conn-1")

	if err := d.Register("fs.read", "repeater-1", "conn-2"); err != nil {
		t.Fatalf("expected re-registration after release to succeed: %v", err)
	}
}
