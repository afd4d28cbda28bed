package replay

import "testing"

func TestFirstAcceptedSecondRejected(t *testing.T) {
	w := New()
	now := int64(1_700_000_000_000)

	if !w.Check("corvus", "n1", now, now) {
		t.Fatal("expected first occurrence to be accepted")
	}
	if w.Check("corvus", "n1", now, now) {
		t.Fatal("expected second occurrence to be rejected as replay")
	}
}

func TestDistinctNoncesIndependentlyAccepted(t *testing.T) {
	w := New()
	now := int64(1_700_000_000_000)

	if !w.Check("corvus", "n1", now, now) {
		t.Fatal("n1 should be accepted")
	}
	if !w.Check("corvus", "n2", now, now) {
		t.Fatal("n2 should be accepted")
	}
}

func TestDistinctPrincipalsSameNonceIndependentlyAccepted(t *testing.T) {
	w := New()
	now := int64(1_700_000_000_000)

	if !w.Check("corvus", "n1", now, now) {
		t.Fatal("corvus/n1 should be accepted")
	}
	if !w.Check("rep-1", "n1", now, now) {
		t.Fatal("rep-1/n1 should be accepted despite matching nonce")
	}
}

func TestOutsideToleranceRejected(t *testing.T) {
	w := New()
	now := int64(1_700_000_000_000)
	tooOld := now - int64(Tolerance.Milliseconds()) - 1000

	if w.Check("corvus", "n1", tooOld, now) {
		t.Fatal("expected timestamp outside tolerance to be rejected")
	}
}

func TestEvictionAllowsReuseAfterWindowPasses(t *testing.T) {
	w := New()
	t0 := int64(1_700_000_000_000)
	if !w.Check("corvus", "n1", t0, t0) {
		t.Fatal("expected first occurrence accepted")
	}

	later := t0 + int64(Tolerance.Milliseconds()) + 1000
	// ts_ms for the second attempt must itself be within tolerance of "later".
	if !w.Check("corvus", "n1", later, later) {
		t.Fatal("expected nonce reuse to be accepted once the original entry has aged out")
	}
}
