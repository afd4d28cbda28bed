package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	principal := []byte("corvus")
	nonce := []byte("nonce-1")
	body := []byte("payload")
	const tsMs = uint64(1700000000000)

	sig := Sign(priv, principal, tsMs, nonce, body)
	if !Verify(pub, principal, tsMs, nonce, body, sig) {
		t.Fatal("expected valid signature to verify")
	}
}

func TestVerifyRejectsFlippedByte(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	principal, nonce, body := []byte("corvus"), []byte("n"), []byte("b")
	const tsMs = uint64(1)

	sig := Sign(priv, principal, tsMs, nonce, body)
	flipped := append([]byte(nil), sig...)
	flipped[0] ^= 0xFF
	if Verify(pub, principal, tsMs, nonce, body, flipped) {
		t.Fatal("expected flipped signature to fail verification")
	}

	corruptBody := append([]byte(nil), body...)
	corruptBody[0] ^= 0xFF
	if Verify(pub, principal, tsMs, nonce, corruptBody, sig) {
		t.Fatal("expected corrupted body to fail verification against original signature")
	}
}

func TestVerifyRejectsWrongSigLength(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(rand.Reader)
	if Verify(pub, []byte("p"), 1, []byte("n"), []byte("b"), []byte("short")) {
		t.Fatal("expected short signature to be rejected")
	}
}

func TestCanonicalUsesLiteralSeparators(t *testing.T) {
	got := Canonical([]byte("a"), 42, []byte("n"), []byte("b"))
	want := "a\n42\nn\nb"
	if string(got) != want {
		t.Fatalf("canonical = %q, want %q", got, want)
	}
}

func TestDeriveTurretKeyIsDeterministic(t *testing.T) {
	seed := []byte("some-bunker-scoped-seed-material")
	pub1, priv1, err := DeriveTurretKey(seed)
	if err != nil {
		t.Fatal(err)
	}
	pub2, priv2, err := DeriveTurretKey(seed)
	if err != nil {
		t.Fatal(err)
	}
	if string(pub1) != string(pub2) || string(priv1) != string(priv2) {
		t.Fatal("expected deterministic derivation for identical seed material")
	}

	pub3, _, _ := DeriveTurretKey([]byte("different-seed"))
	if string(pub1) == string(pub3) {
		t.Fatal("expected different seed material to produce a different key")
	}
}
