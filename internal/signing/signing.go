// Package signing builds turret's canonical signing bytes and wraps
// Ed25519 sign/verify over them (spec.md §4.2).
package signing

import (
	"crypto/ed25519"
	"fmt"
	"strconv"
)

// Canonical returns the exact byte concatenation that gets signed:
//
//	<principal> 0x0A <ts_ms_decimal_ASCII> 0x0A <nonce> 0x0A <body>
//
// principal, nonce, and body are used verbatim — no re-encoding, no
// escaping (spec.md §9).
func Canonical(principal []byte, tsMs uint64, nonce, body []byte) []byte {
	ts := strconv.FormatUint(tsMs, 10)

	out := make([]byte, 0, len(principal)+1+len(ts)+1+len(nonce)+1+len(body))
	out = append(out, principal...)
	out = append(out, '\n')
	out = append(out, ts...)
	out = append(out, '\n')
	out = append(out, nonce...)
	out = append(out, '\n')
	out = append(out, body...)
	return out
}

// Sign signs the canonical bytes for (principal, tsMs, nonce, body) with
// priv, returning the raw 64-byte Ed25519 signature.
func Sign(priv ed25519.PrivateKey, principal []byte, tsMs uint64, nonce, body []byte) []byte {
	return ed25519.Sign(priv, Canonical(principal, tsMs, nonce, body))
}

// Verify checks sig against the canonical bytes for (principal, tsMs,
// nonce, body) under pub. sig must be exactly 64 bytes (spec.md §4.2);
// anything else is rejected without attempting verification.
func Verify(pub ed25519.PublicKey, principal []byte, tsMs uint64, nonce, body, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, Canonical(principal, tsMs, nonce, body), sig)
}

// ErrBadKey is returned by helpers that parse raw key bytes of the wrong
// length.
var ErrBadKey = fmt.Errorf("signing: key must be %d bytes", ed25519.PublicKeySize)

// ParsePublicKey validates that b is a 32-byte Ed25519 public key
// (spec.md §4.4: "all public keys decode as 32-byte Ed25519 keys").
func ParsePublicKey(b []byte) (ed25519.PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, ErrBadKey
	}
	out := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(out, b)
	return out, nil
}
