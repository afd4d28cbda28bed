package signing

import (
	"crypto/ed25519"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// turretInfo is the HKDF info parameter that scopes the derived key to
// turret's own signing identity, so it can never collide with any other
// use of the same bunker seed material.
const turretInfo = "turret-self-signing-key-v1"

// DeriveTurretKey derives a stable Ed25519 keypair for turret itself from
// bunker-scoped seed material (the bunker's recipients list plus its
// version, fed in by the caller), using HKDF-SHA256 to stretch it into an
// Ed25519 seed. Two calls with the same seed material always produce the
// same keypair: turret does not need to persist an extra key alongside
// the bunker to have a stable signing principal across restarts (spec.md
// §9 Open Question a).
func DeriveTurretKey(seedMaterial []byte) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	salt := make([]byte, sha256.Size) // zero salt: seedMaterial already carries the entropy
	kdf := hkdf.New(sha256.New, seedMaterial, salt, []byte(turretInfo))

	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(kdf, seed); err != nil {
		return nil, nil, err
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return pub, priv, nil
}
