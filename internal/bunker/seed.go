package bunker

import (
	"encoding/binary"
	"sort"
)

// SigningSeed derives turret's own HKDF seed material from bunker
// content that is stable across restarts but unique per bunker: the
// recipients list plus the document version. It deliberately excludes
// secrets so logging or displaying the seed derivation never risks
// leaking them.
func SigningSeed(d *Document) []byte {
	recipients := append([]string(nil), d.Operators.Recipients...)
	sort.Strings(recipients)

	seed := make([]byte, 0, 8+64*len(recipients))
	var versionBuf [8]byte
	binary.LittleEndian.PutUint64(versionBuf[:], uint64(d.Version))
	seed = append(seed, versionBuf[:]...)
	for _, r := range recipients {
		seed = append(seed, r...)
		seed = append(seed, 0)
	}
	return seed
}
