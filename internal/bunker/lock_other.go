//go:build !linux

package bunker

// lockMemory is a no-op on platforms without mlock support; secrets are
// still zeroized on disengage via SecretArena.Close, just not pinned out
// of swap.
func lockMemory(b []byte) error { return nil }

func unlockMemory(b []byte) error { return nil }
