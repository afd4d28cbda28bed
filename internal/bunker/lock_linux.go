//go:build linux

package bunker

import "golang.org/x/sys/unix"

// lockMemory pins b's backing pages so the secrets they hold are never
// written to swap. Best-effort: a failure (e.g. missing CAP_IPC_LOCK, or
// a container's locked-memory ulimit) is returned but not fatal to the
// caller, matching the soft-fail posture the sandbox package uses for
// unavailable Linux capabilities.
func lockMemory(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Mlock(b)
}

// unlockMemory reverses lockMemory before b is discarded.
func unlockMemory(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munlock(b)
}
