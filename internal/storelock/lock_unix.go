//go:build unix

package storelock

import (
	"os"

	"golang.org/x/sys/unix"
)

// TryExclusive attempts to acquire a non-blocking exclusive flock on f.
// Returns ErrLocked if another process already holds it.
func TryExclusive(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return ErrLocked
	}
	return err
}

// Unlock releases a lock previously acquired with TryExclusive.
func Unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
