//go:build windows

package storelock

import (
	"os"
	"syscall"

	"golang.org/x/sys/windows"
)

// TryExclusive attempts to acquire a non-blocking exclusive lock on f.
// Returns ErrLocked if another process already holds it.
func TryExclusive(f *os.File) error {
	const flags = windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY
	ol := &windows.Overlapped{}
	err := windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, 0xFFFFFFFF, 0xFFFFFFFF, ol)
	if err == windows.ERROR_LOCK_VIOLATION || err == syscall.EWOULDBLOCK {
		return ErrLocked
	}
	return err
}

// Unlock releases a lock previously acquired with TryExclusive.
func Unlock(f *os.File) error {
	ol := &windows.Overlapped{}
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 0xFFFFFFFF, 0xFFFFFFFF, ol)
}
