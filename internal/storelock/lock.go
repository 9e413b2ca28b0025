// Package storelock provides the OS-level exclusive file lock §4.2 requires
// on the store file, justified by the single-process-daemon constraint: only
// one pygd process may hold the store open for writing at a time.
package storelock

import "errors"

// ErrLocked is returned by TryExclusive when another process already holds
// the lock.
var ErrLocked = errors.New("store file is locked by another process")

// IsLocked reports whether err indicates the store is locked by another
// process (as opposed to some other I/O failure acquiring the lock).
func IsLocked(err error) bool {
	return errors.Is(err, ErrLocked)
}
