package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pygmalion-index/pygmalion/internal/storelock"
)

// withShortOpenRetry shrinks the package's open-retry budget for the
// duration of a test, restoring it on cleanup, so lock-contention tests
// don't actually wait out the production 100x500ms budget.
func withShortOpenRetry(t *testing.T, retries int, backoff time.Duration) {
	t.Helper()
	prevRetries, prevBackoff := openRetries, openBackoff
	openRetries, openBackoff = retries, backoff
	t.Cleanup(func() { openRetries, openBackoff = prevRetries, prevBackoff })
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pygmalion.db")
	s, err := Open(path, Options{SkipLock: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenCreatesSchemaAndVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pygmalion.db")
	s, err := Open(path, Options{SkipLock: true})
	require.NoError(t, err)
	defer s.Close()

	var tool string
	err = s.db.QueryRow(`SELECT Value FROM Metadata WHERE Key = 'tool'`).Scan(&tool)
	require.NoError(t, err)
	require.Equal(t, toolName, tool)
}

func TestOpenTwiceSameVersionSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pygmalion.db")
	s1, err := Open(path, Options{SkipLock: true})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path, Options{SkipLock: true})
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestOpenRejectsVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pygmalion.db")
	s, err := Open(path, Options{SkipLock: true})
	require.NoError(t, err)

	_, err = s.db.Exec(`UPDATE Metadata SET Value = '999' WHERE Key = 'schema_major'`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path, Options{SkipLock: true})
	require.ErrorIs(t, err, ErrVersionMismatch)
}

func TestOpenRetriesLockUntilContentionClears(t *testing.T) {
	withShortOpenRetry(t, 20, 10*time.Millisecond)

	path := filepath.Join(t.TempDir(), "pygmalion.db")
	holder, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, storelock.TryExclusive(holder))

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = storelock.Unlock(holder)
		_ = holder.Close()
	}()

	s, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpenFailsAfterExhaustingLockRetries(t *testing.T) {
	withShortOpenRetry(t, 2, time.Millisecond)

	path := filepath.Join(t.TempDir(), "pygmalion.db")
	holder, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, storelock.TryExclusive(holder))
	defer func() {
		_ = storelock.Unlock(holder)
		_ = holder.Close()
	}()

	_, err = Open(path, Options{})
	require.Error(t, err)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	boom := errTestSentinel("boom")
	err := s.WithTransaction(ctx, func(tx *Tx) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

type errTestSentinel string

func (e errTestSentinel) Error() string { return string(e) }
