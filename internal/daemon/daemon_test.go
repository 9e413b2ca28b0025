package daemon

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pygmalion-index/pygmalion/internal/config"
	"github.com/pygmalion-index/pygmalion/internal/facts"
	"github.com/pygmalion-index/pygmalion/internal/rpc"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestDaemon opens a fresh store under t.TempDir() and a worker pool whose
// spawner always fails (workerPath never resolves), since no real
// pygclangindex binary is available to the test. That is enough to exercise
// every wiring path except a successful Analyze turn: New, Serve/Stop over
// RPC, and IndexFile's error propagation.
func newTestDaemon(t *testing.T, cfg config.Config) (*Daemon, string) {
	t.Helper()
	root := t.TempDir()
	d, err := New(context.Background(), root, cfg, filepath.Join(root, "no-such-pygclangindex"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d, root
}

func TestNewOpensStoreAndAnswersPingOverRPC(t *testing.T) {
	d, root := newTestDaemon(t, config.Defaults())

	errCh := make(chan error, 1)
	go func() { errCh <- d.Serve() }()
	require.Eventually(t, func() bool { return endpointExists(root) }, time.Second, 10*time.Millisecond)

	c, err := rpc.Dial(SocketPath(root))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Ping())

	require.NoError(t, d.Close())
	require.NoError(t, <-errCh)
}

// endpointExists is a small local stand-in for internal/rpc's unexported
// endpointExists, since the socket path's existence is itself the unix
// transport's discovery mechanism.
func endpointExists(root string) bool {
	_, err := rpc.DiscoverEndpoint(SocketPath(root))
	return err == nil
}

func TestStopRequestTearsDaemonDown(t *testing.T) {
	d, root := newTestDaemon(t, config.Defaults())

	errCh := make(chan error, 1)
	go func() { errCh <- d.Serve() }()
	require.Eventually(t, func() bool { return endpointExists(root) }, time.Second, 10*time.Millisecond)

	c, err := rpc.Dial(SocketPath(root))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Stop())

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve never returned after --stop")
	}
}

func TestIndexFileRecordsCommandEvenWhenWorkerSpawnFails(t *testing.T) {
	d, _ := newTestDaemon(t, config.Defaults())

	info := facts.CommandInfo{SourceFile: "/proj/a.cpp", WorkingDir: "/proj", Command: "clang++", Args: []string{"-c"}}
	err := d.IndexFile(info)
	require.Error(t, err)

	got, ok, err := d.scheduler.GetCommandInfo(info.SourceFile)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, info.Command, got.Command)
}

func TestIndexFileResetsMetadataOnlyOnReindex(t *testing.T) {
	d, _ := newTestDaemon(t, config.Defaults())

	info := facts.CommandInfo{SourceFile: "/proj/a.cpp", WorkingDir: "/proj", Command: "clang++", Args: []string{"-c"}}

	// First IndexFile call: InsertFileAndCheck reports a first insertion, so
	// dispatch skips ResetMetadata entirely — there is nothing yet to reset.
	require.Error(t, d.IndexFile(info)) // worker spawn still fails in this harness

	ref := facts.Reference{
		TargetUSR: "c:@target",
		Range:     facts.SourceRange{File: info.SourceFile, Line: 1, Col: 1, EndLine: 1, EndCol: 3},
	}
	d.scheduler.UpdateDef(facts.DefInfo{USR: ref.TargetUSR, Name: "target", Kind: facts.KindFunctionDecl})
	d.scheduler.UpdateReference(ref)
	require.Eventually(t, func() bool {
		refs, err := d.scheduler.GetReferences(ref.TargetUSR)
		return err == nil && len(refs) == 1
	}, time.Second, 10*time.Millisecond)

	// Second IndexFile call on the same file: the file is already known (it
	// was interned by the first UpdateSourceFile/UpdateReference), so this
	// time InsertFileAndCheck reports false and ResetMetadata runs, clearing
	// the reference recorded above.
	require.Error(t, d.IndexFile(info))
	require.Eventually(t, func() bool {
		refs, err := d.scheduler.GetReferences(ref.TargetUSR)
		return err == nil && len(refs) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestExportRequestWritesCompileCommands(t *testing.T) {
	d, root := newTestDaemon(t, config.Defaults())

	errCh := make(chan error, 1)
	go func() { errCh <- d.Serve() }()
	require.Eventually(t, func() bool { return endpointExists(root) }, time.Second, 10*time.Millisecond)

	c, err := rpc.Dial(SocketPath(root))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Export())

	_, statErr := os.Stat(filepath.Join(root, "compile_commands.json"))
	require.NoError(t, statErr)
}

func TestFindProjectRootWalksUpToConfigMarker(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, config.FileName), []byte("make: make\n"), 0o644))

	nested := filepath.Join(root, "src", "lib")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	require.Equal(t, root, FindProjectRoot(nested))
}

func TestFindProjectRootFallsBackToStartWhenNoMarkerFound(t *testing.T) {
	start := t.TempDir()
	require.Equal(t, start, FindProjectRoot(start))
}
