// Package daemon wires the store, scheduler, worker pool and RPC server into
// one running process — pygd's composition root (§5, §6 supplemented).
// Grounded on beads' cmd/bd daemon startup/event-loop shape, but scoped to
// pygmalion's much smaller surface: there is no JSONL sync, no git hooks, no
// remote pull, just "open the store, serve queries and indexing requests
// until asked to stop."
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/pygmalion-index/pygmalion/internal/compiledb"
	"github.com/pygmalion-index/pygmalion/internal/config"
	"github.com/pygmalion-index/pygmalion/internal/facts"
	"github.com/pygmalion-index/pygmalion/internal/query"
	"github.com/pygmalion-index/pygmalion/internal/rpc"
	"github.com/pygmalion-index/pygmalion/internal/scheduler"
	"github.com/pygmalion-index/pygmalion/internal/store"
	"github.com/pygmalion-index/pygmalion/internal/worker"
)

// StoreFileName is the on-disk store's fixed name, resolved relative to the
// project root (§6: "a single store file .pygmalion.sqlite at the project
// root").
const StoreFileName = ".pygmalion.sqlite"

// SocketFileName is the RPC endpoint's fixed name. Unlike StoreFileName this
// is not named by spec.md; it is the supplemented CLI transport's advertised
// location (see internal/rpc), one per project root alongside the store.
const SocketFileName = ".pygmalion.sock"

// StorePath and SocketPath resolve the two on-disk names relative to a
// project root, the one place both cmd/pygd and the CLI clients need to
// agree on them.
func StorePath(projectRoot string) string  { return filepath.Join(projectRoot, StoreFileName) }
func SocketPath(projectRoot string) string { return filepath.Join(projectRoot, SocketFileName) }

// FindProjectRoot walks upward from start looking for .pygmalion.sqlite or
// .pygmalion.conf, so pygscan (invoked from wherever the build happens to
// cd into) and pygmake can find the project root pygd is serving without
// the user having to pass it explicitly on every compiler invocation. If
// neither marker is found by the time the filesystem root is reached, start
// itself is returned unchanged.
func FindProjectRoot(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		return start
	}
	for {
		if fileExists(filepath.Join(dir, StoreFileName)) || fileExists(filepath.Join(dir, config.FileName)) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Daemon owns every long-lived resource of one project's pygd process: the
// store, the scheduler's writer goroutine, the worker pool, and the RPC
// server. It implements rpc.Indexer so the RPC server can dispatch `--index`
// requests back into it without internal/rpc importing this package.
type Daemon struct {
	projectRoot string
	cfg         config.Config
	logger      *slog.Logger

	store     *store.Store
	scheduler *scheduler.Scheduler
	pool      *worker.Pool
	server    *rpc.Server

	ctx       context.Context
	closeOnce sync.Once
	closeErr  error
}

var _ rpc.Indexer = (*Daemon)(nil)
var _ rpc.Exporter = (*Daemon)(nil)
var _ query.Client = (*scheduler.Scheduler)(nil)
var _ compiledb.Source = (*scheduler.Scheduler)(nil)

// New opens the project's store and starts the scheduler and worker pool.
// workerPath is the pygclangindex binary the pool spawns one copy of per
// indexing thread (§6: "parallelism comes from running N workers
// concurrently"); ctx bounds the worker pool's and scheduler's lifetime and
// should be cancelled only as part of Close.
//
// A failure here is a Fatal-startup error in the sense of §7: store.Open has
// already retried the file open/lock step up to its own limit, so by the
// time it returns an error the caller is expected to log it and exit rather
// than retry again itself.
func New(ctx context.Context, projectRoot string, cfg config.Config, workerPath string, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(StorePath(projectRoot), store.Options{})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sc := scheduler.New(st, logger)
	go sc.Run(ctx)

	pool := worker.NewPool(ctx, cfg.IndexingThreads, spawner(workerPath), logger)

	d := &Daemon{
		projectRoot: projectRoot,
		cfg:         cfg,
		logger:      logger,
		store:       st,
		scheduler:   sc,
		pool:        pool,
		ctx:         ctx,
	}
	d.server = rpc.NewServer(SocketPath(projectRoot), query.New(sc), d, d, d.stop, logger)
	return d, nil
}

// spawner builds a worker.Spawner that starts a fresh copy of the
// pygclangindex binary at path.
func spawner(path string) worker.Spawner {
	return func() (*worker.Worker, error) {
		return worker.Spawn(path)
	}
}

// Serve blocks, answering RPC connections, until Close is called (directly,
// via a `--stop` request, or via RunUntilSignal). It returns nil on a clean
// shutdown.
func (d *Daemon) Serve() error {
	return d.server.Serve()
}

// RunUntilSignal calls Serve in the background and blocks until the process
// receives SIGINT/SIGTERM (SIGHUP on unix, see signals_unix.go) or the
// server itself fails, then performs an orderly Close. Grounded on beads'
// cmd/bd/daemon_event_loop.go signal-select shape, reduced to the one
// concern pygmalion's daemon actually has: "stop serving, then tear down".
func (d *Daemon) RunUntilSignal() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, daemonSignals...)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() { errChan <- d.Serve() }()

	var serveErr error
	select {
	case sig := <-sigChan:
		d.logger.Info("daemon: received signal, shutting down", "signal", sig)
	case serveErr = <-errChan:
		if serveErr != nil {
			d.logger.Error("daemon: rpc server failed", "error", serveErr)
		}
	}

	if err := d.Close(); err != nil {
		d.logger.Error("daemon: shutdown error", "error", err)
		if serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}

// stop is the rpc.Server stopFn: invoked once, after a `--stop` request has
// been replied to, to actually tear the daemon down. Calling Close from here
// as well as from RunUntilSignal or a test's cleanup is safe because Close
// runs its teardown only once (closeOnce), so Scheduler.Close, Pool.Close
// and Store.Close are each reached at most once.
func (d *Daemon) stop() error {
	return d.Close()
}

// Close stops accepting RPC connections, drains the worker pool, drains the
// scheduler's writer goroutine, and closes the store — in that order, so
// that nothing downstream is torn down while work referencing it might
// still be in flight. Safe to call more than once (stop, RunUntilSignal,
// and the test suite's cleanup may all call it); only the first call
// actually tears anything down.
func (d *Daemon) Close() error {
	d.closeOnce.Do(func() {
		if err := d.server.Stop(); err != nil {
			d.logger.Warn("daemon: error stopping rpc server", "error", err)
		}
		if err := d.pool.Close(); err != nil {
			d.logger.Warn("daemon: error closing worker pool", "error", err)
		}
		d.scheduler.Close()
		if err := d.store.Close(); err != nil {
			d.closeErr = fmt.Errorf("close store: %w", err)
		}
	})
	return d.closeErr
}

// IndexFile implements rpc.Indexer: it records info as the file's compile
// command, resets the file's previously recorded facts (§5: "the indexer
// host thread submits ResetMetadata before any of that TU's facts" — this is
// that submission), dispatches the translation unit to the worker pool, and
// replays every fact the worker reports through the scheduler's update
// channel. Call-edges and overrides are never reset here (§9 open question:
// they are not file-keyed and may persist past a removed definition).
//
// InsertFileAndCheck (§4.4) gates that reset: a first insertion means this
// path has never been interned into the Files dictionary by any prior
// updateSourceFile/updateInclusion/updateDef/updateReference, which makes
// ResetMetadata's three deletes a guaranteed no-op, so dispatch skips it
// rather than running three empty DELETEs on every never-before-seen TU.
func (d *Daemon) IndexFile(info facts.CommandInfo) error {
	if !d.scheduler.InsertFileAndCheck(info.SourceFile) {
		d.scheduler.ResetMetadata(info.SourceFile)
	}
	d.scheduler.UpdateSourceFile(info)

	turn, err := d.pool.Analyze(d.ctx, info)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", info.SourceFile, err)
	}

	for _, inc := range turn.Inclusions {
		d.scheduler.UpdateInclusion(inc)
	}
	for _, def := range turn.Defs {
		d.scheduler.UpdateDef(def)
	}
	for _, ov := range turn.Overrides {
		d.scheduler.UpdateOverride(ov)
	}
	for _, edge := range turn.Calls {
		d.scheduler.UpdateCaller(edge)
	}
	for _, ref := range turn.Refs {
		d.scheduler.UpdateReference(ref)
	}

	if d.cfg.CompilationDatabase {
		if exportErr := compiledb.Export(d.projectRoot, d.scheduler); exportErr != nil {
			d.logger.Warn("compile_commands.json export failed", "error", exportErr)
		}
	}
	return nil
}

// ExportCompileDB implements rpc.Exporter: it writes compile_commands.json
// on demand (`pygmalion export`), independent of the compilationDatabase
// config flag that triggers the same write automatically after IndexFile.
func (d *Daemon) ExportCompileDB() error {
	return compiledb.Export(d.projectRoot, d.scheduler)
}
