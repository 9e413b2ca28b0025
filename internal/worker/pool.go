package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pygmalion-index/pygmalion/internal/facts"
)

// Spawner constructs a fresh Worker, used both at pool startup and to
// respawn right after a desync.
type Spawner func() (*Worker, error)

// Pool runs N workers concurrently via golang.org/x/sync/errgroup (§4.6:
// "parallelism comes from running N workers concurrently"), each servicing
// Analyze requests pulled off a shared job queue. A worker that desyncs is
// discarded and respawned before its goroutine accepts another job.
type Pool struct {
	spawn  Spawner
	logger *slog.Logger
	jobs   chan job
	group  *errgroup.Group
	cancel context.CancelFunc
}

type job struct {
	requestID string
	info      facts.CommandInfo
	reply     chan<- jobResult
}

type jobResult struct {
	turn Turn
	err  error
}

// NewPool starts n workers. n <= 0 means one per core (§6: "indexingThreads
// ... 0 = one per core"). The returned Pool must be closed with Close.
func NewPool(ctx context.Context, n int, spawn Spawner, logger *slog.Logger) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)

	p := &Pool{
		spawn:  spawn,
		logger: logger,
		jobs:   make(chan job),
		group:  group,
		cancel: cancel,
	}
	for i := 0; i < n; i++ {
		group.Go(func() error {
			return p.workerLoop(gctx)
		})
	}
	return p
}

func (p *Pool) workerLoop(ctx context.Context) error {
	w, err := p.spawn()
	if err != nil {
		return fmt.Errorf("spawn worker: %w", err)
	}
	defer func() { _ = w.Close() }()

	for {
		select {
		case <-ctx.Done():
			_ = w.Shutdown()
			return nil
		case j, ok := <-p.jobs:
			if !ok {
				_ = w.Shutdown()
				return nil
			}
			turn, analyzeErr := w.Analyze(ctx, j.info)
			if errors.Is(analyzeErr, ErrDesync) {
				p.logger.Warn("worker desynced, respawning",
					"request_id", j.requestID, "file", j.info.SourceFile, "error", analyzeErr)
				_ = w.Close()
				var spawnErr error
				w, spawnErr = p.spawn()
				if spawnErr != nil {
					j.reply <- jobResult{err: fmt.Errorf("respawn worker: %w", spawnErr)}
					return fmt.Errorf("respawn worker: %w", spawnErr)
				}
			}
			j.reply <- jobResult{turn: turn, err: analyzeErr}
		}
	}
}

// Analyze dispatches info to the next available worker and blocks for its
// full turn of responses. Each call is tagged with a fresh request ID so the
// dispatch-desync-respawn sequence a single file can trigger is traceable as
// one unit across log lines, even though it may span more than one worker.
func (p *Pool) Analyze(ctx context.Context, info facts.CommandInfo) (Turn, error) {
	requestID := uuid.NewString()
	p.logger.Debug("dispatching analyze request", "request_id", requestID, "file", info.SourceFile)

	reply := make(chan jobResult, 1)
	select {
	case p.jobs <- job{requestID: requestID, info: info, reply: reply}:
	case <-ctx.Done():
		return Turn{}, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.turn, r.err
	case <-ctx.Done():
		return Turn{}, ctx.Err()
	}
}

// Close stops accepting new work, asks every worker to shut down, and waits
// for all worker goroutines to exit.
func (p *Pool) Close() error {
	defer p.cancel()
	close(p.jobs)
	if err := p.group.Wait(); err != nil {
		return fmt.Errorf("worker pool shutdown: %w", err)
	}
	return nil
}
