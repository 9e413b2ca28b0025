// Package scheduler implements the dual-channel request scheduler of §4.5:
// one writer goroutine owns the store handle, updates and queries arrive on
// two logically unbounded channels, and a starvation-avoiding arbitration
// rule decides which channel to service on each iteration.
package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pygmalion-index/pygmalion/internal/facts"
	"github.com/pygmalion-index/pygmalion/internal/store"
)

// throughputLogInterval is how often (in handled requests) the writer logs
// a throughput summary (§4.5).
const throughputLogInterval = 1000

// Scheduler is the single-writer arbiter in front of a *store.Store. All
// store access happens on its writer goroutine; Run must be called exactly
// once, typically from internal/daemon.
type Scheduler struct {
	store  *store.Store
	logger *slog.Logger

	updates *unboundedChan[updateOp]
	queries *unboundedChan[queryOp]

	closeOnce sync.Once
}

// New creates a Scheduler over s. Call Run to start the writer goroutine.
func New(s *store.Store, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:   s,
		logger:  logger,
		updates: newUnboundedChan[updateOp](),
		queries: newUnboundedChan[queryOp](),
	}
}

// Run is the writer loop: it owns the store for as long as it runs, and
// returns once a Shutdown request has been processed. Callers typically run
// it in its own goroutine and wait on it for clean daemon exit.
func (sc *Scheduler) Run(ctx context.Context) {
	n := 0
	handled := 0
	for {
		op, fromQueries, queueLen := sc.receiveOne(n)
		n++

		var err error
		var keepGoing = true
		if fromQueries {
			op.(queryOp).apply(ctx, sc.store)
		} else {
			keepGoing, err = op.(updateOp).apply(ctx, sc.store)
		}
		if err != nil {
			sc.logger.Error("scheduler: update failed", "error", err)
		}

		handled++
		if handled%throughputLogInterval == 0 {
			sc.logger.Info("scheduler: throughput",
				"handled", handled, "queue_len_at_last_read", queueLen)
		}
		if !keepGoing {
			return
		}
	}
}

// receiveOne implements the preferring-read channel primitive of §4.5: read
// from the preferred channel if it already has an item; otherwise block on
// either channel, whichever produces first. Preference flips by iteration
// count: queries are preferred every 10th iteration, updates otherwise. It
// returns the item, which channel it came from, and that channel's post-read
// queue length for the throughput log's diagnostics.
func (sc *Scheduler) receiveOne(n int) (op any, fromQueries bool, queueLenAfter int) {
	preferQueries := n%10 == 0

	if preferQueries {
		select {
		case q := <-sc.queries.recv():
			return q, true, sc.queries.len()
		default:
		}
	} else {
		select {
		case u := <-sc.updates.recv():
			return u, false, sc.updates.len()
		default:
		}
	}

	select {
	case q := <-sc.queries.recv():
		return q, true, sc.queries.len()
	case u := <-sc.updates.recv():
		return u, false, sc.updates.len()
	}
}

// Close submits a Shutdown request and blocks until the writer loop has
// processed it. Safe to call multiple times or concurrently; only the
// first call submits the request.
func (sc *Scheduler) Close() {
	sc.closeOnce.Do(func() {
		done := make(chan struct{})
		sc.updates.send(shutdownOp{done: done})
		<-done
		sc.updates.close()
		sc.queries.close()
	})
}

// --- update-side client API ---

func (sc *Scheduler) UpdateSourceFile(info facts.CommandInfo) {
	sc.updates.send(updateSourceFileOp{info})
}

func (sc *Scheduler) UpdateInclusion(inc facts.Inclusion) {
	sc.updates.send(updateInclusionOp{inc})
}

func (sc *Scheduler) UpdateDef(def facts.DefInfo) {
	sc.updates.send(updateDefOp{def})
}

func (sc *Scheduler) UpdateOverride(ov facts.Override) {
	sc.updates.send(updateOverrideOp{ov})
}

func (sc *Scheduler) UpdateCaller(edge facts.CallEdge) {
	sc.updates.send(updateCallerOp{edge})
}

func (sc *Scheduler) UpdateReference(ref facts.Reference) {
	sc.updates.send(updateReferenceOp{ref})
}

func (sc *Scheduler) ResetMetadata(file string) {
	sc.updates.send(resetMetadataOp{file})
}

// InsertFileAndCheck is the one update with a reply: it blocks the caller
// until the writer reports whether file was seen for the first time.
func (sc *Scheduler) InsertFileAndCheck(file string) bool {
	reply := make(chan bool, 1)
	sc.updates.send(insertFileAndCheckOp{file: file, reply: reply})
	return <-reply
}

// --- query-side client API ---

func (sc *Scheduler) GetCommandInfo(file string) (facts.CommandInfo, bool, error) {
	reply := make(chan commandInfoResult, 1)
	sc.queries.send(getCommandInfoOp{file: file, reply: reply})
	r := <-reply
	return r.info, r.ok, r.err
}

func (sc *Scheduler) GetSimilarCommandInfo(file string) (facts.CommandInfo, bool, error) {
	reply := make(chan commandInfoResult, 1)
	sc.queries.send(getSimilarCommandInfoOp{file: file, reply: reply})
	r := <-reply
	return r.info, r.ok, r.err
}

func (sc *Scheduler) GetDefinition(usr string) (facts.DefInfo, bool, error) {
	reply := make(chan defResult, 1)
	sc.queries.send(getDefinitionOp{usr: usr, reply: reply})
	r := <-reply
	return r.def, r.ok, r.err
}

func (sc *Scheduler) GetIncluders(file string) ([]facts.CommandInfo, error) {
	reply := make(chan commandInfosResult, 1)
	sc.queries.send(getIncludersOp{file: file, reply: reply})
	r := <-reply
	return r.infos, r.err
}

func (sc *Scheduler) GetCallers(usr string) ([]facts.DefInfo, error) {
	reply := make(chan defsResult, 1)
	sc.queries.send(getCallersOp{usr: usr, reply: reply})
	r := <-reply
	return r.defs, r.err
}

func (sc *Scheduler) GetCallees(usr string) ([]facts.DefInfo, error) {
	reply := make(chan defsResult, 1)
	sc.queries.send(getCalleesOp{usr: usr, reply: reply})
	r := <-reply
	return r.defs, r.err
}

func (sc *Scheduler) GetBases(usr string) ([]facts.DefInfo, error) {
	reply := make(chan defsResult, 1)
	sc.queries.send(getBasesOp{usr: usr, reply: reply})
	r := <-reply
	return r.defs, r.err
}

func (sc *Scheduler) GetOverriders(usr string) ([]facts.DefInfo, error) {
	reply := make(chan defsResult, 1)
	sc.queries.send(getOverridersOp{usr: usr, reply: reply})
	r := <-reply
	return r.defs, r.err
}

func (sc *Scheduler) GetReferences(usr string) ([]facts.SourceRange, error) {
	reply := make(chan rangesResult, 1)
	sc.queries.send(getReferencesOp{usr: usr, reply: reply})
	r := <-reply
	return r.ranges, r.err
}

func (sc *Scheduler) GetReferenced(file string, line, col int) ([]facts.DefInfo, error) {
	reply := make(chan defsResult, 1)
	sc.queries.send(getReferencedOp{file: file, line: line, col: col, reply: reply})
	r := <-reply
	return r.defs, r.err
}

// GetAllSourceFiles returns every indexed source file's recorded compile
// command, used by internal/compiledb to export compile_commands.json.
func (sc *Scheduler) GetAllSourceFiles() ([]facts.CommandInfo, error) {
	reply := make(chan commandInfosResult, 1)
	sc.queries.send(getAllSourceFilesOp{reply: reply})
	r := <-reply
	return r.infos, r.err
}
