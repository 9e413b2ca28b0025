package scheduler

import (
	"context"

	"github.com/pygmalion-index/pygmalion/internal/facts"
	"github.com/pygmalion-index/pygmalion/internal/store"
)

// updateOp is one variant of the updates-channel request sum type named in
// §4.5 (UpdateCommandInfo | UpdateDef | ... | InsertFileAndCheck(reply) |
// Shutdown). Each variant knows how to apply itself against the store,
// including opening its own transaction — §3 invariant 4 requires every
// fact write be a single atomic operation, so each op, not the writer loop,
// owns the transaction boundary. apply reports whether the writer should
// keep looping (false only for shutdownOp) and any error encountered, which
// the writer logs rather than propagates (§5: "the writer does not check
// cancellation mid-operation; operations are short").
type updateOp interface {
	apply(ctx context.Context, s *store.Store) (keepGoing bool, err error)
}

type updateSourceFileOp struct{ info facts.CommandInfo }

func (o updateSourceFileOp) apply(ctx context.Context, s *store.Store) (bool, error) {
	return true, s.WithTransaction(ctx, func(tx *store.Tx) error {
		return tx.UpdateSourceFile(ctx, o.info)
	})
}

type updateInclusionOp struct{ inclusion facts.Inclusion }

func (o updateInclusionOp) apply(ctx context.Context, s *store.Store) (bool, error) {
	return true, s.WithTransaction(ctx, func(tx *store.Tx) error {
		return tx.UpdateInclusion(ctx, o.inclusion)
	})
}

type updateDefOp struct{ def facts.DefInfo }

func (o updateDefOp) apply(ctx context.Context, s *store.Store) (bool, error) {
	return true, s.WithTransaction(ctx, func(tx *store.Tx) error {
		return tx.UpdateDef(ctx, o.def)
	})
}

type updateOverrideOp struct{ override facts.Override }

func (o updateOverrideOp) apply(ctx context.Context, s *store.Store) (bool, error) {
	return true, s.WithTransaction(ctx, func(tx *store.Tx) error {
		return tx.UpdateOverride(ctx, o.override)
	})
}

type updateCallerOp struct{ edge facts.CallEdge }

func (o updateCallerOp) apply(ctx context.Context, s *store.Store) (bool, error) {
	return true, s.WithTransaction(ctx, func(tx *store.Tx) error {
		return tx.UpdateCaller(ctx, o.edge)
	})
}

type updateReferenceOp struct{ ref facts.Reference }

func (o updateReferenceOp) apply(ctx context.Context, s *store.Store) (bool, error) {
	return true, s.WithTransaction(ctx, func(tx *store.Tx) error {
		return tx.UpdateReference(ctx, o.ref)
	})
}

type resetMetadataOp struct{ file string }

func (o resetMetadataOp) apply(ctx context.Context, s *store.Store) (bool, error) {
	return true, s.WithTransaction(ctx, func(tx *store.Tx) error {
		return tx.ResetMetadata(ctx, o.file)
	})
}

// insertFileAndCheckOp is the one update variant with a reply slot (§4.5):
// the caller needs the "was this the first insertion" bool to decide
// whether the file's earlier facts must be cleared with ResetMetadata
// before it is re-indexed.
type insertFileAndCheckOp struct {
	file  string
	reply chan<- bool
}

func (o insertFileAndCheckOp) apply(ctx context.Context, s *store.Store) (bool, error) {
	var firstSeen bool
	err := s.WithTransaction(ctx, func(tx *store.Tx) error {
		var err error
		firstSeen, err = tx.InsertFileAndCheck(ctx, o.file)
		return err
	})
	o.reply <- firstSeen
	return true, err
}

// shutdownOp is the sentinel the writer loop recognizes to stop (§4.5:
// "causes the writer to exit after finishing in-flight work").
type shutdownOp struct{ done chan<- struct{} }

func (o shutdownOp) apply(_ context.Context, _ *store.Store) (bool, error) {
	close(o.done)
	return false, nil
}
