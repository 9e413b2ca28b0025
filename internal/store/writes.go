package store

import (
	"context"
	"strings"

	"github.com/pygmalion-index/pygmalion/internal/facts"
	"github.com/pygmalion-index/pygmalion/internal/identity"
)

// argsJoinSep separates argv elements before they're dictionary-hashed as a
// single BuildArgs row. NUL can't appear in a compiler argument, so it's an
// unambiguous join point.
const argsJoinSep = "\x00"

// UpdateSourceFile records (or refreshes) the compile command observed for
// one source file (§3, §4.5 update variant "source file"), interning its
// file path, working directory, command, and joined argument vector into
// their dictionary tables.
func (tx *Tx) UpdateSourceFile(ctx context.Context, info facts.CommandInfo) error {
	fileHash := identity.Hash(info.SourceFile)
	if _, err := tx.stmts.insertFile.ExecContext(ctx, fileHash, info.SourceFile); err != nil {
		return wrapDBError("intern source file path", err)
	}

	dirHash := identity.Hash(info.WorkingDir)
	if _, err := tx.stmts.insertPath.ExecContext(ctx, dirHash, info.WorkingDir); err != nil {
		return wrapDBError("intern working dir", err)
	}

	cmdHash := identity.Hash(info.Command)
	if _, err := tx.stmts.insertCommand.ExecContext(ctx, cmdHash, info.Command); err != nil {
		return wrapDBError("intern build command", err)
	}

	joinedArgs := strings.Join(info.Args, argsJoinSep)
	argsHash := identity.Hash(joinedArgs)
	if _, err := tx.stmts.insertArgs.ExecContext(ctx, argsHash, joinedArgs); err != nil {
		return wrapDBError("intern build args", err)
	}

	if _, err := tx.stmts.upsertSourceFile.ExecContext(ctx,
		fileHash, dirHash, cmdHash, argsHash, info.LastIndexedEpochSeconds); err != nil {
		return wrapDBError("upsert source file", err)
	}
	return nil
}

// SplitArgs reverses the join performed by UpdateSourceFile, used when
// reading a BuildArgs row back out as a []string.
func SplitArgs(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, argsJoinSep)
}

// UpdateInclusion records one edge of the #include graph.
func (tx *Tx) UpdateInclusion(ctx context.Context, inc facts.Inclusion) error {
	includerHash := identity.Hash(inc.Includer)
	if _, err := tx.stmts.insertFile.ExecContext(ctx, includerHash, inc.Includer); err != nil {
		return wrapDBError("intern includer", err)
	}
	includedHash := identity.Hash(inc.Included)
	if _, err := tx.stmts.insertFile.ExecContext(ctx, includedHash, inc.Included); err != nil {
		return wrapDBError("intern included", err)
	}
	if _, err := tx.stmts.upsertInclusion.ExecContext(ctx, includerHash, includedHash, inc.Direct); err != nil {
		return wrapDBError("upsert inclusion", err)
	}
	return nil
}

// UpdateDef records (or refreshes) one definition.
func (tx *Tx) UpdateDef(ctx context.Context, def facts.DefInfo) error {
	usrHash := identity.Hash(def.USR)
	fileHash := identity.Hash(def.Location.File)
	if _, err := tx.stmts.insertFile.ExecContext(ctx, fileHash, def.Location.File); err != nil {
		return wrapDBError("intern definition file", err)
	}
	kindHash := identity.Hash(string(def.Kind))
	if _, err := tx.stmts.insertKind.ExecContext(ctx, kindHash, string(def.Kind)); err != nil {
		return wrapDBError("intern definition kind", err)
	}
	if _, err := tx.stmts.upsertDefinition.ExecContext(ctx,
		usrHash, def.Name, def.USR, fileHash, def.Location.Line, def.Location.Col, kindHash); err != nil {
		return wrapDBError("upsert definition", err)
	}
	return nil
}

// UpdateOverride records a directed override (or base-class) edge.
func (tx *Tx) UpdateOverride(ctx context.Context, ov facts.Override) error {
	definingHash := identity.Hash(ov.DefiningUSR)
	overriddenHash := identity.Hash(ov.OverriddenUSR)
	if _, err := tx.stmts.upsertOverride.ExecContext(ctx, definingHash, overriddenHash); err != nil {
		return wrapDBError("upsert override", err)
	}
	return nil
}

// UpdateCaller records a directed call edge.
func (tx *Tx) UpdateCaller(ctx context.Context, edge facts.CallEdge) error {
	callerHash := identity.Hash(edge.CallerUSR)
	calleeHash := identity.Hash(edge.CalleeUSR)
	if _, err := tx.stmts.upsertCaller.ExecContext(ctx, callerHash, calleeHash); err != nil {
		return wrapDBError("upsert caller edge", err)
	}
	return nil
}

// UpdateReference records one reference occurrence.
func (tx *Tx) UpdateReference(ctx context.Context, ref facts.Reference) error {
	fileHash := identity.Hash(ref.Range.File)
	if _, err := tx.stmts.insertFile.ExecContext(ctx, fileHash, ref.Range.File); err != nil {
		return wrapDBError("intern reference file", err)
	}
	targetHash := identity.Hash(ref.TargetUSR)
	if _, err := tx.stmts.upsertReference.ExecContext(ctx,
		fileHash, ref.Range.Line, ref.Range.Col, ref.Range.EndLine, ref.Range.EndCol, targetHash); err != nil {
		return wrapDBError("upsert reference", err)
	}
	return nil
}

// InsertFileAndCheck interns file into the Files dictionary and reports
// whether this was the first time it was seen, the atomic "did I already
// know this file?" primitive (§4.4). The indexing host (internal/daemon)
// uses it to decide whether to run ResetMetadata before re-indexing a
// file: a first insertion means no recorded fact can reference the file
// yet, so there is nothing to clear.
func (tx *Tx) InsertFileAndCheck(ctx context.Context, file string) (bool, error) {
	fileHash := identity.Hash(file)
	result, err := tx.stmts.insertFile.ExecContext(ctx, fileHash, file)
	if err != nil {
		return false, wrapDBError("insert file and check", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, wrapDBError("insert file and check rows affected", err)
	}
	return n == 1, nil
}

// ResetMetadata drops every inclusion, definition, and reference fact previously
// recorded against file, in preparation for a full re-index of it (§4.5
// update variant "clear file"): a translation unit that shrinks must not
// leave stale facts behind.
func (tx *Tx) ResetMetadata(ctx context.Context, file string) error {
	fileHash := identity.Hash(file)
	if _, err := tx.stmts.deleteInclusions.ExecContext(ctx, fileHash); err != nil {
		return wrapDBError("clear inclusions", err)
	}
	if _, err := tx.stmts.deleteDefinitions.ExecContext(ctx, fileHash); err != nil {
		return wrapDBError("clear definitions", err)
	}
	if _, err := tx.stmts.deleteRefs.ExecContext(ctx, fileHash); err != nil {
		return wrapDBError("clear references", err)
	}
	return nil
}
