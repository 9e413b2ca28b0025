package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx scopes a single update transaction (§4.2). It wraps a *sql.Tx plus the
// same prepared statements as Store, rebound to run inside the transaction.
type Tx struct {
	tx    *sql.Tx
	stmts txStatements
}

type txStatements struct {
	insertFile        *sql.Stmt
	insertPath        *sql.Stmt
	insertCommand     *sql.Stmt
	insertArgs        *sql.Stmt
	insertKind        *sql.Stmt
	upsertSourceFile  *sql.Stmt
	upsertInclusion   *sql.Stmt
	upsertDefinition  *sql.Stmt
	upsertOverride    *sql.Stmt
	upsertCaller      *sql.Stmt
	upsertReference   *sql.Stmt
	deleteInclusions  *sql.Stmt
	deleteDefinitions *sql.Stmt
	deleteRefs        *sql.Stmt
}

// WithTransaction begins a transaction, runs fn against it, and commits —
// or rolls back on any exit path: fn returning an error, fn panicking, or
// Commit itself failing. Every scheduler update variant (§4.5) runs through
// this so a crash mid-update never leaves the store half-written (§3
// invariant 4).
func (s *Store) WithTransaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	tx := &Tx{
		tx: sqlTx,
		stmts: txStatements{
			insertFile:        sqlTx.StmtContext(ctx, s.stmts.insertFile),
			insertPath:        sqlTx.StmtContext(ctx, s.stmts.insertPath),
			insertCommand:     sqlTx.StmtContext(ctx, s.stmts.insertCommand),
			insertArgs:        sqlTx.StmtContext(ctx, s.stmts.insertArgs),
			insertKind:        sqlTx.StmtContext(ctx, s.stmts.insertKind),
			upsertSourceFile:  sqlTx.StmtContext(ctx, s.stmts.upsertSourceFile),
			upsertInclusion:   sqlTx.StmtContext(ctx, s.stmts.upsertInclusion),
			upsertDefinition:  sqlTx.StmtContext(ctx, s.stmts.upsertDefinition),
			upsertOverride:    sqlTx.StmtContext(ctx, s.stmts.upsertOverride),
			upsertCaller:      sqlTx.StmtContext(ctx, s.stmts.upsertCaller),
			upsertReference:   sqlTx.StmtContext(ctx, s.stmts.upsertReference),
			deleteInclusions:  sqlTx.StmtContext(ctx, s.stmts.deleteInclusions),
			deleteDefinitions: sqlTx.StmtContext(ctx, s.stmts.deleteDefinitions),
			deleteRefs:        sqlTx.StmtContext(ctx, s.stmts.deleteRefs),
		},
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return fmt.Errorf("transaction body: %w", err)
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
