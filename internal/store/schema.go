package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaMajor and SchemaMinor are the on-disk schema version this binary
// requires. A version mismatch on open is fatal (§3 invariant 5, §7): no
// migration is attempted, matching the Non-goal "schema evolution across
// incompatible versions."
const (
	SchemaMajor = 0
	SchemaMinor = 8
	toolName    = "pygmalion"
)

// schemaDDL creates every table named in §4.2. Textual tables share the
// shape (Hash PK, Text) with insert-or-ignore semantics; fact tables store
// only hashes and small scalars.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS Metadata (
	Key   TEXT PRIMARY KEY,
	Value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS Files (
	Hash INTEGER PRIMARY KEY,
	Text TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS Paths (
	Hash INTEGER PRIMARY KEY,
	Text TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS BuildCommands (
	Hash INTEGER PRIMARY KEY,
	Text TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS BuildArgs (
	Hash INTEGER PRIMARY KEY,
	Text TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS Kinds (
	Hash INTEGER PRIMARY KEY,
	Text TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS SourceFiles (
	FileHash       INTEGER PRIMARY KEY,
	WorkingDirHash INTEGER NOT NULL,
	CommandHash    INTEGER NOT NULL,
	ArgsHash       INTEGER NOT NULL,
	LastIndexed    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS Inclusions (
	IncluderHash INTEGER NOT NULL,
	IncludedHash INTEGER NOT NULL,
	Direct       INTEGER NOT NULL,
	PRIMARY KEY (IncluderHash, IncludedHash)
);
CREATE INDEX IF NOT EXISTS idx_inclusions_included ON Inclusions(IncludedHash);

CREATE TABLE IF NOT EXISTS Definitions (
	UsrHash  INTEGER PRIMARY KEY,
	Name     TEXT NOT NULL,
	Usr      TEXT NOT NULL,
	FileHash INTEGER NOT NULL,
	Line     INTEGER NOT NULL,
	Col      INTEGER NOT NULL,
	KindHash INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_definitions_file ON Definitions(FileHash);

CREATE TABLE IF NOT EXISTS Overrides (
	DefiningUsrHash   INTEGER NOT NULL,
	OverriddenUsrHash INTEGER NOT NULL,
	PRIMARY KEY (DefiningUsrHash, OverriddenUsrHash)
);
CREATE INDEX IF NOT EXISTS idx_overrides_overridden ON Overrides(OverriddenUsrHash);

CREATE TABLE IF NOT EXISTS Callers (
	CallerUsrHash INTEGER NOT NULL,
	CalleeUsrHash INTEGER NOT NULL,
	PRIMARY KEY (CallerUsrHash, CalleeUsrHash)
);
CREATE INDEX IF NOT EXISTS idx_callers_callee ON Callers(CalleeUsrHash);

CREATE TABLE IF NOT EXISTS Refs (
	FileHash   INTEGER NOT NULL,
	Line       INTEGER NOT NULL,
	Col        INTEGER NOT NULL,
	EndLine    INTEGER NOT NULL,
	EndCol     INTEGER NOT NULL,
	RefUsrHash INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_refs_file ON Refs(FileHash);
CREATE INDEX IF NOT EXISTS idx_refs_target ON Refs(RefUsrHash);
`

// pragmas applies the tuning §4.2 requires: write-ahead journaling,
// synchronous=normal, a 4 KiB page and ~40 MiB page cache. These are
// "correctness under crash, not power loss" settings per the spec; the
// daemon's single-process exclusive lock (internal/storelock) is what
// justifies skipping any busier multi-writer tuning.
var pragmas = []string{
	"PRAGMA journal_mode = WAL;",
	"PRAGMA synchronous = NORMAL;",
	"PRAGMA page_size = 4096;",
	"PRAGMA cache_size = -40000;", // negative = KiB, so ~40 MiB
	"PRAGMA foreign_keys = OFF;",  // §3: FK ordering is enforced by insert order, not the DB
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}
	return nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return checkOrWriteVersion(ctx, db)
}

// checkOrWriteVersion enforces §3 invariant 5: on open, a (tool, major,
// minor) mismatch is fatal. A freshly created store writes its version and
// proceeds.
func checkOrWriteVersion(ctx context.Context, db *sql.DB) error {
	row := db.QueryRowContext(ctx, `SELECT Value FROM Metadata WHERE Key = 'tool'`)
	var existingTool string
	switch err := row.Scan(&existingTool); err {
	case sql.ErrNoRows:
		return writeVersion(ctx, db)
	case nil:
		return checkVersion(ctx, db, existingTool)
	default:
		return fmt.Errorf("read schema metadata: %w", err)
	}
}

func writeVersion(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin metadata write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt := `INSERT INTO Metadata (Key, Value) VALUES (?, ?)`
	if _, err := tx.ExecContext(ctx, stmt, "tool", toolName); err != nil {
		return fmt.Errorf("write tool metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx, stmt, "schema_major", fmt.Sprintf("%d", SchemaMajor)); err != nil {
		return fmt.Errorf("write schema_major metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx, stmt, "schema_minor", fmt.Sprintf("%d", SchemaMinor)); err != nil {
		return fmt.Errorf("write schema_minor metadata: %w", err)
	}
	return tx.Commit()
}

func checkVersion(ctx context.Context, db *sql.DB, existingTool string) error {
	if existingTool != toolName {
		return fmt.Errorf("%w: store was created by %q, this binary is %q", ErrVersionMismatch, existingTool, toolName)
	}
	var majorStr, minorStr string
	if err := db.QueryRowContext(ctx, `SELECT Value FROM Metadata WHERE Key = 'schema_major'`).Scan(&majorStr); err != nil {
		return fmt.Errorf("read schema_major metadata: %w", err)
	}
	if err := db.QueryRowContext(ctx, `SELECT Value FROM Metadata WHERE Key = 'schema_minor'`).Scan(&minorStr); err != nil {
		return fmt.Errorf("read schema_minor metadata: %w", err)
	}
	wantMajor := fmt.Sprintf("%d", SchemaMajor)
	wantMinor := fmt.Sprintf("%d", SchemaMinor)
	if majorStr != wantMajor || minorStr != wantMinor {
		return fmt.Errorf("%w: store schema is (%s, %s), this binary requires (%s, %s)",
			ErrVersionMismatch, majorStr, minorStr, wantMajor, wantMinor)
	}
	return nil
}
