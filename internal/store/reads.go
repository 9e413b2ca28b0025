package store

import (
	"context"
	"database/sql"

	"github.com/pygmalion-index/pygmalion/internal/facts"
	"github.com/pygmalion-index/pygmalion/internal/identity"
)

// GetCommandInfo returns the exact compile command recorded for file, if
// any (§4.4).
func (s *Store) GetCommandInfo(ctx context.Context, file string) (facts.CommandInfo, bool, error) {
	fileHash := identity.Hash(file)
	row := s.db.QueryRowContext(ctx, `
		SELECT p.Text, c.Text, a.Text, sf.LastIndexed
		FROM SourceFiles sf
		JOIN Paths p ON p.Hash = sf.WorkingDirHash
		JOIN BuildCommands c ON c.Hash = sf.CommandHash
		JOIN BuildArgs a ON a.Hash = sf.ArgsHash
		WHERE sf.FileHash = ?`, fileHash)

	var workingDir, command, joinedArgs string
	var lastIndexed int64
	switch err := row.Scan(&workingDir, &command, &joinedArgs, &lastIndexed); err {
	case nil:
		return facts.CommandInfo{
			SourceFile:              file,
			WorkingDir:              workingDir,
			Command:                 command,
			Args:                    SplitArgs(joinedArgs),
			LastIndexedEpochSeconds: lastIndexed,
		}, true, nil
	case sql.ErrNoRows:
		return facts.CommandInfo{}, false, nil
	default:
		return facts.CommandInfo{}, false, wrapDBError("get command info", err)
	}
}

// GetSimilarCommandInfo falls back from an exact GetCommandInfo miss (§4.4):
// it finds the recorded source file whose directory shares the longest path
// prefix with dir, on the theory that sibling files in the same directory
// were very likely compiled with the same flags, and rewrites the returned
// record's SourceFile to dir's caller-supplied file. "Arbitrary match" is
// the documented behavior — never fails, just reports no match.
func (s *Store) GetSimilarCommandInfo(ctx context.Context, file string) (facts.CommandInfo, bool, error) {
	dir := parentDir(file)
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.Text, p.Text, c.Text, a.Text, sf.LastIndexed
		FROM SourceFiles sf
		JOIN Files f ON f.Hash = sf.FileHash
		JOIN Paths p ON p.Hash = sf.WorkingDirHash
		JOIN BuildCommands c ON c.Hash = sf.CommandHash
		JOIN BuildArgs a ON a.Hash = sf.ArgsHash`)
	if err != nil {
		return facts.CommandInfo{}, false, wrapDBError("scan source files for similar command", err)
	}
	defer rows.Close()

	var best facts.CommandInfo
	bestLen := -1
	for rows.Next() {
		var sourceFile, workingDir, command, joinedArgs string
		var lastIndexed int64
		if err := rows.Scan(&sourceFile, &workingDir, &command, &joinedArgs, &lastIndexed); err != nil {
			return facts.CommandInfo{}, false, wrapDBError("scan similar command row", err)
		}
		if n := commonPathPrefixLen(dir, parentDir(sourceFile)); n > bestLen {
			bestLen = n
			best = facts.CommandInfo{
				SourceFile:              file,
				WorkingDir:              workingDir,
				Command:                 command,
				Args:                    SplitArgs(joinedArgs),
				LastIndexedEpochSeconds: lastIndexed,
			}
		}
	}
	if err := rows.Err(); err != nil {
		return facts.CommandInfo{}, false, wrapDBError("iterate similar command rows", err)
	}
	return best, bestLen >= 0, nil
}

// GetDefinition returns the definition with the given USR.
func (s *Store) GetDefinition(ctx context.Context, usr string) (facts.DefInfo, bool, error) {
	usrHash := identity.Hash(usr)
	row := s.db.QueryRowContext(ctx, `
		SELECT d.Name, d.Usr, f.Text, d.Line, d.Col, k.Text
		FROM Definitions d
		JOIN Files f ON f.Hash = d.FileHash
		JOIN Kinds k ON k.Hash = d.KindHash
		WHERE d.UsrHash = ?`, usrHash)

	var name, usrOut, file, kind string
	var line, col int
	switch err := row.Scan(&name, &usrOut, &file, &line, &col, &kind); err {
	case nil:
		return facts.DefInfo{
			USR:      usrOut,
			Name:     name,
			Location: facts.Location{File: file, Line: line, Col: col},
			Kind:     facts.DefKind(kind),
		}, true, nil
	case sql.ErrNoRows:
		return facts.DefInfo{}, false, nil
	default:
		return facts.DefInfo{}, false, wrapDBError("get definition", err)
	}
}

func scanDefs(rows *sql.Rows) ([]facts.DefInfo, error) {
	var out []facts.DefInfo
	for rows.Next() {
		var name, usr, file, kind string
		var line, col int
		if err := rows.Scan(&name, &usr, &file, &line, &col, &kind); err != nil {
			return nil, wrapDBError("scan definition row", err)
		}
		out = append(out, facts.DefInfo{
			USR:      usr,
			Name:     name,
			Location: facts.Location{File: file, Line: line, Col: col},
			Kind:     facts.DefKind(kind),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate definition rows", err)
	}
	return out, nil
}

const definitionColumns = `d.Name, d.Usr, f.Text, d.Line, d.Col, k.Text`
const definitionJoin = `JOIN Files f ON f.Hash = d.FileHash JOIN Kinds k ON k.Hash = d.KindHash`

// GetIncluders returns the compile command of every translation unit that
// (directly or, per a recorded transitive edge, indirectly) includes file —
// used to find a suitable command line for compiling a header, which has
// none of its own (§4.4).
func (s *Store) GetIncluders(ctx context.Context, file string) ([]facts.CommandInfo, error) {
	fileHash := identity.Hash(file)
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.Text, p.Text, c.Text, a.Text, sf.LastIndexed
		FROM Inclusions i
		JOIN SourceFiles sf ON sf.FileHash = i.IncluderHash
		JOIN Files f ON f.Hash = sf.FileHash
		JOIN Paths p ON p.Hash = sf.WorkingDirHash
		JOIN BuildCommands c ON c.Hash = sf.CommandHash
		JOIN BuildArgs a ON a.Hash = sf.ArgsHash
		WHERE i.IncludedHash = ?`, fileHash)
	if err != nil {
		return nil, wrapDBError("get includers", err)
	}
	defer rows.Close()

	var out []facts.CommandInfo
	for rows.Next() {
		var sourceFile, workingDir, command, joinedArgs string
		var lastIndexed int64
		if err := rows.Scan(&sourceFile, &workingDir, &command, &joinedArgs, &lastIndexed); err != nil {
			return nil, wrapDBError("scan includer row", err)
		}
		out = append(out, facts.CommandInfo{
			SourceFile:              sourceFile,
			WorkingDir:              workingDir,
			Command:                 command,
			Args:                    SplitArgs(joinedArgs),
			LastIndexedEpochSeconds: lastIndexed,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate includer rows", err)
	}
	return out, nil
}

// GetAllSourceFiles returns the recorded compile command for every indexed
// source file, used by internal/compiledb to export a full
// compile_commands.json rather than one file at a time.
func (s *Store) GetAllSourceFiles(ctx context.Context) ([]facts.CommandInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.Text, p.Text, c.Text, a.Text, sf.LastIndexed
		FROM SourceFiles sf
		JOIN Files f ON f.Hash = sf.FileHash
		JOIN Paths p ON p.Hash = sf.WorkingDirHash
		JOIN BuildCommands c ON c.Hash = sf.CommandHash
		JOIN BuildArgs a ON a.Hash = sf.ArgsHash
		ORDER BY f.Text`)
	if err != nil {
		return nil, wrapDBError("get all source files", err)
	}
	defer rows.Close()

	var out []facts.CommandInfo
	for rows.Next() {
		var sourceFile, workingDir, command, joinedArgs string
		var lastIndexed int64
		if err := rows.Scan(&sourceFile, &workingDir, &command, &joinedArgs, &lastIndexed); err != nil {
			return nil, wrapDBError("scan source file row", err)
		}
		out = append(out, facts.CommandInfo{
			SourceFile:              sourceFile,
			WorkingDir:              workingDir,
			Command:                 command,
			Args:                    SplitArgs(joinedArgs),
			LastIndexedEpochSeconds: lastIndexed,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate source file rows", err)
	}
	return out, nil
}

// GetCallers returns the definition of every symbol with a recorded call
// edge into usr.
func (s *Store) GetCallers(ctx context.Context, usr string) ([]facts.DefInfo, error) {
	return s.callGraphSide(ctx, usr, `
		SELECT `+definitionColumns+` FROM Callers c
		JOIN Definitions d ON d.UsrHash = c.CallerUsrHash
		`+definitionJoin+`
		WHERE c.CalleeUsrHash = ?`)
}

// GetCallees returns the definition of every symbol usr has a recorded call
// edge to.
func (s *Store) GetCallees(ctx context.Context, usr string) ([]facts.DefInfo, error) {
	return s.callGraphSide(ctx, usr, `
		SELECT `+definitionColumns+` FROM Callers c
		JOIN Definitions d ON d.UsrHash = c.CalleeUsrHash
		`+definitionJoin+`
		WHERE c.CallerUsrHash = ?`)
}

func (s *Store) callGraphSide(ctx context.Context, usr, query string) ([]facts.DefInfo, error) {
	usrHash := identity.Hash(usr)
	rows, err := s.db.QueryContext(ctx, query, usrHash)
	if err != nil {
		return nil, wrapDBError("query call graph", err)
	}
	defer rows.Close()
	return scanDefs(rows)
}

// GetBases returns the definition of every symbol usr overrides (its
// base-class/base-method edges); missing endpoints — an override whose
// base was never itself recorded as a definition — are dropped by the join,
// per §4.4's "missing endpoints are dropped."
func (s *Store) GetBases(ctx context.Context, usr string) ([]facts.DefInfo, error) {
	usrHash := identity.Hash(usr)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+definitionColumns+` FROM Overrides o
		JOIN Definitions d ON d.UsrHash = o.OverriddenUsrHash
		`+definitionJoin+`
		WHERE o.DefiningUsrHash = ?`, usrHash)
	if err != nil {
		return nil, wrapDBError("get bases", err)
	}
	defer rows.Close()
	return scanDefs(rows)
}

// GetOverriders returns the definition of every symbol that overrides usr.
func (s *Store) GetOverriders(ctx context.Context, usr string) ([]facts.DefInfo, error) {
	usrHash := identity.Hash(usr)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+definitionColumns+` FROM Overrides o
		JOIN Definitions d ON d.UsrHash = o.DefiningUsrHash
		`+definitionJoin+`
		WHERE o.OverriddenUsrHash = ?`, usrHash)
	if err != nil {
		return nil, wrapDBError("get overriders", err)
	}
	defer rows.Close()
	return scanDefs(rows)
}

// GetReferences returns every recorded source range referencing usr (§4.4's
// inverse index).
func (s *Store) GetReferences(ctx context.Context, usr string) ([]facts.SourceRange, error) {
	usrHash := identity.Hash(usr)
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.Text, r.Line, r.Col, r.EndLine, r.EndCol
		FROM Refs r
		JOIN Files f ON f.Hash = r.FileHash
		WHERE r.RefUsrHash = ?`, usrHash)
	if err != nil {
		return nil, wrapDBError("get references", err)
	}
	defer rows.Close()

	var out []facts.SourceRange
	for rows.Next() {
		var file string
		var line, col, endLine, endCol int
		if err := rows.Scan(&file, &line, &col, &endLine, &endCol); err != nil {
			return nil, wrapDBError("scan reference", err)
		}
		out = append(out, facts.SourceRange{File: file, Line: line, Col: col, EndLine: endLine, EndCol: endCol})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate references", err)
	}
	return out, nil
}

// GetReferenced implements "symbol at cursor" (§4.4): given loc = (file,
// line, col), returns the definition of every symbol whose Refs row covers
// loc, under the same covering predicate as facts.SourceRange.Contains —
// interior lines match unconditionally, boundary lines are bound by column.
func (s *Store) GetReferenced(ctx context.Context, file string, line, col int) ([]facts.DefInfo, error) {
	fileHash := identity.Hash(file)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+definitionColumns+` FROM Refs r
		JOIN Definitions d ON d.UsrHash = r.RefUsrHash
		`+definitionJoin+`
		WHERE r.FileHash = ?
		  AND r.Line <= ? AND r.EndLine >= ?
		  AND NOT (r.Line = ? AND ? < r.Col)
		  AND NOT (r.EndLine = ? AND ? > r.EndCol)`,
		fileHash,
		line, line,
		line, col,
		line, col)
	if err != nil {
		return nil, wrapDBError("get referenced", err)
	}
	defer rows.Close()
	return scanDefs(rows)
}
