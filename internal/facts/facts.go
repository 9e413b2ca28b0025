// Package facts defines the typed records produced by semantic analysis of a
// translation unit (§3 of the design) and their canonical binary
// serialization (§4.3), used both to stream results out of the
// semantic-index worker and to feed them into the store.
package facts

import "fmt"

// Location is a single point in a source file.
type Location struct {
	File string
	Line int
	Col  int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Col)
}

// SourceRange is the extent a Reference occupies in a source file.
type SourceRange struct {
	File     string
	Line     int
	Col      int
	EndLine  int
	EndCol   int
}

func (r SourceRange) String() string {
	return fmt.Sprintf("%s:%d:%d-%d:%d", r.File, r.Line, r.Col, r.EndLine, r.EndCol)
}

// Contains reports whether p lies within r under the covering predicate of
// §4.4: interior lines match unconditionally, boundary lines are bound by
// column. A p in a different file than r never matches (the SQL predicate
// makes the same file check; this method exists so the same rule can be
// asserted in tests without a store round-trip).
func (r SourceRange) Contains(p Location) bool {
	if p.File != r.File {
		return false
	}
	if p.Line < r.Line || p.Line > r.EndLine {
		return false
	}
	if p.Line == r.Line && p.Col < r.Col {
		return false
	}
	if p.Line == r.EndLine && p.Col > r.EndCol {
		return false
	}
	return true
}

// CommandInfo is the compile command observed for one source file.
type CommandInfo struct {
	SourceFile             string
	WorkingDir             string
	Command                string
	Args                   []string
	LastIndexedEpochSeconds int64
}

// Inclusion is one edge of the #include graph.
type Inclusion struct {
	Includer string
	Included string
	Direct   bool
}

// DefKind is the textual category of a definition (VarDecl, FunctionDecl, ...).
type DefKind string

// Named definition kinds. The toy analyzer (internal/worker/toyanalyzer)
// produces only KindVarDecl and KindFunctionDecl. A real semantic index
// would produce many more; the store and wire format place no constraint on
// the set, since Kind is stored as free text.
const (
	KindVarDecl      DefKind = "VarDecl"
	KindFunctionDecl DefKind = "FunctionDecl"
	KindParmDecl     DefKind = "ParmDecl"
	KindFieldDecl    DefKind = "FieldDecl"
	KindEnumConstant DefKind = "EnumConstantDecl"
)

// DefInfo is a definition: a USR, the human name, its location, and its kind.
type DefInfo struct {
	USR      string
	Name     string
	Location Location
	Kind     DefKind
}

// Override is a directed edge (definingUSR, overriddenUSR). It doubles as a
// base-class edge: a virtual-method override and a base-method link share
// this same edge shape (§3).
type Override struct {
	DefiningUSR  string
	OverriddenUSR string
}

// CallEdge is a directed edge (callerUSR, calleeUSR).
type CallEdge struct {
	CallerUSR string
	CalleeUSR string
}

// Reference is a source extent whose target is a USR.
type Reference struct {
	Range     SourceRange
	TargetUSR string
}
