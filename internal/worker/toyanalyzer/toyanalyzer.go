// Package toyanalyzer is an explicitly-labeled stand-in for the real
// libclang-equivalent semantic index named out of scope by the design
// (§1). It recognizes a small subset of C/C++ surface syntax by tokenizing
// source text: variable declarations, function declarations/definitions,
// #include directives, direct-call expressions, and occurrences of a name
// declared anywhere at top level in the file as a reference to its
// definition. It does not
// parse expressions, templates, classes, or overloads, and it never
// produces an Override fact.
package toyanalyzer

import (
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pygmalion-index/pygmalion/internal/facts"
)

// Result is everything Scan found in one translation unit.
type Result struct {
	Defs       []facts.DefInfo
	Inclusions []facts.Inclusion
	Calls      []facts.CallEdge
	Refs       []facts.Reference
}

// DefUSR returns the deterministic (not libclang-stable — names are not
// scope- or overload-qualified) USR this analyzer assigns a name of the
// given kind. Exported so callers can compute the same identifier without
// re-scanning.
func DefUSR(kind facts.DefKind, name string) string {
	if kind == facts.KindFunctionDecl {
		return "c:@F@" + name
	}
	return "c:@V@" + name
}

// Scan tokenizes src (the contents of file) and extracts the recognized
// fact subset.
func Scan(file, src string) Result {
	s := &scanner{
		file:  file,
		toks:  tokenize(src),
		known: map[string]facts.DefKind{},
	}
	s.run()
	return s.result
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokPunct
	tokString
	tokPreproc
)

type token struct {
	kind     tokenKind
	text     string
	line, col int
}

func isIdentStart(r rune) bool { return unicode.IsLetter(r) || r == '_' }
func isIdentCont(r rune) bool  { return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' }

// tokenize produces a flat token stream with 1-based line/col positions
// matching the declared-name's first character, which is what §4.4's
// location contract needs.
func tokenize(src string) []token {
	runes := []rune(src)
	var toks []token
	line, col := 1, 1
	i := 0
	advance := func(n int) {
		for k := 0; k < n; k++ {
			if runes[i+k] == '\n' {
				line++
				col = 1
			} else {
				col++
			}
		}
		i += n
	}

	for i < len(runes) {
		r := runes[i]
		switch {
		case r == '\n' || unicode.IsSpace(r):
			advance(1)
		case r == '#':
			startLine, startCol := line, col
			j := i
			for j < len(runes) && runes[j] != '\n' {
				j++
			}
			text := string(runes[i:j])
			advance(j - i)
			toks = append(toks, token{kind: tokPreproc, text: text, line: startLine, col: startCol})
		case r == '/' && i+1 < len(runes) && runes[i+1] == '/':
			j := i
			for j < len(runes) && runes[j] != '\n' {
				j++
			}
			advance(j - i)
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			j := i + 2
			for j+1 < len(runes) && !(runes[j] == '*' && runes[j+1] == '/') {
				j++
			}
			j += 2
			if j > len(runes) {
				j = len(runes)
			}
			advance(j - i)
		case isIdentStart(r):
			startLine, startCol := line, col
			j := i
			for j < len(runes) && isIdentCont(runes[j]) {
				j++
			}
			text := string(runes[i:j])
			advance(j - i)
			toks = append(toks, token{kind: tokIdent, text: text, line: startLine, col: startCol})
		case unicode.IsDigit(r):
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			text := string(runes[i:j])
			advance(j - i)
			toks = append(toks, token{kind: tokNumber, text: text, line: line, col: col})
		case r == '"':
			startLine, startCol := line, col
			j := i + 1
			for j < len(runes) && runes[j] != '"' {
				j++
			}
			j++
			if j > len(runes) {
				j = len(runes)
			}
			text := string(runes[i+1 : j-1])
			advance(j - i)
			toks = append(toks, token{kind: tokString, text: text, line: startLine, col: startCol})
		default:
			toks = append(toks, token{kind: tokPunct, text: string(r), line: line, col: col})
			advance(1)
		}
	}
	return toks
}

// scanner walks the token stream with a small amount of lookahead, tracking
// declared names so later identifier occurrences can be classified as
// calls, references, or ignored.
type scanner struct {
	file   string
	toks   []token
	pos    int
	known  map[string]facts.DefKind
	result Result
}

func (s *scanner) peek(off int) (token, bool) {
	p := s.pos + off
	if p < 0 || p >= len(s.toks) {
		return token{}, false
	}
	return s.toks[p], true
}

// run makes two passes over the token stream. The first collects every
// top-level declaration so calls and references can resolve names declared
// later in the file (S2 indexes "void a(){b();} void b(){}", where b is
// called before its own declaration is reached); the second walks the same
// structure again to record #include directives, calls, and references
// now that the full declaration set is known.
func (s *scanner) run() {
	s.walk(true)
	s.pos = 0
	s.walk(false)
}

func (s *scanner) walk(registerDecls bool) {
	enclosingUSR := ""
	depth := 0
	for s.pos < len(s.toks) {
		t := s.toks[s.pos]

		switch {
		case t.kind == tokPreproc:
			if !registerDecls {
				s.scanPreproc(t)
			}
			s.pos++

		case t.kind == tokPunct && t.text == "{":
			depth++
			s.pos++

		case t.kind == tokPunct && t.text == "}":
			depth--
			if depth <= 0 {
				enclosingUSR = ""
				depth = 0
			}
			s.pos++

		case depth == 0 && t.kind == tokIdent && isTypeLike(t.text):
			if usr, kind, consumed := s.scanDecl(registerDecls); consumed > 0 {
				s.pos += consumed
				if kind == facts.KindFunctionDecl {
					enclosingUSR = usr
				}
				continue
			}
			s.pos++

		case depth > 0 && t.kind == tokIdent:
			if !registerDecls {
				s.scanIdentUse(t, enclosingUSR)
			}
			s.pos++

		default:
			s.pos++
		}
	}
}

// isTypeLike is a deliberately crude heuristic: any identifier that isn't
// itself a keyword we special-case can introduce a declaration, mirroring
// how little syntax this stand-in actually understands.
func isTypeLike(name string) bool {
	switch name {
	case "return", "if", "else", "while", "for", "struct", "class":
		return false
	default:
		return true
	}
}

// scanPreproc recognizes `#include "x.h"` / `#include <x.h>` and records an
// Inclusion edge. Quoted includes are resolved relative to file's directory
// (direct=true in both cases; this analyzer never infers transitive
// inclusions, matching its documented scope).
func (s *scanner) scanPreproc(t token) {
	rest := strings.TrimSpace(strings.TrimPrefix(t.text, "#"))
	if !strings.HasPrefix(rest, "include") {
		return
	}
	rest = strings.TrimSpace(strings.TrimPrefix(rest, "include"))
	if rest == "" {
		return
	}
	var included string
	switch rest[0] {
	case '"':
		end := strings.IndexByte(rest[1:], '"')
		if end < 0 {
			return
		}
		name := rest[1 : 1+end]
		included = path.Join(filepath.ToSlash(filepath.Dir(s.file)), name)
	case '<':
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			return
		}
		included = rest[1:end]
	default:
		return
	}
	s.result.Inclusions = append(s.result.Inclusions, facts.Inclusion{
		Includer: s.file,
		Included: included,
		Direct:   true,
	})
}

// scanDecl looks ahead from a type-like identifier for:
//
//	<type> <name> ( ... ) { ... }   function definition
//	<type> <name> ( ... ) ;         function declaration
//	<type> <name> = ... ;           variable declaration with initializer
//	<type> <name> ;                 variable declaration
//
// Returns the USR and kind recorded, and how many tokens (including the
// leading type token) were consumed; consumed == 0 means no pattern
// matched and the caller should advance by one token itself. register
// controls whether the match is recorded into s.known/s.result.Defs —
// false on the second pass, where declarations were already collected and
// only the token-skipping shape is needed to keep brace depth in sync.
func (s *scanner) scanDecl(register bool) (usr string, kind facts.DefKind, consumed int) {
	nameTok, ok := s.peek(1)
	if !ok || nameTok.kind != tokIdent {
		return "", "", 0
	}
	next, ok := s.peek(2)
	if !ok {
		return "", "", 0
	}

	switch {
	case next.kind == tokPunct && next.text == "(":
		// Skip to the matching ')'.
		j := 3
		paren := 1
		for {
			tk, ok := s.peek(j)
			if !ok {
				return "", "", 0
			}
			if tk.kind == tokPunct && tk.text == "(" {
				paren++
			}
			if tk.kind == tokPunct && tk.text == ")" {
				paren--
				if paren == 0 {
					j++
					break
				}
			}
			j++
		}
		after, ok := s.peek(j)
		if !ok {
			return "", "", 0
		}
		if after.kind == tokPunct && (after.text == ";" || after.text == "{") {
			usr = DefUSR(facts.KindFunctionDecl, nameTok.text)
			if register {
				s.known[nameTok.text] = facts.KindFunctionDecl
				s.result.Defs = append(s.result.Defs, facts.DefInfo{
					USR:      usr,
					Name:     nameTok.text,
					Location: facts.Location{File: s.file, Line: nameTok.line, Col: nameTok.col},
					Kind:     facts.KindFunctionDecl,
				})
			}
			consumedTokens := j
			if after.text == ";" {
				consumedTokens++
			}
			return usr, facts.KindFunctionDecl, consumedTokens
		}
		return "", "", 0

	case next.kind == tokPunct && (next.text == ";" || next.text == "="):
		usr = DefUSR(facts.KindVarDecl, nameTok.text)
		if register {
			s.known[nameTok.text] = facts.KindVarDecl
			s.result.Defs = append(s.result.Defs, facts.DefInfo{
				USR:      usr,
				Name:     nameTok.text,
				Location: facts.Location{File: s.file, Line: nameTok.line, Col: nameTok.col},
				Kind:     facts.KindVarDecl,
			})
		}
		j := 2
		for {
			tk, ok := s.peek(j)
			if !ok {
				break
			}
			j++
			if tk.kind == tokPunct && tk.text == ";" {
				break
			}
		}
		return usr, facts.KindVarDecl, j

	default:
		return "", "", 0
	}
}

// scanIdentUse classifies a bare identifier occurrence inside a function
// body: a known function name immediately followed by '(' is a direct
// call, emitting a CallEdge from enclosingUSR; every occurrence of a known
// name, calls included, is also recorded as a reference to its definition.
func (s *scanner) scanIdentUse(t token, enclosingUSR string) {
	kind, known := s.known[t.text]
	if !known {
		return
	}
	targetUSR := DefUSR(kind, t.text)

	if kind == facts.KindFunctionDecl {
		if next, ok := s.peek(1); ok && next.kind == tokPunct && next.text == "(" {
			if enclosingUSR != "" {
				s.result.Calls = append(s.result.Calls, facts.CallEdge{
					CallerUSR: enclosingUSR,
					CalleeUSR: targetUSR,
				})
			}
		}
	}

	s.result.Refs = append(s.result.Refs, facts.Reference{
		Range: facts.SourceRange{
			File: s.file, Line: t.line, Col: t.col,
			EndLine: t.line, EndCol: t.col + len([]rune(t.text)) - 1,
		},
		TargetUSR: targetUSR,
	})
}
