package toyanalyzer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pygmalion-index/pygmalion/internal/facts"
)

func TestScanRecognizesVarDeclAndFunctionDecl(t *testing.T) {
	src := "int var = 0; int main(){return var;}"
	res := Scan("f.cpp", src)

	require.Len(t, res.Defs, 2)
	require.Equal(t, "var", res.Defs[0].Name)
	require.Equal(t, facts.KindVarDecl, res.Defs[0].Kind)
	require.Equal(t, facts.Location{File: "f.cpp", Line: 1, Col: 5}, res.Defs[0].Location)

	require.Equal(t, "main", res.Defs[1].Name)
	require.Equal(t, facts.KindFunctionDecl, res.Defs[1].Kind)
}

func TestScanDefAtCursorFindsVarReference(t *testing.T) {
	src := "int var = 0; int main(){return var;}"
	res := Scan("f.cpp", src)

	require.Len(t, res.Refs, 1)
	ref := res.Refs[0]
	require.Equal(t, DefUSR(facts.KindVarDecl, "var"), ref.TargetUSR)

	// The reference occupies the second "var" occurrence, not the
	// declaration site.
	require.Greater(t, ref.Range.Col, res.Defs[0].Location.Col)

	loc := facts.Location{File: "f.cpp", Line: ref.Range.Line, Col: ref.Range.Col}
	require.True(t, ref.Range.Contains(loc))
}

func TestScanRecognizesDirectCall(t *testing.T) {
	src := "void a(){b();} void b(){}"
	res := Scan("f.cpp", src)

	require.Len(t, res.Defs, 2)
	usrA := DefUSR(facts.KindFunctionDecl, "a")
	usrB := DefUSR(facts.KindFunctionDecl, "b")

	require.Len(t, res.Calls, 1)
	require.Equal(t, usrA, res.Calls[0].CallerUSR)
	require.Equal(t, usrB, res.Calls[0].CalleeUSR)
}

func TestScanRecognizesQuotedInclude(t *testing.T) {
	src := `#include "sub/h.hpp"` + "\nint x;"
	res := Scan("proj/a.cpp", src)

	require.Len(t, res.Inclusions, 1)
	require.True(t, res.Inclusions[0].Direct)
	require.Equal(t, "proj/a.cpp", res.Inclusions[0].Includer)
	require.Equal(t, "proj/sub/h.hpp", res.Inclusions[0].Included)
}

func TestScanRecognizesAngleInclude(t *testing.T) {
	src := "#include <stdio.h>\nint x;"
	res := Scan("a.cpp", src)

	require.Len(t, res.Inclusions, 1)
	require.Equal(t, "stdio.h", res.Inclusions[0].Included)
}

func TestScanFunctionPrototypeWithoutBody(t *testing.T) {
	src := "void forward();"
	res := Scan("a.cpp", src)

	require.Len(t, res.Defs, 1)
	require.Equal(t, facts.KindFunctionDecl, res.Defs[0].Kind)
}
