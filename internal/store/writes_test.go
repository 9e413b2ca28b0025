package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pygmalion-index/pygmalion/internal/facts"
)

func TestUpdateSourceFileThenGetCommandInfo(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	info := facts.CommandInfo{
		SourceFile:              "/proj/src/a.cpp",
		WorkingDir:              "/proj",
		Command:                 "g++",
		Args:                    []string{"-std=c++20", "-I.", "-DNDEBUG"},
		LastIndexedEpochSeconds: 1732900000,
	}
	err := s.WithTransaction(ctx, func(tx *Tx) error {
		return tx.UpdateSourceFile(ctx, info)
	})
	require.NoError(t, err)

	got, ok, err := s.GetCommandInfo(ctx, info.SourceFile)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, info.WorkingDir, got.WorkingDir)
	require.Equal(t, info.Command, got.Command)
	require.Equal(t, info.Args, got.Args)
	require.Equal(t, info.LastIndexedEpochSeconds, got.LastIndexedEpochSeconds)
}

func TestUpdateSourceFileUpsertsOnSecondWrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	write := func(args []string, ts int64) {
		err := s.WithTransaction(ctx, func(tx *Tx) error {
			return tx.UpdateSourceFile(ctx, facts.CommandInfo{
				SourceFile:              "/proj/src/a.cpp",
				WorkingDir:              "/proj",
				Command:                 "g++",
				Args:                    args,
				LastIndexedEpochSeconds: ts,
			})
		})
		require.NoError(t, err)
	}

	write([]string{"-O0"}, 100)
	write([]string{"-O2", "-flto"}, 200)

	got, ok, err := s.GetCommandInfo(ctx, "/proj/src/a.cpp")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"-O2", "-flto"}, got.Args)
	require.Equal(t, int64(200), got.LastIndexedEpochSeconds)
}

func TestGetSimilarCommandInfoPicksClosestSibling(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seed := func(file, dir string) {
		err := s.WithTransaction(ctx, func(tx *Tx) error {
			return tx.UpdateSourceFile(ctx, facts.CommandInfo{
				SourceFile: file,
				WorkingDir: dir,
				Command:    "g++",
				Args:       []string{"-I" + dir},
			})
		})
		require.NoError(t, err)
	}
	seed("/proj/other/unrelated.cpp", "/proj/other")
	seed("/proj/src/sibling.cpp", "/proj/src")

	got, ok, err := s.GetSimilarCommandInfo(ctx, "/proj/src/newheader.hpp")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/proj/src/newheader.hpp", got.SourceFile)
	require.Equal(t, []string{"-I/proj/src"}, got.Args)
}

func TestUpdateInclusionAndGetIncluders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithTransaction(ctx, func(tx *Tx) error {
		if err := tx.UpdateSourceFile(ctx, facts.CommandInfo{SourceFile: "a.cpp", WorkingDir: "/proj", Command: "g++", Args: []string{"-O2"}}); err != nil {
			return err
		}
		if err := tx.UpdateSourceFile(ctx, facts.CommandInfo{SourceFile: "b.cpp", WorkingDir: "/proj", Command: "g++", Args: []string{"-O0"}}); err != nil {
			return err
		}
		if err := tx.UpdateInclusion(ctx, facts.Inclusion{Includer: "a.cpp", Included: "h.hpp", Direct: true}); err != nil {
			return err
		}
		return tx.UpdateInclusion(ctx, facts.Inclusion{Includer: "b.cpp", Included: "h.hpp", Direct: false})
	})
	require.NoError(t, err)

	includers, err := s.GetIncluders(ctx, "h.hpp")
	require.NoError(t, err)
	var files []string
	for _, ci := range includers {
		files = append(files, ci.SourceFile)
	}
	require.ElementsMatch(t, []string{"a.cpp", "b.cpp"}, files)
}

func TestDefinitionAndCallGraphRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	caller := facts.DefInfo{USR: "c:@F@caller", Name: "caller", Location: facts.Location{File: "a.cpp", Line: 1, Col: 1}, Kind: facts.KindFunctionDecl}
	callee := facts.DefInfo{USR: "c:@F@callee", Name: "callee", Location: facts.Location{File: "a.cpp", Line: 5, Col: 1}, Kind: facts.KindFunctionDecl}

	err := s.WithTransaction(ctx, func(tx *Tx) error {
		if err := tx.UpdateDef(ctx, caller); err != nil {
			return err
		}
		if err := tx.UpdateDef(ctx, callee); err != nil {
			return err
		}
		return tx.UpdateCaller(ctx, facts.CallEdge{CallerUSR: caller.USR, CalleeUSR: callee.USR})
	})
	require.NoError(t, err)

	gotCallee, ok, err := s.GetDefinition(ctx, callee.USR)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, callee.Name, gotCallee.Name)
	require.Equal(t, callee.Kind, gotCallee.Kind)

	callers, err := s.GetCallers(ctx, callee.USR)
	require.NoError(t, err)
	require.Len(t, callers, 1)
	require.Equal(t, caller.USR, callers[0].USR)

	callees, err := s.GetCallees(ctx, caller.USR)
	require.NoError(t, err)
	require.Len(t, callees, 1)
	require.Equal(t, callee.USR, callees[0].USR)
}

func TestOverrideBasesAndOverriders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := facts.DefInfo{USR: "c:@S@Base@F@run", Name: "run", Location: facts.Location{File: "base.hpp", Line: 1, Col: 1}, Kind: facts.KindFunctionDecl}
	derived := facts.DefInfo{USR: "c:@S@Derived@F@run", Name: "run", Location: facts.Location{File: "derived.hpp", Line: 1, Col: 1}, Kind: facts.KindFunctionDecl}

	err := s.WithTransaction(ctx, func(tx *Tx) error {
		if err := tx.UpdateDef(ctx, base); err != nil {
			return err
		}
		if err := tx.UpdateDef(ctx, derived); err != nil {
			return err
		}
		return tx.UpdateOverride(ctx, facts.Override{DefiningUSR: derived.USR, OverriddenUSR: base.USR})
	})
	require.NoError(t, err)

	bases, err := s.GetBases(ctx, derived.USR)
	require.NoError(t, err)
	require.Len(t, bases, 1)
	require.Equal(t, base.USR, bases[0].USR)

	overriders, err := s.GetOverriders(ctx, base.USR)
	require.NoError(t, err)
	require.Len(t, overriders, 1)
	require.Equal(t, derived.USR, overriders[0].USR)
}

func TestInsertFileAndCheckReportsFirstInsertOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var first, second bool
	err := s.WithTransaction(ctx, func(tx *Tx) error {
		var err error
		first, err = tx.InsertFileAndCheck(ctx, "a.cpp")
		return err
	})
	require.NoError(t, err)
	require.True(t, first)

	err = s.WithTransaction(ctx, func(tx *Tx) error {
		var err error
		second, err = tx.InsertFileAndCheck(ctx, "a.cpp")
		return err
	})
	require.NoError(t, err)
	require.False(t, second)
}

func TestResetMetadataRemovesFacts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	def := facts.DefInfo{USR: "c:@F@x", Name: "x", Location: facts.Location{File: "a.cpp", Line: 1, Col: 1}, Kind: facts.KindVarDecl}
	err := s.WithTransaction(ctx, func(tx *Tx) error {
		if err := tx.UpdateDef(ctx, def); err != nil {
			return err
		}
		return tx.UpdateReference(ctx, facts.Reference{
			Range:     facts.SourceRange{File: "a.cpp", Line: 1, Col: 1, EndLine: 1, EndCol: 1},
			TargetUSR: def.USR,
		})
	})
	require.NoError(t, err)

	err = s.WithTransaction(ctx, func(tx *Tx) error {
		return tx.ResetMetadata(ctx, "a.cpp")
	})
	require.NoError(t, err)

	_, ok, err := s.GetDefinition(ctx, def.USR)
	require.NoError(t, err)
	require.False(t, ok)

	refs, err := s.GetReferences(ctx, def.USR)
	require.NoError(t, err)
	require.Empty(t, refs)
}
