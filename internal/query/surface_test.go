package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pygmalion-index/pygmalion/internal/facts"
)

// fakeClient lets each test stub out exactly the Client methods it exercises;
// unstubbed methods fail loudly rather than returning a silent zero value.
type fakeClient struct {
	commandInfo        func(file string) (facts.CommandInfo, bool, error)
	similarCommandInfo func(file string) (facts.CommandInfo, bool, error)
	definition         func(usr string) (facts.DefInfo, bool, error)
	includers          func(file string) ([]facts.CommandInfo, error)
	callers            func(usr string) ([]facts.DefInfo, error)
	callees            func(usr string) ([]facts.DefInfo, error)
	bases              func(usr string) ([]facts.DefInfo, error)
	overriders         func(usr string) ([]facts.DefInfo, error)
	references         func(usr string) ([]facts.SourceRange, error)
	referenced         func(file string, line, col int) ([]facts.DefInfo, error)
}

func (f *fakeClient) GetCommandInfo(file string) (facts.CommandInfo, bool, error) {
	return f.commandInfo(file)
}
func (f *fakeClient) GetSimilarCommandInfo(file string) (facts.CommandInfo, bool, error) {
	return f.similarCommandInfo(file)
}
func (f *fakeClient) GetDefinition(usr string) (facts.DefInfo, bool, error) { return f.definition(usr) }
func (f *fakeClient) GetIncluders(file string) ([]facts.CommandInfo, error) { return f.includers(file) }
func (f *fakeClient) GetCallers(usr string) ([]facts.DefInfo, error)        { return f.callers(usr) }
func (f *fakeClient) GetCallees(usr string) ([]facts.DefInfo, error)        { return f.callees(usr) }
func (f *fakeClient) GetBases(usr string) ([]facts.DefInfo, error)          { return f.bases(usr) }
func (f *fakeClient) GetOverriders(usr string) ([]facts.DefInfo, error)    { return f.overriders(usr) }
func (f *fakeClient) GetReferences(usr string) ([]facts.SourceRange, error) { return f.references(usr) }
func (f *fakeClient) GetReferenced(file string, line, col int) ([]facts.DefInfo, error) {
	return f.referenced(file, line, col)
}

func TestCompileFlagsForFileExactHit(t *testing.T) {
	client := &fakeClient{
		commandInfo: func(file string) (facts.CommandInfo, bool, error) {
			return facts.CommandInfo{SourceFile: file, Command: "cc"}, true, nil
		},
	}
	s := New(client)

	info, err := s.CompileFlagsForFile("a.cpp")
	require.NoError(t, err)
	require.Equal(t, "cc", info.Command)
}

func TestCompileFlagsForFileFallsBackToIncluders(t *testing.T) {
	client := &fakeClient{
		commandInfo: func(string) (facts.CommandInfo, bool, error) {
			return facts.CommandInfo{}, false, nil
		},
		includers: func(file string) ([]facts.CommandInfo, error) {
			require.Equal(t, "h.hpp", file)
			return []facts.CommandInfo{{SourceFile: "a.cpp", Command: "cc"}}, nil
		},
	}
	s := New(client)

	info, err := s.CompileFlagsForFile("h.hpp")
	require.NoError(t, err)
	require.Equal(t, "a.cpp", info.SourceFile)
}

func TestCompileFlagsForFileFallsBackToSimilarCommandInfo(t *testing.T) {
	client := &fakeClient{
		commandInfo: func(string) (facts.CommandInfo, bool, error) { return facts.CommandInfo{}, false, nil },
		includers:   func(string) ([]facts.CommandInfo, error) { return nil, nil },
		similarCommandInfo: func(file string) (facts.CommandInfo, bool, error) {
			return facts.CommandInfo{SourceFile: file, Command: "cc", Args: []string{"-Isrc"}}, true, nil
		},
	}
	s := New(client)

	info, err := s.CompileFlagsForFile("src/b.cpp")
	require.NoError(t, err)
	require.Equal(t, "src/b.cpp", info.SourceFile)
	require.Equal(t, []string{"-Isrc"}, info.Args)
}

func TestCompileFlagsForFileAllMissesIsError(t *testing.T) {
	client := &fakeClient{
		commandInfo:        func(string) (facts.CommandInfo, bool, error) { return facts.CommandInfo{}, false, nil },
		includers:          func(string) ([]facts.CommandInfo, error) { return nil, nil },
		similarCommandInfo: func(string) (facts.CommandInfo, bool, error) { return facts.CommandInfo{}, false, nil },
	}
	s := New(client)

	_, err := s.CompileFlagsForFile("orphan.cpp")
	require.Error(t, err)
}

func TestCompileFlagsForFilePropagatesCommandInfoError(t *testing.T) {
	wantErr := errors.New("db is closed")
	client := &fakeClient{
		commandInfo: func(string) (facts.CommandInfo, bool, error) { return facts.CommandInfo{}, false, wantErr },
	}
	s := New(client)

	_, err := s.CompileFlagsForFile("a.cpp")
	require.ErrorIs(t, err, wantErr)
}

func TestSurfaceDelegatesGraphQueries(t *testing.T) {
	def := facts.DefInfo{USR: "c:@F@a", Name: "a"}
	client := &fakeClient{
		callers:    func(string) ([]facts.DefInfo, error) { return []facts.DefInfo{def}, nil },
		callees:    func(string) ([]facts.DefInfo, error) { return []facts.DefInfo{def}, nil },
		bases:      func(string) ([]facts.DefInfo, error) { return []facts.DefInfo{def}, nil },
		overriders: func(string) ([]facts.DefInfo, error) { return []facts.DefInfo{def}, nil },
		references: func(string) ([]facts.SourceRange, error) {
			return []facts.SourceRange{{File: "a.cpp", Line: 1, Col: 1, EndLine: 1, EndCol: 1}}, nil
		},
		referenced: func(file string, line, col int) ([]facts.DefInfo, error) {
			require.Equal(t, "f.cpp", file)
			require.Equal(t, 1, line)
			require.Equal(t, 18, col)
			return []facts.DefInfo{def}, nil
		},
	}
	s := New(client)

	callers, err := s.Callers("c:@F@b")
	require.NoError(t, err)
	require.Equal(t, []facts.DefInfo{def}, callers)

	callees, err := s.Callees("c:@F@a")
	require.NoError(t, err)
	require.Equal(t, []facts.DefInfo{def}, callees)

	bases, err := s.Bases("c:@F@derived")
	require.NoError(t, err)
	require.Equal(t, []facts.DefInfo{def}, bases)

	overriders, err := s.Overriders("c:@F@base")
	require.NoError(t, err)
	require.Equal(t, []facts.DefInfo{def}, overriders)

	refs, err := s.References("c:@F@a")
	require.NoError(t, err)
	require.Len(t, refs, 1)

	at, err := s.DefinitionAt("f.cpp", 1, 18)
	require.NoError(t, err)
	require.Equal(t, []facts.DefInfo{def}, at)

	sameAt, err := s.Referenced("f.cpp", 1, 18)
	require.NoError(t, err)
	require.Equal(t, at, sameAt)
}
