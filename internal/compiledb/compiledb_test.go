package compiledb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pygmalion-index/pygmalion/internal/facts"
)

type fakeSource struct {
	infos []facts.CommandInfo
	err   error
}

func (f fakeSource) GetAllSourceFiles() ([]facts.CommandInfo, error) { return f.infos, f.err }

func TestBuildJoinsCommandAndArgsIntoSingleCommandString(t *testing.T) {
	src := fakeSource{infos: []facts.CommandInfo{
		{SourceFile: "/proj/a.cpp", WorkingDir: "/proj", Command: "clang++", Args: []string{"-c", "-Wall"}},
	}}

	entries, err := Build(src)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "/proj", entries[0].Directory)
	require.Equal(t, "/proj/a.cpp", entries[0].File)
	require.Equal(t, "clang++ -c -Wall", entries[0].Command)
}

func TestBuildPropagatesSourceError(t *testing.T) {
	src := fakeSource{err: os.ErrClosed}

	_, err := Build(src)
	require.Error(t, err)
}

func TestExportWritesValidJSONArray(t *testing.T) {
	dir := t.TempDir()
	src := fakeSource{infos: []facts.CommandInfo{
		{SourceFile: "/proj/a.cpp", WorkingDir: "/proj", Command: "cc", Args: []string{"-c"}},
		{SourceFile: "/proj/b.cpp", WorkingDir: "/proj", Command: "cc", Args: []string{"-c"}},
	}}

	require.NoError(t, Export(dir, src))

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)

	var entries []Entry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 2)
}

func TestExportWithNoSourceFilesWritesEmptyArray(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, Export(dir, fakeSource{}))

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(data))
}

func TestExportLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Export(dir, fakeSource{}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, FileName, entries[0].Name())
}
