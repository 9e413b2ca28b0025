package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pygmalion-index/pygmalion/internal/facts"
)

func TestParseLineColRejectsNonNumericArgs(t *testing.T) {
	_, _, err := parseLineCol("abc", "3")
	require.Error(t, err)

	_, _, err = parseLineCol("3", "xyz")
	require.Error(t, err)

	line, col, err := parseLineCol("12", "34")
	require.NoError(t, err)
	require.Equal(t, 12, line)
	require.Equal(t, 34, col)
}

func TestFormatCommandJoinsCommandAndArgs(t *testing.T) {
	got := formatCommand(facts.CommandInfo{Command: "clang++", Args: []string{"-c", "-Wall"}})
	require.Equal(t, "clang++ -c -Wall", got)
}

func TestFormatCommandWithNoArgs(t *testing.T) {
	got := formatCommand(facts.CommandInfo{Command: "cc"})
	require.Equal(t, "cc", got)
}
