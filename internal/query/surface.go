// Package query implements the client-facing query surface (§4.7): a thin
// translation layer from client intents to the store operations exposed by
// internal/scheduler. The only operation with any real logic is
// CompileFlagsForFile's three-step fallback.
package query

import (
	"fmt"

	"github.com/pygmalion-index/pygmalion/internal/facts"
)

// Client is the read half of internal/scheduler's generated API — the
// enqueue-and-wait operations a Surface needs. Accepting an interface here
// (rather than *scheduler.Scheduler directly) keeps this package testable
// without a live store.
type Client interface {
	GetCommandInfo(file string) (facts.CommandInfo, bool, error)
	GetSimilarCommandInfo(file string) (facts.CommandInfo, bool, error)
	GetDefinition(usr string) (facts.DefInfo, bool, error)
	GetIncluders(file string) ([]facts.CommandInfo, error)
	GetCallers(usr string) ([]facts.DefInfo, error)
	GetCallees(usr string) ([]facts.DefInfo, error)
	GetBases(usr string) ([]facts.DefInfo, error)
	GetOverriders(usr string) ([]facts.DefInfo, error)
	GetReferences(usr string) ([]facts.SourceRange, error)
	GetReferenced(file string, line, col int) ([]facts.DefInfo, error)
}

// Surface is the query-side API a CLI or editor integration talks to.
type Surface struct {
	client Client
}

// New builds a Surface over client, typically a *scheduler.Scheduler.
func New(client Client) *Surface {
	return &Surface{client: client}
}

// DefinitionAt answers "what symbol is at this cursor?" — the CLI's
// `definition <file> <line> <col>` subcommand.
func (s *Surface) DefinitionAt(file string, line, col int) ([]facts.DefInfo, error) {
	return s.client.GetReferenced(file, line, col)
}

// Referenced is the store's own name (getReferenced) for the same
// range-containment lookup as DefinitionAt; kept alongside it so callers
// that think in store-operation terms and callers that think in CLI-command
// terms both find the name they expect.
func (s *Surface) Referenced(file string, line, col int) ([]facts.DefInfo, error) {
	return s.client.GetReferenced(file, line, col)
}

// Callers returns every symbol with a recorded call edge into usr.
func (s *Surface) Callers(usr string) ([]facts.DefInfo, error) {
	return s.client.GetCallers(usr)
}

// Callees returns every symbol usr has a recorded call edge to.
func (s *Surface) Callees(usr string) ([]facts.DefInfo, error) {
	return s.client.GetCallees(usr)
}

// Bases returns every symbol usr overrides.
func (s *Surface) Bases(usr string) ([]facts.DefInfo, error) {
	return s.client.GetBases(usr)
}

// Overriders returns every symbol that overrides usr.
func (s *Surface) Overriders(usr string) ([]facts.DefInfo, error) {
	return s.client.GetOverriders(usr)
}

// References returns every recorded source range referencing usr.
func (s *Surface) References(usr string) ([]facts.SourceRange, error) {
	return s.client.GetReferences(usr)
}

// CompileFlagsForFile is the one non-trivial query-surface operation (§4.7):
// it tries an exact command-info lookup, then the first includer's command,
// then the directory-prefix fallback, returning whichever succeeds first.
func (s *Surface) CompileFlagsForFile(file string) (facts.CommandInfo, error) {
	if info, ok, err := s.client.GetCommandInfo(file); err != nil {
		return facts.CommandInfo{}, fmt.Errorf("compile flags for %s: get command info: %w", file, err)
	} else if ok {
		return info, nil
	}

	if includers, err := s.client.GetIncluders(file); err != nil {
		return facts.CommandInfo{}, fmt.Errorf("compile flags for %s: get includers: %w", file, err)
	} else if len(includers) > 0 {
		return includers[0], nil
	}

	if info, ok, err := s.client.GetSimilarCommandInfo(file); err != nil {
		return facts.CommandInfo{}, fmt.Errorf("compile flags for %s: get similar command info: %w", file, err)
	} else if ok {
		return info, nil
	}

	return facts.CommandInfo{}, fmt.Errorf("compile flags for %s: no command info found", file)
}
