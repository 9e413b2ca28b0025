// Package compiledb exports the store's recorded compile commands as a
// standard compile_commands.json (a supplemented feature: triggered by the
// compilationDatabase config flag after an indexing pass, or on demand via
// `pygmalion export`), so editors and other clang-tooling consumers that
// already understand the format can point at a project indexed by
// pygmalion without it.
package compiledb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pygmalion-index/pygmalion/internal/facts"
)

// FileName is the conventional name clang tooling looks for.
const FileName = "compile_commands.json"

// Entry is one compilation database record, in the exact {directory,
// command, file} shape named by §6: command is the compiler and its
// arguments reconstructed as a single space-joined string, not the
// "arguments" array form some clang tooling also accepts.
type Entry struct {
	Directory string `json:"directory"`
	Command   string `json:"command"`
	File      string `json:"file"`
}

// Source is the read side internal/scheduler.Scheduler exposes; accepting
// an interface keeps this package testable without a live store.
type Source interface {
	GetAllSourceFiles() ([]facts.CommandInfo, error)
}

// Build converts every recorded compile command into compilation database
// entries, in the order Source returns them.
func Build(src Source) ([]Entry, error) {
	infos, err := src.GetAllSourceFiles()
	if err != nil {
		return nil, fmt.Errorf("list source files: %w", err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		parts := append([]string{info.Command}, info.Args...)
		entries = append(entries, Entry{
			Directory: info.WorkingDir,
			Command:   strings.Join(parts, " "),
			File:      info.SourceFile,
		})
	}
	return entries, nil
}

// Export writes compile_commands.json to projectRoot, atomically: it
// marshals to a temp file in the same directory then renames it into place,
// so a reader never observes a partially-written database (grounded on the
// export manifest's create-temp-then-rename pattern).
func Export(projectRoot string, src Source) error {
	entries, err := Build(src)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal compile commands: %w", err)
	}

	dest := filepath.Join(projectRoot, FileName)
	tmp, err := os.CreateTemp(projectRoot, FileName+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp compile commands file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write compile commands: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close compile commands temp file: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("replace %s: %w", dest, err)
	}
	return nil
}
