// pygclangindex is the semantic-index subprocess: it reads Analyze/Shutdown
// requests from stdin and streams Found* responses to stdout using the
// protocol in internal/worker. It is a stand-in for the real
// libclang-equivalent engine named out of scope by the design (see
// internal/worker/toyanalyzer); a production build would replace only the
// analysis inside handleAnalyze, not the protocol loop around it.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pygmalion-index/pygmalion/internal/facts"
	"github.com/pygmalion-index/pygmalion/internal/worker"
	"github.com/pygmalion-index/pygmalion/internal/worker/toyanalyzer"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("pygclangindex exiting", "error", err)
		os.Exit(1)
	}
}

func run(stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	out := bufio.NewWriter(stdout)
	for {
		req, err := worker.ReadRequest(stdin)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read request: %w", err)
		}

		switch r := req.(type) {
		case worker.AnalyzeRequest:
			if err := handleAnalyze(out, r.Info, logger); err != nil {
				return fmt.Errorf("handle analyze %s: %w", r.Info.SourceFile, err)
			}
		case worker.ShutdownRequest:
			return nil
		default:
			return fmt.Errorf("unexpected request %T", req)
		}
	}
}

// handleAnalyze reads the translation unit named by info.SourceFile, scans it
// with the toy analyzer, and streams one response per discovered fact
// followed by EndOfDefs. Writes are buffered and flushed once at the end of
// the turn, since the pool only reads after sending one Analyze request.
func handleAnalyze(out *bufio.Writer, info facts.CommandInfo, logger *slog.Logger) error {
	defer out.Flush()

	path := info.SourceFile
	if !filepath.IsAbs(path) && info.WorkingDir != "" {
		path = filepath.Join(info.WorkingDir, path)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("cannot read source file, reporting an empty turn", "file", path, "error", err)
		return worker.WriteResponse(out, worker.EndOfDefsResponse{})
	}

	result := toyanalyzer.Scan(info.SourceFile, string(src))

	for _, def := range result.Defs {
		if err := worker.WriteResponse(out, worker.FoundDefResponse{Def: def}); err != nil {
			return err
		}
	}
	for _, inc := range result.Inclusions {
		if err := worker.WriteResponse(out, worker.FoundInclusionResponse{Inclusion: inc}); err != nil {
			return err
		}
	}
	for _, call := range result.Calls {
		if err := worker.WriteResponse(out, worker.FoundCallResponse{Edge: call}); err != nil {
			return err
		}
	}
	for _, ref := range result.Refs {
		if err := worker.WriteResponse(out, worker.FoundRefResponse{Ref: ref}); err != nil {
			return err
		}
	}
	return worker.WriteResponse(out, worker.EndOfDefsResponse{})
}
