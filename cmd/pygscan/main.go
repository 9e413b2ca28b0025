// pygscan is the compiler-impersonation observer (§6): pygmake redirects
// CC/CXX through it, so every compile invocation first passes through here.
// It forwards the invocation to the real compiler unchanged, then reports
// the observed command to the daemon so the translation unit gets
// re-indexed. Indexing is best-effort: if the daemon is unreachable, the
// build still succeeds with the real compiler's own exit status.
package main

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pygmalion-index/pygmalion/internal/daemon"
	"github.com/pygmalion-index/pygmalion/internal/rpc"
)

// sourceExtensions are the file extensions pygmake's scan cares about;
// anything else invoking the compiler (linking, preprocessing only, version
// queries) is forwarded but not reported for indexing.
var sourceExtensions = map[string]bool{
	".c": true, ".cc": true, ".cpp": true, ".cxx": true, ".c++": true,
}

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin *os.File, stdout, stderr *os.File) int {
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if len(args) < 2 {
		logger.Error("pygscan: missing compiler argument")
		return 1
	}
	compiler := args[1]
	compilerArgs := args[2:]

	cmd := exec.Command(compiler, compilerArgs...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	runErr := cmd.Run()

	if file, ok := sourceFileFrom(compilerArgs); ok {
		reportToDaemon(compiler, file, compilerArgs, logger)
	}

	if runErr == nil {
		return 0
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	logger.Error("pygscan: failed to run compiler", "compiler", compiler, "error", runErr)
	return 1
}

// sourceFileFrom finds the first argument that looks like a source file:
// not a flag, with a recognized extension.
func sourceFileFrom(args []string) (string, bool) {
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			continue
		}
		if sourceExtensions[strings.ToLower(filepath.Ext(a))] {
			return a, true
		}
	}
	return "", false
}

func reportToDaemon(compiler, file string, args []string, logger *slog.Logger) {
	cwd, err := os.Getwd()
	if err != nil {
		logger.Warn("pygscan: cannot determine working directory, skipping index report", "error", err)
		return
	}

	root := daemon.FindProjectRoot(cwd)
	c, err := rpc.Dial(daemon.SocketPath(root))
	if err != nil {
		logger.Warn("pygscan: daemon unavailable, skipping index report", "file", file, "error", err)
		return
	}
	defer c.Close()

	if err := c.Index(compiler, file, cwd, args); err != nil {
		logger.Warn("pygscan: index report failed", "file", file, "error", err)
	}
}
