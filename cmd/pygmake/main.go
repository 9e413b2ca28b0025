// pygmake is the build wrapper named in §6: it runs the project's configured
// make command with CC/CXX redirected through pygscan, so every compiler
// invocation the build performs gets observed and reported to the daemon.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/pygmalion-index/pygmalion/internal/config"
	"github.com/pygmalion-index/pygmalion/internal/daemon"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	scanPath, err := exec.LookPath("pygscan")
	if err != nil {
		logger.Error("pygmake: pygscan not found on PATH", "error", err)
		os.Exit(1)
	}

	os.Exit(run(os.Args[1:], scanPath, logger))
}

// run builds and executes the project's configured make command with
// CC/CXX redirected through scanPath. Accepting scanPath as a parameter
// (rather than resolving it here via exec.LookPath) keeps this function
// testable without a real pygscan binary on PATH.
func run(args []string, scanPath string, logger *slog.Logger) int {
	cwd, err := os.Getwd()
	if err != nil {
		logger.Error("pygmake: cannot determine working directory", "error", err)
		return 1
	}
	root := daemon.FindProjectRoot(cwd)

	cfg, err := config.Load(root)
	if err != nil {
		logger.Error("pygmake: cannot load config", "error", err)
		return 1
	}

	line := cfg.ExpandMake(root, args)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		logger.Error("pygmake: empty make command")
		return 1
	}

	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Dir = root
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("CC=%s cc", scanPath),
		fmt.Sprintf("CXX=%s c++", scanPath),
	)

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		logger.Error("pygmake: failed to run build", "error", err)
		return 1
	}
	return 0
}
