// pygd is the per-project daemon (§6): it opens .pygmalion.sqlite, serves
// the RPC transport in internal/rpc, and dispatches indexing requests to a
// pool of pygclangindex subprocesses via internal/worker. One pygd serves
// one project root.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pygmalion-index/pygmalion/internal/config"
	"github.com/pygmalion-index/pygmalion/internal/daemon"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var projectRoot string
	var workerPath string

	cmd := &cobra.Command{
		Use:   "pygd",
		Short: "Run the pygmalion daemon for one project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(projectRoot, workerPath)
		},
	}
	cmd.Flags().StringVar(&projectRoot, "project-root", ".", "project root containing .pygmalion.conf")
	cmd.Flags().StringVar(&workerPath, "worker", "pygclangindex", "path to the pygclangindex binary")
	return cmd
}

func runDaemon(projectRoot, workerPath string) error {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)

	d, err := daemon.New(context.Background(), root, cfg, resolveWorkerPath(workerPath), logger)
	if err != nil {
		logger.Error("pygd: failed to start", "error", err)
		return err
	}

	logger.Info("pygd: serving", "project_root", root, "socket", daemon.SocketPath(root))
	return d.RunUntilSignal()
}

// resolveWorkerPath returns path unchanged if it names an existing file
// (absolute or relative to the working directory); otherwise it is left for
// exec.LookPath to resolve against PATH, same fallback worker.Spawn's
// exec.Command already performs internally.
func resolveWorkerPath(path string) string {
	if _, err := os.Stat(path); err == nil {
		abs, err := filepath.Abs(path)
		if err == nil {
			return abs
		}
	}
	return path
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warning", "notice":
		lvl = slog.LevelWarn
	case "error", "critical", "alert", "emergency":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
