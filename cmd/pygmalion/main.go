// pygmalion is the query client (§6): a thin cobra front end over
// internal/rpc.Client, one subcommand per operation the daemon's query
// surface and administration exposes. Exit status is 0 on success, non-zero
// on a daemon error — results themselves are printed one human-readable
// record per line, and an empty result set is simply empty output (§7).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pygmalion-index/pygmalion/internal/daemon"
	"github.com/pygmalion-index/pygmalion/internal/facts"
	"github.com/pygmalion-index/pygmalion/internal/rpc"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var projectRoot string

	root := &cobra.Command{
		Use:           "pygmalion",
		Short:         "Query a running pygmalion daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&projectRoot, "project-root", ".", "project root the daemon is serving")

	dial := func() (*rpc.Client, error) {
		abs, err := filepath.Abs(projectRoot)
		if err != nil {
			return nil, fmt.Errorf("resolve project root: %w", err)
		}
		c, err := rpc.Dial(daemon.SocketPath(abs))
		if err != nil {
			return nil, fmt.Errorf("connect to daemon: %w", err)
		}
		return c, nil
	}

	root.AddCommand(
		definitionCmd(dial),
		usrQueryCmd("callers", "every symbol with a call edge into usr", dial, (*rpc.Client).Callers),
		usrQueryCmd("callees", "every symbol usr has a call edge to", dial, (*rpc.Client).Callees),
		usrQueryCmd("bases", "every symbol usr overrides", dial, (*rpc.Client).Bases),
		usrQueryCmd("overrides", "every symbol that overrides usr", dial, (*rpc.Client).Overriders),
		referencesCmd(dial),
		compileFlagsCmd(dial),
		indexCmd(dial),
		exportCmd(dial),
		stopCmd(dial),
	)
	return root
}

func definitionCmd(dial func() (*rpc.Client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "definition <file> <line> <col>",
		Short: "Print the symbol defined at file:line:col",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, col, err := parseLineCol(args[1], args[2])
			if err != nil {
				return err
			}
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			defs, err := c.DefinitionAt(args[0], line, col)
			if err != nil {
				return err
			}
			printDefs(defs)
			return nil
		},
	}
}

// usrQueryCmd builds the four subcommands that differ only in which
// rpc.Client method they call and how they describe themselves.
func usrQueryCmd(use, short string, dial func() (*rpc.Client, error), call func(*rpc.Client, string) ([]facts.DefInfo, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <usr>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			defs, err := call(c, args[0])
			if err != nil {
				return err
			}
			printDefs(defs)
			return nil
		},
	}
}

func referencesCmd(dial func() (*rpc.Client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "references <usr>",
		Short: "Print every recorded source range referencing usr",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			refs, err := c.References(args[0])
			if err != nil {
				return err
			}
			for _, r := range refs {
				fmt.Println(r.String())
			}
			return nil
		},
	}
}

func compileFlagsCmd(dial func() (*rpc.Client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "compile-flags <file>",
		Short: "Print the compile command the daemon would use for file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			info, err := c.CompileFlagsForFile(args[0])
			if err != nil {
				return err
			}
			fmt.Println(formatCommand(info))
			return nil
		},
	}
}

func indexCmd(dial func() (*rpc.Client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "index <compiler> <file> [-- <args>...]",
		Short: "Report one observed compile command to the daemon and wait for it to be analyzed",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Index(args[0], args[1], cwd, args[2:])
		},
	}
}

func exportCmd(dial func() (*rpc.Client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write compile_commands.json for the project now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Export()
		},
	}
}

func stopCmd(dial func() (*rpc.Client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask the daemon to shut down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Stop()
		},
	}
}

func printDefs(defs []facts.DefInfo) {
	for _, d := range defs {
		fmt.Printf("%s %s %s %s\n", d.USR, d.Kind, d.Name, d.Location)
	}
}

func formatCommand(info facts.CommandInfo) string {
	cmd := info.Command
	for _, a := range info.Args {
		cmd += " " + a
	}
	return cmd
}

func parseLineCol(lineArg, colArg string) (int, int, error) {
	line, err := strconv.Atoi(lineArg)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid line %q: %w", lineArg, err)
	}
	col, err := strconv.Atoi(colArg)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid col %q: %w", colArg, err)
	}
	return line, col, nil
}
