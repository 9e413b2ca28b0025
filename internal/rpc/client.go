package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/pygmalion-index/pygmalion/internal/facts"
)

// defaultDialTimeout bounds how long a CLI invocation waits for the daemon
// to accept a connection before giving up.
const defaultDialTimeout = 5 * time.Second

// Client is a single connection to a daemon's RPC server, used by the CLI
// (cmd/pygmalion) to issue one or more queries and, eventually, close.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Dial discovers the daemon endpoint advertised at socketPath (a Unix
// socket path, or on Windows a metadata file naming a TCP endpoint) and
// connects to it.
func Dial(socketPath string) (*Client, error) {
	network, address, err := DiscoverEndpoint(socketPath)
	if err != nil {
		return nil, err
	}

	var conn net.Conn
	switch network {
	case "unix":
		conn, err = dialRPC(address, defaultDialTimeout)
	case "tcp":
		conn, err = dialTCP(address, defaultDialTimeout)
	default:
		return nil, fmt.Errorf("rpc: unknown network %q", network)
	}
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}

	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call sends a request and decodes a single response line.
func (c *Client) call(op Operation, args any) (Response, error) {
	var raw json.RawMessage
	if args != nil {
		encoded, err := json.Marshal(args)
		if err != nil {
			return Response{}, fmt.Errorf("encode args: %w", err)
		}
		raw = encoded
	}

	data, err := json.Marshal(Request{Operation: op, Args: raw})
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}
	data = append(data, '\n')

	if _, err := c.conn.Write(data); err != nil {
		return Response{}, fmt.Errorf("write request: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if !resp.Success {
		return Response{}, fmt.Errorf("%s: %s", op, resp.Error)
	}
	return resp, nil
}

// Ping verifies the daemon is alive and answering requests.
func (c *Client) Ping() error {
	_, err := c.call(OpPing, nil)
	return err
}

// DefinitionAt asks the daemon what symbol is defined at file:line:col.
func (c *Client) DefinitionAt(file string, line, col int) ([]facts.DefInfo, error) {
	resp, err := c.call(OpDefinitionAt, DefinitionAtArgs{File: file, Line: line, Col: col})
	if err != nil {
		return nil, err
	}
	var defs []facts.DefInfo
	if err := json.Unmarshal(resp.Data, &defs); err != nil {
		return nil, fmt.Errorf("decode definition_at result: %w", err)
	}
	return defs, nil
}

func (c *Client) usrQuery(op Operation, usr string) ([]facts.DefInfo, error) {
	resp, err := c.call(op, USRArgs{USR: usr})
	if err != nil {
		return nil, err
	}
	var defs []facts.DefInfo
	if err := json.Unmarshal(resp.Data, &defs); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", op, err)
	}
	return defs, nil
}

// Callers returns every symbol with a recorded call edge into usr.
func (c *Client) Callers(usr string) ([]facts.DefInfo, error) { return c.usrQuery(OpCallers, usr) }

// Callees returns every symbol usr has a recorded call edge to.
func (c *Client) Callees(usr string) ([]facts.DefInfo, error) { return c.usrQuery(OpCallees, usr) }

// Bases returns every symbol usr overrides.
func (c *Client) Bases(usr string) ([]facts.DefInfo, error) { return c.usrQuery(OpBases, usr) }

// Overriders returns every symbol that overrides usr.
func (c *Client) Overriders(usr string) ([]facts.DefInfo, error) {
	return c.usrQuery(OpOverriders, usr)
}

// References returns every recorded source range referencing usr.
func (c *Client) References(usr string) ([]facts.SourceRange, error) {
	resp, err := c.call(OpReferences, USRArgs{USR: usr})
	if err != nil {
		return nil, err
	}
	var refs []facts.SourceRange
	if err := json.Unmarshal(resp.Data, &refs); err != nil {
		return nil, fmt.Errorf("decode references result: %w", err)
	}
	return refs, nil
}

// CompileFlagsForFile asks the daemon for the compile command it would use
// for file, following the same fallback chain as query.Surface.
func (c *Client) CompileFlagsForFile(file string) (facts.CommandInfo, error) {
	resp, err := c.call(OpCompileFlags, FileArgs{File: file})
	if err != nil {
		return facts.CommandInfo{}, err
	}
	var info facts.CommandInfo
	if err := json.Unmarshal(resp.Data, &info); err != nil {
		return facts.CommandInfo{}, fmt.Errorf("decode compile_flags result: %w", err)
	}
	return info, nil
}

// Index reports one observed compiler invocation to the daemon — the CLI's
// `--index <compiler> <file>` (§6) — and waits for it to be recorded and
// analyzed. workingDir is the caller's own current directory, args the
// compiler flags pygscan observed; neither is typed by the CLI user.
func (c *Client) Index(compiler, file, workingDir string, args []string) error {
	_, err := c.call(OpIndex, IndexArgs{Compiler: compiler, File: file, WorkingDir: workingDir, Args: args})
	return err
}

// Export asks the daemon to write compile_commands.json for its project now,
// rather than waiting for the next automatic post-batch export.
func (c *Client) Export() error {
	_, err := c.call(OpExport, nil)
	return err
}

// Stop asks the daemon to shut down after replying.
func (c *Client) Stop() error {
	_, err := c.call(OpStop, nil)
	return err
}
