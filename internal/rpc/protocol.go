// Package rpc implements the CLI-to-daemon transport (§6, supplemented):
// a newline-delimited JSON request/response protocol over a Unix domain
// socket (TCP plus a metadata file on Windows), grounded on beads'
// internal/rpc package. Unlike the binary length-prefixed protocol spoken
// between the daemon and its semantic-index workers (internal/worker), this
// one carries the handful of operations a human-facing CLI needs: the
// read-only query surface (internal/query) plus daemon administration.
package rpc

import (
	"encoding/json"
	"errors"
)

// ErrDaemonUnavailable is returned when no daemon endpoint can be discovered
// for a project, whether because it was never started or its socket/metadata
// file is stale.
var ErrDaemonUnavailable = errors.New("rpc: daemon unavailable")

// Operation names an RPC call. Unlike beads' several dozen, pygmalion's
// surface is exactly the seven query-surface operations (§4.7) plus the four
// administrative ones (index, export, stop, ping) the design supplements in
// beyond what the semantic
// index protocol already covers (§4.6 is index-and-store only; it has no
// notion of a running daemon a human asks to stop).
type Operation string

const (
	OpDefinitionAt Operation = "definition_at"
	OpCallers      Operation = "callers"
	OpCallees      Operation = "callees"
	OpBases        Operation = "bases"
	OpOverriders   Operation = "overriders"
	OpReferences   Operation = "references"
	OpCompileFlags Operation = "compile_flags"
	OpIndex        Operation = "index"
	OpExport       Operation = "export"
	OpStop         Operation = "stop"
	OpPing         Operation = "ping"
)

// Request is one RPC call. Args is deferred decoding (raw JSON) so that the
// envelope can be parsed before the caller knows which concrete argument
// shape to expect, mirroring beads' Request/Response framing.
type Request struct {
	Operation Operation       `json:"operation"`
	Args      json.RawMessage `json:"args,omitempty"`
}

// Response is the reply to one Request. Exactly one of Data or Error is set
// on a well-formed response; Success mirrors which one, so callers checking
// only Success never need to also nil-check Error.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// DefinitionAtArgs is the argument shape for OpDefinitionAt.
type DefinitionAtArgs struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
}

// USRArgs is the argument shape for every operation keyed by a single USR:
// OpCallers, OpCallees, OpBases, OpOverriders, OpReferences.
type USRArgs struct {
	USR string `json:"usr"`
}

// FileArgs is the argument shape for OpCompileFlags.
type FileArgs struct {
	File string `json:"file"`
}

// IndexArgs is the argument shape for OpIndex, mirroring the CLI surface's
// `pygmalion --index <compiler> <file>` (§6): pygscan, having intercepted
// one compiler invocation and forwarded it to the real compiler, reports it
// here so the daemon can record it and dispatch a worker to analyze it.
// WorkingDir and Args are filled in by the client from its own process
// state (current directory, remaining argv) rather than typed by the
// user — mirroring beads' Request.Cwd field, which exists for the same
// reason (the server cannot know the client's working directory itself).
type IndexArgs struct {
	Compiler   string   `json:"compiler"`
	File       string   `json:"file"`
	WorkingDir string   `json:"working_dir"`
	Args       []string `json:"args,omitempty"`
}
