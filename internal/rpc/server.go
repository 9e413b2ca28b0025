package rpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/pygmalion-index/pygmalion/internal/facts"
	"github.com/pygmalion-index/pygmalion/internal/query"
)

// Indexer is the subset of daemon behavior OpIndex needs: record one
// observed compile command and analyze it, synchronously, reporting any
// failure. Defined here (rather than taking a concrete daemon type) to
// avoid internal/rpc importing internal/daemon.
type Indexer interface {
	IndexFile(info facts.CommandInfo) error
}

// Exporter is the subset of daemon behavior OpExport needs: write
// compile_commands.json for the project the daemon is serving, on demand
// (§6's supplemented `pygmalion export`, distinct from the
// compilationDatabase config flag's automatic per-batch export).
type Exporter interface {
	ExportCompileDB() error
}

// Server answers RPC connections on a single listener, dispatching each
// request to the query surface or to daemon administration. One Server
// serves one project's daemon.
type Server struct {
	socketPath string
	surface    *query.Surface
	indexer    Indexer
	exporter   Exporter
	logger     *slog.Logger

	listener net.Listener

	mu       sync.Mutex
	stopping bool
	stopChan chan struct{}
	stopFn   func() error
}

// NewServer builds a Server that answers queries through surface and
// indexing/shutdown requests through indexer. stopFn is invoked once, after
// the OpStop response has been written, to actually tear the daemon down;
// it is supplied by the caller (internal/daemon) rather than owned here so
// that Server has no knowledge of what "stopping" entails beyond signaling.
func NewServer(socketPath string, surface *query.Surface, indexer Indexer, exporter Exporter, stopFn func() error, logger *slog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		surface:    surface,
		indexer:    indexer,
		exporter:   exporter,
		stopFn:     stopFn,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

// Serve listens on the server's socket path and handles connections until
// Stop is called or the listener otherwise fails. It returns nil on a clean
// Stop-triggered shutdown.
func (s *Server) Serve() error {
	l, err := listenRPC(s.socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.socketPath, err)
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		go s.handleConnection(conn)
	}
}

// Stop closes the listener, which unblocks Serve's Accept loop.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return nil
	}
	s.stopping = true
	close(s.stopChan)
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// handleConnection reads newline-delimited JSON requests from conn and
// writes one newline-delimited JSON response per request, until the
// connection is closed or a request line fails to decode.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = s.writeResponse(writer, Response{Success: false, Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}

		resp := s.handleRequest(&req)
		if !resp.Success {
			s.logger.Warn("rpc request failed", "operation", req.Operation, "error", resp.Error)
		}
		if err := s.writeResponse(writer, resp); err != nil {
			s.logger.Warn("rpc connection broken writing response", "error", err)
			return
		}

		if req.Operation == OpStop {
			go func() {
				if s.stopFn != nil {
					_ = s.stopFn()
				}
				_ = s.Stop()
			}()
			return
		}
	}
}

func (s *Server) writeResponse(w *bufio.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

func (s *Server) handleRequest(req *Request) Response {
	switch req.Operation {
	case OpPing:
		return ok(json.RawMessage(`{}`))
	case OpDefinitionAt:
		return s.handleDefinitionAt(req)
	case OpCallers:
		return s.handleUSRQuery(req, s.surface.Callers)
	case OpCallees:
		return s.handleUSRQuery(req, s.surface.Callees)
	case OpBases:
		return s.handleUSRQuery(req, s.surface.Bases)
	case OpOverriders:
		return s.handleUSRQuery(req, s.surface.Overriders)
	case OpReferences:
		return s.handleReferences(req)
	case OpCompileFlags:
		return s.handleCompileFlags(req)
	case OpIndex:
		return s.handleIndex(req)
	case OpExport:
		return s.handleExport()
	case OpStop:
		return ok(json.RawMessage(`{"message":"daemon stopping"}`))
	default:
		return fail(fmt.Errorf("unknown operation %q", req.Operation))
	}
}

func (s *Server) handleDefinitionAt(req *Request) Response {
	var args DefinitionAtArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return fail(fmt.Errorf("decode args: %w", err))
	}
	defs, err := s.surface.DefinitionAt(args.File, args.Line, args.Col)
	if err != nil {
		return fail(err)
	}
	return okValue(defs)
}

// handleUSRQuery covers the four single-USR, []facts.DefInfo-returning
// operations (Callers, Callees, Bases, Overriders), which differ only in
// which Surface method answers them.
func (s *Server) handleUSRQuery(req *Request, query func(string) ([]facts.DefInfo, error)) Response {
	var args USRArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return fail(fmt.Errorf("decode args: %w", err))
	}
	defs, err := query(args.USR)
	if err != nil {
		return fail(err)
	}
	return okValue(defs)
}

func (s *Server) handleReferences(req *Request) Response {
	var args USRArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return fail(fmt.Errorf("decode args: %w", err))
	}
	refs, err := s.surface.References(args.USR)
	if err != nil {
		return fail(err)
	}
	return okValue(refs)
}

func (s *Server) handleCompileFlags(req *Request) Response {
	var args FileArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return fail(fmt.Errorf("decode args: %w", err))
	}
	info, err := s.surface.CompileFlagsForFile(args.File)
	if err != nil {
		return fail(err)
	}
	return okValue(info)
}

func (s *Server) handleIndex(req *Request) Response {
	if s.indexer == nil {
		return fail(errors.New("indexer not configured"))
	}
	var args IndexArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return fail(fmt.Errorf("decode args: %w", err))
	}
	info := facts.CommandInfo{
		SourceFile: args.File,
		WorkingDir: args.WorkingDir,
		Command:    args.Compiler,
		Args:       args.Args,
	}
	if err := s.indexer.IndexFile(info); err != nil {
		return fail(err)
	}
	return ok(json.RawMessage(`{"message":"indexed"}`))
}

func (s *Server) handleExport() Response {
	if s.exporter == nil {
		return fail(errors.New("exporter not configured"))
	}
	if err := s.exporter.ExportCompileDB(); err != nil {
		return fail(err)
	}
	return ok(json.RawMessage(`{"message":"exported"}`))
}

func ok(data json.RawMessage) Response {
	return Response{Success: true, Data: data}
}

func okValue(v any) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return fail(fmt.Errorf("marshal result: %w", err))
	}
	return ok(data)
}

func fail(err error) Response {
	return Response{Success: false, Error: err.Error()}
}
