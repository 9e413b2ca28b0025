// Package worker implements the core-to-semantic-index-subprocess protocol
// (§4.6): length-prefixed binary envelopes over a worker's stdin/stdout,
// turn-based per worker, plus the pool that fans dispatch out across N
// concurrently running workers.
package worker

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pygmalion-index/pygmalion/internal/facts"
)

// ErrDesync marks a worker exit or malformed frame outside a clean Shutdown
// (§4.6, §7: "protocol desynchronization on the worker channel: treat as
// worker failure"). The pool discards the worker and spawns its replacement
// before that pool goroutine takes another job.
var ErrDesync = errors.New("worker: protocol desynchronized")

type requestTag byte

const (
	tagAnalyze requestTag = 1
	tagShutdown requestTag = 2
)

type responseTag byte

const (
	tagFoundDef       responseTag = 1
	tagFoundInclusion responseTag = 2
	tagFoundOverride  responseTag = 3
	tagFoundCall      responseTag = 4
	tagFoundRef       responseTag = 5
	tagEndOfDefs      responseTag = 6
)

// Request is one variant of the core-to-worker sum type (§4.6): Analyze or
// Shutdown. Only AnalyzeRequest carries a payload.
type Request interface {
	writeTo(w io.Writer) error
}

// AnalyzeRequest asks the worker to parse info.SourceFile and stream back
// its facts.
type AnalyzeRequest struct {
	Info facts.CommandInfo
}

func (r AnalyzeRequest) writeTo(w io.Writer) error {
	var buf bytes.Buffer
	if _, err := r.Info.WriteTo(&buf); err != nil {
		return fmt.Errorf("encode analyze request: %w", err)
	}
	return writeEnvelope(w, byte(tagAnalyze), buf.Bytes())
}

// ShutdownRequest asks the worker to exit cleanly. A worker that exits after
// receiving this is not a desync.
type ShutdownRequest struct{}

func (ShutdownRequest) writeTo(w io.Writer) error {
	return writeEnvelope(w, byte(tagShutdown), nil)
}

// WriteRequest encodes and writes req, the inverse of ReadRequest.
func WriteRequest(w io.Writer, req Request) error {
	return req.writeTo(w)
}

// ReadRequest reads and decodes one Request, the inverse of writeTo. Used by
// the toy analyzer's subprocess main loop, not by the pool.
func ReadRequest(r io.Reader) (Request, error) {
	tag, payload, err := readEnvelope(r)
	if err != nil {
		return nil, err
	}
	switch requestTag(tag) {
	case tagAnalyze:
		info, err := facts.ReadCommandInfo(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("decode analyze request: %w", err)
		}
		return AnalyzeRequest{Info: info}, nil
	case tagShutdown:
		return ShutdownRequest{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown request tag %d", ErrDesync, tag)
	}
}

// Response is one variant of the worker-to-core sum type: a streamed fact,
// or EndOfDefs terminating the current Analyze turn (§4.6, and the §2/§4.6
// resolution documented in SPEC_FULL.md — the worker reports every fact kind
// it discovers, not only definitions).
type Response interface {
	writeTo(w io.Writer) error
}

type FoundDefResponse struct{ Def facts.DefInfo }
type FoundInclusionResponse struct{ Inclusion facts.Inclusion }
type FoundOverrideResponse struct{ Override facts.Override }
type FoundCallResponse struct{ Edge facts.CallEdge }
type FoundRefResponse struct{ Ref facts.Reference }
type EndOfDefsResponse struct{}

func (r FoundDefResponse) writeTo(w io.Writer) error {
	return writeFactResponse(w, byte(tagFoundDef), r.Def)
}

func (r FoundInclusionResponse) writeTo(w io.Writer) error {
	return writeFactResponse(w, byte(tagFoundInclusion), r.Inclusion)
}

func (r FoundOverrideResponse) writeTo(w io.Writer) error {
	return writeFactResponse(w, byte(tagFoundOverride), r.Override)
}

func (r FoundCallResponse) writeTo(w io.Writer) error {
	return writeFactResponse(w, byte(tagFoundCall), r.Edge)
}

func (r FoundRefResponse) writeTo(w io.Writer) error {
	return writeFactResponse(w, byte(tagFoundRef), r.Ref)
}

func (EndOfDefsResponse) writeTo(w io.Writer) error {
	return writeEnvelope(w, byte(tagEndOfDefs), nil)
}

type writerTo interface {
	WriteTo(w io.Writer) (int64, error)
}

func writeFactResponse(w io.Writer, tag byte, fact writerTo) error {
	var buf bytes.Buffer
	if _, err := fact.WriteTo(&buf); err != nil {
		return fmt.Errorf("encode response %d: %w", tag, err)
	}
	return writeEnvelope(w, tag, buf.Bytes())
}

// WriteResponse encodes and writes resp, the inverse of ReadResponse. Used by
// a semantic-index subprocess (cmd/pygclangindex) to report facts back to
// the pool; Worker itself never calls this since it only reads responses.
func WriteResponse(w io.Writer, resp Response) error {
	return resp.writeTo(w)
}

// ReadResponse reads and decodes one Response, the inverse of writeTo. Used
// by a Worker to drain an Analyze turn.
func ReadResponse(r *bufio.Reader) (Response, error) {
	tag, payload, err := readEnvelope(r)
	if err != nil {
		return nil, err
	}
	br := bytes.NewReader(payload)
	switch responseTag(tag) {
	case tagFoundDef:
		def, err := facts.ReadDefInfo(br)
		if err != nil {
			return nil, fmt.Errorf("%w: decode FoundDef: %v", ErrDesync, err)
		}
		return FoundDefResponse{Def: def}, nil
	case tagFoundInclusion:
		inc, err := facts.ReadInclusion(br)
		if err != nil {
			return nil, fmt.Errorf("%w: decode FoundInclusion: %v", ErrDesync, err)
		}
		return FoundInclusionResponse{Inclusion: inc}, nil
	case tagFoundOverride:
		ov, err := facts.ReadOverride(br)
		if err != nil {
			return nil, fmt.Errorf("%w: decode FoundOverride: %v", ErrDesync, err)
		}
		return FoundOverrideResponse{Override: ov}, nil
	case tagFoundCall:
		edge, err := facts.ReadCallEdge(br)
		if err != nil {
			return nil, fmt.Errorf("%w: decode FoundCall: %v", ErrDesync, err)
		}
		return FoundCallResponse{Edge: edge}, nil
	case tagFoundRef:
		ref, err := facts.ReadReference(br)
		if err != nil {
			return nil, fmt.Errorf("%w: decode FoundRef: %v", ErrDesync, err)
		}
		return FoundRefResponse{Ref: ref}, nil
	case tagEndOfDefs:
		return EndOfDefsResponse{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown response tag %d", ErrDesync, tag)
	}
}

// writeEnvelope frames payload as a 4-byte big-endian length (covering tag
// plus payload), the 1-byte tag, then payload itself.
func writeEnvelope(w io.Writer, tag byte, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(1+len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write envelope length: %w", err)
	}
	if _, err := w.Write([]byte{tag}); err != nil {
		return fmt.Errorf("write envelope tag: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write envelope payload: %w", err)
		}
	}
	return nil
}

// readEnvelope is the inverse of writeEnvelope. Any I/O or framing error is
// reported as ErrDesync, since the byte stream can no longer be trusted;
// the one exception is a clean EOF before the first length byte, which is
// returned as io.EOF.
func readEnvelope(r io.Reader) (tag byte, payload []byte, err error) {
	var lenBuf [4]byte
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("%w: read envelope length: %v", ErrDesync, err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n < 1 {
		return 0, nil, fmt.Errorf("%w: empty envelope", ErrDesync)
	}
	buf := make([]byte, n)
	if _, err = io.ReadFull(r, buf); err != nil {
		return 0, nil, fmt.Errorf("%w: read envelope body: %v", ErrDesync, err)
	}
	return buf[0], buf[1:], nil
}
