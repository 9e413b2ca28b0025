package worker

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pygmalion-index/pygmalion/internal/facts"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeEnvelope(&buf, 7, []byte("payload")))

	tag, payload, err := readEnvelope(&buf)
	require.NoError(t, err)
	require.Equal(t, byte(7), tag)
	require.Equal(t, []byte("payload"), payload)
}

func TestReadEnvelopeCleanEOFAtFrameBoundary(t *testing.T) {
	_, _, err := readEnvelope(&bytes.Buffer{})
	require.ErrorIs(t, err, io.EOF)
}

func TestReadEnvelopeMidFrameFailureIsDesync(t *testing.T) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 10)
	r := bytes.NewReader(append(lenBuf[:], []byte("short")...))

	_, _, err := readEnvelope(r)
	require.ErrorIs(t, err, ErrDesync)
}

func TestRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	info := facts.CommandInfo{SourceFile: "/proj/a.cpp", WorkingDir: "/proj", Command: "cc"}
	require.NoError(t, (AnalyzeRequest{Info: info}).writeTo(&buf))

	req, err := ReadRequest(&buf)
	require.NoError(t, err)
	analyze, ok := req.(AnalyzeRequest)
	require.True(t, ok)
	require.Equal(t, info.SourceFile, analyze.Info.SourceFile)
	require.Equal(t, info.Command, analyze.Info.Command)

	buf.Reset()
	require.NoError(t, (ShutdownRequest{}).writeTo(&buf))
	req, err = ReadRequest(&buf)
	require.NoError(t, err)
	require.Equal(t, ShutdownRequest{}, req)
}

func TestResponseRoundTripAllVariants(t *testing.T) {
	def := facts.DefInfo{USR: "c:@F@a", Name: "a", Location: facts.Location{File: "a.cpp", Line: 1, Col: 1}, Kind: facts.KindFunctionDecl}
	inc := facts.Inclusion{Includer: "a.cpp", Included: "a.h", Direct: true}
	ov := facts.Override{DefiningUSR: "c:@F@derived", OverriddenUSR: "c:@F@base"}
	edge := facts.CallEdge{CallerUSR: "c:@F@a", CalleeUSR: "c:@F@b"}
	ref := facts.Reference{TargetUSR: "c:@F@a", Range: facts.SourceRange{File: "a.cpp", Line: 1, Col: 1, EndLine: 1, EndCol: 1}}

	cases := []Response{
		FoundDefResponse{Def: def},
		FoundInclusionResponse{Inclusion: inc},
		FoundOverrideResponse{Override: ov},
		FoundCallResponse{Edge: edge},
		FoundRefResponse{Ref: ref},
		EndOfDefsResponse{},
	}

	var buf bytes.Buffer
	for _, c := range cases {
		require.NoError(t, c.writeTo(&buf))
	}

	br := bufio.NewReader(&buf)
	for _, want := range cases {
		got, err := ReadResponse(br)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}
