package worker

import (
	"bufio"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pygmalion-index/pygmalion/internal/facts"
)

// pipeWorker wires a Worker's stdin/stdout to an in-process fake subprocess,
// so the protocol can be exercised without actually spawning one (the Go
// toolchain is never invoked by this exercise, so there is no binary to
// exec). serve runs in its own goroutine and owns the fake subprocess side.
func pipeWorker(t *testing.T, serve func(reqR io.Reader, respW io.WriteCloser)) *Worker {
	t.Helper()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	go serve(reqR, respW)
	t.Cleanup(func() {
		_ = reqW.Close()
		_ = respR.Close()
	})

	return &Worker{stdin: reqW, stdout: bufio.NewReader(respR)}
}

func echoOneDefServe(reqR io.Reader, respW io.WriteCloser) {
	for {
		req, err := ReadRequest(reqR)
		if err != nil {
			return
		}
		switch r := req.(type) {
		case AnalyzeRequest:
			_ = (FoundDefResponse{Def: facts.DefInfo{
				USR: "c:@F@" + r.Info.SourceFile, Name: r.Info.SourceFile,
				Kind: facts.KindFunctionDecl,
			}}).writeTo(respW)
			_ = (FoundInclusionResponse{Inclusion: facts.Inclusion{
				Includer: r.Info.SourceFile, Included: "x.h", Direct: true,
			}}).writeTo(respW)
			_ = (EndOfDefsResponse{}).writeTo(respW)
		case ShutdownRequest:
			return
		}
	}
}

func TestWorkerAnalyzeDrainsMultiVariantTurn(t *testing.T) {
	w := pipeWorker(t, echoOneDefServe)

	turn, err := w.Analyze(context.Background(), facts.CommandInfo{SourceFile: "a.cpp"})
	require.NoError(t, err)
	require.Len(t, turn.Defs, 1)
	require.Equal(t, "a.cpp", turn.Defs[0].Name)
	require.Len(t, turn.Inclusions, 1)
	require.Equal(t, "x.h", turn.Inclusions[0].Included)
}

func TestWorkerAnalyzeReturnsDesyncOnGarbageFrame(t *testing.T) {
	w := pipeWorker(t, func(reqR io.Reader, respW io.WriteCloser) {
		if _, err := ReadRequest(reqR); err != nil {
			return
		}
		// A length-prefixed frame whose declared length outruns what follows;
		// closing right after leaves the reader mid-frame with no more data.
		_, _ = respW.Write([]byte{0, 0, 0, 50, 1})
		_ = respW.Close()
	})

	_, err := w.Analyze(context.Background(), facts.CommandInfo{SourceFile: "a.cpp"})
	require.ErrorIs(t, err, ErrDesync)
}

func TestWorkerShutdownWithoutSubprocessIsNoop(t *testing.T) {
	done := make(chan struct{})
	w := pipeWorker(t, func(reqR io.Reader, respW io.WriteCloser) {
		defer close(done)
		req, err := ReadRequest(reqR)
		require.NoError(t, err)
		require.Equal(t, ShutdownRequest{}, req)
	})

	require.NoError(t, w.Shutdown())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fake subprocess never observed the shutdown request")
	}
}
