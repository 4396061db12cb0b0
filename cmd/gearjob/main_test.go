package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/juliaogris/gearjob/pkg/gearjob"
	"github.com/juliaogris/gearjob/pkg/job"
	"github.com/juliaogris/gearjob/pkg/jobs"
	"github.com/juliaogris/gearjob/pkg/queue"
	"github.com/stretchr/testify/require"
)

func TestMainRun(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Stop()
	startWorker(t, ts.address)
	t.Setenv("GEARJOB_ADDRESS", ts.address)

	out, err := run(t, []string{"run", "Reverse", "abc", "hello"})
	require.NoError(t, err)
	// sample output
	// HANDLE     STATE     RESULT
	// H:test:1   complete  cba
	// H:test:2   complete  olleh
	//
	// these test cases are fragile, let's keep them to a minimum
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	require.Regexp(t, `^HANDLE\s+STATE\s+RESULT$`, lines[0])
	require.Regexp(t, `^H:test:\d+\s+complete\s+cba$`, lines[1])
	require.Regexp(t, `^H:test:\d+\s+complete\s+olleh$`, lines[2])
	require.Equal(t, "", lines[3])

	out, err = run(t, []string{"run", "--high", "Add", "[1,2,3]"})
	require.NoError(t, err)
	require.Contains(t, out, "complete  6")
}

func TestMainSubmitStatusWatch(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Stop()
	t.Setenv("GEARJOB_ADDRESS", ts.address)

	out, err := run(t, []string{"submit", "Reverse", "abc", "--uniq", "u1"})
	require.NoError(t, err)
	handle := strings.TrimSpace(out)
	require.Equal(t, "H:test:1", handle)

	out, err = run(t, []string{"submit", "Reverse", "xyz", "--uniq", "u1"})
	require.NoError(t, err)
	require.Equal(t, handle, strings.TrimSpace(out))

	out, err = run(t, []string{"status", handle, "--time-format", "15:04:05"})
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	require.Regexp(t, `^HANDLE\s+FUNC\s+STATE\s+PROGRESS\s+SUBMITTED\s+STARTED\s+STOPPED$`, lines[0])
	require.Regexp(t, `^H:test:1\s+Reverse\s+pending\s+\d\d:\d\d:\d\d\s*$`, lines[1])

	startWorker(t, ts.address)
	out, err = run(t, []string{"watch", handle})
	require.NoError(t, err)
	require.Equal(t, "cbacba", out) // data chunk, then result

	_, err = run(t, []string{"status", "H:test:99"})
	require.ErrorIs(t, err, queue.ErrJobNotFound)
}

func run(t *testing.T, args []string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	var w io.Writer = buf
	opts := []kong.Option{
		kong.Exit(exitFatalFn(t)),
		kong.Bind(&w),
	}
	parser, err := kong.New(&app{}, opts...)
	if err != nil {
		return "", fmt.Errorf("kong.New: %w", err)
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return "", fmt.Errorf("kong.Parser.Parse: %w", err)
	}
	err = kctx.Run()
	if err != nil {
		return "", fmt.Errorf("kong.Context.Run: %w", err)
	}
	return buf.String(), nil
}

func exitFatalFn(t *testing.T) func(c int) {
	t.Helper()
	return func(_ int) {
		t.Helper()
		t.Fatalf("unexpected exit by arg parser")
	}
}

type testServer struct {
	*gearjob.Server
	address string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	server, err := gearjob.NewServer(gearjob.TLSFiles{}, queue.WithHostname("test"))
	require.NoError(t, err)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		if err := server.Serve(lis); err != nil {
			t.Errorf("cannot start test server %v", err)
		}
	}()
	return &testServer{Server: server, address: lis.Addr().String()}
}

func startWorker(t *testing.T, address string) {
	t.Helper()
	registry := job.NewRegistry()
	require.NoError(t, jobs.Register(registry))
	client, err := gearjob.NewClient(address, gearjob.TLSFiles{})
	require.NoError(t, err)
	w := gearjob.NewWorker(client, job.NewDispatcher(registry), registry.Names())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Work(ctx); err != nil {
			t.Errorf("worker: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		require.NoError(t, client.Close())
	})
}
