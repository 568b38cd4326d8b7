package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/roostrcapital/xposter/internal/api"
)

func TestServeMCP_ClientDisconnectStopsServer(t *testing.T) {
	a := newTestApp(t, testQueue)
	stdio := server.NewStdioServer(api.NewMCPServer(api.MCPDeps{Queue: a.queue, Runs: a.journal}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stopped := make(chan struct{})
	var out bytes.Buffer

	go serveMCP(ctx, stdio, strings.NewReader(""), &out, func() { close(stopped) })

	select {
	case <-stopped:
	case <-ctx.Done():
		t.Fatal("server not stopped after stdin closed")
	}
}

func TestServeMCP_CancelledContextDoesNotStop(t *testing.T) {
	a := newTestApp(t, testQueue)
	stdio := server.NewStdioServer(api.NewMCPServer(api.MCPDeps{Queue: a.queue, Runs: a.journal}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	var out bytes.Buffer

	serveMCP(ctx, stdio, strings.NewReader(""), &out, func() { called = true })
	if called {
		t.Error("stop called although the server was already shutting down")
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	path := pidFilePath(t.TempDir())
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil || pid <= 0 {
		t.Fatalf("readPIDFile = %d, %v", pid, err)
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("PID file still readable after remove")
	}
}
