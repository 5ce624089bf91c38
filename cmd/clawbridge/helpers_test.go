package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cexll/clawbridge/pkg/config"
	"github.com/cexll/clawbridge/pkg/runner"
)

type stubRunner struct {
	mu      sync.Mutex
	result  runner.Result
	err     error
	invoked bool
	lastReq runner.Request
}

func (s *stubRunner) Invoke(_ context.Context, req runner.Request) (runner.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoked = true
	s.lastReq = req
	if s.err != nil {
		return runner.Result{}, s.err
	}
	return s.result, nil
}

func (s *stubRunner) last() runner.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReq
}

func useRunnerFactory(t *testing.T, stub runner.Runner) {
	t.Helper()
	original := runnerFactory
	runnerFactory = func(*config.Config, *slog.Logger) (runner.Runner, error) { return stub, nil }
	t.Cleanup(func() { runnerFactory = original })
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitForAddress(t *testing.T, buf *syncBuffer, timeout time.Duration) string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	const marker = "clawbridge serve listening on http://"
	for time.Now().Before(deadline) {
		output := buf.String()
		idx := strings.LastIndex(output, marker)
		if idx >= 0 {
			start := idx + len(marker)
			end := strings.Index(output[start:], "\n")
			if end < 0 {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return strings.TrimSpace(output[start : start+end])
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server address not reported in time")
	return ""
}
