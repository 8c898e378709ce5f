package openclaw

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// fakeRunner answers Run from a table keyed by the joined argv.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	opts    []Options
	replies map[string]fakeReply
}

type fakeReply struct {
	stdout string
	err    error
}

func newFakeRunner(replies map[string]fakeReply) *fakeRunner {
	return &fakeRunner{replies: replies}
}

func (f *fakeRunner) Run(_ context.Context, args []string, opts Options) (*Result, error) {
	key := strings.Join(args, " ")
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.opts = append(f.opts, opts)
	reply, ok := f.replies[key]
	f.mu.Unlock()
	if !ok {
		return nil, errUnexpected(key)
	}
	if reply.err != nil {
		return nil, reply.err
	}
	return &Result{Stdout: reply.stdout, Binary: "openclaw"}, nil
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type errUnexpected string

func (e errUnexpected) Error() string { return "unexpected command: " + string(e) }

// writeScript creates an executable shell script and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}
