package openclaw

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/clawdesk/clawdesk/internal/apperr"
)

func TestGateway_StatusFallback(t *testing.T) {
	t.Parallel()

	t.Run("primary", func(t *testing.T) {
		t.Parallel()
		r := newFakeRunner(map[string]fakeReply{"gateway status": {stdout: " running \n"}})
		got, err := (&Gateway{Runner: r}).Status(context.Background(), nil)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != "running" || got.Fallback {
			t.Errorf("Status = %+v", got)
		}
		if r.opts[0].Timeout != StatusTimeout {
			t.Errorf("timeout = %v, want %v", r.opts[0].Timeout, StatusTimeout)
		}
	})

	t.Run("secondary", func(t *testing.T) {
		t.Parallel()
		r := newFakeRunner(map[string]fakeReply{
			"gateway status": {err: apperr.Timeout("slow")},
			"status --all":   {stdout: "all good"},
		})
		got, err := (&Gateway{Runner: r}).Status(context.Background(), nil)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != "all good" || !got.Fallback {
			t.Errorf("Status = %+v", got)
		}
	})

	t.Run("both fail", func(t *testing.T) {
		t.Parallel()
		r := newFakeRunner(map[string]fakeReply{
			"gateway status": {err: apperr.Timeout("slow")},
			"status --all":   {err: apperr.Process("down", nil, "", "down")},
		})
		_, err := (&Gateway{Runner: r}).Status(context.Background(), nil)
		if !errors.Is(err, apperr.ErrProcess) {
			t.Fatalf("got %v", err)
		}
	})
}

func TestGateway_Probe(t *testing.T) {
	t.Parallel()

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		r := newFakeRunner(map[string]fakeReply{"gateway probe --json": {stdout: `{"ok":true,"latencyMs":12}`}})
		got, err := (&Gateway{Runner: r}).Probe(context.Background(), nil)
		if err != nil {
			t.Fatal(err)
		}
		m, ok := got.Result.(map[string]any)
		if !got.Structured || !ok || m["ok"] != true {
			t.Errorf("Probe = %+v", got)
		}
	})

	t.Run("non-json falls back to text", func(t *testing.T) {
		t.Parallel()
		r := newFakeRunner(map[string]fakeReply{
			"gateway probe --json": {stdout: "unknown flag --json"},
			"gateway probe":        {stdout: "reachable\n"},
		})
		got, err := (&Gateway{Runner: r}).Probe(context.Background(), nil)
		if err != nil {
			t.Fatal(err)
		}
		if got.Structured || got.Raw != "reachable" {
			t.Errorf("Probe = %+v", got)
		}
	})
}

func TestGateway_Lifecycle(t *testing.T) {
	t.Parallel()

	r := newFakeRunner(map[string]fakeReply{"gateway restart": {stdout: "restarted\n"}})
	g := &Gateway{Runner: r}

	out, err := g.Lifecycle(context.Background(), "restart", nil)
	if err != nil || out != "restarted" {
		t.Fatalf("Lifecycle = %q, %v", out, err)
	}
	if _, err := g.Lifecycle(context.Background(), "uninstall", nil); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("invalid action: %v", err)
	}
	if len(r.Calls()) != 1 {
		t.Errorf("invalid action must not reach the CLI: %v", r.Calls())
	}
}

func TestGateway_DashboardLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply fakeReply
		want  DashboardResult
	}{
		{"url found", fakeReply{stdout: "Open http://127.0.0.1:18789/?token=x now"}, DashboardResult{URL: "http://127.0.0.1:18789/?token=x"}},
		{"no url", fakeReply{stdout: "dashboard disabled"}, DashboardResult{URL: "http://127.0.0.1:18789/", Fallback: true}},
		{"command fails", fakeReply{err: errors.New("boom")}, DashboardResult{URL: "http://127.0.0.1:18789/", Fallback: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newFakeRunner(map[string]fakeReply{"dashboard": tt.reply})
			got := (&Gateway{Runner: r}).DashboardLink(context.Background(), "http://127.0.0.1:18789/", nil)
			if *got != tt.want {
				t.Errorf("DashboardLink = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestGateway_LogsAndSplit(t *testing.T) {
	t.Parallel()

	r := newFakeRunner(map[string]fakeReply{"gateway logs --tail 50": {stdout: " a \n\n b\n"}})
	raw, err := (&Gateway{Runner: r}).Logs(context.Background(), 50, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := SplitLines(raw); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("SplitLines = %v", got)
	}
	if got := SplitLines(""); got == nil || len(got) != 0 {
		t.Errorf("SplitLines(\"\") = %#v, want empty non-nil", got)
	}
}

func TestGateway_RunCommand(t *testing.T) {
	t.Parallel()

	r := newFakeRunner(map[string]fakeReply{"security audit --deep": {stdout: "  \n"}})
	g := &Gateway{Runner: r}

	res, err := g.RunCommand(context.Background(), "openclaw.audit.deep", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary != "" || res.Binary != "openclaw" {
		t.Errorf("RunCommand = %+v", res)
	}
	if r.opts[0].Timeout != CommandTimeout {
		t.Errorf("timeout = %v", r.opts[0].Timeout)
	}
	if _, err := g.RunCommand(context.Background(), "rm -rf", nil); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("unknown command: %v", err)
	}
}

func TestDetectCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply fakeReply
		want  Capabilities
	}{
		{"usage and json", fakeReply{stdout: "Options:\n  --usage  show usage\n  --json  machine output"}, Capabilities{UsageFlag: true, UsageJSON: true}},
		{"usage only", fakeReply{stdout: "  --usage  show usage"}, Capabilities{UsageFlag: true}},
		{"probe failure", fakeReply{err: errors.New("not installed")}, Capabilities{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newFakeRunner(map[string]fakeReply{"status --help": tt.reply})
			if got := DetectCapabilities(context.Background(), r, nil); got != tt.want {
				t.Errorf("DetectCapabilities = %+v, want %+v", got, tt.want)
			}
			if r.opts[0].Timeout != ProbeTimeout {
				t.Errorf("timeout = %v", r.opts[0].Timeout)
			}
		})
	}
}
