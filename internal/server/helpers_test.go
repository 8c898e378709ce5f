package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/clawdesk/clawdesk/internal/apperr"
	"github.com/clawdesk/clawdesk/internal/config"
	"github.com/clawdesk/clawdesk/internal/events"
	"github.com/clawdesk/clawdesk/internal/openclaw"
	"github.com/clawdesk/clawdesk/internal/profile"
	"github.com/clawdesk/clawdesk/internal/security"
	"github.com/clawdesk/clawdesk/internal/usage"
)

const testHost = "127.0.0.1:4178"

// fakeRunner answers CLI invocations from a table keyed by the joined argv.
// Unknown commands fail like a non-zero exit.
type fakeRunner struct {
	mu      sync.Mutex
	replies map[string]string
	calls   []string
}

func newFakeRunner(replies map[string]string) *fakeRunner {
	if replies == nil {
		replies = map[string]string{}
	}
	return &fakeRunner{replies: replies}
}

func (f *fakeRunner) Run(_ context.Context, args []string, _ openclaw.Options) (*openclaw.Result, error) {
	key := strings.Join(args, " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	out, ok := f.replies[key]
	if !ok {
		return nil, apperr.Process("openclaw "+key+" failed", nil, "", "unknown command")
	}
	return &openclaw.Result{Stdout: out, Binary: "openclaw"}, nil
}

func (f *fakeRunner) set(key, out string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[key] = out
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type harness struct {
	srv    *Server
	runner *fakeRunner
	store  *config.Store
	secret *security.SecretStore
	events *events.Logger
	token  string
	dir    string
}

type harnessOption func(*Deps)

func newHarness(t *testing.T, replies map[string]string, opts ...harnessOption) *harness {
	t.Helper()
	dir := t.TempDir()

	redactor := security.NewRedactor()
	secret := security.NewSecretStore(filepath.Join(dir, "secret"), redactor.AddLiteral)
	token, err := secret.Ensure()
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	store := config.NewStore(filepath.Join(dir, "config.json"), dir)
	if _, err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	history, err := usage.OpenHistory(filepath.Join(dir, "usage.db"))
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	t.Cleanup(func() { _ = history.Close() })

	runner := newFakeRunner(replies)
	evs := events.NewLogger(filepath.Join(dir, "events.jsonl"), redactor)
	d := Deps{
		Store:    store,
		Secret:   secret,
		Runner:   runner,
		OpenClaw: openclaw.NewStore(filepath.Join(dir, "openclaw.json"), filepath.Join(dir, "skills.json")),
		History:  history,
		Events:   evs,
		Redactor: redactor,
		Env:      func() profile.Env { return profile.Env{} },
		Version:  "test",
	}
	for _, o := range opts {
		o(&d)
	}
	return &harness{
		srv:    New(d),
		runner: runner,
		store:  store,
		secret: secret,
		events: evs,
		token:  token,
		dir:    dir,
	}
}

// do sends an authenticated request through the full middleware chain.
func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return h.doWith(t, method, path, body, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+h.token)
	})
}

func (h *harness) doWith(t *testing.T, method, path string, body any, edit func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, rd)
	req.Host = testHost
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if edit != nil {
		edit(req)
	}
	rr := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func (h *harness) update(t *testing.T, fn func(*config.Config)) {
	t.Helper()
	if _, err := h.store.Update(func(c *config.Config) error {
		fn(c)
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func (h *harness) eventTypes(t *testing.T) []string {
	t.Helper()
	recs, err := h.events.Tail(events.MaxTail)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Type)
	}
	return out
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, want, rr.Body.String())
	}
}

func removeAction(actions []string, action string) []string {
	out := actions[:0:0]
	for _, a := range actions {
		if a != action {
			out = append(out, a)
		}
	}
	return out
}
