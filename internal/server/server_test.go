package server

import (
	"net/http"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/clawdesk/clawdesk/internal/config"
	"github.com/clawdesk/clawdesk/internal/security"
)

func TestServer_AuthRequired(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	tests := []struct {
		name string
		edit func(*http.Request)
		want int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+h.token) }, http.StatusOK},
		{"query", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("token", h.token)
			r.URL.RawQuery = q.Encode()
		}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := h.doWith(t, http.MethodGet, "/api/health", nil, tt.edit)
			expectStatus(t, rr, tt.want)
			if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
			}
		})
	}
}

func TestServer_HostGuard(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	for _, host := range []string{"evil.example", "10.0.0.5:4178", "localhost.evil.example:4178"} {
		rr := h.doWith(t, http.MethodGet, "/api/health", nil, func(r *http.Request) {
			r.Host = host
			r.Header.Set("Authorization", "Bearer "+h.token)
		})
		if rr.Code != http.StatusForbidden {
			t.Errorf("host %q: status = %d, want 403", host, rr.Code)
		}
	}
	rr := h.doWith(t, http.MethodGet, "/api/health", nil, func(r *http.Request) {
		r.Host = "localhost:4178"
		r.Header.Set("Authorization", "Bearer "+h.token)
	})
	expectStatus(t, rr, http.StatusOK)
}

func TestServer_CORS(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	rr := h.doWith(t, http.MethodGet, "/api/health", nil, func(r *http.Request) {
		r.Header.Set("Origin", "http://evil.example")
		r.Header.Set("Authorization", "Bearer "+h.token)
	})
	expectStatus(t, rr, http.StatusForbidden)

	rr = h.doWith(t, http.MethodOptions, "/api/health", nil, func(r *http.Request) {
		r.Header.Set("Origin", "http://127.0.0.1:4178")
	})
	expectStatus(t, rr, http.StatusNoContent)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://127.0.0.1:4178" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	// Configured origins apply to the next request.
	h.update(t, func(c *config.Config) {
		c.Security.AllowedOrigins = []string{"http://evil.example"}
	})
	rr = h.doWith(t, http.MethodGet, "/api/health", nil, func(r *http.Request) {
		r.Header.Set("Origin", "http://evil.example")
		r.Header.Set("Authorization", "Bearer "+h.token)
	})
	expectStatus(t, rr, http.StatusOK)
}

func TestServer_RateLimit(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil, func(d *Deps) {
		d.Limiter = security.NewRateLimiter(2, time.Minute)
	})

	for i := range 2 {
		rr := h.do(t, http.MethodGet, "/api/health", nil)
		expectStatus(t, rr, http.StatusOK)
		if got, want := rr.Header().Get("X-RateLimit-Remaining"), []string{"1", "0"}[i]; got != want {
			t.Errorf("request %d: X-RateLimit-Remaining = %q, want %q", i, got, want)
		}
	}
	rr := h.do(t, http.MethodGet, "/api/health", nil)
	expectStatus(t, rr, http.StatusTooManyRequests)
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}
}

func TestServer_PolicyChangeAppliesWithoutRestart(t *testing.T) {
	t.Parallel()
	h := newHarness(t, map[string]string{"gateway status": "running"})

	rr := h.do(t, http.MethodGet, "/api/gateway/status", nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decodeBody(t, rr)["status"]; got != "running" {
		t.Errorf("status = %v, want running", got)
	}

	h.update(t, func(c *config.Config) {
		c.Security.AllowActions = removeAction(c.Security.AllowActions, "gateway.status")
	})
	rr = h.do(t, http.MethodGet, "/api/gateway/status", nil)
	expectStatus(t, rr, http.StatusForbidden)
	if n := len(h.runner.Calls()); n != 1 {
		t.Errorf("runner calls = %d, want 1", n)
	}
}

func TestServer_GatewayStatusFallbackAndRedaction(t *testing.T) {
	t.Parallel()
	const gwToken = "gw-inline-token-abcdef123456"
	h := newHarness(t, map[string]string{"status --all": "gateway up, auth " + gwToken})
	h.update(t, func(c *config.Config) {
		p := c.Profiles[config.DefaultProfile]
		p.Auth.Token = gwToken
		c.Profiles[config.DefaultProfile] = p
	})

	rr := h.do(t, http.MethodGet, "/api/gateway/status", nil)
	expectStatus(t, rr, http.StatusOK)
	body := decodeBody(t, rr)
	if body["fallback"] != true {
		t.Errorf("fallback = %v, want true", body["fallback"])
	}
	if strings.Contains(rr.Body.String(), gwToken) {
		t.Errorf("response leaks gateway token: %s", rr.Body.String())
	}
}

func TestServer_GatewayLifecycle(t *testing.T) {
	t.Parallel()
	h := newHarness(t, map[string]string{"gateway restart": "restarted"})

	rr := h.do(t, http.MethodPost, "/api/gateway/explode", nil)
	expectStatus(t, rr, http.StatusBadRequest)

	rr = h.do(t, http.MethodPost, "/api/gateway/restart", nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decodeBody(t, rr)["result"]; got != "restarted" {
		t.Errorf("result = %v", got)
	}
	if calls := h.runner.Calls(); !slices.Equal(calls, []string{"gateway restart"}) {
		t.Errorf("calls = %v", calls)
	}
	if types := h.eventTypes(t); !slices.Contains(types, "gateway.action") {
		t.Errorf("events = %v, want gateway.action", types)
	}

	h.update(t, func(c *config.Config) {
		c.Security.AllowActions = removeAction(c.Security.AllowActions, "gateway.restart")
	})
	rr = h.do(t, http.MethodPost, "/api/gateway/restart", nil)
	expectStatus(t, rr, http.StatusForbidden)
}

func TestServer_ProcessFailureReportsDetail(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	rr := h.do(t, http.MethodGet, "/api/gateway/probe", nil)
	expectStatus(t, rr, http.StatusServiceUnavailable)
	if got := decodeBody(t, rr)["detail"]; got != "unknown command" {
		t.Errorf("detail = %v, want stderr", got)
	}
}

func TestServer_NotFoundIsJSON(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	rr := h.do(t, http.MethodGet, "/api/nope", nil)
	expectStatus(t, rr, http.StatusNotFound)
	if got := decodeBody(t, rr)["error"]; got != "not found" {
		t.Errorf("error = %v", got)
	}
}

func TestServer_RotateSecret(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	old := h.token

	rr := h.do(t, http.MethodPost, "/api/secret/rotate", nil)
	expectStatus(t, rr, http.StatusOK)
	next, _ := decodeBody(t, rr)["token"].(string)
	if next == "" || next == old {
		t.Fatalf("token = %q, want a fresh value", next)
	}

	rr = h.do(t, http.MethodGet, "/api/health", nil)
	expectStatus(t, rr, http.StatusUnauthorized)

	h.token = next
	rr = h.do(t, http.MethodGet, "/api/health", nil)
	expectStatus(t, rr, http.StatusOK)
}

func TestServer_IndexInjectsSecret(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	rr := h.doWith(t, http.MethodGet, "/", nil, nil)
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), h.token) {
		t.Error("index does not carry the API secret")
	}
	if strings.Contains(rr.Body.String(), tokenPlaceholder) {
		t.Error("placeholder left in page")
	}
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	h.do(t, http.MethodGet, "/api/health", nil)
	rr := h.do(t, http.MethodGet, "/metrics", nil)
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "/api/health") {
		t.Errorf("metrics missing route label:\n%s", rr.Body.String())
	}
}
