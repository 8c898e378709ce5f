package security

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clawdesk/clawdesk/internal/config"
)

func TestAuthorizer_IsAllowed(t *testing.T) {
	t.Parallel()

	allow := []string{"usage.snapshot", "support.bundle", "made.up"}
	a := &Authorizer{Load: func() (*config.Config, error) {
		cfg := config.Default("/home/u")
		cfg.Security.AllowActions = allow
		return cfg, nil
	}}

	tests := []struct {
		action string
		want   bool
	}{
		{"usage.snapshot", true},
		{"gateway.status", false}, // implemented, not allowed
		{"made.up", false},        // allowed, not implemented
		{"support.bundle", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := a.IsAllowed(tt.action); got != tt.want {
			t.Errorf("IsAllowed(%q) = %v, want %v", tt.action, got, tt.want)
		}
	}
}

func TestAuthorizer_ReloadsEveryCall(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	store := config.NewStore(path, "/home/u")
	a := NewAuthorizer(store)

	if !a.IsAllowed("gateway.status") {
		t.Fatal("default config should allow gateway.status")
	}

	if _, err := store.Update(func(c *config.Config) error {
		c.Security.AllowActions = []string{"usage.read"}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if a.IsAllowed("gateway.status") {
		t.Error("policy edit not picked up")
	}
	if !a.IsAllowed("usage.read") {
		t.Error("usage.read should now be allowed")
	}
}

func TestAuthorizer_LoadFailureDenies(t *testing.T) {
	t.Parallel()

	a := &Authorizer{Load: func() (*config.Config, error) { return nil, errors.New("boom") }}
	if a.IsAllowed("gateway.status") {
		t.Error("load failure must deny")
	}
	var nilAuth *Authorizer
	if nilAuth.IsAllowed("gateway.status") {
		t.Error("nil authorizer must deny")
	}
}

func TestImplementedActions_CoversDefaults(t *testing.T) {
	t.Parallel()

	for _, a := range config.DefaultAllowActions() {
		if a == "support.bundle" {
			continue
		}
		if !IsImplemented(a) {
			t.Errorf("default action %q has no handler", a)
		}
	}
	if !IsImplemented("usage.snapshot") {
		t.Error("usage.snapshot must be implemented")
	}
}

func TestSecretStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "secret")
	var seen []string
	s := NewSecretStore(path, func(v string) { seen = append(seen, v) })

	first, err := s.Ensure()
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 64 {
		t.Errorf("secret length = %d, want 64 hex chars", len(first))
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}

	// A second store reads the persisted value.
	again, err := NewSecretStore(path, nil).Ensure()
	if err != nil || again != first {
		t.Fatalf("Ensure() = %q, %v; want %q", again, err, first)
	}

	rotated, err := s.Rotate()
	if err != nil {
		t.Fatal(err)
	}
	if rotated == first {
		t.Fatal("rotation produced the same secret")
	}
	if s.Verify(first) {
		t.Error("old secret must stop verifying immediately")
	}
	if !s.Verify(rotated) {
		t.Error("new secret must verify")
	}
	raw, _ := os.ReadFile(path)
	if strings.TrimSpace(string(raw)) != rotated {
		t.Error("rotated secret not persisted")
	}
	if len(seen) != 2 || seen[1] != rotated {
		t.Errorf("onChange calls = %v", seen)
	}
}

func TestSecretStore_VerifyEmpty(t *testing.T) {
	t.Parallel()

	s := NewSecretStore(filepath.Join(t.TempDir(), "secret"), nil)
	if s.Verify("") {
		t.Error("empty candidate must not verify against an empty store")
	}
}

func TestAllowedOrigins(t *testing.T) {
	t.Parallel()

	cfg := config.Default("/home/u")
	cfg.Security.AllowedOrigins = []string{"https://dash.example/ ", ""}
	set := AllowedOrigins(cfg)

	for _, o := range []string{"http://127.0.0.1:4178", "http://localhost:4178", "https://dash.example"} {
		if !set[o] {
			t.Errorf("origin %q should be allowed", o)
		}
	}
	if set["http://evil.example"] {
		t.Error("foreign origin allowed")
	}
}

func TestIsLoopbackRequestHost(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"127.0.0.1:4178":  true,
		"localhost:4178":  true,
		"localhost":       true,
		"[::1]:4178":      true,
		"evil.test:4178":  false,
		"10.0.0.5":        false,
		"":                false,
		"127.0.0.1.nip.io": false,
	}
	for host, want := range tests {
		if got := IsLoopbackRequestHost(host); got != want {
			t.Errorf("IsLoopbackRequestHost(%q) = %v, want %v", host, got, want)
		}
	}
}
