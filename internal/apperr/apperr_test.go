package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"config", Config("bad host", nil), http.StatusInternalServerError},
		{"policy", Policy("action not permitted"), http.StatusForbidden},
		{"timeout", Timeout("openclaw timed out"), http.StatusServiceUnavailable},
		{"process", Process("exit 1", nil, "", "boom"), http.StatusServiceUnavailable},
		{"not found", NotFound("profile missing"), http.StatusNotFound},
		{"validation", Validation("name required"), http.StatusBadRequest},
		{"plain", errors.New("plain"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("outer: %w", NotFound("agent")), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Status(tt.err); got != tt.want {
				t.Errorf("Status() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIs_MatchesKindSentinel(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("resolve: %w", Policy("remote profiles disabled"))
	if !errors.Is(err, ErrPolicy) {
		t.Fatal("expected errors.Is to match ErrPolicy")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("policy error must not match ErrNotFound")
	}
}

func TestProcess_CarriesOutput(t *testing.T) {
	t.Parallel()

	err := Process("openclaw exited", errors.New("exit status 2"), "partial", "denied")

	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("expected *Error")
	}
	if e.Stdout != "partial" || e.Stderr != "denied" {
		t.Errorf("output = %q/%q", e.Stdout, e.Stderr)
	}
	if got := err.Error(); got != "openclaw exited: exit status 2" {
		t.Errorf("Error() = %q", got)
	}
}
