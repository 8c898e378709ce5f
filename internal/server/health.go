package server

import (
	_ "embed"
	"net/http"
	"strings"
	"time"

	"github.com/clawdesk/clawdesk/internal/openclaw"
)

//go:embed web/index.html
var indexHTML string

// tokenPlaceholder is replaced with the API secret when the shell is served.
const tokenPlaceholder = "__CLAWDESK_TOKEN__"

// handleIndex serves the UI shell with the current secret injected.
func (s *Server) handleIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		page := strings.Replace(indexHTML, tokenPlaceholder, s.secret.Current(), 1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte(page))
	}
}

// HealthResponse is the JSON response for GET /api/health.
type HealthResponse struct {
	Status  string    `json:"status"`
	Time    time.Time `json:"time"`
	Version string    `json:"version"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Time: s.now().UTC(), Version: s.version})
	}
}

// binaryReporter is implemented by runners that know which executable
// they use.
type binaryReporter interface {
	BinaryInUse() openclaw.Binary
}

func (s *Server) handleVersion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := s.gateway.Version(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		resp := map[string]any{"version": v}
		if br, ok := s.runner.(binaryReporter); ok {
			resp["binary"] = br.BinaryInUse()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
