package server

import (
	"net/http"

	"github.com/clawdesk/clawdesk/internal/events"
)

// handleRotateSecret replaces the API secret. The caller's current token
// stops working once the response is written; the new one is returned so
// the UI can continue.
func (s *Server) handleRotateSecret() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := s.secret.Rotate()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.record(events.TypeSecretRotated, map[string]any{})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "token": token})
	}
}
