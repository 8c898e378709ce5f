package server

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clawdesk/clawdesk/internal/apperr"
	"github.com/clawdesk/clawdesk/internal/events"
	"github.com/clawdesk/clawdesk/internal/openclaw"
)

// Bounds of GET /api/logs.
const (
	defaultLogTail = 200
	maxLogTail     = 1000
)

func (s *Server) handleGatewayStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prof, err := s.resolve(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		st, err := s.gateway.Status(r.Context(), prof.Env())
		if err != nil {
			s.fail(w, r, err, prof.Secrets()...)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   s.redactor.RedactText(st.Status, s.secrets(prof)...),
			"fallback": st.Fallback,
			"profile":  prof.Name,
		})
	}
}

func (s *Server) handleGatewayProbe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prof, err := s.resolve(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		res, err := s.gateway.Probe(r.Context(), prof.Env())
		if err != nil {
			s.fail(w, r, err, prof.Secrets()...)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"result":  s.redactor.RedactObject(res, s.secrets(prof)...),
			"profile": prof.Name,
		})
	}
}

func (s *Server) handleControlURL() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prof, err := s.resolve(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.gateway.DashboardLink(r.Context(), prof.URL+"/", prof.Env()))
	}
}

func (s *Server) handleGatewayLifecycle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action := chi.URLParam(r, "action")
		if !slices.Contains(openclaw.LifecycleActions, action) {
			s.fail(w, r, apperr.Validation("invalid gateway action"))
			return
		}
		if !s.allowed(w, "gateway."+action) {
			return
		}
		prof, err := s.resolve(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out, err := s.gateway.Lifecycle(r.Context(), action, prof.Env())
		if err != nil {
			s.fail(w, r, err, prof.Secrets()...)
			return
		}
		s.record(events.TypeGatewayAction, map[string]any{"profile": prof.Name, "action": action})
		writeJSON(w, http.StatusOK, map[string]any{
			"result":  s.redactor.RedactText(out, s.secrets(prof)...),
			"profile": prof.Name,
		})
	}
}

func (s *Server) handleLogs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tail := defaultLogTail
		if n, err := strconv.Atoi(r.URL.Query().Get("tail")); err == nil {
			tail = min(max(n, 1), maxLogTail)
		}
		prof, err := s.resolve(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out, err := s.gateway.Logs(r.Context(), tail, prof.Env())
		if err != nil {
			s.fail(w, r, err, prof.Secrets()...)
			return
		}
		redacted := s.redactor.RedactText(out, s.secrets(prof)...)
		writeJSON(w, http.StatusOK, map[string]any{
			"lines": openclaw.SplitLines(redacted),
			"raw":   strings.TrimSpace(redacted),
		})
	}
}

type auditRequest struct {
	Deep bool `json:"deep"`
}

func (s *Server) handleDoctor() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.runCommand(w, r, "openclaw.doctor")
	}
}

func (s *Server) handleAudit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auditRequest
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		action := "openclaw.audit"
		if req.Deep {
			action = "openclaw.audit.deep"
		}
		if !s.allowed(w, action) {
			return
		}
		s.runCommand(w, r, action)
	}
}

// runCommand runs a diagnostic action with the active profile's
// environment when it resolves, and without it otherwise.
func (s *Server) runCommand(w http.ResponseWriter, r *http.Request, action string) {
	var env map[string]string
	var secrets []string
	if prof, err := s.resolve(r); err == nil {
		env, secrets = prof.Env(), prof.Secrets()
	}
	res, err := s.gateway.RunCommand(r.Context(), action, env)
	if err != nil {
		s.fail(w, r, err, secrets...)
		return
	}
	s.record(events.TypeOpenClawCommand, map[string]any{"action": action})
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"action":  action,
		"binary":  res.Binary,
		"summary": s.redactor.RedactText(res.Summary, append(secrets, s.secret.Current())...),
	})
}
