package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/clawdesk/clawdesk/internal/apperr"
	"github.com/clawdesk/clawdesk/internal/config"
	"github.com/clawdesk/clawdesk/internal/events"
	"github.com/clawdesk/clawdesk/internal/openclaw"
	"github.com/clawdesk/clawdesk/internal/security"
)

func (s *Server) handleListAgents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.oc.ListAgents()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func (s *Server) handleCreateAgent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in openclaw.AgentInput
		if err := decode(w, r, &in); err != nil {
			s.fail(w, r, err)
			return
		}
		ag, err := s.oc.CreateAgent(in)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.record(events.TypeAgentChanged, map[string]any{"op": "create", "name": ag.Name})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "agent": ag})
	}
}

func (s *Server) handleDefaultAgent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req nameRequest
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := config.Check(req); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := s.oc.SetDefaultAgent(req.Name); err != nil {
			s.fail(w, r, err)
			return
		}
		s.record(events.TypeAgentChanged, map[string]any{"op": "default", "name": req.Name})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "defaultAgent": req.Name})
	}
}

type renameRequest struct {
	Name    string `json:"name" validate:"required"`
	NewName string `json:"newName" validate:"required"`
}

func (s *Server) handleRenameAgent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req renameRequest
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := config.Check(req); err != nil {
			s.fail(w, r, err)
			return
		}
		ag, err := s.oc.RenameAgent(req.Name, req.NewName)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.record(events.TypeAgentChanged, map[string]any{"op": "rename", "name": req.Name, "newName": ag.Name})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "agent": ag})
	}
}

// importPayload accepts either an exported document ({"agent": {...}}) or a
// bare agent definition.
func importPayload(body []byte) (openclaw.AgentInput, error) {
	var in openclaw.AgentInput
	if err := security.CheckJSON(body, maxBodyBytes, security.MaxJSONDepth); err != nil {
		return in, apperr.Validation(err.Error())
	}
	raw := body
	if wrapped := gjson.GetBytes(body, "agent"); wrapped.IsObject() {
		raw = []byte(wrapped.Raw)
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, apperr.Validation("invalid agent definition")
	}
	return in, nil
}

func (s *Server) handleImportAgent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		in, err := importPayload(body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ag, err := s.oc.ImportAgent(in)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.record(events.TypeAgentChanged, map[string]any{"op": "import", "name": ag.Name})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "agent": ag})
	}
}

func (s *Server) handleExportAgent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		ag, err := s.oc.ExportAgent(name)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="agent-`+ag.Name+`.json"`)
		writeJSON(w, http.StatusOK, map[string]any{
			"exportedAt": s.now().UTC().Format(time.RFC3339),
			"agent":      ag,
		})
	}
}

func (s *Server) handleDeleteAgent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := s.oc.DeleteAgent(name); err != nil {
			s.fail(w, r, err)
			return
		}
		s.record(events.TypeAgentChanged, map[string]any{"op": "delete", "name": name})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}
