package server

import (
	"net/http"

	"github.com/clawdesk/clawdesk/internal/config"
	"github.com/clawdesk/clawdesk/internal/events"
)

func (s *Server) handleListSkills() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.oc.ListSkills()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func (s *Server) handleRefreshSkills() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.oc.RefreshSkills()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

type toggleRequest struct {
	Name    string `json:"name" validate:"required"`
	Enabled *bool  `json:"enabled" validate:"required"`
}

func (s *Server) handleToggleSkill() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req toggleRequest
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := config.Check(req); err != nil {
			s.fail(w, r, err)
			return
		}
		sk, err := s.oc.ToggleSkill(req.Name, *req.Enabled)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.record(events.TypeSkillToggled, map[string]any{"name": req.Name, "enabled": *req.Enabled})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "skill": sk})
	}
}
