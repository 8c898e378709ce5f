package server

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clawdesk/clawdesk/internal/apperr"
	"github.com/clawdesk/clawdesk/internal/config"
	"github.com/clawdesk/clawdesk/internal/events"
)

// ProfileView is one entry of GET /api/profiles. Credentials are reported
// by presence only.
type ProfileView struct {
	Name         string `json:"name"`
	Bind         string `json:"bind"`
	Port         int    `json:"port"`
	TokenPresent bool   `json:"token_present"`
	Active       bool   `json:"active"`
	Remote       bool   `json:"remote"`
}

func (s *Server) handleListProfiles() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := s.store.Load()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out := make([]ProfileView, 0, len(cfg.Profiles))
		for _, p := range cfg.Profiles {
			out = append(out, ProfileView{
				Name:         p.Name,
				Bind:         p.Bind,
				Port:         p.Port,
				TokenPresent: p.Auth.Token != "" || p.TokenPath != "",
				Active:       p.Name == cfg.ActiveProfile,
				Remote:       !config.IsLoopbackHost(p.Bind),
			})
		}
		slices.SortFunc(out, func(a, b ProfileView) int { return strings.Compare(a.Name, b.Name) })
		writeJSON(w, http.StatusOK, map[string]any{"activeProfile": cfg.ActiveProfile, "profiles": out})
	}
}

type nameRequest struct {
	Name string `json:"name" validate:"required"`
}

func (s *Server) handleActivateProfile() http.HandlerFunc {
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
		_, err := s.store.Update(func(cfg *config.Config) error {
			if _, ok := cfg.Profiles[req.Name]; !ok {
				return apperr.NotFound("profile " + req.Name + " not found")
			}
			cfg.ActiveProfile = req.Name
			return nil
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.record(events.TypeProfileActive, map[string]any{"name": req.Name})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "activeProfile": req.Name})
	}
}

func (s *Server) handleSaveProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in config.ProfileInput
		if err := decode(w, r, &in); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := config.Check(in); err != nil {
			s.fail(w, r, err)
			return
		}
		var saved config.Profile
		_, err := s.store.Update(func(cfg *config.Config) error {
			saved = in.Apply(cfg)
			return nil
		})
		if err != nil {
			// Save rejects remote binds the policy forbids.
			if apperr.KindOf(err) == apperr.KindConfig {
				err = apperr.Policy(err.Error())
			}
			s.fail(w, r, err)
			return
		}
		remote := !config.IsLoopbackHost(saved.Bind)
		s.record(events.TypeProfileSaved, map[string]any{"name": saved.Name, "remote": remote})
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"profile": profileSummary{Name: saved.Name, Bind: saved.Bind, Port: saved.Port},
		})
	}
}

func (s *Server) handleDeleteProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if name == config.DefaultProfile {
			s.fail(w, r, apperr.Validation("the local profile cannot be deleted"))
			return
		}
		_, err := s.store.Update(func(cfg *config.Config) error {
			if _, ok := cfg.Profiles[name]; !ok {
				return apperr.NotFound("profile " + name + " not found")
			}
			delete(cfg.Profiles, name)
			if cfg.ActiveProfile == name {
				cfg.ActiveProfile = config.DefaultProfile
			}
			return nil
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.record(events.TypeProfileDeleted, map[string]any{"name": name})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}
