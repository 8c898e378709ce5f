package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/clawdesk/clawdesk/internal/apperr"
	"github.com/clawdesk/clawdesk/internal/config"
	"github.com/clawdesk/clawdesk/internal/events"
)

// Config targets accepted by the config endpoints.
const (
	targetClawdesk = "clawdesk"
	targetOpenClaw = "openclaw"
)

type profileSummary struct {
	Name string `json:"name"`
	Bind string `json:"bind"`
	Port int    `json:"port"`
}

type fileView struct {
	Path        string           `json:"path"`
	Exists      bool             `json:"exists"`
	Permissions *config.FileMode `json:"permissions"`
	Config      any              `json:"config"`
	Warnings    []string         `json:"warnings,omitempty"`
	Backups     []string         `json:"backups"`
}

// openclawWarnings flags out-of-range ports in openclaw.json. They are
// reported, not enforced: the file belongs to the CLI.
func openclawWarnings(data map[string]any) []string {
	warnings := []string{}
	for _, section := range []string{"app", "gateway"} {
		m, ok := data[section].(map[string]any)
		if !ok || m["port"] == nil {
			continue
		}
		if _, ok := config.NormalizePort(m["port"]); !ok {
			warnings = append(warnings, fmt.Sprintf("%s.port must be between %d and %d", section, config.MinPort, config.MaxPort))
		}
	}
	return warnings
}

func (s *Server) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := s.store.Load()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		oc, err := s.oc.ReadConfig()
		if err != nil {
			s.fail(w, r, err)
			return
		}

		secrets := s.configSecrets(cfg)
		profiles := make([]profileSummary, 0, len(cfg.Profiles))
		for _, p := range cfg.Profiles {
			profiles = append(profiles, profileSummary{Name: p.Name, Bind: p.Bind, Port: p.Port})
		}
		slices.SortFunc(profiles, func(a, b profileSummary) int { return strings.Compare(a.Name, b.Name) })

		ocView := fileView{
			Path:        oc.Path,
			Exists:      oc.Exists,
			Permissions: config.Permissions(oc.Path),
			Warnings:    []string{},
			Backups:     config.ListBackups(oc.Path),
		}
		if oc.Data != nil {
			ocView.Config = s.redactor.RedactObject(oc.Data, secrets...)
			ocView.Warnings = openclawWarnings(oc.Data)
		}
		if oc.Warning != "" {
			ocView.Warnings = append(ocView.Warnings, oc.Warning)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"version":       s.version,
			"app":           cfg.App,
			"activeProfile": cfg.ActiveProfile,
			"profiles":      profiles,
			"security":      cfg.Security,
			"clawdesk": fileView{
				Path:        s.store.Path,
				Exists:      true,
				Permissions: config.Permissions(s.store.Path),
				Config:      s.redactor.RedactObject(cfg, secrets...),
				Backups:     config.ListBackups(s.store.Path),
			},
			"openclaw": ocView,
		})
	}
}

type putConfigRequest struct {
	Target string          `json:"target" validate:"required,oneof=clawdesk openclaw"`
	Data   json.RawMessage `json:"data" validate:"required"`
}

func (s *Server) handlePutConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req putConfigRequest
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := config.Check(req); err != nil {
			s.fail(w, r, err)
			return
		}

		switch req.Target {
		case targetClawdesk:
			cfg, err := config.Parse(req.Data, s.store.Home)
			if err != nil {
				// A rejected document is the caller's fault, not ours.
				s.fail(w, r, apperr.Validation(err.Error()))
				return
			}
			backup, err := config.BackupFile(s.store.Path, s.now())
			if err != nil {
				s.fail(w, r, err)
				return
			}
			if err := s.store.Save(cfg); err != nil {
				s.fail(w, r, err)
				return
			}
			s.record(events.TypeConfigChanged, map[string]any{"target": req.Target, "source": "api"})
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "target": req.Target, "path": s.store.Path, "backup": backup})

		case targetOpenClaw:
			var data map[string]any
			if err := json.Unmarshal(req.Data, &data); err != nil || data == nil {
				s.fail(w, r, apperr.Validation("data must be a JSON object"))
				return
			}
			if err := s.oc.WriteConfig(data); err != nil {
				s.fail(w, r, err)
				return
			}
			s.record(events.TypeConfigChanged, map[string]any{"target": req.Target, "source": "api"})
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "target": req.Target, "warnings": openclawWarnings(data)})
		}
	}
}

func (s *Server) targetPath(target string) string {
	if target == targetOpenClaw {
		return s.oc.ConfigPath
	}
	return s.store.Path
}

func (s *Server) handleConfigBackups() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := s.targetPath(r.URL.Query().Get("target"))
		writeJSON(w, http.StatusOK, map[string]any{"backups": config.ListBackups(path)})
	}
}

type restoreRequest struct {
	Target string `json:"target" validate:"omitempty,oneof=clawdesk openclaw"`
	Backup string `json:"backup" validate:"required"`
}

func (s *Server) handleConfigRestore() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req restoreRequest
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := config.Check(req); err != nil {
			s.fail(w, r, err)
			return
		}
		target := req.Target
		if target == "" {
			target = targetClawdesk
		}
		if err := config.RestoreBackup(s.targetPath(target), req.Backup); err != nil {
			s.fail(w, r, err)
			return
		}
		s.record(events.TypeConfigRestored, map[string]any{"target": target, "backup": req.Backup})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "target": target})
	}
}
