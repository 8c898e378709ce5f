package server

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/clawdesk/clawdesk/internal/apperr"
	"github.com/clawdesk/clawdesk/internal/config"
	"github.com/clawdesk/clawdesk/internal/events"
	"github.com/clawdesk/clawdesk/internal/macros"
	"github.com/clawdesk/clawdesk/internal/openclaw"
	"github.com/clawdesk/clawdesk/internal/profile"
)

type macroView struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Steps       []config.Step `json:"steps"`
}

func (s *Server) handleListMacros() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := s.store.Load()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out := make([]macroView, 0, len(cfg.Macros))
		for name, m := range cfg.Macros {
			out = append(out, macroView{Name: name, Description: m.Description, Steps: m.Steps})
		}
		slices.SortFunc(out, func(a, b macroView) int { return strings.Compare(a.Name, b.Name) })
		writeJSON(w, http.StatusOK, map[string]any{"macros": out})
	}
}

func (s *Server) handleRunMacro() http.HandlerFunc {
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
		cfg, err := s.store.Load()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		m, ok := cfg.Macros[req.Name]
		if !ok {
			s.fail(w, r, apperr.NotFound("macro "+req.Name+" not found"))
			return
		}

		rep, err := s.macros.Run(r.Context(), req.Name, m)
		secrets := s.configSecrets(cfg)
		if err != nil {
			if rep == nil {
				s.fail(w, r, err, secrets...)
				return
			}
			// A failed step still reports what ran before it.
			writeJSON(w, apperr.Status(err), map[string]any{
				"ok":      false,
				"id":      rep.ID,
				"name":    rep.Name,
				"error":   s.redactor.RedactText(err.Error(), secrets...),
				"results": s.redactor.RedactObject(rep.Results, secrets...),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"id":      rep.ID,
			"name":    rep.Name,
			"results": s.redactor.RedactObject(rep.Results, secrets...),
		})
	}
}

type saveMacroRequest struct {
	Name  string       `json:"name" validate:"required,ident"`
	Macro config.Macro `json:"macro"`
}

func (s *Server) handleSaveMacro() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveMacroRequest
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := config.Check(req); err != nil {
			s.fail(w, r, err)
			return
		}
		_, err := s.store.Update(func(cfg *config.Config) error {
			if cfg.Macros == nil {
				cfg.Macros = map[string]config.Macro{}
			}
			cfg.Macros[req.Name] = req.Macro
			return nil
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.record(events.TypeMacroSaved, map[string]any{"name": req.Name, "steps": len(req.Macro.Steps)})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": req.Name})
	}
}

// intInput reads an integer step input. Loaded macros carry json.Number,
// hand-built ones may carry any numeric type or a string.
func intInput(input map[string]any, key string, def int) int {
	switch v := input[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// stepProfile resolves the profile a step targets: input "profile" when
// set, the active profile otherwise.
func (s *Server) stepProfile(input map[string]any) (*profile.Context, error) {
	name, _ := input["profile"].(string)
	return s.resolveNamed(name)
}

// macroActions is the table of actions a macro step may invoke.
func (s *Server) macroActions() map[string]macros.Handler {
	redacted := func(prof *profile.Context, out string) string {
		return strings.TrimSpace(s.redactor.RedactText(out, s.secrets(prof)...))
	}
	lifecycle := func(action string) macros.Handler {
		return func(ctx context.Context, input map[string]any) (any, error) {
			prof, err := s.stepProfile(input)
			if err != nil {
				return nil, err
			}
			out, err := s.gateway.Lifecycle(ctx, action, prof.Env())
			if err != nil {
				return nil, err
			}
			s.record(events.TypeGatewayAction, map[string]any{"profile": prof.Name, "action": action, "source": "macro"})
			return redacted(prof, out), nil
		}
	}
	command := func(action string) macros.Handler {
		return func(ctx context.Context, input map[string]any) (any, error) {
			prof, err := s.stepProfile(input)
			if err != nil {
				return nil, err
			}
			res, err := s.gateway.RunCommand(ctx, action, prof.Env())
			if err != nil {
				return nil, err
			}
			s.record(events.TypeOpenClawCommand, map[string]any{"action": action, "source": "macro"})
			return map[string]any{"binary": res.Binary, "summary": redacted(prof, res.Summary)}, nil
		}
	}

	actions := map[string]macros.Handler{
		"gateway.status": func(ctx context.Context, input map[string]any) (any, error) {
			prof, err := s.stepProfile(input)
			if err != nil {
				return nil, err
			}
			st, err := s.gateway.Status(ctx, prof.Env())
			if err != nil {
				return nil, err
			}
			return map[string]any{"status": redacted(prof, st.Status), "fallback": st.Fallback}, nil
		},
		"gateway.probe": func(ctx context.Context, input map[string]any) (any, error) {
			prof, err := s.stepProfile(input)
			if err != nil {
				return nil, err
			}
			res, err := s.gateway.Probe(ctx, prof.Env())
			if err != nil {
				return nil, err
			}
			return s.redactor.RedactObject(res, s.secrets(prof)...), nil
		},
		"gateway.dashboard": func(ctx context.Context, input map[string]any) (any, error) {
			prof, err := s.stepProfile(input)
			if err != nil {
				return nil, err
			}
			return s.gateway.DashboardLink(ctx, prof.URL+"/", prof.Env()), nil
		},
		"gateway.logs": func(ctx context.Context, input map[string]any) (any, error) {
			prof, err := s.stepProfile(input)
			if err != nil {
				return nil, err
			}
			tail := min(max(intInput(input, "tail", defaultLogTail), 1), maxLogTail)
			out, err := s.gateway.Logs(ctx, tail, prof.Env())
			if err != nil {
				return nil, err
			}
			return openclaw.SplitLines(redacted(prof, out)), nil
		},
		"usage.snapshot": func(ctx context.Context, input map[string]any) (any, error) {
			prof, err := s.stepProfile(input)
			if err != nil {
				return nil, err
			}
			snap, err := s.usage.Snapshot(ctx, prof)
			if err != nil {
				return nil, err
			}
			if s.history != nil {
				if err := s.history.Record(ctx, snap); err != nil {
					s.logger.Warn("recording usage snapshot failed", "profile", prof.Name, "error", err)
				}
			}
			return snap, nil
		},
		"openclaw.doctor":     command("openclaw.doctor"),
		"openclaw.audit":      command("openclaw.audit"),
		"openclaw.audit.deep": command("openclaw.audit.deep"),
		"agents.list": func(context.Context, map[string]any) (any, error) {
			return s.oc.ListAgents()
		},
		"skills.list": func(context.Context, map[string]any) (any, error) {
			return s.oc.ListSkills()
		},
		"skills.refresh": func(context.Context, map[string]any) (any, error) {
			return s.oc.RefreshSkills()
		},
	}
	for _, action := range openclaw.LifecycleActions {
		actions["gateway."+action] = lifecycle(action)
	}
	return actions
}
