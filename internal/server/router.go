package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, s.recoverer, securityHeaders, s.instrument, hostGuard, s.cors, s.rateLimit)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	// UI shell. It embeds the API secret, so only the host guard applies.
	r.Get("/", s.handleIndex())
	r.Get("/index.html", s.handleIndex())

	r.Group(func(r chi.Router) {
		r.Use(s.auth)

		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

		// Long-lived requests, exempt from the request timeout.
		r.With(s.requireAction("gateway.logs")).Get("/api/logs/stream", s.handleLogStream())
		r.With(s.requireAction("gateway.logs")).Get("/api/logs/ws", s.handleLogSocket())
		r.With(s.requireAction("macros.run")).Post("/api/macros/run", s.handleRunMacro())

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(RequestTimeout))

			r.Get("/api/health", s.handleHealth())
			r.Get("/api/openclaw/version", s.handleVersion())

			r.With(s.requireAction("config.read")).Get("/api/config", s.handleGetConfig())
			r.With(s.requireAction("config.write")).Put("/api/config", s.handlePutConfig())
			r.With(s.requireAction("config.read")).Get("/api/config/backups", s.handleConfigBackups())
			r.With(s.requireAction("config.write")).Post("/api/config/restore", s.handleConfigRestore())

			r.With(s.requireAction("gateway.status")).Get("/api/gateway/status", s.handleGatewayStatus())
			r.With(s.requireAction("gateway.probe")).Get("/api/gateway/probe", s.handleGatewayProbe())
			r.With(s.requireAction("gateway.dashboard")).Get("/api/gateway/control-url", s.handleControlURL())
			r.Post("/api/gateway/{action}", s.handleGatewayLifecycle())
			r.With(s.requireAction("gateway.logs")).Get("/api/logs", s.handleLogs())

			r.With(s.requireAction("usage.read")).Get("/api/usage/snapshot", s.handleUsageSnapshot())
			r.With(s.requireAction("usage.read")).Get("/api/usage/history", s.handleUsageHistory())
			r.With(s.requireAction("usage.export")).Get("/api/usage/export", s.handleUsageExport())

			r.With(s.requireAction("profiles.read")).Get("/api/profiles", s.handleListProfiles())
			r.With(s.requireAction("profiles.activate")).Post("/api/profiles/activate", s.handleActivateProfile())
			r.With(s.requireAction("profiles.write")).Post("/api/profiles/save", s.handleSaveProfile())
			r.With(s.requireAction("profiles.delete")).Delete("/api/profiles/{name}", s.handleDeleteProfile())

			r.With(s.requireAction("macros.read")).Get("/api/macros", s.handleListMacros())
			r.With(s.requireAction("macros.write")).Post("/api/macros/save", s.handleSaveMacro())

			r.With(s.requireAction("agents.list")).Get("/api/agents", s.handleListAgents())
			r.With(s.requireAction("agents.create")).Post("/api/agents", s.handleCreateAgent())
			r.With(s.requireAction("agents.default")).Post("/api/agents/default", s.handleDefaultAgent())
			r.With(s.requireAction("agents.rename")).Post("/api/agents/rename", s.handleRenameAgent())
			r.With(s.requireAction("agents.import")).Post("/api/agents/import", s.handleImportAgent())
			r.With(s.requireAction("agents.export")).Get("/api/agents/export/{name}", s.handleExportAgent())
			r.With(s.requireAction("agents.delete")).Delete("/api/agents/{name}", s.handleDeleteAgent())

			r.With(s.requireAction("skills.list")).Get("/api/skills", s.handleListSkills())
			r.With(s.requireAction("skills.refresh")).Post("/api/skills/refresh", s.handleRefreshSkills())
			r.With(s.requireAction("skills.toggle")).Post("/api/skills/toggle", s.handleToggleSkill())

			r.With(s.requireAction("events.read")).Get("/api/events", s.handleEvents())

			r.With(s.requireAction("openclaw.doctor")).Post("/api/doctor", s.handleDoctor())
			r.Post("/api/security/audit", s.handleAudit())

			r.With(s.requireAction("secret.rotate")).Post("/api/secret/rotate", s.handleRotateSecret())
		})
	})

	return r
}
