// Package server exposes the clawdesk REST, SSE and WebSocket API on a
// loopback listener. Every decision re-reads the config document, so policy
// and profile edits apply to the next request without a restart.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clawdesk/clawdesk/internal/config"
	"github.com/clawdesk/clawdesk/internal/events"
	"github.com/clawdesk/clawdesk/internal/macros"
	"github.com/clawdesk/clawdesk/internal/openclaw"
	"github.com/clawdesk/clawdesk/internal/profile"
	"github.com/clawdesk/clawdesk/internal/security"
	"github.com/clawdesk/clawdesk/internal/telemetry"
	"github.com/clawdesk/clawdesk/internal/usage"
)

// Timeouts of the HTTP layer. Streams and macro runs are exempt from
// RequestTimeout.
const (
	RequestTimeout    = 15 * time.Second
	ReadHeaderTimeout = 10 * time.Second
	ShutdownTimeout   = 5 * time.Second
	maxBodyBytes      = 256 << 10
)

// Deps are the collaborators of a Server. Store, Secret and Runner are
// required; the rest fall back to working defaults.
type Deps struct {
	Store    *config.Store
	Secret   *security.SecretStore
	Runner   openclaw.Runner
	OpenClaw *openclaw.Store
	Usage    *usage.Service
	History  *usage.History
	Events   *events.Logger
	Redactor *security.Redactor
	Limiter  *security.RateLimiter
	Registry *prometheus.Registry
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger

	// Env snapshots the environment consulted by profile resolution.
	// Defaults to profile.EnvFromOS.
	Env     func() profile.Env
	Version string
}

// Server is the clawdesk HTTP API.
type Server struct {
	store    *config.Store
	secret   *security.SecretStore
	authz    *security.Authorizer
	redactor *security.Redactor
	gateway  *openclaw.Gateway
	runner   openclaw.Runner
	oc       *openclaw.Store
	usage    *usage.Service
	history  *usage.History
	events   *events.Logger
	limiter  *security.RateLimiter
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	macros   *macros.Runner
	logger   *slog.Logger
	env      func() profile.Env
	version  string
	now      func() time.Time

	handler    http.Handler
	httpServer *http.Server
	addr       string
}

// New builds a Server and its router.
func New(d Deps) *Server {
	s := &Server{
		store:    d.Store,
		secret:   d.Secret,
		authz:    security.NewAuthorizer(d.Store),
		redactor: d.Redactor,
		runner:   d.Runner,
		gateway:  &openclaw.Gateway{Runner: d.Runner},
		oc:       d.OpenClaw,
		usage:    d.Usage,
		history:  d.History,
		events:   d.Events,
		limiter:  d.Limiter,
		registry: d.Registry,
		metrics:  d.Metrics,
		logger:   d.Logger,
		env:      d.Env,
		version:  d.Version,
		now:      time.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "server")
	if s.redactor == nil {
		s.redactor = security.NewRedactor()
	}
	if s.limiter == nil {
		s.limiter = security.NewRateLimiter(security.DefaultRequestsPerMinute, time.Minute)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	if s.metrics == nil {
		s.metrics = telemetry.NewMetrics(s.registry)
	}
	if s.env == nil {
		s.env = profile.EnvFromOS
	}
	if s.usage == nil {
		s.usage = usage.NewService(d.Runner, s.redactor, usage.WithMetrics(s.metrics), usage.WithLogger(s.logger))
	}
	if s.oc == nil {
		s.oc = openclaw.NewStore("", "")
	}
	s.macros = &macros.Runner{
		Actions:    s.macroActions(),
		Authorizer: s.authz,
		Logger:     s.logger,
	}
	if s.events != nil {
		s.macros.Events = s.events
	}
	s.handler = s.buildRouter()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Limiter exposes the rate limiter so the scheduler can sweep it.
func (s *Server) Limiter() *security.RateLimiter { return s.limiter }

// Addr reports the bound address once Start has returned.
func (s *Server) Addr() string { return s.addr }

// Start listens on the configured app host and port and serves in the
// background. It refuses a non-loopback host.
func (s *Server) Start() error {
	cfg, err := s.store.Load()
	if err != nil {
		return err
	}
	if !config.IsLoopbackHost(cfg.App.Host) {
		return errors.New("server: app.host must be a loopback address")
	}
	addr := net.JoinHostPort(cfg.App.Host, strconv.Itoa(cfg.App.Port))

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return errors.New("server: listen failed: " + err.Error())
	}
	s.addr = ln.Addr().String()

	go func() {
		s.logger.Info("clawdesk listening", "url", "http://"+s.addr)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the listener down, waiting up to ShutdownTimeout for
// in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()

	s.logger.Info("server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

// resolve computes the profile context for r from the live config.
func (s *Server) resolve(r *http.Request) (*profile.Context, error) {
	return s.resolveNamed(r.URL.Query().Get("profile"))
}

func (s *Server) resolveNamed(name string) (*profile.Context, error) {
	cfg, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	return profile.Resolve(cfg, s.env(), profile.Flags{Profile: name}, s.store.Home)
}

// secrets lists every value that must never appear in a response: the
// API secret plus the credentials of prof, when known.
func (s *Server) secrets(prof *profile.Context) []string {
	out := []string{s.secret.Current()}
	if prof != nil {
		out = append(out, prof.Secrets()...)
	}
	return out
}

// record appends an event, logging instead of failing the request.
func (s *Server) record(typ string, payload any) {
	if s.events == nil {
		return
	}
	if _, err := s.events.Log(typ, payload); err != nil {
		s.logger.Warn("recording event failed", "type", typ, "error", err)
	}
}

// configSecrets lists the API secret and every inline profile token.
func (s *Server) configSecrets(cfg *config.Config) []string {
	out := []string{s.secret.Current()}
	for _, p := range cfg.Profiles {
		if p.Auth.Token != "" {
			out = append(out, p.Auth.Token)
		}
	}
	return out
}
