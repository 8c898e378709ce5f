// Package app provides the entry point shared by the clawdesk commands.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/clawdesk/clawdesk/internal/config"
	"github.com/clawdesk/clawdesk/internal/core"
	"github.com/clawdesk/clawdesk/internal/cron"
	"github.com/clawdesk/clawdesk/internal/events"
	"github.com/clawdesk/clawdesk/internal/openclaw"
	"github.com/clawdesk/clawdesk/internal/paths"
	"github.com/clawdesk/clawdesk/internal/profile"
	"github.com/clawdesk/clawdesk/internal/reload"
	"github.com/clawdesk/clawdesk/internal/security"
	"github.com/clawdesk/clawdesk/internal/server"
	"github.com/clawdesk/clawdesk/internal/telemetry"
	"github.com/clawdesk/clawdesk/internal/usage"
)

// RunParams configures the main application loop.
type RunParams struct {
	// Paths overrides the resolved file locations. Zero means paths.Resolve.
	Paths paths.Paths

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level

	// Stderr receives console logs. Defaults to os.Stderr.
	Stderr io.Writer

	// Ready, if non-nil, is called with the listen address once every
	// component has started.
	Ready func(addr string)
}

// Run loads configuration, starts the server, scheduler and config
// watcher, and blocks until ctx is done or a shutdown signal is received.
// A startup failure is also written, redacted, to the log file.
func Run(ctx context.Context, params RunParams) (err error) {
	p := params.Paths
	if p.ConfigPath == "" {
		p = paths.Resolve()
	}
	stderr := params.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	redactor := security.NewRedactor()
	logger, logFile := NewLogger(stderr, p.LogPath, params.LogLevel, redactor)
	defer func() { _ = logFile.Close() }()
	defer func() {
		if err != nil {
			logger.Error("clawdesk startup failed", "error", err)
		}
	}()

	store := config.NewStore(p.ConfigPath, "")
	cfg, err := store.Load()
	if err != nil {
		return err
	}

	var secret *security.SecretStore
	syncLiterals := func(cfg *config.Config) {
		redactor.SetLiterals(Literals(secret.Current(), cfg)...)
	}
	// A rotated secret is masked from the next log line on.
	secret = security.NewSecretStore(p.SecretPath, func(string) {
		if c, err := store.Load(); err == nil {
			syncLiterals(c)
		}
	})
	if _, err := secret.Ensure(); err != nil {
		return err
	}

	watcher, err := reload.NewWatcher(reload.WatcherConfig{ConfigPath: p.ConfigPath, Logger: logger})
	if err != nil {
		return err
	}
	defer watcher.Stop()

	_, shutdownTracing, err := telemetry.SetupTracing(ctx, params.Version)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	invoker := openclaw.NewInvoker(logger, metrics, telemetry.Tracer())
	if bin := invoker.BinaryInUse(); !bin.Found {
		logger.Warn("openclaw binary not found on PATH; gateway actions will fail", "binary", bin.Name)
	}

	usageOpts := []usage.Option{usage.WithLogger(logger), usage.WithMetrics(metrics)}
	if ms := cfg.Observability.UsageTTLMs; ms > 0 {
		usageOpts = append(usageOpts, usage.WithTTL(time.Duration(ms)*time.Millisecond))
	}
	usageSvc := usage.NewService(invoker, redactor, usageOpts...)

	history, err := usage.OpenHistory(p.UsagePath)
	if err != nil {
		return err
	}
	evs := events.NewLogger(p.EventsPath, redactor)

	srv := server.New(server.Deps{
		Store:    store,
		Secret:   secret,
		Runner:   invoker,
		OpenClaw: openclaw.NewStore(p.OpenClawConfigPath, p.OpenClawSkillsPath),
		Usage:    usageSvc,
		History:  history,
		Events:   evs,
		Redactor: redactor,
		Registry: reg,
		Metrics:  metrics,
		Logger:   logger,
		Version:  params.Version,
	})

	scheduler, err := newScheduler(store, usageSvc, history, srv.Limiter(), cfg, logger)
	if err != nil {
		_ = history.Close()
		return err
	}

	reloader := reload.NewHandler(store, evs, logger, syncLiterals)
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()

	application := core.NewApp(logger)
	application.Add("tracing", core.StopFunc(shutdownTracing))
	application.Add("history", core.StopFunc(func(context.Context) error { return history.Close() }))
	application.Add("pidfile", core.Hook{
		OnStart: func() error { return WritePIDFile(p.PIDPath) },
		OnStop:  func(context.Context) error { return RemovePIDFile(p.PIDPath) },
	})
	application.Add("server", srv)
	application.Add("scheduler", scheduler)
	application.Add("watcher", core.Hook{
		OnStart: func() error {
			watcher.Start(watchCtx)
			go reloader.Run(watchCtx, watcher)
			return nil
		},
		OnStop: func(context.Context) error {
			cancelWatch()
			watcher.Stop()
			return nil
		},
	})
	if params.Ready != nil {
		application.Add("ready", core.StartFunc(func() error {
			params.Ready(srv.Addr())
			return nil
		}))
	}

	logger.Info("clawdesk starting",
		"version", params.Version,
		"config", p.ConfigPath,
		"profile", cfg.ActiveProfile,
	)
	return application.Run(ctx)
}

// Literals lists the values the redactor must always mask: the API secret
// and every inline profile token.
func Literals(secret string, cfg *config.Config) []string {
	out := []string{secret}
	for _, p := range cfg.Profiles {
		if p.Auth.Token != "" {
			out = append(out, p.Auth.Token)
		}
	}
	return out
}

func newScheduler(
	store *config.Store,
	svc *usage.Service,
	history *usage.History,
	limiter *security.RateLimiter,
	cfg *config.Config,
	logger *slog.Logger,
) (*cron.Scheduler, error) {
	s := cron.NewScheduler(logger)
	jobs := []cron.Job{
		&cron.UsageRecordJob{
			Capture: func(ctx context.Context) (*usage.Snapshot, error) {
				c, err := store.Load()
				if err != nil {
					return nil, err
				}
				prof, err := profile.Resolve(c, profile.EnvFromOS(), profile.Flags{}, store.Home)
				if err != nil {
					return nil, err
				}
				return svc.Snapshot(ctx, prof)
			},
			Store:        history,
			Logger:       logger,
			ScheduleExpr: cfg.Observability.UsageSchedule,
		},
		&cron.HistoryPruneJob{Store: history, MaxAge: cron.DefaultRetention, Logger: logger},
		&cron.SweepJob{Label: "ratelimit", Target: limiter, Logger: logger},
	}
	for _, j := range jobs {
		if err := s.RegisterJob(j); err != nil {
			return nil, fmt.Errorf("registering job: %w", err)
		}
	}
	return s, nil
}
