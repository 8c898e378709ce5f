package usage

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/clawdesk/clawdesk/internal/openclaw"
	"github.com/clawdesk/clawdesk/internal/profile"
	"github.com/clawdesk/clawdesk/internal/security"
	"github.com/clawdesk/clawdesk/internal/telemetry"
)

// DefaultTTL is how long a captured snapshot is served from cache.
const DefaultTTL = 60 * time.Second

// UnsupportedNote is set on snapshots when the CLI cannot report usage.
const UnsupportedNote = "openclaw status --usage is not available"

// Snapshot is a point-in-time usage summary for one profile.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Profile   string    `json:"profile"`
	Format    Format    `json:"format,omitempty"`
	Usage
	Notes string `json:"notes,omitempty"`
}

// Service captures snapshots through the CLI and memoizes them per profile.
// Capabilities are probed once per profile name and kept for the Service's
// lifetime.
type Service struct {
	runner   openclaw.Runner
	redactor *security.Redactor
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time

	snapshots *TTLCache[string, *Snapshot]
	caps      *TTLCache[string, openclaw.Capabilities]
	group     singleflight.Group
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(o *serviceOptions) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithClock sets the clock used for timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *serviceOptions) { o.logger = l }
}

// WithMetrics records cache hits and misses.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *serviceOptions) { o.metrics = m }
}

// NewService returns a Service running the CLI through runner. A nil
// redactor uses a fresh one.
func NewService(runner openclaw.Runner, redactor *security.Redactor, opts ...Option) *Service {
	o := serviceOptions{ttl: DefaultTTL, now: time.Now, logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	if redactor == nil {
		redactor = security.NewRedactor()
	}
	return &Service{
		runner:    runner,
		redactor:  redactor,
		metrics:   o.metrics,
		logger:    o.logger.With("component", "usage"),
		now:       o.now,
		snapshots: NewTTLCache[string, *Snapshot](o.ttl, o.now),
		caps:      NewTTLCache[string, openclaw.Capabilities](0, o.now),
	}
}

// Snapshot returns the cached snapshot for prof when it is younger than
// the TTL, otherwise captures a new one. Concurrent misses for the same
// profile share a single capture.
func (s *Service) Snapshot(ctx context.Context, prof *profile.Context) (*Snapshot, error) {
	if snap, ok := s.snapshots.Get(prof.Name); ok {
		s.metrics.CacheResult(true)
		return snap, nil
	}
	s.metrics.CacheResult(false)

	// The capture outlives a canceled caller so the other waiters and
	// the cache still get its result.
	captureCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(prof.Name, func() (any, error) {
		if snap, ok := s.snapshots.Get(prof.Name); ok {
			return snap, nil
		}
		snap, err := s.capture(captureCtx, prof)
		if err != nil {
			return nil, err
		}
		s.snapshots.Set(prof.Name, snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Capabilities returns the cached capabilities for prof, probing once.
func (s *Service) Capabilities(ctx context.Context, prof *profile.Context) openclaw.Capabilities {
	if c, ok := s.caps.Get(prof.Name); ok {
		return c
	}
	c := openclaw.DetectCapabilities(ctx, s.runner, prof.Env())
	s.caps.Set(prof.Name, c)
	return c
}

func (s *Service) capture(ctx context.Context, prof *profile.Context) (*Snapshot, error) {
	caps := s.Capabilities(ctx, prof)
	snap := &Snapshot{
		Timestamp: s.now().UTC(),
		Profile:   prof.Name,
		Usage:     emptyUsage(),
	}
	if !caps.UsageFlag {
		snap.Notes = UnsupportedNote
		return snap, nil
	}

	args := []string{"status", "--usage"}
	if caps.UsageJSON {
		args = append(args, "--json")
	}
	res, err := s.runner.Run(ctx, args, openclaw.Options{Env: prof.Env()})
	if err != nil {
		return nil, err
	}
	raw := s.redactor.RedactText(res.Stdout, prof.Secrets()...)

	var parsed Parsed
	if caps.UsageJSON {
		parsed, err = ParseJSON(raw)
		if err != nil {
			return nil, err
		}
	} else {
		parsed = ParseText(raw)
	}
	snap.Format = parsed.Format
	snap.Usage = parsed.Usage
	s.logger.Debug("usage captured", "profile", prof.Name, "format", parsed.Format)
	return snap, nil
}
