package openclaw

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/clawdesk/clawdesk/internal/apperr"
	"github.com/clawdesk/clawdesk/internal/telemetry"
)

// Invocation bounds.
const (
	DefaultTimeout   = 15 * time.Second
	StatusTimeout    = 4 * time.Second
	ProbeTimeout     = 6 * time.Second
	CommandTimeout   = 12 * time.Second
	DefaultMaxOutput = 512 * 1024
)

// Options tune one invocation. Zero values use the defaults.
type Options struct {
	// Env is overlaid on the inherited process environment.
	Env       map[string]string
	Timeout   time.Duration
	MaxOutput int
}

// Result is the captured output of a successful run.
type Result struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Binary   string        `json:"binary"`
	Duration time.Duration `json:"-"`
}

// Runner runs the CLI. *Invoker is the production implementation; tests
// substitute fakes.
type Runner interface {
	Run(ctx context.Context, args []string, opts Options) (*Result, error)
}

// Invoker executes the OpenClaw CLI with bounded time and output.
type Invoker struct {
	// Detector finds the executable. Ignored when Binary is set.
	Detector *Detector

	// Binary forces a specific executable.
	Binary string

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Tracer  trace.Tracer
}

var _ Runner = (*Invoker)(nil)

// NewInvoker returns an Invoker with platform binary detection.
func NewInvoker(logger *slog.Logger, metrics *telemetry.Metrics, tracer trace.Tracer) *Invoker {
	return &Invoker{
		Detector: NewDetector(),
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   tracer,
	}
}

// BinaryInUse reports the executable Run will use.
func (i *Invoker) BinaryInUse() Binary {
	if i.Binary != "" {
		return Binary{Name: i.Binary, Path: i.Binary, Found: true}
	}
	if i.Detector == nil {
		return Binary{Name: FallbackName}
	}
	return i.Detector.Detect()
}

// Run executes the CLI with args. On timeout the partial output is
// discarded and a KindTimeout error returned. A non-zero exit, a spawn
// failure, or output beyond MaxOutput yields a KindProcess error carrying
// whatever stdout and stderr were captured.
func (i *Invoker) Run(ctx context.Context, args []string, opts Options) (*Result, error) {
	args = SanitizeArgs(args)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxOut := opts.MaxOutput
	if maxOut <= 0 {
		maxOut = DefaultMaxOutput
	}
	bin := i.BinaryInUse().Command()
	command := commandLabel(args)

	tracer := i.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(telemetry.TracerName)
	}
	ctx, span := tracer.Start(ctx, "openclaw.run", trace.WithAttributes(
		attribute.String("openclaw.command", command),
		attribute.String("openclaw.binary", bin),
	))
	defer span.End()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := &cappedBuffer{max: maxOut, onExceed: cancel}
	stderr := &cappedBuffer{max: maxOut, onExceed: cancel}

	cmd := exec.CommandContext(runCtx, bin, args...)
	cmd.Env = MergeEnv(os.Environ(), opts.Env)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	result := "ok"
	defer func() {
		i.Metrics.ObserveInvocation(command, result, elapsed)
		span.SetAttributes(attribute.String("openclaw.result", result))
		if result != "ok" {
			span.SetStatus(codes.Error, result)
		}
		if i.Logger != nil {
			i.Logger.Debug("openclaw run", "command", command, "result", result, "duration", elapsed)
		}
	}()

	switch {
	case stdout.exceeded || stderr.exceeded:
		result = "overflow"
		return nil, apperr.Process("output exceeds limit", err, stdout.String(), stderr.String())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result = "timeout"
		return nil, apperr.Timeout(fmt.Sprintf("openclaw %s timed out after %s", command, timeout))
	case ctx.Err() != nil:
		result = "canceled"
		return nil, fmt.Errorf("openclaw: %w", ctx.Err())
	case err != nil:
		result = "error"
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, apperr.Process(msg, err, stdout.String(), stderr.String())
	}

	return &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Binary:   bin,
		Duration: elapsed,
	}, nil
}

// SanitizeArgs drops blank arguments and any containing a NUL byte.
func SanitizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if strings.TrimSpace(a) == "" || strings.ContainsRune(a, 0) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// MergeEnv overlays extra on base ("KEY=value" entries). Keys in extra
// replace their base entries; everything else is inherited.
func MergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, override := extra[k]; override {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}

// commandLabel is the leading subcommand words, used as a low-cardinality
// metric label ("gateway logs", "status").
func commandLabel(args []string) string {
	var words []string
	for _, a := range args {
		if strings.HasPrefix(a, "-") || len(words) == 2 {
			break
		}
		words = append(words, a)
	}
	if len(words) == 0 {
		return "root"
	}
	return strings.Join(words, " ")
}

// cappedBuffer keeps at most max bytes and calls onExceed once when more
// arrive. Each instance has a single writer (the exec copy goroutine).
type cappedBuffer struct {
	buf      bytes.Buffer
	max      int
	exceeded bool
	onExceed func()
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if c.exceeded {
		return len(p), nil
	}
	if room := c.max - c.buf.Len(); len(p) > room {
		c.buf.Write(p[:room])
		c.exceeded = true
		if c.onExceed != nil {
			c.onExceed()
		}
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *cappedBuffer) String() string { return c.buf.String() }
