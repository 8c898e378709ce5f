package openclaw

import (
	"context"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/clawdesk/clawdesk/internal/apperr"
)

// Capabilities describes what `status` supports on the installed CLI.
type Capabilities struct {
	UsageFlag bool `json:"usageFlag"`
	UsageJSON bool `json:"usageJson"`
}

// DetectCapabilities inspects `status --help`. A failed probe reports no
// capability rather than an error.
func DetectCapabilities(ctx context.Context, r Runner, env map[string]string) Capabilities {
	res, err := r.Run(ctx, []string{"status", "--help"}, Options{Env: env, Timeout: ProbeTimeout})
	if err != nil {
		return Capabilities{}
	}
	text := strings.ToLower(res.Stdout)
	return Capabilities{
		UsageFlag: strings.Contains(text, "--usage"),
		UsageJSON: strings.Contains(text, "json"),
	}
}

// Gateway wraps the `gateway` family of CLI commands. Output is returned
// as produced; callers redact before exposing it.
type Gateway struct {
	Runner Runner
}

// StatusResult is the free-text gateway status.
type StatusResult struct {
	Status   string `json:"status"`
	Fallback bool   `json:"fallback"`
}

// Status runs `gateway status`, falling back to `status --all`.
func (g *Gateway) Status(ctx context.Context, env map[string]string) (*StatusResult, error) {
	opts := Options{Env: env, Timeout: StatusTimeout}
	res, err := g.Runner.Run(ctx, []string{"gateway", "status"}, opts)
	if err == nil {
		return &StatusResult{Status: strings.TrimSpace(res.Stdout)}, nil
	}
	res, err = g.Runner.Run(ctx, []string{"status", "--all"}, opts)
	if err != nil {
		return nil, err
	}
	return &StatusResult{Status: strings.TrimSpace(res.Stdout), Fallback: true}, nil
}

// ProbeResult holds either the decoded JSON probe or its raw text.
type ProbeResult struct {
	Structured bool   `json:"structured"`
	Result     any    `json:"result"`
	Raw        string `json:"raw,omitempty"`
}

// Probe runs `gateway probe --json`. When that fails or does not print
// JSON it falls back to the plain `gateway probe` text.
func (g *Gateway) Probe(ctx context.Context, env map[string]string) (*ProbeResult, error) {
	opts := Options{Env: env, Timeout: StatusTimeout}
	res, err := g.Runner.Run(ctx, []string{"gateway", "probe", "--json"}, opts)
	if err == nil {
		out := strings.TrimSpace(res.Stdout)
		if out != "" && gjson.Valid(out) {
			return &ProbeResult{Structured: true, Result: gjson.Parse(out).Value()}, nil
		}
	}
	res, err = g.Runner.Run(ctx, []string{"gateway", "probe"}, opts)
	if err != nil {
		return nil, err
	}
	raw := strings.TrimSpace(res.Stdout)
	return &ProbeResult{Result: raw, Raw: raw}, nil
}

// LifecycleActions are the accepted arguments to Lifecycle.
var LifecycleActions = []string{"start", "stop", "restart"}

// Lifecycle runs `gateway start|stop|restart`.
func (g *Gateway) Lifecycle(ctx context.Context, action string, env map[string]string) (string, error) {
	switch action {
	case "start", "stop", "restart":
	default:
		return "", apperr.Validation("invalid gateway action: " + action)
	}
	res, err := g.Runner.Run(ctx, []string{"gateway", action}, Options{Env: env})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

var urlPattern = regexp.MustCompile(`(?i)https?://[^\s]+`)

// DashboardResult is the gateway's control UI link.
type DashboardResult struct {
	URL      string `json:"url"`
	Fallback bool   `json:"fallback"`
}

// DashboardLink returns the first URL printed by `dashboard`, or fallback
// when the command fails or prints none.
func (g *Gateway) DashboardLink(ctx context.Context, fallback string, env map[string]string) *DashboardResult {
	res, err := g.Runner.Run(ctx, []string{"dashboard"}, Options{Env: env})
	if err != nil {
		return &DashboardResult{URL: fallback, Fallback: true}
	}
	if m := urlPattern.FindString(res.Stdout); m != "" {
		return &DashboardResult{URL: m}
	}
	return &DashboardResult{URL: fallback, Fallback: true}
}

// Logs returns the raw output of `gateway logs --tail n`.
func (g *Gateway) Logs(ctx context.Context, tail int, env map[string]string) (string, error) {
	res, err := g.Runner.Run(ctx, []string{"gateway", "logs", "--tail", strconv.Itoa(tail)}, Options{Env: env})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// Version returns the trimmed output of `--version`.
func (g *Gateway) Version(ctx context.Context) (string, error) {
	res, err := g.Runner.Run(ctx, []string{"--version"}, Options{Timeout: StatusTimeout})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// SplitLines splits output into trimmed, non-empty lines.
func SplitLines(s string) []string {
	lines := []string{}
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// commands maps the diagnostic actions to their fixed argv. Nothing else
// reaches the CLI through RunCommand.
var commands = map[string][]string{
	"openclaw.doctor":     {"doctor"},
	"openclaw.audit":      {"security", "audit"},
	"openclaw.audit.deep": {"security", "audit", "--deep"},
}

// CommandArgs returns the argv for a diagnostic action.
func CommandArgs(action string) ([]string, bool) {
	args, ok := commands[action]
	return slices.Clone(args), ok
}

// CommandResult is the outcome of a diagnostic command.
type CommandResult struct {
	Binary  string `json:"binary"`
	Summary string `json:"summary"`
}

// RunCommand runs a diagnostic action from the fixed table.
func (g *Gateway) RunCommand(ctx context.Context, action string, env map[string]string) (*CommandResult, error) {
	args, ok := CommandArgs(action)
	if !ok {
		return nil, apperr.Validation("action not supported: " + action)
	}
	res, err := g.Runner.Run(ctx, args, Options{Env: env, Timeout: CommandTimeout})
	if err != nil {
		return nil, err
	}
	summary := strings.TrimSpace(res.Stdout)
	if summary == "" {
		summary = strings.TrimSpace(res.Stderr)
	}
	return &CommandResult{Binary: res.Binary, Summary: summary}, nil
}
