package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/clawdesk/clawdesk/internal/apperr"
)

// Port bounds for the app and every gateway profile.
const (
	MinPort = 1024
	MaxPort = 65535
)

var loopbackHosts = []string{"127.0.0.1", "localhost", "::1"}

// IsLoopbackHost reports whether host is one of the recognised loopback names.
func IsLoopbackHost(host string) bool {
	return slices.Contains(loopbackHosts, host)
}

// NormalizePort converts v to a port in [MinPort, MaxPort]. Strings,
// integers, and integral floats (as produced by encoding/json) are
// accepted; anything else reports false.
func NormalizePort(v any) (int, bool) {
	var n int
	switch p := v.(type) {
	case int:
		n = p
	case int64:
		n = int(p)
	case float64:
		if p != math.Trunc(p) {
			return 0, false
		}
		n = int(p)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, false
		}
		n = i
	default:
		return 0, false
	}
	if n < MinPort || n > MaxPort {
		return 0, false
	}
	return n, true
}

// Validate normalizes cfg in place and checks its security invariants.
// It returns cfg for chaining. Every violation is reported, joined, as a
// single configuration error.
func Validate(cfg *Config) (*Config, error) {
	var errs []error

	if cfg.ConfigVersion == 0 {
		cfg.ConfigVersion = CurrentVersion
	}
	if cfg.ConfigVersion < 1 {
		errs = append(errs, fmt.Errorf("config: invalid configVersion %d", cfg.ConfigVersion))
	}

	if cfg.App.Host == "" {
		cfg.App.Host = "127.0.0.1"
	}
	if !IsLoopbackHost(cfg.App.Host) {
		errs = append(errs, fmt.Errorf("config: app.host %q must be a loopback address", cfg.App.Host))
	}
	if _, ok := NormalizePort(cfg.App.Port); !ok {
		errs = append(errs, fmt.Errorf("config: app.port must be between %d and %d", MinPort, MaxPort))
	}

	if len(cfg.Profiles) == 0 {
		errs = append(errs, errors.New("config: at least one profile is required"))
	}

	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		p := cfg.Profiles[name]
		p.Name = name
		if p.Bind == "" {
			p.Bind = "127.0.0.1"
		}
		if _, ok := NormalizePort(p.Port); !ok {
			errs = append(errs, fmt.Errorf("config: profiles.%s.port must be between %d and %d", name, MinPort, MaxPort))
		}
		if !IsLoopbackHost(p.Bind) && !cfg.Security.EnableRemoteProfiles {
			errs = append(errs, fmt.Errorf("config: profiles.%s binds %q which requires security.enableRemoteProfiles", name, p.Bind))
		}
		cfg.Profiles[name] = p
	}

	if _, ok := cfg.Profiles[cfg.ActiveProfile]; !ok {
		cfg.ActiveProfile = DefaultProfile
	}

	if cfg.Security.AllowActions == nil {
		cfg.Security.AllowActions = []string{}
	}
	if cfg.Security.AllowedRemoteHosts == nil {
		cfg.Security.AllowedRemoteHosts = []string{}
	}
	origins := make([]string, 0, len(cfg.Security.AllowedOrigins))
	for _, o := range cfg.Security.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.Security.AllowedOrigins = origins

	if cfg.Macros == nil {
		cfg.Macros = map[string]Macro{}
	}
	if cfg.Observability.LogPollMs <= 0 {
		cfg.Observability.LogPollMs = 1500
	}
	if cfg.Observability.BackoffMaxMs <= 0 {
		cfg.Observability.BackoffMaxMs = 8000
	}

	if len(errs) > 0 {
		return cfg, apperr.Config("", errors.Join(errs...))
	}
	return cfg, nil
}
