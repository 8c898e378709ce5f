// Package config handles loading, validation, and atomic persistence of
// the clawdesk JSON configuration document.
package config

import "path/filepath"

// CurrentVersion is the configVersion written by Default.
const CurrentVersion = 3

// DefaultProfile is the profile that always exists and cannot be deleted.
const DefaultProfile = "local"

// Config is the top-level configuration document.
type Config struct {
	ConfigVersion int                `json:"configVersion"`
	App           AppConfig          `json:"app"`
	Profiles      map[string]Profile `json:"profiles"`
	ActiveProfile string             `json:"activeProfile"`
	Security      SecurityConfig     `json:"security"`
	Macros        map[string]Macro   `json:"macros"`
	Observability Observability      `json:"observability"`
}

// AppConfig is the listen address of the clawdesk HTTP server itself.
type AppConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Profile describes how to reach one gateway instance.
type Profile struct {
	Name      string      `json:"name"`
	Bind      string      `json:"bind"`
	Port      int         `json:"port"`
	TokenPath string      `json:"token_path,omitempty"`
	Auth      ProfileAuth `json:"auth"`
}

// ProfileAuth holds an optional inline gateway token.
type ProfileAuth struct {
	Token string `json:"token"`
}

// SecurityConfig holds the action allow-list and remote-profile policy.
type SecurityConfig struct {
	AllowActions         []string `json:"allow_actions"`
	EnableRemoteProfiles bool     `json:"enableRemoteProfiles"`
	AllowedRemoteHosts   []string `json:"allowedRemoteHosts"`
	AllowedOrigins       []string `json:"allowedOrigins"`
}

// Macro is a named, ordered list of action steps.
type Macro struct {
	Description string `json:"description,omitempty"`
	Steps       []Step `json:"steps" validate:"required,min=1,dive"`
}

// Step is one macro step.
type Step struct {
	Action string         `json:"action" validate:"required"`
	Input  map[string]any `json:"input,omitempty"`
}

// Observability tunes polling, backoff, and usage capture.
type Observability struct {
	LogPollMs     int    `json:"log_poll_ms"`
	BackoffMaxMs  int    `json:"backoff_max_ms"`
	UsageTTLMs    int    `json:"usage_ttl_ms,omitempty"`
	UsageSchedule string `json:"usage_schedule,omitempty"`
}

// DefaultAllowActions is the allow-list written into a fresh config.
func DefaultAllowActions() []string {
	return []string{
		"gateway.status",
		"gateway.logs",
		"gateway.probe",
		"gateway.dashboard",
		"gateway.start",
		"gateway.stop",
		"gateway.restart",
		"agents.list",
		"agents.create",
		"agents.default",
		"agents.rename",
		"agents.delete",
		"agents.import",
		"agents.export",
		"skills.list",
		"skills.refresh",
		"skills.toggle",
		"config.read",
		"config.write",
		"openclaw.doctor",
		"openclaw.audit",
		"openclaw.audit.deep",
		"support.bundle",
		"secret.rotate",
		"profiles.read",
		"profiles.activate",
		"profiles.write",
		"profiles.delete",
		"macros.read",
		"macros.run",
		"macros.write",
		"usage.read",
		"usage.export",
		"events.read",
	}
}

// Default returns the built-in configuration document. home is used for
// the default gateway token path.
func Default(home string) *Config {
	return &Config{
		ConfigVersion: CurrentVersion,
		App:           AppConfig{Host: "127.0.0.1", Port: 4178},
		Profiles: map[string]Profile{
			DefaultProfile: defaultLocalProfile(home),
		},
		ActiveProfile: DefaultProfile,
		Security: SecurityConfig{
			AllowActions:       DefaultAllowActions(),
			AllowedRemoteHosts: []string{},
			AllowedOrigins:     []string{},
		},
		Macros: map[string]Macro{},
		Observability: Observability{
			LogPollMs:    1500,
			BackoffMaxMs: 8000,
		},
	}
}

func defaultLocalProfile(home string) Profile {
	return Profile{
		Name:      DefaultProfile,
		Bind:      "127.0.0.1",
		Port:      18789,
		TokenPath: filepath.Join(home, ".config", "openclaw", "gateway.auth.token"),
	}
}

// Profile returns the named profile.
func (c *Config) Profile(name string) (Profile, bool) {
	p, ok := c.Profiles[name]
	return p, ok
}

// Clone returns a deep copy suitable for read-modify-write.
func (c *Config) Clone() *Config {
	out := *c
	out.Profiles = make(map[string]Profile, len(c.Profiles))
	for k, v := range c.Profiles {
		out.Profiles[k] = v
	}
	out.Macros = make(map[string]Macro, len(c.Macros))
	for k, v := range c.Macros {
		out.Macros[k] = v
	}
	out.Security.AllowActions = append([]string(nil), c.Security.AllowActions...)
	out.Security.AllowedRemoteHosts = append([]string(nil), c.Security.AllowedRemoteHosts...)
	out.Security.AllowedOrigins = append([]string(nil), c.Security.AllowedOrigins...)
	return &out
}
