// Package profile computes the effective gateway endpoint for a request
// from the config document, the environment, and per-request flags.
package profile

import (
	"net"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/clawdesk/clawdesk/internal/apperr"
	"github.com/clawdesk/clawdesk/internal/config"
)

// Environment variables that override the profile's port and token.
const (
	EnvPort  = "OPENCLAW_GATEWAY_PORT"
	EnvToken = "OPENCLAW_GATEWAY_TOKEN"
	EnvURL   = "OPENCLAW_GATEWAY_URL"
)

// DefaultPort is used when no source yields a valid port.
const DefaultPort = 18789

// Sources reported in Context.PortSource and Context.TokenSource.
const (
	SourceFlag    = "flag"
	SourceEnv     = "env"
	SourceConfig  = "config"
	SourceFile    = "file"
	SourceDefault = "default"
	SourceMissing = "missing"
)

// Env is a snapshot of the environment variables the resolver consults.
type Env map[string]string

// EnvFromOS captures the relevant variables from the process environment.
func EnvFromOS() Env {
	env := Env{}
	for _, k := range []string{EnvPort, EnvToken} {
		if v, ok := os.LookupEnv(k); ok {
			env[k] = v
		}
	}
	return env
}

// Flags are per-request overrides. Empty fields are absent.
type Flags struct {
	Profile string
	Port    string
	Token   string
}

// Context is the resolved execution context for one request. It is never
// cached: callers resolve again for every request.
type Context struct {
	Name        string `json:"name"`
	Bind        string `json:"bind"`
	Port        int    `json:"port"`
	Token       string `json:"-"`
	TokenSource string `json:"tokenSource"`
	PortSource  string `json:"portSource"`
	URL         string `json:"url"`
	Remote      bool   `json:"remote"`
}

// Resolve applies source precedence and the remote-host policy to produce
// the effective endpoint for the requested (or active) profile.
//
// Port: flag, env, profile, DefaultPort; invalid candidates are skipped.
// Token: flag, env, inline config, token file contents, missing.
func Resolve(cfg *config.Config, env Env, flags Flags, home string) (*Context, error) {
	name := flags.Profile
	if name == "" {
		name = cfg.ActiveProfile
	}
	if name == "" {
		name = config.DefaultProfile
	}
	p, ok := cfg.Profile(name)
	if !ok {
		if flags.Profile != "" {
			return nil, apperr.NotFound("profile " + name + " not found")
		}
		if p, ok = cfg.Profile(config.DefaultProfile); !ok {
			return nil, apperr.NotFound("profile " + name + " not found")
		}
		name = config.DefaultProfile
	}

	port, portSource := resolvePort(flags.Port, env[EnvPort], p.Port)
	token, tokenSource := resolveToken(flags.Token, env[EnvToken], p, home)

	bind := p.Bind
	if bind == "" {
		bind = "127.0.0.1"
	}
	remote := !config.IsLoopbackHost(bind)
	if remote {
		if !cfg.Security.EnableRemoteProfiles {
			return nil, apperr.Policy("remote profiles disabled")
		}
		hosts := cfg.Security.AllowedRemoteHosts
		if len(hosts) > 0 && !slices.Contains(hosts, bind) {
			return nil, apperr.Policy("host not allow-listed")
		}
	}

	return &Context{
		Name:        name,
		Bind:        bind,
		Port:        port,
		Token:       token,
		TokenSource: tokenSource,
		PortSource:  portSource,
		URL:         "http://" + net.JoinHostPort(bind, strconv.Itoa(port)),
		Remote:      remote,
	}, nil
}

func resolvePort(flag, env string, configured int) (int, string) {
	if flag != "" {
		if p, ok := config.NormalizePort(flag); ok {
			return p, SourceFlag
		}
	}
	if env != "" {
		if p, ok := config.NormalizePort(env); ok {
			return p, SourceEnv
		}
	}
	if p, ok := config.NormalizePort(configured); ok {
		return p, SourceConfig
	}
	return DefaultPort, SourceDefault
}

func resolveToken(flag, env string, p config.Profile, home string) (string, string) {
	switch {
	case flag != "":
		return flag, SourceFlag
	case env != "":
		return env, SourceEnv
	case p.Auth.Token != "":
		return p.Auth.Token, SourceConfig
	}
	if p.TokenPath != "" {
		raw, err := os.ReadFile(config.ExpandPath(p.TokenPath, home))
		if err == nil {
			if tok := strings.TrimSpace(string(raw)); tok != "" {
				return tok, SourceFile
			}
		}
	}
	return "", SourceMissing
}

// Env returns the variables handed to the gateway CLI for this context.
func (c *Context) Env() map[string]string {
	env := map[string]string{
		EnvURL:  c.URL,
		EnvPort: strconv.Itoa(c.Port),
	}
	if c.Token != "" {
		env[EnvToken] = c.Token
	}
	return env
}

// Secrets lists values that must be redacted from anything derived from
// this context.
func (c *Context) Secrets() []string {
	if c.Token == "" {
		return nil
	}
	return []string{c.Token}
}
