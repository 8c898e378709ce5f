package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/clawdesk/clawdesk/internal/apperr"
)

// Store reads and writes the config document at Path.
type Store struct {
	// Path is the config.json location.
	Path string

	// Home is used to build the default token path when bootstrapping.
	Home string
}

// NewStore returns a Store for path. home defaults to the user's home directory.
func NewStore(path, home string) *Store {
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return &Store{Path: path, Home: home}
}

// Load reads the config document, writing the default document first when
// none exists. Missing sections are filled from the defaults, a legacy
// top-level "gateway" block is migrated into profiles.local, and the result
// is validated. Every call re-reads the file.
func (s *Store) Load() (*Config, error) {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return nil, apperr.Config("config: create directory", err)
	}

	raw, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		def := Default(s.Home)
		if err := s.Save(def); err != nil {
			return nil, err
		}
		return Validate(def)
	}
	if err != nil {
		return nil, apperr.Config("config: reading "+s.Path, err)
	}

	return Parse(raw, s.Home)
}

// Save validates cfg and atomically replaces the config document.
func (s *Store) Save(cfg *Config) error {
	if _, err := Validate(cfg); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encoding: %w", err)
	}
	return WriteFileAtomic(s.Path, append(data, '\n'), 0o600)
}

// Update loads the document, applies fn, and saves the result.
func (s *Store) Update(fn func(*Config) error) (*Config, error) {
	cfg, err := s.Load()
	if err != nil {
		return nil, err
	}
	next := cfg.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := s.Save(next); err != nil {
		return nil, err
	}
	return next, nil
}

// rawDocument mirrors Config with loosely typed ports so that a
// non-numeric port is reported by Validate instead of failing the decode.
type rawDocument struct {
	ConfigVersion *int                  `json:"configVersion"`
	App           *rawApp               `json:"app"`
	Profiles      map[string]rawProfile `json:"profiles"`
	Gateway       *rawProfile           `json:"gateway"`
	ActiveProfile string                `json:"activeProfile"`
	Security      *rawSecurity          `json:"security"`
	Macros        map[string]Macro      `json:"macros"`
	Observability *Observability        `json:"observability"`
}

type rawSecurity struct {
	AllowActions         *[]string `json:"allow_actions"`
	EnableRemoteProfiles bool      `json:"enableRemoteProfiles"`
	AllowedRemoteHosts   []string  `json:"allowedRemoteHosts"`
	AllowedOrigins       []string  `json:"allowedOrigins"`
}

type rawApp struct {
	Host string `json:"host"`
	Port any    `json:"port"`
}

type rawProfile struct {
	Name      string      `json:"name"`
	Bind      string      `json:"bind"`
	Port      any         `json:"port"`
	TokenPath string      `json:"token_path"`
	Auth      ProfileAuth `json:"auth"`
}

func (p rawProfile) profile(name string) Profile {
	port, _ := NormalizePort(p.Port)
	return Profile{Name: name, Bind: p.Bind, Port: port, TokenPath: p.TokenPath, Auth: p.Auth}
}

// Parse decodes a config document, merges it over the defaults, and validates it.
func Parse(data []byte, home string) (*Config, error) {
	var raw rawDocument
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, apperr.Config("config: parsing", err)
	}

	def := Default(home)
	cfg := def.Clone()

	if raw.ConfigVersion != nil {
		cfg.ConfigVersion = *raw.ConfigVersion
	}
	if raw.App != nil {
		if raw.App.Host != "" {
			cfg.App.Host = raw.App.Host
		}
		if raw.App.Port != nil {
			cfg.App.Port, _ = NormalizePort(jsonNumber(raw.App.Port))
		}
	}

	switch {
	case raw.Profiles != nil:
		cfg.Profiles = make(map[string]Profile, len(raw.Profiles))
		for name, p := range raw.Profiles {
			p.Port = jsonNumber(p.Port)
			cfg.Profiles[name] = p.profile(name)
		}
	case raw.Gateway != nil:
		cfg.Profiles = map[string]Profile{DefaultProfile: migrateGateway(*raw.Gateway, def.Profiles[DefaultProfile])}
	}

	if raw.ActiveProfile != "" {
		cfg.ActiveProfile = raw.ActiveProfile
	}
	if sec := raw.Security; sec != nil {
		if sec.AllowActions != nil {
			cfg.Security.AllowActions = *sec.AllowActions
		}
		cfg.Security.EnableRemoteProfiles = sec.EnableRemoteProfiles
		cfg.Security.AllowedRemoteHosts = sec.AllowedRemoteHosts
		cfg.Security.AllowedOrigins = sec.AllowedOrigins
	}
	for name, m := range raw.Macros {
		cfg.Macros[name] = m
	}
	if raw.Observability != nil {
		cfg.Observability = *raw.Observability
	}

	return Validate(cfg)
}

// migrateGateway converts the single-gateway layout of older documents
// into the local profile.
func migrateGateway(g rawProfile, local Profile) Profile {
	p := local
	if g.Bind != "" {
		p.Bind = g.Bind
	}
	if port, ok := NormalizePort(jsonNumber(g.Port)); ok {
		p.Port = port
	}
	if g.TokenPath != "" {
		p.TokenPath = g.TokenPath
	}
	p.Auth.Token = g.Auth.Token
	return p
}

func jsonNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// WriteFileAtomic writes data to a temporary file in the target directory
// and renames it over path, so readers never observe a partial write.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("config: create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("config: chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("config: replace %s: %w", path, err)
	}
	return nil
}

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// ExpandPath expands a leading "~/" and ${VAR} / ${VAR:-default}
// references in a configured file path. Unresolved variables expand to
// the empty string.
func ExpandPath(path, home string) string {
	if path == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok && home != "" {
		path = filepath.Join(home, rest)
	}
	return envPattern.ReplaceAllStringFunc(path, func(match string) string {
		subs := envPattern.FindStringSubmatch(match)
		if v, ok := os.LookupEnv(subs[1]); ok {
			return v
		}
		return subs[2]
	})
}
