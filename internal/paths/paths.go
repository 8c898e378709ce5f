// Package paths resolves the on-disk locations clawdesk reads and writes.
// Every location can be overridden independently through the environment,
// which is mostly useful for test isolation.
package paths

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Paths is the resolved set of file locations.
type Paths struct {
	ConfigDir  string
	ConfigPath string
	SecretPath string
	PIDPath    string
	LogPath    string
	EventsPath string
	UsagePath  string

	OpenClawDir        string
	OpenClawConfigPath string
	OpenClawSkillsPath string
}

// env binds each key to the environment variable that overrides it.
var env = map[string]string{
	"config_dir":           "CLAWDESK_CONFIG_DIR",
	"config_path":          "CLAWDESK_CONFIG_PATH",
	"secret_path":          "CLAWDESK_SECRET_PATH",
	"pid_path":             "CLAWDESK_PID_PATH",
	"log_path":             "CLAWDESK_LOG_PATH",
	"events_path":          "CLAWDESK_EVENTS_PATH",
	"usage_path":           "CLAWDESK_USAGE_PATH",
	"openclaw_dir":         "OPENCLAW_CONFIG_DIR",
	"openclaw_config_path": "OPENCLAW_CONFIG_PATH",
	"openclaw_skills_path": "OPENCLAW_SKILLS_PATH",
}

// Resolve computes all paths from the environment, falling back to
// ~/.config/clawdesk and ~/.openclaw.
func Resolve() Paths {
	home, _ := os.UserHomeDir()
	return resolve(newViper(), home)
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, name := range env {
		_ = v.BindEnv(key, name)
	}
	return v
}

func resolve(v *viper.Viper, home string) Paths {
	v.SetDefault("config_dir", filepath.Join(home, ".config", "clawdesk"))
	dir := v.GetString("config_dir")

	v.SetDefault("config_path", filepath.Join(dir, "config.json"))
	v.SetDefault("secret_path", filepath.Join(dir, "secret"))
	v.SetDefault("pid_path", filepath.Join(dir, "clawdesk.pid"))
	v.SetDefault("log_path", filepath.Join(dir, "clawdesk.log"))
	v.SetDefault("events_path", filepath.Join(dir, "events.jsonl"))
	v.SetDefault("usage_path", filepath.Join(dir, "usage.db"))

	v.SetDefault("openclaw_dir", filepath.Join(home, ".openclaw"))
	ocDir := v.GetString("openclaw_dir")
	v.SetDefault("openclaw_config_path", filepath.Join(ocDir, "openclaw.json"))
	v.SetDefault("openclaw_skills_path", filepath.Join(ocDir, "skills.json"))

	return Paths{
		ConfigDir:          dir,
		ConfigPath:         v.GetString("config_path"),
		SecretPath:         v.GetString("secret_path"),
		PIDPath:            v.GetString("pid_path"),
		LogPath:            v.GetString("log_path"),
		EventsPath:         v.GetString("events_path"),
		UsagePath:          v.GetString("usage_path"),
		OpenClawDir:        ocDir,
		OpenClawConfigPath: v.GetString("openclaw_config_path"),
		OpenClawSkillsPath: v.GetString("openclaw_skills_path"),
	}
}

// InDir returns Paths rooted at dir for both the clawdesk and openclaw
// trees. Used by tests and by `clawdesk start --dir`.
func InDir(dir string) Paths {
	oc := filepath.Join(dir, "openclaw")
	return Paths{
		ConfigDir:          dir,
		ConfigPath:         filepath.Join(dir, "config.json"),
		SecretPath:         filepath.Join(dir, "secret"),
		PIDPath:            filepath.Join(dir, "clawdesk.pid"),
		LogPath:            filepath.Join(dir, "clawdesk.log"),
		EventsPath:         filepath.Join(dir, "events.jsonl"),
		UsagePath:          filepath.Join(dir, "usage.db"),
		OpenClawDir:        oc,
		OpenClawConfigPath: filepath.Join(oc, "openclaw.json"),
		OpenClawSkillsPath: filepath.Join(oc, "skills.json"),
	}
}
