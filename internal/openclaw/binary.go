// Package openclaw runs the external OpenClaw CLI and wraps the handful
// of commands and files clawdesk understands: gateway status and
// lifecycle, logs, usage, doctor/audit, agents, and skills.
package openclaw

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// DefaultCandidates are the executable names tried, in order. The CLI has
// been renamed twice; older installs still ship the earlier names.
var DefaultCandidates = []string{"openclaw", "clawdbot", "moltbot"}

// FallbackName is invoked when no candidate is found on PATH.
const FallbackName = "openclaw"

// Binary is the result of detection.
type Binary struct {
	Name  string `json:"name"`
	Path  string `json:"path,omitempty"`
	Found bool   `json:"found"`
}

// Command returns what to hand to exec.
func (b Binary) Command() string {
	if b.Path != "" {
		return b.Path
	}
	return b.Name
}

// Detector locates the CLI once and caches the answer for its lifetime.
type Detector struct {
	// Candidates default to DefaultCandidates.
	Candidates []string

	// PathEnv overrides $PATH.
	PathEnv string

	// Lenient accepts files without the executable bit and tries each
	// PATHEXT variant. Set on Windows and WSL.
	Lenient bool

	// Extensions are the PATHEXT variants tried in lenient mode.
	Extensions []string

	once sync.Once
	bin  Binary
}

// NewDetector returns a Detector configured for the running platform.
func NewDetector() *Detector {
	lenient := runtime.GOOS == "windows" || IsWSL()
	d := &Detector{Lenient: lenient}
	if lenient {
		d.Extensions = WindowsExtensions(os.Getenv("PATHEXT"))
	}
	return d
}

// Detect returns the first candidate found, trying candidates in list
// order and, for each, every PATH directory in order. The result is
// computed once.
func (d *Detector) Detect() Binary {
	d.once.Do(func() {
		d.bin = d.detect()
	})
	return d.bin
}

func (d *Detector) detect() Binary {
	candidates := d.Candidates
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}
	pathEnv := d.PathEnv
	if pathEnv == "" {
		pathEnv = os.Getenv("PATH")
	}
	var dirs []string
	for _, dir := range filepath.SplitList(pathEnv) {
		if dir = strings.TrimSpace(dir); dir != "" {
			dirs = append(dirs, dir)
		}
	}

	for _, candidate := range candidates {
		names := []string{candidate}
		if d.Lenient {
			names = variants(candidate, d.Extensions)
		}
		for _, dir := range dirs {
			for _, name := range names {
				full := filepath.Join(dir, name)
				if usable(full, d.Lenient) {
					return Binary{Name: candidate, Path: full, Found: true}
				}
			}
		}
	}
	return Binary{Name: FallbackName}
}

func variants(name string, exts []string) []string {
	seen := map[string]bool{name: true}
	out := []string{name}
	for _, ext := range exts {
		v := name + ext
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func usable(path string, lenient bool) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return lenient || info.Mode().Perm()&0o111 != 0
}

// IsWSL reports whether the process runs under Windows Subsystem for Linux.
func IsWSL() bool {
	raw, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(raw)), "microsoft")
}

// WindowsExtensions parses a PATHEXT value into lowercase, dot-prefixed
// extensions. An empty value means ".EXE;.CMD;.BAT".
func WindowsExtensions(pathext string) []string {
	if strings.TrimSpace(pathext) == "" {
		pathext = ".EXE;.CMD;.BAT"
	}
	var out []string
	for _, ext := range strings.Split(pathext, ";") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
