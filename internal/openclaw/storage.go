package openclaw

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/clawdesk/clawdesk/internal/config"
)

// Store reads and writes the CLI's own JSON files. Every write is preceded
// by a timestamped backup of the previous content.
type Store struct {
	ConfigPath string
	SkillsPath string

	// LookPath resolves `bin` skill requirements. Defaults to exec.LookPath.
	LookPath func(string) (string, error)

	now func() time.Time

	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex
}

// NewStore returns a Store for openclaw.json and skills.json.
func NewStore(configPath, skillsPath string) *Store {
	return &Store{ConfigPath: configPath, SkillsPath: skillsPath, now: time.Now}
}

// Document is a decoded JSON file. Data is nil when the file is absent
// or does not hold a JSON object.
type Document struct {
	Path    string
	Exists  bool
	Data    map[string]any
	Warning string
}

func (s *Store) read(path string) (Document, error) {
	doc := Document{Path: path}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("openclaw: reading %s: %w", path, err)
	}
	doc.Exists = true
	if err := json.Unmarshal(raw, &doc.Data); err != nil {
		doc.Data = nil
		doc.Warning = path + " is not a valid JSON object"
	}
	return doc, nil
}

func (s *Store) write(path string, data map[string]any) error {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	if _, err := config.BackupFile(path, now()); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("openclaw: encoding %s: %w", path, err)
	}
	return config.WriteFileAtomic(path, append(raw, '\n'), 0o600)
}

// ReadConfig returns openclaw.json.
func (s *Store) ReadConfig() (Document, error) { return s.read(s.ConfigPath) }

// WriteConfig backs up and replaces openclaw.json.
func (s *Store) WriteConfig(data map[string]any) error { return s.write(s.ConfigPath, data) }

// ReadSkills returns skills.json.
func (s *Store) ReadSkills() (Document, error) { return s.read(s.SkillsPath) }

// WriteSkills backs up and replaces skills.json.
func (s *Store) WriteSkills(data map[string]any) error { return s.write(s.SkillsPath, data) }
