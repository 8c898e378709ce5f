package openclaw

import (
	"maps"
	"os/exec"
	"regexp"

	"github.com/clawdesk/clawdesk/internal/apperr"
)

// Skill statuses.
const (
	SkillEnabled  = "enabled"
	SkillDisabled = "disabled"
	SkillMissing  = "missing"
)

// Requirement is a precondition of a skill. Only "bin" requirements are
// checked; other types are assumed satisfied.
type Requirement struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Command string `json:"command,omitempty"`
}

// Skill is the normalized view of one skill.
type Skill struct {
	Name                string        `json:"name"`
	Description         string        `json:"description"`
	Enabled             bool          `json:"enabled"`
	Status              string        `json:"status"`
	Requirements        []Requirement `json:"requirements"`
	MissingRequirements []Requirement `json:"missing_requirements"`
}

// SkillList is the response of ListSkills.
type SkillList struct {
	Skills  []Skill `json:"skills"`
	Source  string  `json:"source"`
	Path    string  `json:"path"`
	Exists  bool    `json:"exists"`
	Warning string  `json:"warning,omitempty"`
}

var binName = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

type skillSource struct {
	name string
	doc  Document
	list []map[string]any
}

// resolveSkills prefers a "skills" array inside openclaw.json and falls
// back to skills.json.
func (s *Store) resolveSkills() (*skillSource, error) {
	oc, err := s.ReadConfig()
	if err != nil {
		return nil, err
	}
	if oc.Data != nil && oc.Data["skills"] != nil {
		return &skillSource{name: "openclaw", doc: oc, list: toList(oc.Data["skills"])}, nil
	}
	sk, err := s.ReadSkills()
	if err != nil {
		return nil, err
	}
	src := &skillSource{name: "skills.json", doc: sk}
	if sk.Data != nil {
		src.list = toList(sk.Data["skills"])
	}
	if !sk.Exists {
		src.doc.Warning = "skills.json not found"
	}
	return src, nil
}

func (s *Store) lookPath(name string) bool {
	look := s.LookPath
	if look == nil {
		look = exec.LookPath
	}
	_, err := look(name)
	return err == nil
}

func (s *Store) satisfied(r Requirement) bool {
	if r.Type != "bin" {
		return true
	}
	return binName.MatchString(r.Name) && s.lookPath(r.Name)
}

func parseRequirements(v any) []Requirement {
	items, _ := v.([]any)
	out := []Requirement{}
	for _, it := range items {
		switch r := it.(type) {
		case string:
			out = append(out, Requirement{Type: "bin", Name: r, Command: "which " + r})
		case map[string]any:
			out = append(out, Requirement{Type: str(r, "type"), Name: str(r, "name"), Command: str(r, "command")})
		}
	}
	return out
}

func (s *Store) normalizeSkill(m map[string]any) Skill {
	reqs := parseRequirements(m["requirements"])
	missing := []Requirement{}
	for _, r := range reqs {
		if !s.satisfied(r) {
			missing = append(missing, r)
		}
	}
	enabled, _ := m["enabled"].(bool)
	status := SkillDisabled
	switch {
	case len(missing) > 0:
		status = SkillMissing
	case enabled:
		status = SkillEnabled
	}
	return Skill{
		Name:                str(m, "name"),
		Description:         str(m, "description"),
		Enabled:             enabled,
		Status:              status,
		Requirements:        reqs,
		MissingRequirements: missing,
	}
}

// ListSkills returns every skill with its requirement check evaluated now.
func (s *Store) ListSkills() (*SkillList, error) {
	src, err := s.resolveSkills()
	if err != nil {
		return nil, err
	}
	out := &SkillList{
		Skills:  []Skill{},
		Source:  src.name,
		Path:    src.doc.Path,
		Exists:  src.doc.Exists,
		Warning: src.doc.Warning,
	}
	for _, m := range src.list {
		out.Skills = append(out.Skills, s.normalizeSkill(m))
	}
	return out, nil
}

// RefreshSkills re-evaluates requirements. Nothing is cached, so it is
// the same as ListSkills.
func (s *Store) RefreshSkills() (*SkillList, error) {
	return s.ListSkills()
}

// ToggleSkill enables or disables a skill and persists the full list to
// skills.json.
func (s *Store) ToggleSkill(name string, enabled bool) (*Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.resolveSkills()
	if err != nil {
		return nil, err
	}
	list := make([]any, len(src.list))
	var target map[string]any
	for i, m := range src.list {
		cp := maps.Clone(m)
		if target == nil && str(cp, "name") == name {
			target = cp
		}
		list[i] = cp
	}
	if target == nil {
		return nil, apperr.NotFound("skill not found: " + name)
	}
	target["enabled"] = enabled
	if err := s.WriteSkills(map[string]any{"skills": list}); err != nil {
		return nil, err
	}
	sk := s.normalizeSkill(target)
	return &sk, nil
}
