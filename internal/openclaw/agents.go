package openclaw

import (
	"maps"
	"slices"
	"strings"

	"github.com/clawdesk/clawdesk/internal/apperr"
	"github.com/clawdesk/clawdesk/internal/config"
)

// Agent is the normalized view of one agent entry.
type Agent struct {
	Name         string         `json:"name"`
	Provider     string         `json:"provider,omitempty"`
	Model        string         `json:"model,omitempty"`
	StoragePath  string         `json:"storage_path,omitempty"`
	Disabled     bool           `json:"disabled"`
	LastActivity string         `json:"last_activity,omitempty"`
	Metadata     map[string]any `json:"metadata"`
	Default      bool           `json:"default"`
}

// AgentInput is the payload for creating or importing an agent.
type AgentInput struct {
	Name        string         `json:"name" validate:"required,max=128"`
	Provider    string         `json:"provider,omitempty"`
	Model       string         `json:"model,omitempty"`
	StoragePath string         `json:"storage_path,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// AgentList is the response of ListAgents.
type AgentList struct {
	Agents       []Agent `json:"agents"`
	DefaultAgent string  `json:"defaultAgent,omitempty"`
	Source       string  `json:"source"`
	Path         string  `json:"path"`
	Exists       bool    `json:"exists"`
	Warning      string  `json:"warning,omitempty"`
}

// agentShape is the layout the agents live in inside openclaw.json. The
// CLI has used several over time; writes preserve whichever was found.
type agentShape int

const (
	shapeArray     agentShape = iota // "agents": [...], "defaultAgent": "x"
	shapeListField                   // "agents": {"list": [...], "default": "x"}
	shapeKeyed                       // "agents": {"name": {...}, "default": "x"}
	shapeClawdesk                    // "clawdesk": {"agents": {"list": [...], "default": "x"}}
)

type agentContainer struct {
	shape      agentShape
	list       []map[string]any
	defaultKey string
}

func (c *agentContainer) source() string {
	if c.shape == shapeClawdesk {
		return "clawdesk"
	}
	return "openclaw"
}

func (c *agentContainer) index(name string) int {
	return slices.IndexFunc(c.list, func(a map[string]any) bool { return agentName(a) == name })
}

func agentName(a map[string]any) string {
	s, _ := a["name"].(string)
	return s
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func toList(v any) []map[string]any {
	items, _ := v.([]any)
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		switch a := it.(type) {
		case string:
			out = append(out, map[string]any{"name": a})
		case map[string]any:
			out = append(out, maps.Clone(a))
		}
	}
	return out
}

func readAgents(doc map[string]any) *agentContainer {
	switch agents := doc["agents"].(type) {
	case []any:
		return &agentContainer{shape: shapeArray, list: toList(agents), defaultKey: str(doc, "defaultAgent")}
	case map[string]any:
		if list, ok := agents["list"].([]any); ok {
			return &agentContainer{shape: shapeListField, list: toList(list), defaultKey: str(agents, "default")}
		}
		c := &agentContainer{shape: shapeKeyed, defaultKey: str(agents, "default")}
		keys := slices.Sorted(maps.Keys(agents))
		for _, k := range keys {
			if k == "default" {
				continue
			}
			entry, _ := agents[k].(map[string]any)
			a := maps.Clone(entry)
			if a == nil {
				a = map[string]any{}
			}
			a["name"] = k
			c.list = append(c.list, a)
		}
		return c
	}
	c := &agentContainer{shape: shapeClawdesk}
	if cd, ok := doc["clawdesk"].(map[string]any); ok {
		if agents, ok := cd["agents"].(map[string]any); ok {
			c.list = toList(agents["list"])
			c.defaultKey = str(agents, "default")
		}
	}
	return c
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (c *agentContainer) writeTo(doc map[string]any) {
	list := make([]any, len(c.list))
	for i, a := range c.list {
		list[i] = a
	}
	switch c.shape {
	case shapeArray:
		doc["agents"] = list
		if c.defaultKey != "" {
			doc["defaultAgent"] = c.defaultKey
		}
	case shapeListField:
		agents, _ := doc["agents"].(map[string]any)
		next := maps.Clone(agents)
		next["list"] = list
		next["default"] = nullable(c.defaultKey)
		doc["agents"] = next
	case shapeKeyed:
		next := map[string]any{"default": nullable(c.defaultKey)}
		for _, a := range c.list {
			entry := maps.Clone(a)
			delete(entry, "name")
			next[agentName(a)] = entry
		}
		doc["agents"] = next
	default:
		cd, _ := doc["clawdesk"].(map[string]any)
		if cd == nil {
			cd = map[string]any{}
		}
		cd["agents"] = map[string]any{"list": list, "default": nullable(c.defaultKey)}
		doc["clawdesk"] = cd
	}
}

func normalizeAgent(a map[string]any) Agent {
	meta, _ := a["metadata"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
	}
	storage := str(a, "storage_path")
	if storage == "" {
		storage = str(a, "path")
	}
	disabled, _ := a["disabled"].(bool)
	return Agent{
		Name:         agentName(a),
		Provider:     str(a, "provider"),
		Model:        str(a, "model"),
		StoragePath:  storage,
		Disabled:     disabled,
		LastActivity: str(a, "last_activity"),
		Metadata:     meta,
	}
}

// loadAgents reads openclaw.json and its agent container. The returned
// map is never nil.
func (s *Store) loadAgents() (Document, map[string]any, *agentContainer, error) {
	doc, err := s.ReadConfig()
	if err != nil {
		return doc, nil, nil, err
	}
	data := doc.Data
	if data == nil {
		data = map[string]any{}
	}
	return doc, data, readAgents(data), nil
}

func (s *Store) saveAgents(data map[string]any, c *agentContainer) error {
	c.writeTo(data)
	return s.WriteConfig(data)
}

// ListAgents returns the normalized agents. When no default is recorded
// the first agent is reported as default.
func (s *Store) ListAgents() (*AgentList, error) {
	doc, _, c, err := s.loadAgents()
	if err != nil {
		return nil, err
	}
	out := &AgentList{
		Agents:  []Agent{},
		Source:  c.source(),
		Path:    doc.Path,
		Exists:  doc.Exists,
		Warning: doc.Warning,
	}
	if !doc.Exists {
		out.Warning = "openclaw.json not found"
	}
	def := c.defaultKey
	for _, a := range c.list {
		ag := normalizeAgent(a)
		if ag.Name == "" {
			continue
		}
		if def == "" {
			def = ag.Name
		}
		out.Agents = append(out.Agents, ag)
	}
	out.DefaultAgent = def
	for i := range out.Agents {
		out.Agents[i].Default = out.Agents[i].Name == def
	}
	return out, nil
}

// CreateAgent appends a new agent. The first agent becomes the default.
func (s *Store) CreateAgent(in AgentInput) (*Agent, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := config.Check(in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, data, c, err := s.loadAgents()
	if err != nil {
		return nil, err
	}
	if c.index(in.Name) >= 0 {
		return nil, apperr.Validation("agent already exists: " + in.Name)
	}
	meta := in.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	entry := map[string]any{
		"name":          in.Name,
		"provider":      nullable(in.Provider),
		"model":         nullable(in.Model),
		"storage_path":  nullable(in.StoragePath),
		"disabled":      false,
		"last_activity": nil,
		"metadata":      meta,
	}
	c.list = append(c.list, entry)
	if c.defaultKey == "" {
		c.defaultKey = in.Name
	}
	if err := s.saveAgents(data, c); err != nil {
		return nil, err
	}
	ag := normalizeAgent(entry)
	ag.Default = c.defaultKey == in.Name
	return &ag, nil
}

// SetDefaultAgent marks name as the default agent.
func (s *Store) SetDefaultAgent(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, data, c, err := s.loadAgents()
	if err != nil {
		return err
	}
	if c.index(name) < 0 {
		return apperr.NotFound("agent not found: " + name)
	}
	c.defaultKey = name
	return s.saveAgents(data, c)
}

// RenameAgent renames an agent, carrying the default marker along.
func (s *Store) RenameAgent(name, next string) (*Agent, error) {
	next = strings.TrimSpace(next)
	if next == "" {
		return nil, apperr.Validation("new agent name required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, data, c, err := s.loadAgents()
	if err != nil {
		return nil, err
	}
	if c.index(next) >= 0 {
		return nil, apperr.Validation("agent already exists: " + next)
	}
	i := c.index(name)
	if i < 0 {
		return nil, apperr.NotFound("agent not found: " + name)
	}
	c.list[i]["name"] = next
	if c.defaultKey == name {
		c.defaultKey = next
	}
	if err := s.saveAgents(data, c); err != nil {
		return nil, err
	}
	ag := normalizeAgent(c.list[i])
	ag.Default = c.defaultKey == next
	return &ag, nil
}

// DeleteAgent removes an agent. If it was the default, the next remaining
// agent (if any) becomes the default.
func (s *Store) DeleteAgent(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, data, c, err := s.loadAgents()
	if err != nil {
		return err
	}
	i := c.index(name)
	if i < 0 {
		return apperr.NotFound("agent not found: " + name)
	}
	c.list = slices.Delete(c.list, i, i+1)
	if c.defaultKey == name {
		c.defaultKey = ""
		if len(c.list) > 0 {
			c.defaultKey = agentName(c.list[0])
		}
	}
	return s.saveAgents(data, c)
}

// ImportAgent creates an agent from an exported definition.
func (s *Store) ImportAgent(in AgentInput) (*Agent, error) {
	return s.CreateAgent(in)
}

// ExportAgent returns the normalized definition of one agent.
func (s *Store) ExportAgent(name string) (*Agent, error) {
	_, _, c, err := s.loadAgents()
	if err != nil {
		return nil, err
	}
	i := c.index(name)
	if i < 0 {
		return nil, apperr.NotFound("agent not found: " + name)
	}
	ag := normalizeAgent(c.list[i])
	ag.Default = c.defaultKey == name
	return &ag, nil
}
