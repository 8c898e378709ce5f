package security

import (
	"slices"

	"github.com/clawdesk/clawdesk/internal/config"
)

// implemented is the set of actions the server has handlers for. An
// allow-list entry outside this set never grants anything.
var implemented = map[string]bool{
	"gateway.status":      true,
	"gateway.logs":        true,
	"gateway.probe":       true,
	"gateway.dashboard":   true,
	"gateway.start":       true,
	"gateway.stop":        true,
	"gateway.restart":     true,
	"agents.list":         true,
	"agents.create":       true,
	"agents.default":      true,
	"agents.rename":       true,
	"agents.delete":       true,
	"agents.import":       true,
	"agents.export":       true,
	"skills.list":         true,
	"skills.refresh":      true,
	"skills.toggle":       true,
	"config.read":         true,
	"config.write":        true,
	"openclaw.doctor":     true,
	"openclaw.audit":      true,
	"openclaw.audit.deep": true,
	"secret.rotate":       true,
	"profiles.read":       true,
	"profiles.activate":   true,
	"profiles.write":      true,
	"profiles.delete":     true,
	"macros.read":         true,
	"macros.run":          true,
	"macros.write":        true,
	"usage.read":          true,
	"usage.export":        true,
	"usage.snapshot":      true,
	"events.read":         true,
}

// ImplementedActions returns the sorted set of actions the server can perform.
func ImplementedActions() []string {
	out := make([]string, 0, len(implemented))
	for a := range implemented {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// IsImplemented reports whether action has a handler.
func IsImplemented(action string) bool {
	return implemented[action]
}

// Authorizer decides whether an action may run. It reloads the config on
// every check so policy edits take effect without a restart.
type Authorizer struct {
	Load func() (*config.Config, error)
}

// NewAuthorizer returns an Authorizer that reads policy from store.
func NewAuthorizer(store *config.Store) *Authorizer {
	return &Authorizer{Load: store.Load}
}

// IsAllowed is true iff action is implemented and present in the live
// security.allow_actions list. A config that fails to load allows nothing.
func (a *Authorizer) IsAllowed(action string) bool {
	if !implemented[action] || a == nil || a.Load == nil {
		return false
	}
	cfg, err := a.Load()
	if err != nil || cfg == nil {
		return false
	}
	return slices.Contains(cfg.Security.AllowActions, action)
}
