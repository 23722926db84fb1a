package agent

import (
	"strings"

	"github.com/R2i2Labs/fin-agent-ui/internal/config"
	"github.com/R2i2Labs/fin-agent-ui/internal/llm"
)

// Exchange roles routed by the strategy configuration.
const (
	RoleChat   = "chat"
	RoleScript = "script"
)

// Router picks models per exchange role with ordered fallbacks. An empty
// role model falls through to the fallbacks and finally to the registry's
// default.
type Router struct {
	registry *llm.Registry
	cfg      config.StrategyConfig
}

// NewRouter builds a role-based model router.
func NewRouter(registry *llm.Registry, cfg config.StrategyConfig) *Router {
	return &Router{registry: registry, cfg: cfg}
}

// Resolve returns the provider and route for a role.
func (r *Router) Resolve(role string) (llm.Provider, llm.ModelRoute, error) {
	if modelID := r.roleModel(role); modelID != "" {
		if p, route, err := r.registry.Resolve(modelID); err == nil {
			return p, route, nil
		}
	}
	for _, fb := range r.cfg.Fallbacks {
		if p, route, err := r.registry.Resolve(fb); err == nil {
			return p, route, nil
		}
	}
	return r.registry.Resolve("")
}

func (r *Router) roleModel(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleScript:
		return r.cfg.ScriptModel
	default:
		return r.cfg.ChatModel
	}
}
