// Package routing resolves an abstract config name or role default to a
// concrete provider+model+credential triple.
package routing

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// ProviderConfig is the resolved triple after credential merging from a
// provider-keyed credentials store.
type ProviderConfig struct {
	ProviderID     string
	ModelID        string
	APIKey         string
	BaseURL        string
	Headers        map[string]string
	EnableCaching  bool
	Temperature    *float64
	MaxTokens      int
}

// Config is the full router configuration: named provider configs plus a
// per-role default mapping.
type Config struct {
	Configs  map[string]ProviderConfig
	Defaults map[string]string // role -> config name
}

// Context is the caller-supplied resolution request.
type Context struct {
	ConfigName string
	AgentName  string // used as the role key when ConfigName is empty
}

// roleFallbackOrder is tried, in order, when neither an explicit role
// default nor a direct config name resolves anything.
var roleFallbackOrder = []string{"agents", "analyze", "orchestrator"}

// ConfigRef is the result of a successful resolve: the config name and its
// resolved ProviderConfig.
type ConfigRef struct {
	Name   string
	Config ProviderConfig
}

// Router resolves Context values to ConfigRefs per the fixed order:
//
//	defaults.<role> -> <role> as a direct config name -> configName as a
//	direct config name -> first of {agents, analyze, orchestrator} defaults
//	-> first available config.
//
// Configs are immutable after construction; the only mutation vector is
// Reload, which swaps the whole config atomically so no reader ever
// observes a half-updated router.
type Router struct {
	cfg atomic.Pointer[Config]
}

// NewRouter constructs a Router from an initial Config.
func NewRouter(cfg Config) *Router {
	r := &Router{}
	r.cfg.Store(&cfg)
	return r
}

// Reload atomically replaces the router's configuration. The new map is
// built in full by the caller before this call; Reload only swaps the
// pointer, so no reader observes a partially-updated map.
func (r *Router) Reload(cfg Config) {
	r.cfg.Store(&cfg)
}

// Resolve implements the resolution order documented on Router.
func (r *Router) Resolve(ctx Context) (ConfigRef, error) {
	cfg := r.cfg.Load()
	if cfg == nil || len(cfg.Configs) == 0 {
		return ConfigRef{}, fmt.Errorf("No LLM configurations available")
	}

	role := ctx.AgentName
	if ctx.ConfigName != "" {
		role = ctx.ConfigName
	}

	if role != "" {
		if name, ok := cfg.Defaults[role]; ok {
			if ref, ok := r.lookup(cfg, name); ok {
				return ref, nil
			}
		}
		if ref, ok := r.lookup(cfg, role); ok {
			return ref, nil
		}
	}

	if ctx.ConfigName != "" {
		if ref, ok := r.lookup(cfg, ctx.ConfigName); ok {
			return ref, nil
		}
	}

	for _, fallbackRole := range roleFallbackOrder {
		if name, ok := cfg.Defaults[fallbackRole]; ok {
			if ref, ok := r.lookup(cfg, name); ok {
				return ref, nil
			}
		}
	}

	// Resolution must be deterministic for a given (configs, defaults,
	// context) triple (property 4), so the final fallback picks the
	// lexicographically first config name rather than relying on Go's
	// randomized map iteration order.
	if name, ok := firstKey(cfg.Configs); ok {
		return ConfigRef{Name: name, Config: cfg.Configs[name]}, nil
	}

	key := ctx.ConfigName
	if key == "" {
		key = role
	}
	return ConfigRef{}, fmt.Errorf("No LLM configuration found for key: %s", key)
}

func firstKey(m map[string]ProviderConfig) (string, bool) {
	if len(m) == 0 {
		return "", false
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0], true
}

func (r *Router) lookup(cfg *Config, name string) (ConfigRef, bool) {
	if name == "" {
		return ConfigRef{}, false
	}
	pc, ok := cfg.Configs[name]
	if !ok {
		return ConfigRef{}, false
	}
	return ConfigRef{Name: name, Config: pc}, true
}

// Service is what a per-agent scoped driver forwards requests to.
type Service interface {
	Resolve(ctx Context) (ConfigRef, error)
}

// AgentScoped wraps a Router so every Resolve call has AgentName pre-filled,
// isolating per-agent routing (e.g. an "analyzer" agent always resolves the
// analyze default) without requiring the caller to know its own name.
type AgentScoped struct {
	router    Service
	agentName string
}

// NewAgentScoped returns a Service that injects agentName into every request.
func NewAgentScoped(router Service, agentName string) *AgentScoped {
	return &AgentScoped{router: router, agentName: agentName}
}

// Resolve forwards to the wrapped router with AgentName set to the scoped
// agent, unless the caller already supplied an explicit ConfigName.
func (a *AgentScoped) Resolve(ctx Context) (ConfigRef, error) {
	if ctx.AgentName == "" {
		ctx.AgentName = a.agentName
	}
	return a.router.Resolve(ctx)
}
