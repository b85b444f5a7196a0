package registry

import (
	"sort"

	"llmvisor/internal/config"
)

// FallbackDefaultModel is returned by DefaultModel when no descriptor is
// flagged default.
const FallbackDefaultModel = "llama3.1:8b"

// RoleUnknown is reported for backend names the registry does not describe.
const RoleUnknown = "unknown"

// Descriptor describes one registry model. Immutable after load.
type Descriptor struct {
	Key          string  `json:"key"`
	Backend      string  `json:"backend"`
	Role         string  `json:"role"`
	VRAMGB       float64 `json:"vram_gb"`
	Default      bool    `json:"default"`
	AlwaysLoaded bool    `json:"always_loaded"`
	OnDemand     bool    `json:"on_demand"`
}

// FallbackCandidate is one entry of a role's cloud fallback chain.
type FallbackCandidate struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	EnvKey   string `json:"env_key"`
}

// Registry resolves logical model names to backend names. All lookups are
// pure functions of the loaded config; the registry is safe for concurrent use
// because nothing mutates it after New returns.
type Registry struct {
	totalGB    float64
	reservedGB float64
	keys       []string
	models     map[string]Descriptor
	byBackend  map[string]string
	aliases    map[string]string
	fallback   map[string][]FallbackCandidate
}

// Load reads and validates the registry file at path.
func Load(path string) (*Registry, error) {
	mf, err := config.LoadModels(path)
	if err != nil {
		return nil, err
	}
	return New(mf, path)
}

// Resolve maps alias → registry key → backend name. Names that are neither an
// alias nor a key pass through unchanged so raw backend names keep working.
func (r *Registry) Resolve(name string) string {
	if key, ok := r.aliases[name]; ok {
		name = key
	}
	if d, ok := r.models[name]; ok {
		return d.Backend
	}
	return name
}

// ModelInfo looks a descriptor up by key, alias or backend name.
func (r *Registry) ModelInfo(name string) (Descriptor, bool) {
	if d, ok := r.models[name]; ok {
		return d, true
	}
	if key, ok := r.aliases[name]; ok {
		d, ok := r.models[key]
		return d, ok
	}
	if key, ok := r.byBackend[name]; ok {
		return r.models[key], true
	}
	return Descriptor{}, false
}

// DefaultModel returns the backend name of the first descriptor flagged
// default, in ascending key order.
func (r *Registry) DefaultModel() string {
	for _, k := range r.keys {
		if d := r.models[k]; d.Default {
			return d.Backend
		}
	}
	return FallbackDefaultModel
}

// RoleForModel returns the role of a backend model, or RoleUnknown.
func (r *Registry) RoleForModel(backend string) string {
	if d, ok := r.ModelInfo(backend); ok && d.Role != "" {
		return d.Role
	}
	return RoleUnknown
}

// Models returns all descriptors ordered by key.
func (r *Registry) Models() []Descriptor {
	out := make([]Descriptor, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, r.models[k])
	}
	return out
}

// Aliases returns a copy of the alias map.
func (r *Registry) Aliases() map[string]string {
	out := make(map[string]string, len(r.aliases))
	for k, v := range r.aliases {
		out[k] = v
	}
	return out
}

// FallbackChain returns a copy of the cloud fallback chain for role.
func (r *Registry) FallbackChain(role string) []FallbackCandidate {
	return append([]FallbackCandidate(nil), r.fallback[role]...)
}

// Roles lists the roles that have a fallback chain, sorted.
func (r *Registry) Roles() []string {
	out := make([]string, 0, len(r.fallback))
	for role := range r.fallback {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// Budget returns the configured VRAM total and reserved amounts in GB.
func (r *Registry) Budget() (totalGB, reservedGB float64) {
	return r.totalGB, r.reservedGB
}
