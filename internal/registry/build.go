package registry

import (
	"sort"
	"strings"

	"llmvisor/internal/config"
)

// New builds a Registry from a decoded models file. path is only used to
// label validation errors. Every validation failure is a *config.ConfigError.
func New(mf config.ModelsFile, path string) (*Registry, error) {
	if mf.VRAMTotalGB <= 0 {
		return nil, config.Errorf(path, "vram_total_gb must be > 0")
	}
	if mf.VRAMReservedGB < 0 || mf.VRAMReservedGB >= mf.VRAMTotalGB {
		return nil, config.Errorf(path, "vram_reserved_gb must be in [0, vram_total_gb)")
	}
	r := &Registry{
		totalGB:    mf.VRAMTotalGB,
		reservedGB: mf.VRAMReservedGB,
		models:     make(map[string]Descriptor, len(mf.Models)),
		byBackend:  make(map[string]string, len(mf.Models)),
		aliases:    make(map[string]string, len(mf.Aliases)),
		fallback:   make(map[string][]FallbackCandidate, len(mf.CloudFallback)),
	}
	for key, m := range mf.Models {
		if strings.TrimSpace(key) == "" {
			return nil, config.Errorf(path, "model key must not be empty")
		}
		if strings.TrimSpace(m.OllamaName) == "" {
			return nil, config.Errorf(path, "model %q: ollama_name is required", key)
		}
		if m.VRAMGB < 0 {
			return nil, config.Errorf(path, "model %q: vram_gb must be >= 0", key)
		}
		if other, dup := r.byBackend[m.OllamaName]; dup {
			return nil, config.Errorf(path, "models %q and %q share backend name %q", other, key, m.OllamaName)
		}
		r.models[key] = Descriptor{
			Key:          key,
			Backend:      m.OllamaName,
			Role:         m.Role,
			VRAMGB:       m.VRAMGB,
			Default:      m.Default,
			AlwaysLoaded: m.AlwaysLoaded,
			OnDemand:     m.OnDemand,
		}
		r.byBackend[m.OllamaName] = key
		r.keys = append(r.keys, key)
	}
	sort.Strings(r.keys)

	for alias, key := range mf.Aliases {
		if _, ok := r.models[key]; !ok {
			return nil, config.Errorf(path, "alias %q targets unknown model %q", alias, key)
		}
		if _, clash := r.models[alias]; clash {
			return nil, config.Errorf(path, "alias %q shadows a model key", alias)
		}
		r.aliases[alias] = key
	}

	for role, chain := range mf.CloudFallback {
		for i, c := range chain {
			if c.Provider == "" || c.Model == "" {
				return nil, config.Errorf(path, "cloud_fallback %s[%d]: provider and model are required", role, i)
			}
			r.fallback[role] = append(r.fallback[role], FallbackCandidate{
				Provider: strings.ToLower(c.Provider),
				Model:    c.Model,
				EnvKey:   c.EnvKey,
			})
		}
	}

	// A backend name that is also an alias or key elsewhere would make
	// resolution non-idempotent.
	for _, d := range r.models {
		if got := r.Resolve(d.Backend); got != d.Backend {
			return nil, config.Errorf(path, "backend name %q of model %q resolves to %q", d.Backend, d.Key, got)
		}
	}
	return r, nil
}
