package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

type registryKey struct {
	category Category
	name     string
}

// Registry indexes plugins by (category, name). It is populated once
// at startup and read-only afterwards, so it may be shared across
// concurrent requests without synchronization.
type Registry struct {
	log      *slog.Logger
	static   Settings
	plugins  map[registryKey]Plugin
	settings SettingsProvider
	sealed   bool
}

func NewRegistry(log *slog.Logger, static Settings) *Registry {
	if static == nil {
		static = Settings{}
	}
	return &Registry{
		log:     log,
		static:  static,
		plugins: make(map[registryKey]Plugin),
	}
}

// Register adds a plugin to the registry. Duplicate (category, name)
// pairs and a second Settings plugin are rejected.
func (r *Registry) Register(p Plugin) error {
	if r.sealed {
		return fmt.Errorf("plugin: registry is sealed, cannot register %q", p.Name())
	}

	k := registryKey{category: p.Category(), name: p.Name()}
	if _, exists := r.plugins[k]; exists {
		return fmt.Errorf("plugin: duplicate %s plugin %q", p.Category(), p.Name())
	}

	if p.Category() == CategorySettings {
		if r.settings != nil {
			return fmt.Errorf("plugin: settings plugin already active (%q), cannot add %q",
				r.settings.Name(), p.Name())
		}
		sp, ok := p.(SettingsProvider)
		if !ok {
			return fmt.Errorf("plugin: %q registered as settings but does not provide request settings", p.Name())
		}
		r.settings = sp
	}

	r.plugins[k] = p
	return nil
}

// Seal marks registration complete. Further Register calls fail.
func (r *Registry) Seal() { r.sealed = true }

// Lookup returns the plugin registered under (category, name).
func (r *Registry) Lookup(category Category, name string) (Plugin, bool) {
	p, ok := r.plugins[registryKey{category: category, name: name}]
	return p, ok
}

// Finder resolves a required Finder plugin by name.
func (r *Registry) Finder(name string) (Finder, error) {
	p, ok := r.Lookup(CategoryFinder, name)
	if !ok {
		return nil, fmt.Errorf("plugin: finder %q is not registered", name)
	}
	f, ok := p.(Finder)
	if !ok {
		return nil, fmt.Errorf("plugin: %q is not a finder", name)
	}
	return f, nil
}

// ChallengeMethod resolves an authenticator plugin by name.
func (r *Registry) ChallengeMethod(name string) (ChallengeMethod, error) {
	p, ok := r.Lookup(CategoryAuthenticator, name)
	if !ok {
		return nil, fmt.Errorf("plugin: challenge method %q is not registered", name)
	}
	m, ok := p.(ChallengeMethod)
	if !ok {
		return nil, fmt.Errorf("plugin: %q is not a challenge method", name)
	}
	return m, nil
}

// ChallengeMethods returns every registered authenticator plugin,
// ordered by name for stable rendering.
func (r *Registry) ChallengeMethods() []ChallengeMethod {
	var out []ChallengeMethod
	for k, p := range r.plugins {
		if k.category != CategoryAuthenticator {
			continue
		}
		if m, ok := p.(ChallengeMethod); ok {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Registrar resolves an optional Registrar plugin. A missing name is
// logged and disables the capability rather than failing startup.
func (r *Registry) Registrar(name string) Registrar {
	if name == "" {
		return nil
	}
	p, ok := r.Lookup(CategoryRegistrar, name)
	if !ok {
		r.log.Warn("registrar plugin not registered, disabling", "plugin", name)
		return nil
	}
	reg, ok := p.(Registrar)
	if !ok {
		r.log.Warn("plugin is not a registrar, disabling", "plugin", name)
		return nil
	}
	return reg
}

// Template resolves a Template plugin by name.
func (r *Registry) Template(name string) (Template, error) {
	p, ok := r.Lookup(CategoryTemplate, name)
	if !ok {
		return nil, fmt.Errorf("plugin: template %q is not registered", name)
	}
	t, ok := p.(Template)
	if !ok {
		return nil, fmt.Errorf("plugin: %q is not a template", name)
	}
	return t, nil
}

// StaticSettings returns the process-wide configuration snapshot.
func (r *Registry) StaticSettings() Settings { return r.static }

// SettingsFor returns a plugin's prefix-scoped configuration.
func (r *Registry) SettingsFor(name string) Settings {
	return r.static.ForPlugin(name)
}

// RequestSettings computes the resolved settings snapshot for a host:
// the static configuration overlaid with the Settings plugin's
// per-host overrides, highest precedence last. The returned snapshot
// is immutable for the life of the request.
func (r *Registry) RequestSettings(ctx context.Context, host string) Settings {
	if r.settings == nil {
		return r.static
	}

	override, err := r.settings.GetRequestSettings(ctx, host)
	if err != nil {
		r.log.Error("settings plugin failed, using static configuration",
			"plugin", r.settings.Name(), "host", host, "error", err)
		return r.static
	}
	if len(override) == 0 {
		return r.static
	}
	return r.static.Overlay(override)
}
