package config

import (
	"fmt"

	"github.com/builderkit/modloader/activation"
)

// HostState exposes what the host page supplied at runtime and what the
// dispatcher cached for it. Config builders read it on every activation.
type HostState interface {
	// HostConfig returns the host's configuration entry for a module.
	HostConfig(moduleID string) (map[string]any, bool)
	// Fragment returns the cached rendered HTML for an activation key.
	Fragment(key string) (string, bool)
}

// RemoteRoute is the validated form of a RemoteRouteConfig.
type RemoteRoute struct {
	ID         string
	Routes     []activation.RouteMatcher
	Field      string
	MatchField string
	Default    *activation.Descriptor
	Branches   map[string]*activation.Descriptor
}

// Eligible reports whether actx is routed by the remote route.
func (r *RemoteRoute) Eligible(actx activation.Context) bool {
	for _, m := range r.Routes {
		if m.Matches(actx) {
			return true
		}
	}
	return false
}

// Branch returns the descriptor for an account type, or the default.
func (r *RemoteRoute) Branch(accountType string) *activation.Descriptor {
	if d, ok := r.Branches[accountType]; ok {
		return d
	}
	return r.Default
}

// Descriptors builds the immutable module descriptors and remote routes.
// The configuration must have been validated.
func (c *Config) Descriptors(state HostState) ([]*activation.Descriptor, []*RemoteRoute) {
	byID := make(map[string]*activation.Descriptor, len(c.Modules))
	descs := make([]*activation.Descriptor, 0, len(c.Modules))
	for _, m := range c.Modules {
		d := &activation.Descriptor{
			ID:          m.ID,
			SourceURL:   m.URL,
			Routes:      matchers(m.Routes),
			Initializer: m.Initializer,
			BuildConfig: configBuilder(m, state),
		}
		byID[m.ID] = d
		descs = append(descs, d)
	}

	routes := make([]*RemoteRoute, 0, len(c.RemoteRoutes))
	for _, rr := range c.RemoteRoutes {
		r := &RemoteRoute{
			ID:         rr.ID,
			Routes:     matchers(rr.Routes),
			Field:      rr.Field,
			MatchField: rr.MatchField,
			Default:    byID[rr.Default],
			Branches:   make(map[string]*activation.Descriptor, len(rr.Branches)),
		}
		for value, id := range rr.Branches {
			r.Branches[value] = byID[id]
		}
		routes = append(routes, r)
	}

	return descs, routes
}

func matchers(rcs []RouteConfig) []activation.RouteMatcher {
	ms := make([]activation.RouteMatcher, 0, len(rcs))
	for _, rc := range rcs {
		ms = append(ms, activation.RouteMatcher{SceneID: rc.Scene, ViewID: rc.View})
	}
	return ms
}

// configBuilder merges, in order, the module's static settings, the host's
// entry for the module and the activation keys.
func configBuilder(m ModuleConfig, state HostState) activation.ConfigBuilder {
	return func(actx activation.Context) (activation.Config, error) {
		cfg := make(activation.Config, len(m.Settings)+3)
		for k, v := range m.Settings {
			cfg[k] = v
		}

		var (
			host map[string]any
			ok   bool
		)
		if state != nil {
			host, ok = state.HostConfig(m.ID)
		}
		if !ok && m.RequiresHostConfig {
			return nil, fmt.Errorf("module %q: %w", m.ID, activation.ErrConfigMissing)
		}
		for k, v := range host {
			cfg[k] = v
		}

		cfg["sceneKey"] = actx.SceneID
		cfg["viewKey"] = actx.ViewID
		if state != nil {
			if html, ok := state.Fragment(actx.Key()); ok {
				cfg["cachedHTML"] = html
			}
		}

		return cfg, nil
	}
}
