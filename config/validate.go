package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrAmbiguousRoute is returned when one scene and view pair is routed to
// more than one module.
var ErrAmbiguousRoute = errors.New("ambiguous static route")

// ErrInvalidConfig wraps every other validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks the configuration before any component is built.
// It reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if c.Host.ReadyInterval <= 0 {
		invalid("host.ready_interval must be positive, got %s", c.Host.ReadyInterval)
	}
	if c.Host.ReadyMaxAttempts <= 0 {
		invalid("host.ready_max_attempts must be positive, got %d", c.Host.ReadyMaxAttempts)
	}
	switch c.Runner.Kind {
	case RunnerGoja:
	case RunnerCDP:
		if c.Runner.CDPURL == "" {
			invalid("runner.cdp_url is required for the %q runner", RunnerCDP)
		}
	default:
		invalid("unknown runner kind %q", c.Runner.Kind)
	}

	ids := make(map[string]bool, len(c.Modules))
	owners := make(map[RouteConfig]string)
	for i, m := range c.Modules {
		if m.ID == "" {
			invalid("modules[%d]: missing id", i)
			continue
		}
		if ids[m.ID] {
			invalid("modules[%d]: duplicate id %q", i, m.ID)
		}
		ids[m.ID] = true

		if err := validateURL(m.URL); err != nil {
			invalid("module %q: %v", m.ID, err)
		}
		for _, r := range m.Routes {
			if r.Scene == "" {
				invalid("module %q: route without scene", m.ID)
				continue
			}
			if owner, ok := owners[r]; ok && owner != m.ID {
				errs = append(errs, fmt.Errorf("%w: %s routed to both %q and %q",
					ErrAmbiguousRoute, routeString(r), owner, m.ID))
				continue
			}
			owners[r] = m.ID
		}
	}

	for i, rr := range c.RemoteRoutes {
		name := rr.ID
		if name == "" {
			name = fmt.Sprintf("remote_routes[%d]", i)
		}
		if rr.Field == "" {
			invalid("remote route %q: missing field", name)
		}
		if rr.Default == "" {
			invalid("remote route %q: missing default module", name)
		} else if !ids[rr.Default] {
			invalid("remote route %q: unknown default module %q", name, rr.Default)
		}
		for value, id := range rr.Branches {
			if !ids[id] {
				invalid("remote route %q: branch %q references unknown module %q", name, value, id)
			}
		}
		if len(rr.Routes) == 0 {
			invalid("remote route %q: no routes", name)
		}
	}
	if len(c.RemoteRoutes) > 0 && c.Records.BaseURL == "" {
		invalid("records.base_url is required by remote routes")
	}

	return errors.Join(errs...)
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("missing url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing url %q: %w", raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("url %q has no host", raw)
		}
	default:
		return fmt.Errorf("url %q: unsupported scheme %q", raw, u.Scheme)
	}
	return nil
}

func routeString(r RouteConfig) string {
	if r.View == "" {
		return r.Scene
	}
	return r.Scene + "/" + r.View
}
