package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv,
// e.g. MODLOADER_HOST_EVENTS_URL.
const EnvPrefix = "MODLOADER_"

// ApplyEnv overrides settings from environment variables. A nil environ
// reads the process environment. The module table and remote routes are
// file-only.
func (c *Config) ApplyEnv(environ map[string]string) error {
	sections := []struct {
		prefix string
		target any
	}{
		{"HOST_", &c.Host},
		{"RECORDS_", &c.Records},
		{"RUNNER_", &c.Runner},
		{"CACHE_", &c.Cache},
		{"TRACING_", &c.Tracing},
		{"LOG_", &c.Log},
	}
	for _, s := range sections {
		opts := env.Options{
			Prefix:      EnvPrefix + s.prefix,
			Environment: environ,
		}
		if err := env.ParseWithOptions(s.target, opts); err != nil {
			return fmt.Errorf("parse env: %w", err)
		}
	}
	return nil
}
