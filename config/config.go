// Package config loads the dispatcher configuration: the static module
// table, remote routes and the settings of every dispatcher component.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Runner kinds.
const (
	RunnerGoja = "goja"
	RunnerCDP  = "cdp"
)

// Config holds all dispatcher settings.
// Priority: CLI flags > env vars > config file > defaults.
type Config struct {
	Host         HostConfig          `toml:"host" yaml:"host"`
	Records      RecordsConfig       `toml:"records" yaml:"records"`
	Runner       RunnerConfig        `toml:"runner" yaml:"runner"`
	Cache        CacheConfig         `toml:"cache" yaml:"cache"`
	Tracing      TracingConfig       `toml:"tracing" yaml:"tracing"`
	Log          LogConfig           `toml:"log" yaml:"log"`
	Modules      []ModuleConfig      `toml:"modules" yaml:"modules"`
	RemoteRoutes []RemoteRouteConfig `toml:"remote_routes" yaml:"remote_routes"`
}

// HostConfig configures the connection to the host lifecycle event feed.
type HostConfig struct {
	EventsURL        string   `toml:"events_url" yaml:"events_url" env:"EVENTS_URL"`
	ReadyInterval    Duration `toml:"ready_interval" yaml:"ready_interval" env:"READY_INTERVAL"`
	ReadyMaxAttempts int      `toml:"ready_max_attempts" yaml:"ready_max_attempts" env:"READY_MAX_ATTEMPTS"`
	DialRetries      int      `toml:"dial_retries" yaml:"dial_retries" env:"DIAL_RETRIES"`
}

// RecordsConfig configures the backend record API used by remote routes.
type RecordsConfig struct {
	BaseURL string   `toml:"base_url" yaml:"base_url" env:"BASE_URL"`
	Token   string   `toml:"token" yaml:"token" env:"TOKEN"`
	Timeout Duration `toml:"timeout" yaml:"timeout" env:"TIMEOUT"`
}

// RunnerConfig selects where module bundles execute.
type RunnerConfig struct {
	Kind   string `toml:"kind" yaml:"kind" env:"KIND"`
	CDPURL string `toml:"cdp_url" yaml:"cdp_url" env:"CDP_URL"`
}

// CacheConfig configures the on-disk bundle cache. An empty Dir disables it.
type CacheConfig struct {
	Dir string `toml:"dir" yaml:"dir" env:"DIR"`
}

// TracingConfig configures span export. An empty Endpoint disables tracing.
type TracingConfig struct {
	Proto    string `toml:"proto" yaml:"proto" env:"PROTO"`
	Endpoint string `toml:"endpoint" yaml:"endpoint" env:"ENDPOINT"`
	Insecure bool   `toml:"insecure" yaml:"insecure" env:"INSECURE"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level          string `toml:"level" yaml:"level" env:"LEVEL"`
	CategoryFilter string `toml:"category_filter" yaml:"category_filter" env:"CATEGORY_FILTER"`
}

// ModuleConfig is one entry of the static module table.
type ModuleConfig struct {
	ID          string        `toml:"id" yaml:"id"`
	URL         string        `toml:"url" yaml:"url"`
	Initializer string        `toml:"initializer" yaml:"initializer"`
	Routes      []RouteConfig `toml:"routes" yaml:"routes"`
	// RequiresHostConfig aborts activation when the host's global
	// configuration object carries no entry for the module.
	RequiresHostConfig bool           `toml:"requires_host_config" yaml:"requires_host_config"`
	Settings           map[string]any `toml:"settings" yaml:"settings"`
}

// RouteConfig is a scene and view pair. An empty View selects the scene itself.
type RouteConfig struct {
	Scene string `toml:"scene" yaml:"scene"`
	View  string `toml:"view" yaml:"view"`
}

// RemoteRouteConfig routes contexts by a field of the current user's
// account record.
type RemoteRouteConfig struct {
	ID     string        `toml:"id" yaml:"id"`
	Routes []RouteConfig `toml:"routes" yaml:"routes"`
	// Field holds the account type of the matched record.
	Field string `toml:"field" yaml:"field"`
	// MatchField is the record field compared against the user id.
	MatchField string            `toml:"match_field" yaml:"match_field"`
	Default    string            `toml:"default" yaml:"default"`
	Branches   map[string]string `toml:"branches" yaml:"branches"`
}

// Duration is a time.Duration that can be decoded from strings like "100ms".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Default returns a Config with all default values and an empty module table.
func Default() *Config {
	return &Config{
		Host: HostConfig{
			ReadyInterval:    Duration(100 * time.Millisecond),
			ReadyMaxAttempts: 100,
			DialRetries:      5,
		},
		Records: RecordsConfig{
			Timeout: Duration(10 * time.Second),
		},
		Runner: RunnerConfig{
			Kind: RunnerGoja,
		},
		Tracing: TracingConfig{
			Proto: "http",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path on top of the defaults and applies
// environment overrides. The file format follows the extension:
// .toml, .yaml or .yml.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.DecodeFile(path, c); err != nil {
			return fmt.Errorf("decoding TOML config %q: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("reading config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("decoding YAML config %q: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	return nil
}
