package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opentalon/funchost/internal/description"
)

type Config struct {
	Root      string              `yaml:"root"`
	Providers []string            `yaml:"providers"`
	Scripts   map[string][]string `yaml:"scripts"`
	Resolve   ResolveConfig       `yaml:"resolve"`
	Log       LogConfig           `yaml:"log"`
	State     StateConfig         `yaml:"state"`
	Redis     RedisConfig         `yaml:"redis"`
	Metrics   MetricsConfig       `yaml:"metrics"`
	Watch     WatchConfig         `yaml:"watch"`
	Timers    TimersConfig        `yaml:"timers"`
}

type ResolveConfig struct {
	Workers int `yaml:"workers"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// StateConfig selects where registrations are persisted. An empty driver
// disables persistence.
type StateConfig struct {
	Driver  string `yaml:"driver"`
	DataDir string `yaml:"data_dir"`
	DSN     string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type MetricsConfig struct {
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
}

type WatchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Debounce string `yaml:"debounce"`
}

// TimersConfig enables firing timer-triggered functions on their schedules.
// StatusDir keeps the last occurrence of each timer across restarts.
type TimersConfig struct {
	Enabled   bool   `yaml:"enabled"`
	StatusDir string `yaml:"status_dir"`
}

// DebounceDuration returns the parsed debounce; Validate guarantees it parses.
func (w WatchConfig) DebounceDuration() time.Duration {
	d, _ := time.ParseDuration(w.Debounce)
	return d
}

const (
	DefaultWorkers  = 8
	DefaultDebounce = "500ms"
)

var DefaultProviders = []string{description.ProviderLua, description.ProviderScript}

var envPattern = regexp.MustCompile(`\$\{([^}]+)}`)

func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func expandEnvInConfig(cfg *Config) {
	cfg.Root = expandEnv(cfg.Root)
	cfg.State.DataDir = expandEnv(cfg.State.DataDir)
	cfg.State.DSN = expandEnv(cfg.State.DSN)
	cfg.Redis.Addr = expandEnv(cfg.Redis.Addr)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Log.File = expandEnv(cfg.Log.File)
	cfg.Timers.StatusDir = expandEnv(cfg.Timers.StatusDir)
}

func applyDefaults(cfg *Config) {
	if len(cfg.Providers) == 0 {
		cfg.Providers = append([]string(nil), DefaultProviders...)
	}
	if cfg.Resolve.Workers <= 0 {
		cfg.Resolve.Workers = DefaultWorkers
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.State.Driver == "sqlite" && cfg.State.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.State.DataDir = filepath.Join(home, ".funchost")
		}
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "funchost"
	}
	if cfg.Metrics.Listen != "" && cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Watch.Debounce == "" {
		cfg.Watch.Debounce = DefaultDebounce
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for _, p := range c.Providers {
		if p != description.ProviderLua && p != description.ProviderScript {
			return fmt.Errorf("providers: unknown provider %q", p)
		}
		if seen[p] {
			return fmt.Errorf("providers: %q listed twice", p)
		}
		seen[p] = true
	}
	for ext, cmd := range c.Scripts {
		if strings.TrimSpace(ext) == "" {
			return fmt.Errorf("scripts: empty extension")
		}
		if len(cmd) == 0 || cmd[0] == "" {
			return fmt.Errorf("scripts: %s: command is required", ext)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	switch c.State.Driver {
	case "":
	case "sqlite":
		if c.State.DataDir == "" {
			return fmt.Errorf("state.data_dir is required for sqlite")
		}
	case "postgres":
		if c.State.DSN == "" {
			return fmt.Errorf("state.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("state.driver: unknown driver %q", c.State.Driver)
	}
	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return fmt.Errorf("watch.debounce: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("watch.debounce must be positive")
	}
	return nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	expandEnvInConfig(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}
