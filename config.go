package aipostblog

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level router configuration.
type Config struct {
	Backends         map[string]BackendConfig `yaml:"backends" mapstructure:"backends"`
	Temperature      *float64                 `yaml:"temperature" mapstructure:"temperature"` // nil means DefaultTemperature; 0 is kept
	MaxTokens        int                      `yaml:"max_tokens" mapstructure:"max_tokens"`
	Period           Period                   `yaml:"period" mapstructure:"period"`
	Fallback         string                   `yaml:"fallback" mapstructure:"fallback"` // default, cost_first or free_first
	Plans            map[PlanTier]int64       `yaml:"plans" mapstructure:"plans"`
	Store            StoreConfig              `yaml:"store" mapstructure:"store"`
	RolloverInterval time.Duration            `yaml:"rollover_interval" mapstructure:"rollover_interval"`
	Log              LogConfig                `yaml:"log" mapstructure:"log"`
}

// BackendConfig configures one upstream backend.
type BackendConfig struct {
	APIKey            string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
}

// StoreConfig selects the quota store.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // memory, sqlite, postgres or redis
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("aipostblog: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config bytes, applies defaults and validates.
func ParseConfig(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("aipostblog: parse config: %w", err)
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithDefaults returns a copy with unset fields filled.
func (c Config) WithDefaults() Config {
	if c.Backends == nil {
		c.Backends = make(map[string]BackendConfig)
	}
	if c.Temperature == nil {
		t := DefaultTemperature
		c.Temperature = &t
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Period == "" {
		c.Period = PeriodMonthly
	}
	if c.Store.Driver == "" {
		c.Store.Driver = StoreMemory
	}
	if c.RolloverInterval == 0 {
		c.RolloverInterval = time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return c
}

// GenerationTemperature returns the configured temperature, or
// DefaultTemperature when none is set. An explicit 0 is returned as is.
func (c Config) GenerationTemperature() float64 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if t := c.GenerationTemperature(); t < 0 || t > 2 {
		return fmt.Errorf("aipostblog: config: temperature %v out of range [0, 2]", t)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("aipostblog: config: max_tokens must not be negative")
	}
	if err := c.Period.Validate(); err != nil {
		return fmt.Errorf("aipostblog: config: %w", err)
	}

	switch c.Fallback {
	case "", "default", "cost_first", "free_first":
	default:
		return fmt.Errorf("aipostblog: config: unknown fallback strategy %q", c.Fallback)
	}

	for tier, tokens := range c.Plans {
		if !tier.Valid() {
			return fmt.Errorf("aipostblog: config: plans: unknown tier %q", tier)
		}
		if tokens < 0 {
			return fmt.Errorf("aipostblog: config: plans.%s: budget must not be negative", tier)
		}
	}

	for id, b := range c.Backends {
		if b.Timeout < 0 {
			return fmt.Errorf("aipostblog: config: backends.%s: timeout must not be negative", id)
		}
		if b.RequestsPerSecond < 0 {
			return fmt.Errorf("aipostblog: config: backends.%s: requests_per_second must not be negative", id)
		}
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite, StorePostgres, StoreRedis:
		if c.Store.DSN == "" {
			return fmt.Errorf("aipostblog: config: store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("aipostblog: config: unknown store driver %q", c.Store.Driver)
	}

	if c.RolloverInterval < 0 {
		return fmt.Errorf("aipostblog: config: rollover_interval must not be negative")
	}
	return nil
}

// PlanBudgets returns the default plans with configured budget overrides applied.
func (c Config) PlanBudgets() Plans {
	plans := DefaultPlans()
	for tier, tokens := range c.Plans {
		p := plans[tier]
		p.Tier = tier
		p.Tokens = tokens
		plans[tier] = p
	}
	return plans
}
