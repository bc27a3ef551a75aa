package config

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration so YAML accepts human-readable values
// like "30s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig    `yaml:"server"`
	Engine   EngineConfig    `yaml:"engine"`
	Services []ServiceConfig `yaml:"services"`
	Redis    RedisConfig     `yaml:"redis"`
	Logging  LoggingConfig   `yaml:"logging"`
	Database DatabaseConfig  `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// EngineConfig holds the resilience engine settings.
type EngineConfig struct {
	Retry             RetryConfig   `yaml:"retry"`
	Breaker           BreakerConfig `yaml:"breaker"`
	Health            HealthConfig  `yaml:"health"`
	MonitorInterval   Duration      `yaml:"monitor_interval"`   // default 30s
	HistoryCapacity   int           `yaml:"history_capacity"`   // in-memory history bound
	HistoryRetention  Duration      `yaml:"history_retention"`  // 0 = infinite
	RequiredResources []string      `yaml:"required_resources"` // open breaker here = critical
}

// RetryConfig holds retry timing parameters.
type RetryConfig struct {
	BackoffBase    Duration `yaml:"backoff_base"`
	BackoffCap     Duration `yaml:"backoff_cap"`
	FixedDelay     Duration `yaml:"fixed_delay"`
	DefaultTimeout Duration `yaml:"default_timeout"`
	MaxRetries     int      `yaml:"max_retries"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	Threshold   int      `yaml:"threshold"`
	OpenTimeout Duration `yaml:"open_timeout"`
}

// HealthConfig holds health status thresholds.
type HealthConfig struct {
	DegradedBelow float64 `yaml:"degraded_below"`
	CriticalBelow float64 `yaml:"critical_below"`
}

// ServiceConfig describes one monitored external dependency.
type ServiceConfig struct {
	Name      string   `yaml:"name"`
	Required  bool     `yaml:"required"`
	Strategy  string   `yaml:"strategy"` // mock, proxy, cache, disable
	CheckURL  string   `yaml:"check_url"`
	AltTarget string   `yaml:"alt_target"`
	Interval  Duration `yaml:"interval"`
	Timeout   Duration `yaml:"timeout"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// DatabaseConfig holds postgres connection settings.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}
