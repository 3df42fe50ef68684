// Package config describes a standard middleware stack in YAML and builds it.
//
//	scheduler: loop
//	recover: true
//	request_id: true
//	timeout: 5s
//	logging: true
//	rate_limit:
//	  rate: 100
//	  burst: 20
//	  per_operation: true
//	tracing:
//	  enabled: true
//	  service_name: orders
//
// Stack turns a Config into a compose.Builder with the units in canonical
// order; callers append their own units with Use.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Scheduler names accepted in the scheduler field.
const (
	SchedulerInline     = "inline"
	SchedulerGoroutines = "goroutines"
	SchedulerLoop       = "loop"
)

const (
	DefaultScheduler   = SchedulerInline
	DefaultServiceName = "compose"
	DefaultNamespace   = "compose"
)

// Config describes which standard units run and how they are tuned.
type Config struct {
	Scheduler string        `yaml:"scheduler"`
	Recover   bool          `yaml:"recover"`
	RequestID bool          `yaml:"request_id"`
	Logging   bool          `yaml:"logging"`
	Timeout   time.Duration `yaml:"timeout"`

	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
	Throttle  *ThrottleConfig  `yaml:"throttle,omitempty"`
	Tracing   TracingConfig    `yaml:"tracing"`
	Metrics   MetricsConfig    `yaml:"metrics"`
}

// RateLimitConfig enables middleware.RateLimit.
type RateLimitConfig struct {
	Rate         int  `yaml:"rate"`
	Burst        int  `yaml:"burst"`
	PerOperation bool `yaml:"per_operation"`
}

// ThrottleConfig enables middleware.Throttle.
type ThrottleConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// TracingConfig enables middleware.OTel.
type TracingConfig struct {
	Enabled        bool     `yaml:"enabled"`
	ServiceName    string   `yaml:"service_name"`
	SkipOperations []string `yaml:"skip_operations"`
}

// MetricsConfig enables middleware.Metrics.
type MetricsConfig struct {
	Enabled   bool      `yaml:"enabled"`
	Namespace string    `yaml:"namespace"`
	Buckets   []float64 `yaml:"buckets"`
}

// Default returns the configuration used when no file is given: recovery,
// request ids and logging on the inline scheduler.
func Default() *Config {
	return &Config{
		Scheduler: DefaultScheduler,
		Recover:   true,
		RequestID: true,
		Logging:   true,
		Tracing:   TracingConfig{ServiceName: DefaultServiceName},
		Metrics:   MetricsConfig{Namespace: DefaultNamespace},
	}
}

// Load reads and parses the file at path, then applies environment
// overrides. A missing file yields Default with overrides applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		data = nil
	}

	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML document over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	cfg := Default()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	if c.Scheduler == "" {
		c.Scheduler = DefaultScheduler
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = DefaultServiceName
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
	if c.RateLimit != nil && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = c.RateLimit.Rate
	}
	if c.Throttle != nil && c.Throttle.Burst == 0 {
		c.Throttle.Burst = 1
	}
}

// Environment variables that override file settings.
const (
	EnvScheduler = "COMPOSE_SCHEDULER"
	EnvTimeout   = "COMPOSE_TIMEOUT"
	EnvRateLimit = "COMPOSE_RATE_LIMIT"
	EnvTracing   = "COMPOSE_TRACING"
	EnvMetrics   = "COMPOSE_METRICS"
)

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvScheduler); v != "" {
		c.Scheduler = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}
	if v := os.Getenv(EnvRateLimit); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRateLimit, err)
		}
		if c.RateLimit == nil {
			c.RateLimit = &RateLimitConfig{Burst: rate}
		}
		c.RateLimit.Rate = rate
	}
	if v := os.Getenv(EnvTracing); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTracing, err)
		}
		c.Tracing.Enabled = enabled
	}
	if v := os.Getenv(EnvMetrics); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMetrics, err)
		}
		c.Metrics.Enabled = enabled
	}
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains([]string{SchedulerInline, SchedulerGoroutines, SchedulerLoop}, c.Scheduler) {
		errs = append(errs, fmt.Errorf("scheduler: unknown value %q", c.Scheduler))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout: must not be negative"))
	}
	if rl := c.RateLimit; rl != nil {
		if rl.Rate <= 0 {
			errs = append(errs, errors.New("rate_limit.rate: must be positive"))
		}
		if rl.Burst <= 0 {
			errs = append(errs, errors.New("rate_limit.burst: must be positive"))
		}
	}
	if th := c.Throttle; th != nil {
		if th.Rate <= 0 {
			errs = append(errs, errors.New("throttle.rate: must be positive"))
		}
		if th.Burst <= 0 {
			errs = append(errs, errors.New("throttle.burst: must be positive"))
		}
	}
	if !slices.IsSorted(c.Metrics.Buckets) {
		errs = append(errs, errors.New("metrics.buckets: must be sorted"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
