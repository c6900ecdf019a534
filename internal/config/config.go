// Package config loads shuffle read settings from an optional YAML file and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables shared by coordinator and nodes.
type Config struct {
	// MaxMBInFlight caps the megabytes of fragments fetched but not yet
	// consumed by one reduce-side read.
	MaxMBInFlight int `yaml:"max_mb_in_flight"`

	// MaxConcurrentFetches bounds simultaneous fragment fetches per read.
	MaxConcurrentFetches int `yaml:"max_concurrent_fetches"`

	// FetchTimeout bounds one remote fragment fetch.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// HealthInterval is how often the coordinator probes nodes.
	HealthInterval time.Duration `yaml:"health_interval"`

	// HealthMaxFailures is the number of consecutive failed probes after
	// which a node and its map output are considered lost.
	HealthMaxFailures int `yaml:"health_max_failures"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		MaxMBInFlight:        48,
		MaxConcurrentFetches: 5,
		FetchTimeout:         30 * time.Second,
		HealthInterval:       5 * time.Second,
		HealthMaxFailures:    3,
	}
}

// MaxBytesInFlight converts MaxMBInFlight to bytes.
func (c Config) MaxBytesInFlight() int64 {
	return int64(c.MaxMBInFlight) << 20
}

// Validate rejects settings the services cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.MaxMBInFlight <= 0 {
		errs = append(errs, fmt.Errorf("max_mb_in_flight must be positive, got %d", c.MaxMBInFlight))
	}
	if c.MaxConcurrentFetches <= 0 {
		errs = append(errs, fmt.Errorf("max_concurrent_fetches must be positive, got %d", c.MaxConcurrentFetches))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch_timeout must be positive, got %v", c.FetchTimeout))
	}
	if c.HealthInterval <= 0 {
		errs = append(errs, fmt.Errorf("health_interval must be positive, got %v", c.HealthInterval))
	}
	if c.HealthMaxFailures <= 0 {
		errs = append(errs, fmt.Errorf("health_max_failures must be positive, got %d", c.HealthMaxFailures))
	}
	return errors.Join(errs...)
}

// Load reads path (if non-empty) over the defaults and then applies
// environment overrides. Keys missing from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("SHUFFLE_MAX_MB_IN_FLIGHT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SHUFFLE_MAX_MB_IN_FLIGHT: %w", err)
		}
		cfg.MaxMBInFlight = n
	}
	if v := os.Getenv("SHUFFLE_MAX_CONCURRENT_FETCHES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SHUFFLE_MAX_CONCURRENT_FETCHES: %w", err)
		}
		cfg.MaxConcurrentFetches = n
	}
	if v := os.Getenv("SHUFFLE_FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SHUFFLE_FETCH_TIMEOUT: %w", err)
		}
		cfg.FetchTimeout = d
	}
	return nil
}
