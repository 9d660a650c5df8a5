// Package config loads simulator configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/talgya/segregation/internal/experiment"
	"github.com/talgya/segregation/internal/logging"
	"github.com/talgya/segregation/internal/schelling"
	"github.com/talgya/segregation/internal/seed"
)

// Config contains all simulator settings.
type Config struct {
	// Model holds the parameters of single runs.
	Model ModelConfig `yaml:"model"`

	// Experiment configures batch runs over several radii.
	Experiment ExperimentConfig `yaml:"experiment"`

	// Storage configures the results database.
	Storage StorageConfig `yaml:"storage"`

	// API configures the HTTP reporting server.
	API APIConfig `yaml:"api"`

	// Logging configures the operational logger.
	Logging LoggingConfig `yaml:"logging"`
}

// ModelConfig holds the model parameters and the initial line of single runs.
type ModelConfig struct {
	Neighborhood  int            `yaml:"neighborhood"`
	Threshold     float64        `yaml:"threshold"`
	MaxIterations int            `yaml:"max_iterations"`
	Initial       seed.GenConfig `yaml:"initial"`
}

// ExperimentConfig holds the settings of batch runs. Threshold and the sweep
// cap come from ModelConfig.
type ExperimentConfig struct {
	Neighborhoods []int          `yaml:"neighborhoods"`
	SampleSize    int            `yaml:"sample_size"`
	Workers       int            `yaml:"workers"`
	Initial       seed.GenConfig `yaml:"initial"`
}

// StorageConfig locates the SQLite results database. Empty disables export.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Port int `yaml:"port"`

	// RateLimit is the number of simulation requests allowed per client per
	// minute.
	RateLimit int `yaml:"rate_limit"`

	// MaxLineSize bounds the lines accepted by the simulation endpoints.
	MaxLineSize int `yaml:"max_line_size"`

	// MaxIterations and MaxNeighborhood bound the params of a request.
	MaxIterations   int `yaml:"max_iterations"`
	MaxNeighborhood int `yaml:"max_neighborhood"`

	// TrustForwardedFor keys rate limiting on X-Forwarded-For. Set it only
	// behind a reverse proxy.
	TrustForwardedFor bool `yaml:"trust_forwarded_for"`
}

// LoggingConfig sets the log verbosity: trace, debug, info, warn or error.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a Config reproducing the original study.
func Default() *Config {
	plan := experiment.DefaultPlan()
	initial := seed.DefaultGenConfig()
	initial.Kind = seed.KindOriginal
	return &Config{
		Model: ModelConfig{
			Neighborhood:  schelling.DefaultNeighborhood,
			Threshold:     schelling.DefaultThreshold,
			MaxIterations: schelling.DefaultMaxIterations,
			Initial:       initial,
		},
		Experiment: ExperimentConfig{
			Neighborhoods: plan.Neighborhoods,
			SampleSize:    plan.SampleSize,
			Workers:       0,
			Initial:       plan.Initial,
		},
		Storage: StorageConfig{
			Path: "",
		},
		API: APIConfig{
			Port:            8080,
			RateLimit:       60,
			MaxLineSize:     2000,
			MaxIterations:   1000,
			MaxNeighborhood: 100,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path when
// path is not empty, then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Params returns the model parameters of single runs.
func (c *Config) Params() schelling.Params {
	return schelling.Params{
		Neighborhood:  c.Model.Neighborhood,
		Threshold:     c.Model.Threshold,
		MaxIterations: c.Model.MaxIterations,
	}
}

// Plan returns the experiment plan.
func (c *Config) Plan() experiment.Plan {
	return experiment.Plan{
		Neighborhoods: append([]int(nil), c.Experiment.Neighborhoods...),
		Threshold:     c.Model.Threshold,
		MaxIterations: c.Model.MaxIterations,
		SampleSize:    c.Experiment.SampleSize,
		Initial:       c.Experiment.Initial,
		Workers:       c.Experiment.Workers,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.Params().Validate(); err != nil {
		return err
	}
	if err := c.Plan().Validate(); err != nil {
		return fmt.Errorf("experiment: %w", err)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api port must be within 0..65535, got %d", c.API.Port)
	}
	if c.API.RateLimit < 1 {
		return fmt.Errorf("api rate_limit must be positive, got %d", c.API.RateLimit)
	}
	if c.API.MaxLineSize < 1 {
		return fmt.Errorf("api max_line_size must be positive, got %d", c.API.MaxLineSize)
	}
	if c.API.MaxIterations < 1 || c.API.MaxNeighborhood < 1 {
		return fmt.Errorf("api max_iterations and max_neighborhood must be positive, got %d and %d",
			c.API.MaxIterations, c.API.MaxNeighborhood)
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: trace, debug, info, warn, error)", c.Logging.Level)
	}
	return nil
}

// applyEnvOverrides applies SCHELLING_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SCHELLING_NEIGHBORHOOD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCHELLING_NEIGHBORHOOD: %w", err)
		}
		cfg.Model.Neighborhood = n
	}
	if v := os.Getenv("SCHELLING_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SCHELLING_THRESHOLD: %w", err)
		}
		cfg.Model.Threshold = f
	}
	if v := os.Getenv("SCHELLING_MAX_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCHELLING_MAX_ITERATIONS: %w", err)
		}
		cfg.Model.MaxIterations = n
	}
	if v := os.Getenv("SCHELLING_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SCHELLING_SEED: %w", err)
		}
		cfg.Experiment.Initial.Seed = n
		cfg.Model.Initial.Seed = n
	}
	if v := os.Getenv("SCHELLING_DB"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("SCHELLING_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCHELLING_PORT: %w", err)
		}
		cfg.API.Port = n
	}
	if v := os.Getenv("SCHELLING_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}
