package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// APIKeyEnv is the environment variable holding the Steam Web API key
const APIKeyEnv = "STEAM_API_KEY"

// Weights are the per-signal multipliers used by the associate ranker
type Weights struct {
	Mutual  float64 `yaml:"mutual"`
	Jaccard float64 `yaml:"jaccard"`
	Groups  float64 `yaml:"groups"`
	Games   float64 `yaml:"games"`
}

// Config holds all runtime configuration parameters
type Config struct {
	Depth              int     `yaml:"depth"`
	MaxNodes           int     `yaml:"max_nodes"`
	RateLimitRPM       int     `yaml:"rate_limit_rpm"`
	SkipPrivate        bool    `yaml:"skip_private_profiles"`
	IncludeGroupLinks  bool    `yaml:"include_group_links"`
	IncludeGameOverlap bool    `yaml:"include_game_overlap"`
	HubPercentile      float64 `yaml:"hub_percentile"`
	Weights            Weights `yaml:"weights"`

	CheckpointEvery  int    `yaml:"checkpoint_every"`
	DryRunSample     int    `yaml:"dry_run_sample"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms"`
	RetryAttempts    int    `yaml:"retry_attempts"`
	RetryDelayMs     int    `yaml:"retry_delay_ms"`
	APIBaseURL       string `yaml:"api_base_url"`
	DBPath           string `yaml:"db_path"`
	OutputDir        string `yaml:"output_dir"`
	MetricsPath      string `yaml:"metrics_path"`

	// APIKey is never read from the config file
	APIKey string `yaml:"-"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	// Bounded fields are set here rather than in applyDefaults so that an
	// explicit zero in the file fails validation
	cfg := &Config{
		Depth:         2,
		MaxNodes:      500,
		RateLimitRPM:  60,
		HubPercentile: 0.99,
		SkipPrivate:   true,
		Weights: Weights{
			Mutual:  1.0,
			Jaccard: 1.0,
			Groups:  0.5,
			Games:   0.0,
		},
	}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig reads and validates configuration from a YAML file.
// A missing file is not an error; defaults are used instead.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	cfg.APIKey = os.Getenv(APIKeyEnv)

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(cfg *Config) {
	if cfg.CheckpointEvery == 0 {
		cfg.CheckpointEvery = 25
	}
	if cfg.DryRunSample == 0 {
		cfg.DryRunSample = 50
	}
	if cfg.RequestTimeoutMs == 0 {
		cfg.RequestTimeoutMs = 25000
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelayMs == 0 {
		cfg.RetryDelayMs = 1000
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.steampowered.com"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "weaver.db"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "outputs"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "metrics.json"
	}
}

// validate checks that values are sensible
func validate(cfg *Config) error {
	if cfg.Depth < 1 {
		return fmt.Errorf("depth must be >= 1")
	}
	if cfg.MaxNodes < 1 {
		return fmt.Errorf("max_nodes must be >= 1")
	}
	if cfg.RateLimitRPM < 1 {
		return fmt.Errorf("rate_limit_rpm must be >= 1")
	}
	if cfg.HubPercentile <= 0 || cfg.HubPercentile >= 1 {
		return fmt.Errorf("hub_percentile must be in (0,1)")
	}
	w := cfg.Weights
	if w.Mutual < 0 || w.Jaccard < 0 || w.Groups < 0 || w.Games < 0 {
		return fmt.Errorf("weights must be non-negative")
	}
	if cfg.CheckpointEvery < 1 {
		return fmt.Errorf("checkpoint_every must be >= 1")
	}
	if cfg.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be >= 1")
	}
	if cfg.RequestTimeoutMs < 1000 {
		return fmt.Errorf("request_timeout_ms must be >= 1000")
	}
	return nil
}

// RequireAPIKey reports an error when no credential is available
func (c *Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return fmt.Errorf("%s is not set", APIKeyEnv)
	}
	return nil
}
