package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort        = 8090
	defaultEngineURL   = "http://127.0.0.1:8000"
	defaultDataDir     = "data"
	defaultEngineMode  = "auto"
	defaultLogLevel    = "info"
	defaultPollMaxWait = 30 * time.Minute
	defaultRPS         = 4
)

// Config describes runtime configuration for the orchestrator.
// User-mutable scalars (reference text, concurrency limit) live in the
// settings store, not here.
type Config struct {
	Port              int           `yaml:"port"`
	EngineURL         string        `yaml:"engine_url"`
	DataDir           string        `yaml:"data_dir"`
	EngineMode        string        `yaml:"engine_mode"`
	LogLevel          string        `yaml:"log_level"`
	PollMaxWait       time.Duration `yaml:"poll_max_wait"`
	RequestsPerSecond int           `yaml:"requests_per_second"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:              defaultPort,
		EngineURL:         defaultEngineURL,
		DataDir:           defaultDataDir,
		EngineMode:        defaultEngineMode,
		LogLevel:          defaultLogLevel,
		PollMaxWait:       defaultPollMaxWait,
		RequestsPerSecond: defaultRPS,
	}
}

// Load reads YAML config from the provided path. If the file does not exist
// or is empty, defaults are returned with no error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	// basic normalization
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	if cfg.EngineMode == "" {
		cfg.EngineMode = defaultEngineMode
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.PollMaxWait <= 0 {
		cfg.PollMaxWait = defaultPollMaxWait
	}
	if cfg.RequestsPerSecond < 1 {
		cfg.RequestsPerSecond = defaultRPS
	}
	if cfg.EngineURL == "" {
		return cfg, errors.New("engine_url must be set")
	}
	if _, err := url.ParseRequestURI(cfg.EngineURL); err != nil {
		return cfg, fmt.Errorf("invalid engine_url %q: %w", cfg.EngineURL, err)
	}
	return cfg, nil
}
