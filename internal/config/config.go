package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvAPIURL   = "JOBWATCH_API_URL"
	EnvLogLevel = "JOBWATCH_LOG_LEVEL"
)

// Config holds settings loaded from jobwatch.yml.
type Config struct {
	APIBaseURL           string        `yaml:"apiBaseURL,omitempty"`
	PollInterval         time.Duration `yaml:"pollInterval,omitempty"`
	MaxPolls             int           `yaml:"maxPolls,omitempty"`
	MaxConsecutiveErrors int           `yaml:"maxConsecutiveErrors,omitempty"`
	RequestTimeout       time.Duration `yaml:"requestTimeout,omitempty"`
	SubmitTimeout        time.Duration `yaml:"submitTimeout,omitempty"`
	LogLevel             string        `yaml:"logLevel,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIBaseURL:           "http://localhost:8000",
		PollInterval:         time.Second,
		MaxPolls:             600,
		MaxConsecutiveErrors: 5,
		RequestTimeout:       10 * time.Second,
		SubmitTimeout:        15 * time.Minute,
		LogLevel:             "info",
	}
}

// Load reads jobwatch.yml or jobwatch.yaml from dir over the defaults, then
// applies environment overrides. A missing file is not an error.
func Load(dir string) (*Config, error) {
	cfg := Default()
	for _, name := range []string{"jobwatch.yml", "jobwatch.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		break
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: invalid apiBaseURL %q", c.APIBaseURL)
	}
	switch {
	case c.PollInterval <= 0:
		return fmt.Errorf("config: pollInterval must be positive, got %s", c.PollInterval)
	case c.MaxPolls <= 0:
		return fmt.Errorf("config: maxPolls must be positive, got %d", c.MaxPolls)
	case c.MaxConsecutiveErrors <= 0:
		return fmt.Errorf("config: maxConsecutiveErrors must be positive, got %d", c.MaxConsecutiveErrors)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("config: requestTimeout must be positive, got %s", c.RequestTimeout)
	case c.SubmitTimeout <= 0:
		return fmt.Errorf("config: submitTimeout must be positive, got %s", c.SubmitTimeout)
	}
	return nil
}
