// Package config provides configuration management for the curation workflow.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds immutable configuration for a curation run.
//
// Supported environment variables:
//   - DATALOOP_EMAIL, DATALOOP_PASSWORD: machine-to-machine credentials
//   - DATALOOP_TOKEN: existing access token, reused while valid
//   - DATALOOP_API_URL: API endpoint (default: "https://gate.dataloop.ai/api/v1")
//   - DATALOOP_PROJECT: project name (default: "DataloopInterview")
//   - DATALOOP_DATASET: dataset name (default: "dataset-created-from-script")
//   - DATALOOP_UPLOAD_PATH: local directory to upload (default: "/Users/Shared/dataloop-dataset")
//   - DATALOOP_UPLOAD_RECURSIVE: also upload sub-directories (default: false)
//   - DATALOOP_KEYPOINTS: number of random keypoints (default: 5)
//   - DATALOOP_SEED: random seed, 0 seeds from the clock (default: 0)
//   - DATALOOP_RATE_LIMIT: max requests per second, 0 disables (default: 10)
//   - DATALOOP_TRACE: off, stdout or otlp (default: "off")
//   - DATALOOP_DEBUG: enable debug logging (default: false)
type Config struct {
	Email    string `env:"DATALOOP_EMAIL"`
	Password string `env:"DATALOOP_PASSWORD"`
	Token    string `env:"DATALOOP_TOKEN"`
	APIURL   string `env:"DATALOOP_API_URL" envDefault:"https://gate.dataloop.ai/api/v1"`

	Project         string `env:"DATALOOP_PROJECT" envDefault:"DataloopInterview"`
	Dataset         string `env:"DATALOOP_DATASET" envDefault:"dataset-created-from-script"`
	UploadPath      string `env:"DATALOOP_UPLOAD_PATH" envDefault:"/Users/Shared/dataloop-dataset"`
	UploadRecursive bool   `env:"DATALOOP_UPLOAD_RECURSIVE" envDefault:"false"`
	Keypoints       int    `env:"DATALOOP_KEYPOINTS" envDefault:"5"`
	Seed            int64  `env:"DATALOOP_SEED" envDefault:"0"`

	RateLimit float64 `env:"DATALOOP_RATE_LIMIT" envDefault:"10"`
	Trace     string  `env:"DATALOOP_TRACE" envDefault:"off"`
	Debug     bool    `env:"DATALOOP_DEBUG" envDefault:"false"`
}

// FromEnv loads configuration from the process environment with defaults.
func FromEnv() (*Config, error) {
	return parse(env.Options{})
}

// FromMap loads configuration from the given variables instead of the
// process environment.
func FromMap(vars map[string]string) (*Config, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// IsValid checks if the configuration has all required fields.
// Returns an error if any required field is missing.
func (c *Config) IsValid() error {
	if c.Token == "" && (c.Email == "" || c.Password == "") {
		return fmt.Errorf("email and password (or a token) are required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("API URL is required")
	}
	if c.Project == "" {
		return fmt.Errorf("project name is required")
	}
	if c.Dataset == "" {
		return fmt.Errorf("dataset name is required")
	}
	if c.UploadPath == "" {
		return fmt.Errorf("upload path is required")
	}
	if c.Keypoints < 0 {
		return fmt.Errorf("keypoints must not be negative, got %d", c.Keypoints)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	switch c.Trace {
	case "", "off", "stdout", "otlp":
	default:
		return fmt.Errorf("unknown trace mode %q", c.Trace)
	}
	return nil
}
