// Package config holds scan settings: defaults, an optional YAML file, and
// validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/selimozcann/redirectvalidator/internal/detect"
	"github.com/selimozcann/redirectvalidator/internal/fuzz"
	"github.com/selimozcann/redirectvalidator/internal/httpclient"
	"github.com/selimozcann/redirectvalidator/internal/input"
	"github.com/selimozcann/redirectvalidator/internal/runner"
)

// Config is the full set of scan options. Field names double as YAML keys.
type Config struct {
	Payloads    string        `yaml:"payloads"`
	URLs        string        `yaml:"urls"`
	Keyword     string        `yaml:"keyword"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	RateLimit   int           `yaml:"rate_limit"`
	Policy      string        `yaml:"policy"`
	Proxy       string        `yaml:"proxy"`
	Headers     []string      `yaml:"headers"`
	Cookie      string        `yaml:"cookie"`
	UserAgent   string        `yaml:"user_agent"`
	Insecure    bool          `yaml:"insecure"`
	Output      string        `yaml:"output"`
	HTML        string        `yaml:"html"`
	NoProgress  bool          `yaml:"no_progress"`
	NoColor     bool          `yaml:"no_color"`
	Silent      bool          `yaml:"silent"`
	Verbose     bool          `yaml:"verbose"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Payloads:    input.DefaultPayloadsFile,
		Keyword:     fuzz.DefaultMarker,
		Concurrency: runner.DefaultConcurrency,
		Timeout:     httpclient.DefaultTimeout,
		Policy:      detect.PolicyFinal.String(),
		UserAgent:   httpclient.DefaultUserAgent,
	}
}

// Load reads a YAML file on top of Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// Validate checks option ranges.
func (c Config) Validate() error {
	switch {
	case c.Keyword == "":
		return fmt.Errorf("%w: keyword must not be empty", ErrInvalidConfig)
	case c.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be >= 1 (got %d)", ErrInvalidConfig, c.Concurrency)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be > 0 (got %s)", ErrInvalidConfig, c.Timeout)
	case c.RateLimit < 0:
		return fmt.Errorf("%w: rate_limit must be >= 0 (got %d)", ErrInvalidConfig, c.RateLimit)
	}
	if _, err := detect.ParsePolicy(c.Policy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// DetectionPolicy returns the parsed Policy. Call Validate first.
func (c Config) DetectionPolicy() detect.Policy {
	p, _ := detect.ParsePolicy(c.Policy)
	return p
}
