package metrics

import (
	"fmt"
	"os"
	"time"
)

// Config holds the Pushgateway target. An empty PushgatewayURL disables
// pushing.
type Config struct {
	PushgatewayURL string `toml:"pushgateway_url"`
	Job            string `toml:"job"`
	Timeout        string `toml:"timeout"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	PushgatewayURL string
	Job            string
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.PushgatewayURL != "" {
		c.PushgatewayURL = overlay.PushgatewayURL
	}
	if overlay.Job != "" {
		c.Job = overlay.Job
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
}

func (c *Config) loadDefaults() {
	if c.Job == "" {
		c.Job = "expedite"
	}
	if c.Timeout == "" {
		c.Timeout = "10s"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.PushgatewayURL != "" {
		if v := os.Getenv(env.PushgatewayURL); v != "" {
			c.PushgatewayURL = v
		}
	}
	if env.Job != "" {
		if v := os.Getenv(env.Job); v != "" {
			c.Job = v
		}
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}
