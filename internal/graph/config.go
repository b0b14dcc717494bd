package graph

import (
	"fmt"
	"os"
	"time"

	"github.com/JaimeStill/expedite/pkg/formatting"
)

// uploadFragment is the unit Graph requires upload-session chunks to be a
// multiple of.
const uploadFragment = 320 * 1024

// Config holds Microsoft Graph credentials and the mailbox/drive identities
// used for delivery.
type Config struct {
	BaseURL      string `toml:"base_url"`
	TenantID     string `toml:"tenant_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	Sender       string `toml:"sender"`
	DriveUser    string `toml:"drive_user"`
	Timeout      string `toml:"timeout"`
	ChunkSize    string `toml:"chunk_size"`
	SimpleLimit  string `toml:"simple_limit"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Sender       string
	DriveUser    string
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// ChunkBytes returns ChunkSize in bytes.
func (c *Config) ChunkBytes() int64 {
	n, _ := formatting.ParseBytes(c.ChunkSize)
	return n
}

// SimpleLimitBytes returns the largest file sent in a single PUT.
func (c *Config) SimpleLimitBytes() int64 {
	n, _ := formatting.ParseBytes(c.SimpleLimit)
	return n
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
	merge := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	merge(&c.BaseURL, overlay.BaseURL)
	merge(&c.TenantID, overlay.TenantID)
	merge(&c.ClientID, overlay.ClientID)
	merge(&c.ClientSecret, overlay.ClientSecret)
	merge(&c.Sender, overlay.Sender)
	merge(&c.DriveUser, overlay.DriveUser)
	merge(&c.Timeout, overlay.Timeout)
	merge(&c.ChunkSize, overlay.ChunkSize)
	merge(&c.SimpleLimit, overlay.SimpleLimit)
}

func (c *Config) loadDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://graph.microsoft.com/v1.0"
	}
	if c.Timeout == "" {
		c.Timeout = "120s"
	}
	if c.ChunkSize == "" {
		c.ChunkSize = "3200KB"
	}
	if c.SimpleLimit == "" {
		c.SimpleLimit = "4MB"
	}
}

func (c *Config) loadEnv(env *Env) {
	set := func(dst *string, name string) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	set(&c.TenantID, env.TenantID)
	set(&c.ClientID, env.ClientID)
	set(&c.ClientSecret, env.ClientSecret)
	set(&c.Sender, env.Sender)
	set(&c.DriveUser, env.DriveUser)
}

func (c *Config) validate() error {
	if c.Sender == "" {
		return fmt.Errorf("sender required")
	}
	if c.DriveUser == "" {
		c.DriveUser = c.Sender
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	chunk, err := formatting.ParseBytes(c.ChunkSize)
	if err != nil {
		return fmt.Errorf("invalid chunk_size: %w", err)
	}
	if chunk <= 0 || chunk%uploadFragment != 0 {
		return fmt.Errorf("chunk_size must be a positive multiple of 320KB")
	}
	if _, err := formatting.ParseBytes(c.SimpleLimit); err != nil {
		return fmt.Errorf("invalid simple_limit: %w", err)
	}
	return nil
}
