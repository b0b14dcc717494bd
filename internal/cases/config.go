package cases

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds Dynamics 365 Web API connection parameters.
type Config struct {
	BaseURL      string `toml:"base_url"`
	APIVersion   string `toml:"api_version"`
	TenantID     string `toml:"tenant_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	PageSize     int    `toml:"page_size"`
	MaxPages     int    `toml:"max_pages"`
	Timeout      string `toml:"timeout"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	BaseURL      string
	TenantID     string
	ClientID     string
	ClientSecret string
	PageSize     string
	Timeout      string
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Endpoint returns the Web API root, e.g. https://org.crm.dynamics.com/api/data/v9.2.
func (c *Config) Endpoint() string {
	return strings.TrimRight(c.BaseURL, "/") + "/api/data/" + c.APIVersion
}

// Scope returns the client-credentials scope for the organization.
func (c *Config) Scope() string {
	return strings.TrimRight(c.BaseURL, "/") + "/.default"
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
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.APIVersion != "" {
		c.APIVersion = overlay.APIVersion
	}
	if overlay.TenantID != "" {
		c.TenantID = overlay.TenantID
	}
	if overlay.ClientID != "" {
		c.ClientID = overlay.ClientID
	}
	if overlay.ClientSecret != "" {
		c.ClientSecret = overlay.ClientSecret
	}
	if overlay.PageSize != 0 {
		c.PageSize = overlay.PageSize
	}
	if overlay.MaxPages != 0 {
		c.MaxPages = overlay.MaxPages
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
}

func (c *Config) loadDefaults() {
	if c.APIVersion == "" {
		c.APIVersion = "v9.2"
	}
	if c.PageSize <= 0 {
		c.PageSize = 5000
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 100
	}
	if c.Timeout == "" {
		c.Timeout = "60s"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.BaseURL != "" {
		if v := os.Getenv(env.BaseURL); v != "" {
			c.BaseURL = v
		}
	}
	if env.TenantID != "" {
		if v := os.Getenv(env.TenantID); v != "" {
			c.TenantID = v
		}
	}
	if env.ClientID != "" {
		if v := os.Getenv(env.ClientID); v != "" {
			c.ClientID = v
		}
	}
	if env.ClientSecret != "" {
		if v := os.Getenv(env.ClientSecret); v != "" {
			c.ClientSecret = v
		}
	}
	if env.PageSize != "" {
		if v := os.Getenv(env.PageSize); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.PageSize = n
			}
		}
	}
	if env.Timeout != "" {
		if v := os.Getenv(env.Timeout); v != "" {
			c.Timeout = v
		}
	}
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}
