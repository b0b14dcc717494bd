package documents

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds DocuWare platform connection and field-mapping parameters.
type Config struct {
	BaseURL      string `toml:"base_url"`
	Platform     string `toml:"platform"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	ClientID     string `toml:"client_id"`
	Scope        string `toml:"scope"`
	FileCabinet  string `toml:"file_cabinet"`
	SearchDialog string `toml:"search_dialog"`
	KeyField     string `toml:"key_field"`
	TypeField    string `toml:"type_field"`
	ActField     string `toml:"act_field"`
	DateField    string `toml:"date_field"`
	PageSize     int    `toml:"page_size"`
	MaxPages     int    `toml:"max_pages"`
	Timeout      string `toml:"timeout"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	BaseURL     string
	Username    string
	Password    string
	FileCabinet string
	Timeout     string
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// PlatformURL returns the platform root, e.g. https://host/DocuWare/Platform.
func (c *Config) PlatformURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.Platform, "/")
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
	merge(&c.Platform, overlay.Platform)
	merge(&c.Username, overlay.Username)
	merge(&c.Password, overlay.Password)
	merge(&c.ClientID, overlay.ClientID)
	merge(&c.Scope, overlay.Scope)
	merge(&c.FileCabinet, overlay.FileCabinet)
	merge(&c.SearchDialog, overlay.SearchDialog)
	merge(&c.KeyField, overlay.KeyField)
	merge(&c.TypeField, overlay.TypeField)
	merge(&c.ActField, overlay.ActField)
	merge(&c.DateField, overlay.DateField)
	merge(&c.Timeout, overlay.Timeout)
	if overlay.PageSize != 0 {
		c.PageSize = overlay.PageSize
	}
	if overlay.MaxPages != 0 {
		c.MaxPages = overlay.MaxPages
	}
}

func (c *Config) loadDefaults() {
	if c.Platform == "" {
		c.Platform = "DocuWare/Platform"
	}
	if c.ClientID == "" {
		c.ClientID = "docuware.platform.net.client"
	}
	if c.Scope == "" {
		c.Scope = "docuware.platform"
	}
	if c.KeyField == "" {
		c.KeyField = "MATRICULA"
	}
	if c.TypeField == "" {
		c.TypeField = "TRDNOMBREDOCUMENTO"
	}
	if c.ActField == "" {
		c.ActField = "ACTOREGISTRADO"
	}
	if c.DateField == "" {
		c.DateField = "DWSTOREDATETIME"
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 100
	}
	if c.Timeout == "" {
		c.Timeout = "120s"
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
	set(&c.BaseURL, env.BaseURL)
	set(&c.Username, env.Username)
	set(&c.Password, env.Password)
	set(&c.FileCabinet, env.FileCabinet)
	set(&c.Timeout, env.Timeout)
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url required")
	}
	if c.FileCabinet == "" {
		return fmt.Errorf("file_cabinet required")
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}
