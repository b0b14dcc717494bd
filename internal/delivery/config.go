package delivery

import (
	"fmt"
	"os"
)

const (
	DriveOneDrive = "onedrive"
	DriveBlob     = "blob"
)

// Config selects where deliverables are uploaded and the role granted on
// shares.
type Config struct {
	Drive     string `toml:"drive"`
	ShareRole string `toml:"share_role"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Drive     string
	ShareRole string
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
	if overlay.Drive != "" {
		c.Drive = overlay.Drive
	}
	if overlay.ShareRole != "" {
		c.ShareRole = overlay.ShareRole
	}
}

func (c *Config) loadDefaults() {
	if c.Drive == "" {
		c.Drive = DriveOneDrive
	}
	if c.ShareRole == "" {
		c.ShareRole = "read"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Drive != "" {
		if v := os.Getenv(env.Drive); v != "" {
			c.Drive = v
		}
	}
	if env.ShareRole != "" {
		if v := os.Getenv(env.ShareRole); v != "" {
			c.ShareRole = v
		}
	}
}

func (c *Config) validate() error {
	switch c.Drive {
	case DriveOneDrive, DriveBlob:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDrive, c.Drive)
	}
	switch c.ShareRole {
	case "read", "write":
	default:
		return fmt.Errorf("share_role must be read or write, got %q", c.ShareRole)
	}
	return nil
}
