package storage

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config selects a blob container and how long signed links stay valid.
// Prefix, when set, is prepended to every key.
type Config struct {
	ContainerName    string `toml:"container_name"`
	ConnectionString string `toml:"connection_string"`
	Prefix           string `toml:"prefix"`
	LinkExpiry       string `toml:"link_expiry"`
}

// Env names the environment variables that override Config fields.
type Env struct {
	ContainerName    string
	ConnectionString string
	Prefix           string
	LinkExpiry       string
}

// LinkExpiryDuration returns LinkExpiry as a time.Duration.
func (c *Config) LinkExpiryDuration() time.Duration {
	d, _ := time.ParseDuration(c.LinkExpiry)
	return d
}

// Finalize applies defaults, then environment overrides, then validates.
func (c *Config) Finalize(env *Env) error {
	if c.ContainerName == "" {
		c.ContainerName = "expedite"
	}
	if c.LinkExpiry == "" {
		c.LinkExpiry = "720h"
	}
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge copies the non-empty fields of overlay onto c.
func (c *Config) Merge(overlay *Config) {
	for dst, src := range map[*string]string{
		&c.ContainerName:    overlay.ContainerName,
		&c.ConnectionString: overlay.ConnectionString,
		&c.Prefix:           overlay.Prefix,
		&c.LinkExpiry:       overlay.LinkExpiry,
	} {
		if src != "" {
			*dst = src
		}
	}
}

func (c *Config) loadEnv(env *Env) {
	for dst, key := range map[*string]string{
		&c.ContainerName:    env.ContainerName,
		&c.ConnectionString: env.ConnectionString,
		&c.Prefix:           env.Prefix,
		&c.LinkExpiry:       env.LinkExpiry,
	} {
		if key == "" {
			continue
		}
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.ConnectionString == "" {
		errs = append(errs, errors.New("connection_string required"))
	}
	if strings.Contains(c.Prefix, "..") {
		errs = append(errs, fmt.Errorf("invalid prefix %q", c.Prefix))
	}
	if d, err := time.ParseDuration(c.LinkExpiry); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("invalid link_expiry %q", c.LinkExpiry))
	}
	return errors.Join(errs...)
}
