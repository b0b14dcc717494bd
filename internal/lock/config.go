package lock

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config selects the lock store and the staleness ceiling.
type Config struct {
	Backend        string      `toml:"backend"`
	Staleness      string      `toml:"staleness"`
	AcquireTimeout string      `toml:"acquire_timeout"`
	ReleaseTimeout string      `toml:"release_timeout"`
	Redis          RedisConfig `toml:"redis"`
}

// RedisConfig holds connection parameters for the Redis store.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Backend        string
	Staleness      string
	AcquireTimeout string
	ReleaseTimeout string
	RedisAddr      string
	RedisPassword  string
	RedisDB        string
}

// StalenessDuration returns Staleness as a time.Duration.
func (c *Config) StalenessDuration() time.Duration {
	d, _ := time.ParseDuration(c.Staleness)
	return d
}

// AcquireTimeoutDuration returns AcquireTimeout as a time.Duration.
func (c *Config) AcquireTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.AcquireTimeout)
	return d
}

// ReleaseTimeoutDuration returns ReleaseTimeout as a time.Duration.
func (c *Config) ReleaseTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ReleaseTimeout)
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
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	if overlay.Staleness != "" {
		c.Staleness = overlay.Staleness
	}
	if overlay.AcquireTimeout != "" {
		c.AcquireTimeout = overlay.AcquireTimeout
	}
	if overlay.ReleaseTimeout != "" {
		c.ReleaseTimeout = overlay.ReleaseTimeout
	}
	if overlay.Redis.Addr != "" {
		c.Redis.Addr = overlay.Redis.Addr
	}
	if overlay.Redis.Password != "" {
		c.Redis.Password = overlay.Redis.Password
	}
	if overlay.Redis.DB != 0 {
		c.Redis.DB = overlay.Redis.DB
	}
	if overlay.Redis.Prefix != "" {
		c.Redis.Prefix = overlay.Redis.Prefix
	}
}

func (c *Config) loadDefaults() {
	if c.Backend == "" {
		c.Backend = BackendPostgres
	}
	if c.Staleness == "" {
		c.Staleness = "24h"
	}
	if c.AcquireTimeout == "" {
		c.AcquireTimeout = "10s"
	}
	if c.ReleaseTimeout == "" {
		c.ReleaseTimeout = "10s"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "expedite:lock:"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Backend != "" {
		if v := os.Getenv(env.Backend); v != "" {
			c.Backend = v
		}
	}
	if env.Staleness != "" {
		if v := os.Getenv(env.Staleness); v != "" {
			c.Staleness = v
		}
	}
	if env.AcquireTimeout != "" {
		if v := os.Getenv(env.AcquireTimeout); v != "" {
			c.AcquireTimeout = v
		}
	}
	if env.ReleaseTimeout != "" {
		if v := os.Getenv(env.ReleaseTimeout); v != "" {
			c.ReleaseTimeout = v
		}
	}
	if env.RedisAddr != "" {
		if v := os.Getenv(env.RedisAddr); v != "" {
			c.Redis.Addr = v
		}
	}
	if env.RedisPassword != "" {
		if v := os.Getenv(env.RedisPassword); v != "" {
			c.Redis.Password = v
		}
	}
	if env.RedisDB != "" {
		if v := os.Getenv(env.RedisDB); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.Redis.DB = n
			}
		}
	}
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendPostgres, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	if d, err := time.ParseDuration(c.Staleness); err != nil || d <= 0 {
		return fmt.Errorf("invalid staleness: %q", c.Staleness)
	}
	if d, err := time.ParseDuration(c.AcquireTimeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid acquire_timeout: %q", c.AcquireTimeout)
	}
	if _, err := time.ParseDuration(c.ReleaseTimeout); err != nil {
		return fmt.Errorf("invalid release_timeout: %w", err)
	}
	return nil
}
