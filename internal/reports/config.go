package reports

import (
	"os"
	"strconv"
	"strings"
)

// Config holds the identity columns and distribution of the run report.
type Config struct {
	AssistantCode string   `toml:"assistant_code"`
	NetworkUser   string   `toml:"network_user"`
	Station       string   `toml:"station"`
	Recipients    []string `toml:"recipients"`
	Archive       bool     `toml:"archive"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	AssistantCode string
	NetworkUser   string
	Station       string
	Recipients    string
	Archive       string
}

// Finalize applies defaults and environment variable overrides.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.AssistantCode != "" {
		c.AssistantCode = overlay.AssistantCode
	}
	if overlay.NetworkUser != "" {
		c.NetworkUser = overlay.NetworkUser
	}
	if overlay.Station != "" {
		c.Station = overlay.Station
	}
	if len(overlay.Recipients) > 0 {
		c.Recipients = overlay.Recipients
	}
	if overlay.Archive {
		c.Archive = true
	}
}

func (c *Config) loadDefaults() {
	if c.AssistantCode == "" {
		c.AssistantCode = "R_CCMA_ExpedicionCopias"
	}
	if c.NetworkUser == "" {
		c.NetworkUser = firstEnv("USERNAME", "USER")
	}
	if c.NetworkUser == "" {
		c.NetworkUser = "usuario.red"
	}
	if c.Station == "" {
		c.Station = os.Getenv("COMPUTERNAME")
	}
	if c.Station == "" {
		if host, err := os.Hostname(); err == nil {
			c.Station = host
		}
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.AssistantCode != "" {
		if v := os.Getenv(env.AssistantCode); v != "" {
			c.AssistantCode = v
		}
	}
	if env.NetworkUser != "" {
		if v := os.Getenv(env.NetworkUser); v != "" {
			c.NetworkUser = v
		}
	}
	if env.Station != "" {
		if v := os.Getenv(env.Station); v != "" {
			c.Station = v
		}
	}
	if env.Recipients != "" {
		if v := os.Getenv(env.Recipients); v != "" {
			c.Recipients = nil
			for addr := range strings.SplitSeq(v, ",") {
				if addr = strings.TrimSpace(addr); addr != "" {
					c.Recipients = append(c.Recipients, addr)
				}
			}
		}
	}
	if env.Archive != "" {
		if v := os.Getenv(env.Archive); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.Archive = b
			}
		}
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}
