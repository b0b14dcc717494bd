package schedule

import (
	"fmt"
	"os"
	"time"
)

// Interval is an inclusive time-of-day range in HH:MM form. A Start later
// than End wraps past midnight.
type Interval struct {
	Start string `toml:"start"`
	End   string `toml:"end"`
}

// Config holds operating windows and the non-business-day calendar.
// Calendar names the national holiday set (colombia or none); Holidays adds
// one-off dates in YYYY-MM-DD form.
type Config struct {
	Timezone string     `toml:"timezone"`
	Windows  []Interval `toml:"windows"`
	Calendar string     `toml:"calendar"`
	Holidays []string   `toml:"holidays"`
	Weekends bool       `toml:"weekends"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Timezone string
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay. Windows and holidays are
// replaced as a whole when the overlay sets them.
func (c *Config) Merge(overlay *Config) {
	if overlay.Timezone != "" {
		c.Timezone = overlay.Timezone
	}
	if len(overlay.Windows) > 0 {
		c.Windows = overlay.Windows
	}
	if overlay.Calendar != "" {
		c.Calendar = overlay.Calendar
	}
	if len(overlay.Holidays) > 0 {
		c.Holidays = overlay.Holidays
	}
	if overlay.Weekends {
		c.Weekends = true
	}
}

func (c *Config) loadDefaults() {
	if c.Timezone == "" {
		c.Timezone = "America/Bogota"
	}
	if c.Calendar == "" {
		c.Calendar = CalendarColombia
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Timezone != "" {
		if v := os.Getenv(env.Timezone); v != "" {
			c.Timezone = v
		}
	}
}

func (c *Config) validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	for i, w := range c.Windows {
		if _, err := parseClock(w.Start); err != nil {
			return fmt.Errorf("window %d start: %w", i, err)
		}
		if _, err := parseClock(w.End); err != nil {
			return fmt.Errorf("window %d end: %w", i, err)
		}
	}
	if _, err := newCalendar(c.Calendar, c.Holidays); err != nil {
		return err
	}
	return nil
}
