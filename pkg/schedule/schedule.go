// Package schedule decides whether the pipeline may work at a given instant,
// based on daily operating windows and a non-business-day calendar.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rickar/cal/v2"
)

// ErrInvalidWindow indicates a time-of-day value that is not HH:MM.
var ErrInvalidWindow = errors.New("invalid window time")

type window struct {
	start, end int // seconds since midnight
}

func (w window) contains(sec int) bool {
	if w.start <= w.end {
		return sec >= w.start && sec <= w.end
	}
	return sec >= w.start || sec <= w.end
}

// Gate evaluates operating windows. IsOpen is pure: it depends only on its
// argument and the configuration captured at construction.
type Gate struct {
	loc      *time.Location
	windows  []window
	calendar *cal.Calendar
	weekends bool
}

// New builds a Gate from a finalized Config.
func New(cfg *Config) (*Gate, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	calendar, err := newCalendar(cfg.Calendar, cfg.Holidays)
	if err != nil {
		return nil, err
	}

	g := &Gate{
		loc:      loc,
		windows:  make([]window, 0, len(cfg.Windows)),
		calendar: calendar,
		weekends: cfg.Weekends,
	}

	for _, iv := range cfg.Windows {
		start, err := parseClock(iv.Start)
		if err != nil {
			return nil, err
		}
		end, err := parseClock(iv.End)
		if err != nil {
			return nil, err
		}
		g.windows = append(g.windows, window{start: start, end: end})
	}

	return g, nil
}

// IsOpen reports whether now falls on a business day and inside at least one
// window. With no windows configured every instant of a business day is open.
func (g *Gate) IsOpen(now time.Time) bool {
	local := now.In(g.loc)

	if !g.BusinessDay(local) {
		return false
	}
	if len(g.windows) == 0 {
		return true
	}

	sec := local.Hour()*3600 + local.Minute()*60 + local.Second()
	for _, w := range g.windows {
		if w.contains(sec) {
			return true
		}
	}
	return false
}

// BusinessDay reports whether the calendar date of t is neither a weekend
// (unless weekends are enabled) nor a holiday of the configured calendar.
func (g *Gate) BusinessDay(t time.Time) bool {
	local := t.In(g.loc)

	if !g.weekends {
		switch local.Weekday() {
		case time.Saturday, time.Sunday:
			return false
		}
	}

	_, holiday := g.Holiday(local)
	return !holiday
}

// Location returns the timezone windows are evaluated in.
func (g *Gate) Location() *time.Location {
	return g.loc
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}

	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}

	return h*3600 + m*60, nil
}
