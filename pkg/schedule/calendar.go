package schedule

import (
	"fmt"
	"time"

	"github.com/rickar/cal/v2"
)

const (
	CalendarColombia = "colombia"
	CalendarNone     = "none"
)

// nextMonday moves a holiday that does not fall on a Monday to the
// following Monday (Ley 51 de 1983).
var nextMonday = []cal.AltDay{
	{Day: time.Tuesday, Offset: 6},
	{Day: time.Wednesday, Offset: 5},
	{Day: time.Thursday, Offset: 4},
	{Day: time.Friday, Offset: 3},
	{Day: time.Saturday, Offset: 2},
	{Day: time.Sunday, Offset: 1},
}

func fixed(name string, m time.Month, d int) *cal.Holiday {
	return &cal.Holiday{Name: name, Month: m, Day: d, Func: cal.CalcDayOfMonth}
}

func movable(name string, m time.Month, d int) *cal.Holiday {
	h := fixed(name, m, d)
	h.Observed = nextMonday
	return h
}

// easter holidays already land on the weekday they are observed on.
func easter(name string, offset int) *cal.Holiday {
	return &cal.Holiday{Name: name, Offset: offset, Func: cal.CalcEasterOffset}
}

var colombia = []*cal.Holiday{
	fixed("Año Nuevo", time.January, 1),
	movable("Reyes Magos", time.January, 6),
	movable("San José", time.March, 19),
	easter("Jueves Santo", -3),
	easter("Viernes Santo", -2),
	fixed("Día del Trabajo", time.May, 1),
	easter("Ascensión del Señor", 43),
	easter("Corpus Christi", 64),
	easter("Sagrado Corazón", 71),
	movable("San Pedro y San Pablo", time.June, 29),
	fixed("Día de la Independencia", time.July, 20),
	fixed("Batalla de Boyacá", time.August, 7),
	movable("Asunción de la Virgen", time.August, 15),
	movable("Día de la Raza", time.October, 12),
	movable("Todos los Santos", time.November, 1),
	movable("Independencia de Cartagena", time.November, 11),
	fixed("Inmaculada Concepción", time.December, 8),
	fixed("Navidad", time.December, 25),
}

// newCalendar builds the non-business-day calendar: the named national set
// plus one-off dates in YYYY-MM-DD form.
func newCalendar(name string, extra []string) (*cal.Calendar, error) {
	c := &cal.Calendar{}

	switch name {
	case CalendarColombia:
		c.AddHoliday(colombia...)
	case CalendarNone:
	default:
		return nil, fmt.Errorf("unknown calendar %q", name)
	}

	for _, s := range extra {
		d, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", s, err)
		}
		h := fixed(s, d.Month(), d.Day())
		h.StartYear, h.EndYear = d.Year(), d.Year()
		c.AddHoliday(h)
	}
	return c, nil
}

// Holiday returns the name of the holiday observed on t's calendar date.
func (g *Gate) Holiday(t time.Time) (string, bool) {
	local := t.In(g.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	_, observed, h := g.calendar.IsHoliday(day)
	if !observed || h == nil {
		return "", false
	}
	return h.Name, true
}
