package formatting

import (
	"fmt"
	"time"
)

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// LongDate renders t as "dd de <mes> de yyyy" with the Spanish month name,
// the form used in letters to requesters.
func LongDate(t time.Time) string {
	return fmt.Sprintf("%02d de %s de %d", t.Day(), spanishMonths[t.Month()-1], t.Year())
}

// ShortDate renders t as dd/mm/yyyy.
func ShortDate(t time.Time) string {
	return t.Format("02/01/2006")
}
