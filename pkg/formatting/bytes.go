// Package formatting renders and parses human-facing values: byte sizes in
// configuration and logs, and dates in outgoing correspondence.
package formatting

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var units = []string{"B", "KB", "MB", "GB", "TB"}

// multipliers accepts the short, decimal-looking and binary spellings of
// each unit. All are base-1024.
var multipliers = map[string]int64{
	"": 1, "B": 1,
	"K": 1 << 10, "KB": 1 << 10, "KIB": 1 << 10,
	"M": 1 << 20, "MB": 1 << 20, "MIB": 1 << 20,
	"G": 1 << 30, "GB": 1 << 30, "GIB": 1 << 30,
	"T": 1 << 40, "TB": 1 << 40, "TIB": 1 << 40,
}

// FormatBytes renders n with the largest unit that keeps the value at or
// above one. Byte counts are printed without decimals.
func FormatBytes(n int64, precision int) string {
	if precision < 0 {
		precision = 0
	}

	size, i := float64(n), 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	if i == 0 {
		return strconv.FormatInt(n, 10) + " B"
	}
	return strconv.FormatFloat(size, 'f', precision, 64) + " " + units[i]
}

// ParseBytes parses a size such as "20MB", "1.5 GiB" or "512k" into a byte
// count. A bare number is bytes and units are case-insensitive.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	split := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	number, unit := s, ""
	if split >= 0 {
		number, unit = s[:split], strings.TrimSpace(s[split:])
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}

	mult, ok := multipliers[strings.ToUpper(unit)]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit %q", unit)
	}
	return int64(value * float64(mult)), nil
}
