package filter

import (
	"fmt"
	"strconv"
	"time"
)

const day = 24 * time.Hour

var ageUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': day,
	'w': 7 * day,
	'M': 30 * day,
	'Y': 364 * 30 * day,
}

// ParseAge parses a minimum file age: a non-negative integer followed by an
// optional unit, s (default), m, h, d, w, M (30 days) or Y (364 months).
// Units are case-sensitive: "m" is minutes, "M" is months.
func ParseAge(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty age")
	}

	unit := time.Second
	num := s
	if mult, ok := ageUnits[s[len(s)-1]]; ok {
		unit = mult
		num = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid age %q (use N[smhdwMY])", s)
	}
	if n > int64(1<<63-1)/int64(unit) {
		return 0, fmt.Errorf("age %q out of range", s)
	}
	return time.Duration(n) * unit, nil
}
