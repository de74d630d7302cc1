package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DefaultDuration = 2 * time.Minute

var units = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute,
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
}

// ParseDuration reads "<n>" (minutes) or "<n><unit>". Empty input is
// DefaultDuration. A result above limit fails with ErrTooLong; limit <= 0
// disables the check.
func ParseDuration(s string, limit time.Duration) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultDuration, nil
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrTooLong, s)
	}
	unit := time.Minute
	if rest := s[i:]; rest != "" {
		u, ok := units[rest]
		if !ok {
			return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidDuration, rest)
		}
		unit = u
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidDuration)
	}
	if n > int64(1<<62)/int64(unit) {
		return 0, fmt.Errorf("%w: %q", ErrTooLong, s)
	}
	d := time.Duration(n) * unit
	if limit > 0 && d > limit {
		return 0, fmt.Errorf("%w (%s)", ErrTooLong, limit)
	}
	return d, nil
}
