package maintenance

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	reHHMM = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)
)

// NormalizeSpec turns a schedule string into a cron spec.
//
// Accepted forms:
//   - cron: "*/5 * * * *", "0 30 3 * * *", "@daily", "@every 5m"
//   - interval duration: "55m", "2h30m"
//   - interval HH:MM: "02:30" (2 hours 30 minutes)
//   - "off" or "" disables the job and yields ""
func NormalizeSpec(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "off") {
		return "", nil
	}
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		if _, err := parser.Parse(s); err != nil {
			return "", fmt.Errorf("invalid cron %q: %w", raw, err)
		}
		return s, nil
	}
	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return "", fmt.Errorf("invalid minutes in %q", raw)
		}
		return every(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return "", fmt.Errorf("invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', or a duration like '55m')", raw)
	}
	return every(d)
}

func every(d time.Duration) (string, error) {
	if d <= 0 {
		return "", fmt.Errorf("interval must be > 0")
	}
	return "@every " + d.String(), nil
}
