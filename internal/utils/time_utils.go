package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var units = []struct {
	suffix string
	unit   time.Duration
}{
	{"s", time.Second},
	{"m", time.Minute},
	{"h", time.Hour},
	{"d", 24 * time.Hour},
}

// ParseDuration parses strings like "10s", "20M", "48h" or "2d". Anything
// else is handed to time.ParseDuration, so "1h30m" and "250ms" work too.
func ParseDuration(timeString string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(timeString))
	if s == "" {
		return 0, fmt.Errorf("invalid time format: %q", timeString)
	}
	for _, u := range units {
		cut, found := strings.CutSuffix(s, u.suffix)
		if !found {
			continue
		}
		number, err := strconv.Atoi(cut)
		if err != nil {
			break
		}
		if number < 0 {
			return 0, fmt.Errorf("negative duration: %q", timeString)
		}
		return time.Duration(number) * u.unit, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid time format: %q", timeString)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration: %q", timeString)
	}
	return d, nil
}

// MustParseDuration is ParseDuration for values that were already validated.
// It returns fallback on error.
func MustParseDuration(timeString string, fallback time.Duration) time.Duration {
	d, err := ParseDuration(timeString)
	if err != nil {
		return fallback
	}
	return d
}
