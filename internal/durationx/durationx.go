// Package durationx parses the narrow "<int>[s|m|h]" duration grammar used
// throughout deployment, health-check, and observer configuration. Unlike
// time.ParseDuration, it accepts only the three suffixes the wire format
// allows; anything else parses to (0, false) so callers fall back to their
// own documented default.
package durationx

import (
	"strconv"
	"time"
)

// Parse parses a "<int>[s|m|h]" string. Empty or malformed input returns
// (0, false) — the caller picks a default, it never errors out of this
// function.
func Parse(s string) (time.Duration, bool) {
	if len(s) < 2 {
		return 0, false
	}

	unit := s[len(s)-1]
	var mult time.Duration
	switch unit {
	case 's':
		mult = time.Second
	case 'm':
		mult = time.Minute
	case 'h':
		mult = time.Hour
	default:
		return 0, false
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return 0, false
	}

	return time.Duration(n) * mult, true
}

// ParseOr parses s, falling back to def when s is empty or malformed.
func ParseOr(s string, def time.Duration) time.Duration {
	if d, ok := Parse(s); ok {
		return d
	}
	return def
}
