// Package cadence parses the user-selected sampling timeframe ("1s", "5m",
// "24h", ...) into a polling interval.
package cadence

import (
	"regexp"
	"strconv"
	"time"
)

// Default is the cadence used when none has been selected
const Default = "1s"

// DefaultInterval is used for any cadence that cannot be parsed
const DefaultInterval = time.Second

// Options is the fixed set of timeframes offered to users, fastest first
var Options = []string{"1s", "15s", "30s", "1m", "5m", "1h", "24h"}

var pattern = regexp.MustCompile(`^(\d+)([smh])$`)

// Interval converts a cadence of the form <integer><unit> (unit one of s, m,
// h) into a duration. Unrecognized formats and zero magnitudes fall back to
// DefaultInterval.
func Interval(c string) time.Duration {
	m := pattern.FindStringSubmatch(c)
	if m == nil {
		return DefaultInterval
	}

	value, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || value <= 0 {
		return DefaultInterval
	}

	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	default:
		return DefaultInterval
	}

	return time.Duration(value) * unit
}

// IsOption reports whether c is one of the offered timeframes
func IsOption(c string) bool {
	for _, o := range Options {
		if o == c {
			return true
		}
	}
	return false
}
