package clock

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDuration is returned for a duration spec that is not an
// integer followed by a single unit letter.
var ErrInvalidDuration = errors.New("invalid duration: expected <number><s|m|h|d>")

var specPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

var unitFactors = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// ParseSpec parses a user-supplied duration expression like "10m" or "2h".
// Units: s seconds, m minutes, h hours, d days.
func ParseSpec(spec string) (time.Duration, error) {
	match := specPattern.FindStringSubmatch(strings.TrimSpace(spec))
	if match == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, spec)
	}
	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, spec)
	}
	return time.Duration(n) * unitFactors[match[2]], nil
}

func Now() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}

// Duration duration between two times represented as strings
func Duration(from, to string) (time.Duration, error) {
	fromTime, err := time.Parse("2006-01-02T15:04:05Z", from)
	if err != nil {
		return 0, fmt.Errorf("from is not a valid time: %s", from)
	}
	toTime, err := time.Parse("2006-01-02T15:04:05Z", to)
	if err != nil {
		return 0, fmt.Errorf("to is not a valid time: %s", to)
	}
	return toTime.Sub(fromTime), nil
}
