// Package schedule decides when scheduled queries are due for a refresh.
// Schedules come in two forms: a plain number of seconds ("300") meaning
// a TTL since the last refresh, or a daily time of day ("HH:MM").
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ShouldScheduleNext reports whether a query whose latest result was
// retrieved at previous is due again at now under the given schedule.
func ShouldScheduleNext(previous, now time.Time, spec string) bool {
	if ttl, err := strconv.Atoi(spec); err == nil {
		next := previous.Add(time.Duration(ttl) * time.Second)
		return now.After(next)
	}

	hour, minute, err := parseDaily(spec)
	if err != nil {
		return false
	}

	// A query scheduled for 23:59 whose previous run was at 23:59 must
	// not be skipped when the sweeper wakes at 00:01: normalize the
	// previous iteration back a day when setting the time of day pushes
	// it into the future.
	normalized := time.Date(previous.Year(), previous.Month(), previous.Day(), hour, minute, 0, 0, previous.Location())
	if normalized.After(previous) {
		previous = normalized.AddDate(0, 0, -1)
	}

	next := time.Date(previous.Year(), previous.Month(), previous.Day(), hour, minute, 0, 0, previous.Location()).AddDate(0, 0, 1)
	return now.After(next)
}

// Validate rejects schedule specs that are neither a TTL nor "HH:MM".
// The empty string (no schedule) is valid.
func Validate(spec string) error {
	if spec == "" {
		return nil
	}
	if ttl, err := strconv.Atoi(spec); err == nil {
		if ttl <= 0 {
			return fmt.Errorf("schedule ttl must be positive")
		}
		return nil
	}
	if _, _, err := parseDaily(spec); err != nil {
		return err
	}
	return nil
}

func parseDaily(spec string) (hour, minute int, err error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid schedule %q", spec)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid schedule hour %q", spec)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid schedule minute %q", spec)
	}
	return hour, minute, nil
}
