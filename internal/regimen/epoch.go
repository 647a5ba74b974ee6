package regimen

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoTimezone means the device has no timezone configured. Without a day
// boundary the schedule is undefined, so initialization must fail rather than
// guess a default.
var ErrNoTimezone = errors.New("timezone not configured")

// Epoch returns local midnight of the day containing now in the given IANA
// timezone, as an absolute instant.
func Epoch(now time.Time, tz string) (time.Time, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Time{}, ErrNoTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	lt := now.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc), nil
}

// NextMidnight returns the midnight following epoch in epoch's location.
// Wall-clock arithmetic keeps this correct across DST transitions.
func NextMidnight(epoch time.Time) time.Time {
	return epoch.AddDate(0, 0, 1)
}
