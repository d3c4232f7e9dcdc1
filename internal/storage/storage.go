package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no entitlement is stored for a user.
var ErrNotFound = errors.New("storage: not found")

// dayKey names the local calendar day that now falls on in loc.
func dayKey(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("2006-01-02")
}

// nextMidnight returns the start of the local day after now.
func nextMidnight(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}
