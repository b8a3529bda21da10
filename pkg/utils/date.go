package utils

import (
	"fmt"
	"strconv"
	"time"
)

// ParseTime accepts the timestamp formats the API allows: unix seconds,
// RFC 3339, or a plain YYYY-MM-DD date.
func ParseTime(value string) (time.Time, error) {
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("timestamp %q is not unix seconds, RFC 3339, or YYYY-MM-DD", value)
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
