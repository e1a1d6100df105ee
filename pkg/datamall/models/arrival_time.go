package models

import (
	"fmt"
	"strings"
	"time"
)

// ArrivalTime handles the arrival timestamps in live lookups: usually
// ISO-8601 with a +08:00 offset, sometimes without a zone, sometimes empty
// when a slot has no predicted vehicle.
type ArrivalTime struct {
	time.Time
}

// UnmarshalJSON parses the feed's timestamp variants. An empty value leaves
// the zero time in place.
func (at *ArrivalTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), "\"")
	if s == "null" || s == "" {
		return nil
	}

	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05", // no zone
	}

	var parseErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			// Zone-less timestamps are local to the operator's region.
			if !strings.ContainsAny(s[10:], "Z+-") {
				if loc, locErr := time.LoadLocation("Asia/Singapore"); locErr == nil {
					t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
				}
			}
			at.Time = t
			return nil
		}
		parseErr = err
	}

	return fmt.Errorf("unable to parse arrival time %q: %w", s, parseErr)
}

func (at ArrivalTime) MarshalJSON() ([]byte, error) {
	if at.Time.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(fmt.Sprintf("%q", at.Time.Format(time.RFC3339))), nil
}
