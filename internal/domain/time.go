package domain

import "time"

// TimeLayout is the canonical rendering of instants everywhere they become
// strings: RFC3339 with millisecond precision, UTC, Z suffix.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders an instant in the canonical form.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
