// Package dateutils provides the ISO 8601 date handling used by the camt codec.
package dateutils

import (
	"fmt"
	"strings"
	"time"
)

// Date and time layouts found in ISO 20022 messages
const (
	DateLayoutISO        = "2006-01-02"
	DateLayoutISOZone    = "2006-01-02Z07:00"
	DateTimeLayoutLocal  = "2006-01-02T15:04:05.999999999"
	DateTimeLayoutOffset = "2006-01-02T15:04:05.999999999Z07:00"
)

// ParseISODate parses an ISODate or ISODateTime and returns the calendar date at
// UTC midnight. Date-times are reduced to their date in their own offset.
func ParseISODate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range []string{DateLayoutISO, DateLayoutISOZone} {
		if t, err := time.Parse(layout, s); err == nil {
			return civil(t), nil
		}
	}
	t, err := ParseISODateTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
	}
	return civil(t), nil
}

// ParseISODateTime parses an ISODateTime with or without offset. Date-times
// without an offset are interpreted in UTC.
func ParseISODateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{DateTimeLayoutOffset, DateTimeLayoutLocal} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date-time: %s", s)
}

// ToISODate formats a time.Time value as an ISO date (YYYY-MM-DD)
func ToISODate(date time.Time) string {
	if date.IsZero() {
		return ""
	}
	return date.Format(DateLayoutISO)
}

// FormatISODateTime formats t in loc with a fixed millisecond layout so that
// equal instants always serialize identically.
func FormatISODateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02T15:04:05.000Z07:00")
}

// StartOfDay returns 00:00:00 of the date in loc
func StartOfDay(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOfDay returns the last representable millisecond of the date in loc
func EndOfDay(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 23, 59, 59, 999_000_000, loc)
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
