package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// compactLayout is a CAP date-time with its T, '-' and ':' removed.
	compactLayout = "20060102150405"

	// OutputTimeLayout is the canonical date format of emitted properties and
	// of the index mapping.
	OutputTimeLayout = "2006-01-02T15:04:05Z"
)

var capDateStripper = strings.NewReplacer("T", "", "-", "", ":", "")

// ParseCAPTime normalizes a CAP date-time such as "2024-05-01T12:00:00-04:00"
// or "20240501120000" into a UTC instant. Only the first 14 digits are read,
// so any zone offset is ignored rather than applied.
func ParseCAPTime(s string) (time.Time, error) {
	compact := capDateStripper.Replace(s)
	if len(compact) > len(compactLayout) {
		compact = compact[:len(compactLayout)]
	}
	t, err := time.ParseInLocation(compactLayout, compact, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrDateFormat, s, err)
	}
	return t, nil
}

// FormatCAPTime renders t in OutputTimeLayout.
func FormatCAPTime(t time.Time) string {
	return t.UTC().Format(OutputTimeLayout)
}
