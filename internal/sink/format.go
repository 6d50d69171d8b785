package sink

import (
	"strconv"
	"time"
)

// NotAvailable is written for unavailable values.
const NotAvailable = "N/A"

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return formatFloat(*v)
}

func optionalString(v *float64) *string {
	if v == nil {
		return nil
	}
	s := formatFloat(*v)
	return &s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
