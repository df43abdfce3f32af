package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// zoneOffsets covers the abbreviations US brokers append to exported times.
var zoneOffsets = map[string]int{
	"UTC": 0,
	"GMT": 0,
	"Z":   0,
	"EST": -5 * 3600,
	"EDT": -4 * 3600,
	"CST": -6 * 3600,
	"CDT": -5 * 3600,
	"MST": -7 * 3600,
	"MDT": -6 * 3600,
	"PST": -8 * 3600,
	"PDT": -7 * 3600,
}

// Layouts carrying their own offset.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
	time.RFC1123Z,
}

// Layouts interpreted in the configured location.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"20060102;150405",
	"2006-01-02;15:04:05",
	"20060102 150405",
	"20060102",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"01/02/2006 03:04:05 PM",
	"01/02/2006",
	"1/2/2006",
	"1/2/06",
	"02-Jan-2006 15:04:05",
	"02-Jan-2006",
	"Jan 2, 2006 15:04:05",
	"Jan 2, 2006",
}

// ParseTimestamp converts ISO-like, slash-delimited and epoch values into a
// UTC time. Values without an offset are read in loc.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}

	// Schwab: "01/15/2024 as of 01/12/2024"
	if idx := strings.Index(strings.ToLower(s), " as of "); idx > 0 {
		s = strings.TrimSpace(s[:idx])
	}

	if t, ok := parseEpoch(s); ok {
		return t.UTC(), nil
	}

	// Trailing zone abbreviation: "08/22/2025 09:31:05 EDT"
	if fields := strings.Fields(s); len(fields) > 1 {
		last := strings.ToUpper(fields[len(fields)-1])
		if offset, ok := zoneOffsets[last]; ok {
			s = strings.Join(fields[:len(fields)-1], " ")
			loc = time.FixedZone(last, offset)
		}
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// ParseDate reads a calendar date and renders it as YYYY-MM-DD.
func ParseDate(raw string) (string, error) {
	t, err := ParseTimestamp(raw, time.UTC)
	if err != nil {
		return "", err
	}
	return t.Format("2006-01-02"), nil
}

var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

const (
	minExcelSerial  = 20000
	minEpochSeconds = 1e8
)

// parseEpoch handles unix seconds, milliseconds and Excel serial dates.
func parseEpoch(s string) (time.Time, bool) {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, false
	}
	// 8-digit values are compact dates (20240115), not epochs.
	if len(s) == 8 && !strings.Contains(s, ".") {
		return time.Time{}, false
	}
	// Small numbers are more likely a quantity or price in the wrong column
	// than a date, so only serials from 1954 on and epochs from 1973 on count.
	switch {
	case n < minExcelSerial:
		return time.Time{}, false
	case n < 100000:
		days := int64(n)
		frac := n - float64(days)
		return excelEpoch.AddDate(0, 0, int(days)).Add(time.Duration(frac * float64(24*time.Hour))).Round(time.Second), true
	case n < minEpochSeconds:
		return time.Time{}, false
	case n < 1e11:
		return time.Unix(int64(n), 0), true
	case n < 1e14:
		return time.UnixMilli(int64(n)), true
	default:
		return time.UnixMicro(int64(n)), true
	}
}
