package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
		loc  *time.Location
		want string
	}{
		{"rfc3339", "2024-01-01T00:00:00Z", nil, "2024-01-01T00:00:00Z"},
		{"rfc3339 offset", "2024-01-01T09:30:00-05:00", nil, "2024-01-01T14:30:00Z"},
		{"iso no zone utc", "2024-01-01 09:30:00", nil, "2024-01-01T09:30:00Z"},
		{"iso no zone new york", "2024-01-02 09:30:00", newYork, "2024-01-02T14:30:00Z"},
		{"date only", "2024-03-15", nil, "2024-03-15T00:00:00Z"},
		{"slash with zone", "08/22/2025 09:31:05 EDT", nil, "2025-08-22T13:31:05Z"},
		{"slash est", "01/05/2024 10:00:00 EST", nil, "2024-01-05T15:00:00Z"},
		{"slash twelve hour", "1/5/2024 3:04:05 PM", nil, "2024-01-05T15:04:05Z"},
		{"slash date", "12/31/2023", nil, "2023-12-31T00:00:00Z"},
		{"flex compact", "20240115;093000", nil, "2024-01-15T09:30:00Z"},
		{"flex compact date", "20240115", nil, "2024-01-15T00:00:00Z"},
		{"schwab as of", "01/15/2024 as of 01/12/2024", nil, "2024-01-15T00:00:00Z"},
		{"epoch seconds", "1704067200", nil, "2024-01-01T00:00:00Z"},
		{"epoch millis", "1704067200000", nil, "2024-01-01T00:00:00Z"},
		{"excel serial", "45292", nil, "2024-01-01T00:00:00Z"},
		{"excel serial with time", "45292.5", nil, "2024-01-01T12:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.raw, tt.loc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format(time.RFC3339))
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseTimestampErrors(t *testing.T) {
	_, err := ParseTimestamp("yesterday-ish", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yesterday-ish")

	_, err = ParseTimestamp("   ", nil)
	assert.Error(t, err)

	// Quantities and prices mapped onto the timestamp column.
	for _, raw := range []string{"5", "0", "-3", "12.5", "19999", "150000", "99999999"} {
		_, err = ParseTimestamp(raw, nil)
		assert.Error(t, err, raw)
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("08/22/2025")
	require.NoError(t, err)
	assert.Equal(t, "2025-08-22", got)

	got, err = ParseDate("20250822")
	require.NoError(t, err)
	assert.Equal(t, "2025-08-22", got)
}
