package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "150", "150"},
		{"parenthetical negative", "(12.50)", "-12.5"},
		{"at sign", "@3.51", "3.51"},
		{"dollar", "$1,234.56", "1234.56"},
		{"negative dollar", "-$5.00", "-5"},
		{"dollar negative", "$-5.00", "-5"},
		{"parenthetical dollar", "($1,000)", "-1000"},
		{"dollar parenthetical", "$(12.50)", "-12.5"},
		{"currency code parenthetical", "USD (3.25)", "-3.25"},
		{"explicit plus", "+7", "7"},
		{"trailing minus", "25-", "-25"},
		{"currency code", "USD 10.5", "10.5"},
		{"whitespace", "  42  ", "42"},
		{"scientific", "1.5e2", "150"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNumber("price", tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseNumberErrors(t *testing.T) {
	for _, raw := range []string{"abc", "", "  ", "$", "()", "1.2.3", "12abc", "e5"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseNumber("quantity", raw)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "quantity")

			var numErr *NumberError
			require.ErrorAs(t, err, &numErr)
			assert.Equal(t, "quantity", numErr.Field)
		})
	}
}

func TestParseOptionalNumber(t *testing.T) {
	got, err := ParseOptionalNumber("fees", "")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = ParseOptionalNumber("fees", "(0.65)")
	require.NoError(t, err)
	assert.Equal(t, "-0.65", got.String())

	_, err = ParseOptionalNumber("fees", "n/a")
	assert.Error(t, err)
}
