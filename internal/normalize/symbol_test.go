package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

func TestParseWebullOptionsSymbol(t *testing.T) {
	got, ok := ParseWebullOptionsSymbol("TSLA250822C00325000")
	require.True(t, ok)
	assert.Equal(t, "TSLA", got.Underlying)
	assert.Equal(t, "2025-08-22", got.Expiry)
	assert.Equal(t, model.OptionCall, got.OptionType)
	assert.Equal(t, "325", got.Strike.String())
}

func TestParseWebullOptionsSymbolVariants(t *testing.T) {
	tests := []struct {
		symbol     string
		underlying string
		expiry     string
		kind       model.OptionType
		strike     string
	}{
		{"spy240119p00470500", "SPY", "2024-01-19", model.OptionPut, "470.5"},
		{"AAPL  240119C00150000", "AAPL", "2024-01-19", model.OptionCall, "150"},
		{".QQQ231215P00390000", "QQQ", "2023-12-15", model.OptionPut, "390"},
		{"BRK.B240621C00400000", "BRK.B", "2024-06-21", model.OptionCall, "400"},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			got, ok := ParseWebullOptionsSymbol(tt.symbol)
			require.True(t, ok)
			assert.Equal(t, tt.underlying, got.Underlying)
			assert.Equal(t, tt.expiry, got.Expiry)
			assert.Equal(t, tt.kind, got.OptionType)
			assert.Equal(t, tt.strike, got.Strike.String())
		})
	}
}

func TestParseWebullOptionsSymbolRejects(t *testing.T) {
	for _, s := range []string{"AAPL", "TSLA250822X00325000", "TSLA251322C00325000", "TSLA250822C325000", ""} {
		_, ok := ParseWebullOptionsSymbol(s)
		assert.False(t, ok, s)
	}
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "AAPL", NormalizeSymbol("  aapl "))
	assert.Equal(t, "BRK.B", NormalizeSymbol("brk.b"))
}

func TestParseInstrumentType(t *testing.T) {
	kind, ok := ParseInstrumentType("STK")
	require.True(t, ok)
	assert.Equal(t, model.InstrumentEquity, kind)

	kind, ok = ParseInstrumentType("Equity Option")
	require.True(t, ok)
	assert.Equal(t, model.InstrumentOption, kind)

	_, ok = ParseInstrumentType("bond")
	assert.False(t, ok)
}

func TestFormatOCCSymbol(t *testing.T) {
	c, ok := ParseWebullOptionsSymbol("SPY240119P00470500")
	require.True(t, ok)

	got, err := FormatOCCSymbol(c)
	require.NoError(t, err)
	assert.Equal(t, "SPY240119P00470500", got)
}
