package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-trades-must-flow/internal/dedupe"
	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

func equityRow() model.FieldSet {
	return model.FieldSet{
		model.FieldTimestamp: "2024-01-01T00:00:00Z",
		model.FieldSymbol:    "aapl ",
		model.FieldSide:      "SELL",
		model.FieldQuantity:  "100",
		model.FieldPrice:     "$150.00",
		model.FieldFees:      "(1.25)",
	}
}

func TestNormalizeEquity(t *testing.T) {
	n := New(Options{})
	exec, errs := n.Normalize(equityRow(), RowContext{UserID: "u1", ImportRunID: "r1", Line: 7})
	require.Empty(t, errs)
	require.NotNil(t, exec)

	assert.Equal(t, "AAPL", exec.Symbol)
	assert.Equal(t, model.SideSell, exec.Side)
	assert.Equal(t, "-100", exec.Quantity.String())
	assert.Equal(t, "150", exec.Price.String())
	assert.Equal(t, "1.25", exec.Fees.String())
	assert.Equal(t, "USD", exec.Currency)
	assert.Equal(t, model.InstrumentEquity, exec.InstrumentType)
	assert.Equal(t, "1", exec.Multiplier.String())
	assert.Equal(t, 7, exec.LineNumber)
	assert.Equal(t, "r1", exec.ImportRunID)
	assert.NotEmpty(t, exec.ID)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), exec.Timestamp)
	assert.Equal(t, dedupe.HashExecution(exec), exec.UniqueHash)
}

func TestNormalizeHashIgnoresFormatting(t *testing.T) {
	n := New(Options{})
	a, errs := n.Normalize(equityRow(), RowContext{UserID: "u1"})
	require.Empty(t, errs)

	row := equityRow()
	row[model.FieldSymbol] = "AAPL"
	row[model.FieldSide] = " sell"
	row[model.FieldQuantity] = "-100.00"
	row[model.FieldPrice] = "150"
	b, errs := n.Normalize(row, RowContext{UserID: "u1"})
	require.Empty(t, errs)

	assert.Equal(t, a.UniqueHash, b.UniqueHash)
}

func TestNormalizeMissingRequired(t *testing.T) {
	n := New(Options{})
	exec, errs := n.Normalize(model.FieldSet{model.FieldSymbol: "AAPL"}, RowContext{})
	assert.Nil(t, exec)
	assert.ElementsMatch(t, []string{
		"missing required field: timestamp",
		"missing required field: side",
		"missing required field: quantity",
		"missing required field: price",
	}, errs)
}

func TestNormalizeCollectsFieldErrors(t *testing.T) {
	row := equityRow()
	row[model.FieldQuantity] = "abc"
	row[model.FieldTimestamp] = "not a date"

	exec, errs := New(Options{}).Normalize(row, RowContext{})
	assert.Nil(t, exec)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "not a date")
	assert.Contains(t, errs[1], "quantity")
}

func TestNormalizeUnknownSide(t *testing.T) {
	row := equityRow()
	row[model.FieldSide] = "journal"

	exec, errs := New(Options{}).Normalize(row, RowContext{})
	require.Empty(t, errs)
	assert.Equal(t, model.SideBuy, exec.Side)
	assert.True(t, exec.Quantity.IsPositive())

	exec, errs = New(Options{StrictSide: true}).Normalize(row, RowContext{})
	assert.Nil(t, exec)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "journal")
}

func TestNormalizeZeroQuantity(t *testing.T) {
	row := equityRow()
	row[model.FieldQuantity] = "0"
	_, errs := New(Options{}).Normalize(row, RowContext{})
	assert.Equal(t, []string{"quantity must be non-zero"}, errs)
}

func TestNormalizeOptionFromSymbol(t *testing.T) {
	row := model.FieldSet{
		model.FieldTimestamp: "08/22/2025 09:31:05 EDT",
		model.FieldSymbol:    "TSLA250822C00325000",
		model.FieldSide:      "BUY_TO_OPEN",
		model.FieldQuantity:  "2",
		model.FieldPrice:     "@3.51",
	}

	exec, errs := New(Options{}).Normalize(row, RowContext{})
	require.Empty(t, errs)
	assert.Equal(t, model.InstrumentOption, exec.InstrumentType)
	assert.Equal(t, "TSLA", exec.Underlying)
	assert.Equal(t, "2025-08-22", exec.Expiry)
	assert.Equal(t, model.OptionCall, exec.OptionType)
	assert.Equal(t, "325", exec.Strike.Decimal.String())
	assert.Equal(t, "100", exec.Multiplier.String())
	assert.Equal(t, model.EffectOpen, exec.Effect)
	assert.Equal(t, "3.51", exec.Price.String())
}

func TestNormalizeIncompleteOption(t *testing.T) {
	row := equityRow()
	row[model.FieldStrike] = "150"

	exec, errs := New(Options{}).Normalize(row, RowContext{})
	assert.Nil(t, exec)
	assert.ElementsMatch(t, []string{
		"option field required: underlying",
		"option field required: expiry",
		"option field required: option_type",
	}, errs)
}

func TestNormalizeExplicitOption(t *testing.T) {
	row := equityRow()
	row[model.FieldInstrumentType] = "option"
	row[model.FieldUnderlying] = "aapl"
	row[model.FieldExpiry] = "01/19/2024"
	row[model.FieldStrike] = "150.00"
	row[model.FieldOptionType] = "p"
	row[model.FieldMultiplier] = "10"

	exec, errs := New(Options{}).Normalize(row, RowContext{})
	require.Empty(t, errs)
	assert.Equal(t, "AAPL", exec.Underlying)
	assert.Equal(t, "2024-01-19", exec.Expiry)
	assert.Equal(t, model.OptionPut, exec.OptionType)
	assert.Equal(t, "10", exec.Multiplier.String())
	assert.Equal(t, "AAPL240119P00150000", exec.Symbol)
}
