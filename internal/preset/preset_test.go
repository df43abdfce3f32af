package preset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/ofx"
)

func rowOf(headers []string, values ...string) model.RawRow {
	cells := make([]model.Cell, len(values))
	for i, v := range values {
		cells[i] = model.StringCell(v)
	}
	return model.NewRawRow(2, headers, cells)
}

func TestMatchPicksBroker(t *testing.T) {
	reg := Default()

	tests := []struct {
		name    string
		headers []string
		sample  model.RawRow
		want    string
	}{
		{
			name:    "webull",
			headers: webullHeaders,
			sample:  rowOf(webullHeaders, "Tesla", "TSLA", "Buy", "Filled", "10", "10", "@250.00", "250.00", "DAY", "08/22/2025 09:30:00 EDT", "08/22/2025 09:30:01 EDT"),
			want:    "webull",
		},
		{
			name:    "ibkr",
			headers: append(append([]string{}, ibkrHeaders...), "levelOfDetail"),
			sample:  rowOf(ibkrHeaders, "AAPL", "BUY", "100", "150.25", "20240115;093000", "-1", "USD", "STK"),
			want:    "ibkr-flex",
		},
		{
			name:    "schwab",
			headers: schwabHeaders,
			sample:  rowOf(schwabHeaders, "01/15/2024", "Buy", "AAPL", "APPLE INC", "100", "$150.25", "", "-$15025.00"),
			want:    "schwab",
		},
		{
			name:    "robinhood",
			headers: robinhoodHeaders,
			sample:  rowOf(robinhoodHeaders, "1/15/2024", "1/15/2024", "1/17/2024", "AAPL", "Apple", "Buy", "10", "$150.00", "($1,500.00)"),
			want:    "robinhood",
		},
		{
			name:    "tastytrade",
			headers: tastytradeHeaders,
			sample:  rowOf(tastytradeHeaders, "2024-01-15T14:30:00+0000", "Trade", "Buy to Open", "BUY_TO_OPEN", "AAPL", "Equity", "100", "-150.25", "-1.00", "-0.14", "1", "AAPL", "", "", ""),
			want:    "tastytrade",
		},
		{
			name:    "ofx",
			headers: ofx.Columns,
			sample:  rowOf(ofx.Columns, "2024-01-15T14:30:00Z", "X123", "BUY", "AAPL", "100", "150.25", "1", "", "-15026", "USD", "T-1", "STOCK"),
			want:    "ofx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := reg.Match(tt.headers, []model.RawRow{tt.sample})
			require.NotNil(t, m.Preset)
			assert.Equal(t, tt.want, m.Preset.ID)
			assert.GreaterOrEqual(t, m.Score, DefaultThreshold)
		})
	}
}

func TestMatchGenericFileBelowThreshold(t *testing.T) {
	headers := []string{"Date", "Symbol", "Side", "Qty", "Price"}
	sample := []model.RawRow{rowOf(headers, "2024-01-01", "AAPL", "buy", "1", "1")}

	m := Default().Match(headers, sample)
	assert.Less(t, m.Score, DefaultThreshold)
}

func TestMatchNothing(t *testing.T) {
	m := Default().Match([]string{"foo", "bar"}, nil)
	assert.Nil(t, m.Preset)
	assert.Zero(t, m.Score)
}

func TestRanked(t *testing.T) {
	ranked := Default().Ranked(webullHeaders, nil)
	require.Len(t, ranked, 6)
	assert.Equal(t, "webull", ranked[0].Preset.ID)
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Score, ranked[i].Score)
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(Webull(), Webull())
	assert.Error(t, err)

	_, err = NewRegistry(&Preset{ID: "broken"})
	assert.Error(t, err)
}

func TestRegistryGet(t *testing.T) {
	p, ok := Default().Get(" IBKR-Flex ")
	require.True(t, ok)
	assert.Equal(t, "ibkr-flex", p.ID)

	_, ok = Default().Get("etrade")
	assert.False(t, ok)
}

func TestWebullTransform(t *testing.T) {
	filled := rowOf(webullHeaders, "Tesla", "TSLA250822C00325000", "Buy", "Filled", "2", "2", "@3.60", "3.51", "DAY", "08/22/2025 09:30:00 EDT", "08/22/2025 09:31:05 EDT")
	res := transformWebull(filled)
	require.Equal(t, Accepted, res.Outcome)
	assert.Equal(t, "TSLA250822C00325000", res.Fields.Get(model.FieldSymbol))
	assert.Equal(t, "3.51", res.Fields.Get(model.FieldPrice))
	assert.Equal(t, "08/22/2025 09:31:05 EDT", res.Fields.Get(model.FieldTimestamp))
	assert.Equal(t, "2", res.Fields.Get(model.FieldQuantity))

	noAvg := rowOf(webullHeaders, "Tesla", "TSLA", "Sell", "Filled", "1", "1", "@250.00", "", "DAY", "", "08/22/2025 09:31:05 EDT")
	assert.Equal(t, "@250.00", transformWebull(noAvg).Fields.Get(model.FieldPrice))

	cancelled := rowOf(webullHeaders, "Tesla", "TSLA", "Buy", "Cancelled", "0", "2", "@3.60", "", "DAY", "08/22/2025 09:30:00 EDT", "")
	assert.Equal(t, Skipped, transformWebull(cancelled).Outcome)

	missingTime := rowOf(webullHeaders, "Tesla", "TSLA", "Buy", "Filled", "2", "2", "@3.60", "3.51", "DAY", "08/22/2025 09:30:00 EDT", "")
	assert.Equal(t, Rejected, transformWebull(missingTime).Outcome)
}

func TestIBKRTransform(t *testing.T) {
	headers := []string{
		"symbol", "buySell", "quantity", "tradePrice", "dateTime", "ibCommission", "currency",
		"assetCategory", "underlyingSymbol", "expiry", "strike", "putCall", "multiplier",
		"openCloseIndicator", "levelOfDetail", "ibExecID",
	}

	opt := rowOf(headers, "AAPL  240119C00150000", "BUY", "1", "2.5", "20240115;093000", "-0.65", "USD",
		"OPT", "AAPL", "20240119", "150", "C", "100", "O", "EXECUTION", "E1")
	res := transformIBKR(opt)
	require.Equal(t, Accepted, res.Outcome)
	assert.Equal(t, "AAPL240119C00150000", res.Fields.Get(model.FieldSymbol))
	assert.Equal(t, "BUY_TO_OPEN", res.Fields.Get(model.FieldSide))
	assert.Equal(t, "option", res.Fields.Get(model.FieldInstrumentType))
	assert.Equal(t, "C", res.Fields.Get(model.FieldOptionType))
	assert.Equal(t, "E1", res.Fields.Get(model.FieldExecID))

	order := rowOf(headers, "AAPL", "BUY", "1", "2.5", "20240115;093000", "", "USD", "STK", "", "", "", "", "1", "", "ORDER", "")
	assert.Equal(t, Skipped, transformIBKR(order).Outcome)

	cash := rowOf(headers, "EUR.USD", "BUY", "1", "1.1", "20240115;093000", "", "USD", "CASH", "", "", "", "", "1", "", "EXECUTION", "")
	assert.Equal(t, Skipped, transformIBKR(cash).Outcome)

	cancelled := rowOf(headers, "AAPL", "SELL (Ca.)", "1", "2.5", "20240115;093000", "", "USD", "STK", "", "", "", "", "1", "", "EXECUTION", "")
	assert.Equal(t, Skipped, transformIBKR(cancelled).Outcome)

	split := rowOf([]string{"symbol", "buySell", "quantity", "tradePrice", "tradeDate", "tradeTime"}, "MSFT", "SELL", "-5", "400", "20240115", "153000")
	res = transformIBKR(split)
	require.Equal(t, Accepted, res.Outcome)
	assert.Equal(t, "20240115;153000", res.Fields.Get(model.FieldTimestamp))
	assert.Equal(t, "equity", res.Fields.Get(model.FieldInstrumentType))
}

func TestSchwabTransform(t *testing.T) {
	buy := rowOf(schwabHeaders, "01/15/2024 as of 01/12/2024", "Buy to Open", "AAPL 01/19/2024 150.00 C", "CALL APPLE INC", "1", "$2.50", "$0.66", "-$250.66")
	res := transformSchwab(buy)
	require.Equal(t, Accepted, res.Outcome)
	assert.Equal(t, "option", res.Fields.Get(model.FieldInstrumentType))
	assert.Equal(t, "AAPL", res.Fields.Get(model.FieldUnderlying))
	assert.Equal(t, "01/19/2024", res.Fields.Get(model.FieldExpiry))
	assert.Equal(t, "150.00", res.Fields.Get(model.FieldStrike))
	assert.Equal(t, "C", res.Fields.Get(model.FieldOptionType))
	assert.Equal(t, "$0.66", res.Fields.Get(model.FieldFees))

	dividend := rowOf(schwabHeaders, "01/15/2024", "Qualified Dividend", "AAPL", "APPLE INC", "", "", "", "$24.00")
	assert.Equal(t, Skipped, transformSchwab(dividend).Outcome)
}

func TestParseSchwabOptionSymbol(t *testing.T) {
	opt, ok := ParseSchwabOptionSymbol("spy 3/1/2024 505.00 p")
	require.True(t, ok)
	assert.Equal(t, SchwabOption{Underlying: "SPY", Expiry: "3/1/2024", Strike: "505.00", OptionType: "P"}, opt)

	_, ok = ParseSchwabOptionSymbol("AAPL")
	assert.False(t, ok)
}

func TestRobinhoodTransform(t *testing.T) {
	opt := rowOf(robinhoodHeaders, "1/15/2024", "1/15/2024", "1/16/2024", "AAPL", "AAPL 1/19/2024 Call $150.00", "BTO", "1", "$2.50", "($250.04)")
	res := transformRobinhood(opt)
	require.Equal(t, Accepted, res.Outcome)
	assert.Equal(t, "buy to open", res.Fields.Get(model.FieldSide))
	assert.Equal(t, "Call", res.Fields.Get(model.FieldOptionType))
	assert.Equal(t, "150.00", res.Fields.Get(model.FieldStrike))
	assert.Equal(t, "1/19/2024", res.Fields.Get(model.FieldExpiry))

	short := rowOf(robinhoodHeaders, "1/15/2024", "1/15/2024", "1/16/2024", "GME", "GameStop", "Sell", "10S", "$20.00", "$200.00")
	assert.Equal(t, "10", transformRobinhood(short).Fields.Get(model.FieldQuantity))

	deposit := rowOf(robinhoodHeaders, "1/15/2024", "1/15/2024", "1/15/2024", "", "ACH Deposit", "ACH", "", "", "$1,000.00")
	assert.Equal(t, Skipped, transformRobinhood(deposit).Outcome)

	footer := rowOf(robinhoodHeaders, "The data provided is for informational purposes only.")
	assert.Equal(t, Skipped, transformRobinhood(footer).Outcome)
}

func TestTastytradeTransform(t *testing.T) {
	headers := append(append([]string{}, tastytradeHeaders...), "Order #", "Currency")
	opt := rowOf(headers, "2024-01-15T14:30:00+0000", "Trade", "Sell to Open", "SELL_TO_OPEN", "SPY   240119P00470000",
		"Equity Option", "1", "1.25", "-1.00", "-0.14", "100", "SPY", "1/19/24", "470", "PUT", "123", "USD")
	res := transformTastytrade(opt)
	require.Equal(t, Accepted, res.Outcome)
	assert.Equal(t, "SPY240119P00470000", res.Fields.Get(model.FieldSymbol))
	assert.Equal(t, "1.14", res.Fields.Get(model.FieldFees))
	assert.Equal(t, "SELL_TO_OPEN", res.Fields.Get(model.FieldSide))
	assert.Equal(t, "PUT", res.Fields.Get(model.FieldOptionType))

	buy := rowOf(headers, "2024-01-15T14:30:00+0000", "Trade", "Buy to Open", "BUY_TO_OPEN", "AAPL",
		"Equity", "100", "-150.25", "0", "-0.08", "1", "", "", "", "", "124", "USD")
	res = transformTastytrade(buy)
	require.Equal(t, Accepted, res.Outcome)
	assert.Equal(t, "150.25", res.Fields.Get(model.FieldPrice))

	transfer := rowOf(headers, "2024-01-15T14:30:00+0000", "Money Movement", "Deposit")
	assert.Equal(t, Skipped, transformTastytrade(transfer).Outcome)

	badFees := rowOf(headers, "2024-01-15T14:30:00+0000", "Trade", "Buy to Open", "BUY_TO_OPEN", "AAPL",
		"Equity", "100", "-150.25", "lots", "-0.08")
	assert.Equal(t, Rejected, transformTastytrade(badFees).Outcome)
}

func TestOFXTransform(t *testing.T) {
	row := rowOf(ofx.Columns, "2024-01-15T14:30:00Z", "X123", "SELL TO CLOSE", "AAPL240119C00150000", "1", "2.5", "0.65", "0.02", "249.33", "USD", "T-9",
		"OPTION", "CALL", "150", "2024-01-19", "AAPL", "100", "")
	res := transformOFX(row)
	require.Equal(t, Accepted, res.Outcome)
	assert.Equal(t, "0.67", res.Fields.Get(model.FieldFees))
	assert.Equal(t, "option", res.Fields.Get(model.FieldInstrumentType))
	assert.Equal(t, "AAPL", res.Fields.Get(model.FieldUnderlying))
	assert.Equal(t, "T-9", res.Fields.Get(model.FieldExecID))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "skipped", Skipped.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())
}
