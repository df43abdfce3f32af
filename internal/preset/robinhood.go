package preset

import (
	"regexp"
	"strings"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

var robinhoodHeaders = []string{
	"Activity Date", "Process Date", "Settle Date", "Instrument",
	"Description", "Trans Code", "Quantity", "Price", "Amount",
}

var robinhoodSides = map[string]string{
	"BUY":  "buy",
	"SELL": "sell",
	"BTO":  "buy to open",
	"BTC":  "buy to close",
	"STO":  "sell to open",
	"STC":  "sell to close",
}

// "AAPL 1/19/2024 Call $150.00"
var robinhoodOptionPattern = regexp.MustCompile(`(?i)^([A-Z][A-Z0-9.]*)\s+(\d{1,2}/\d{1,2}/\d{4})\s+(call|put)\s+\$?([\d,.]+)`)

// Robinhood reads the Robinhood account activity report.
func Robinhood() *Preset {
	return &Preset{
		ID:         "robinhood",
		Label:      "Robinhood",
		StrictSide: true,
		Detect: detector(robinhoodHeaders, func(row model.RawRow) bool {
			return get(row, "Activity Date") != "" && get(row, "Trans Code") != ""
		}),
		Transform: transformRobinhood,
	}
}

func transformRobinhood(row model.RawRow) Result {
	code := strings.ToUpper(get(row, "Trans Code"))
	side, ok := robinhoodSides[code]
	if !ok {
		if code == "" {
			return Skip("no transaction code")
		}
		return Skip("non-trade activity %s", code)
	}

	// Short sales are exported with an "S" suffix on the quantity.
	qty := strings.TrimSuffix(strings.ToUpper(get(row, "Quantity")), "S")

	fs := model.FieldSet{
		model.FieldTimestamp: get(row, "Activity Date"),
		model.FieldSymbol:    get(row, "Instrument"),
		model.FieldSide:      side,
		model.FieldQuantity:  qty,
		model.FieldPrice:     get(row, "Price"),
	}

	if m := robinhoodOptionPattern.FindStringSubmatch(get(row, "Description")); m != nil {
		fs[model.FieldInstrumentType] = string(model.InstrumentOption)
		fs[model.FieldUnderlying] = m[1]
		fs[model.FieldExpiry] = m[2]
		fs[model.FieldOptionType] = m[3]
		fs[model.FieldStrike] = m[4]
	}
	return Accept(fs)
}
