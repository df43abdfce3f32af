package preset

import (
	"regexp"
	"strings"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

var schwabHeaders = []string{
	"Date", "Action", "Symbol", "Description", "Quantity", "Price", "Fees & Comm", "Amount",
}

var schwabTradeActions = []string{
	"Buy", "Sell", "Sell Short", "Buy to Cover",
	"Buy to Open", "Buy to Close", "Sell to Open", "Sell to Close",
}

// "AAPL 01/19/2024 150.00 C"
var schwabOptionPattern = regexp.MustCompile(`^([A-Z][A-Z0-9./]*)\s+(\d{1,2}/\d{1,2}/\d{4})\s+([\d.,]+)\s+([CP])$`)

// Schwab reads the Charles Schwab account history export, which mixes trades
// with cash activity.
func Schwab() *Preset {
	return &Preset{
		ID:         "schwab",
		Label:      "Charles Schwab",
		StrictSide: true,
		Detect: detector(schwabHeaders, func(row model.RawRow) bool {
			return strings.Contains(get(row, "Date"), "/") && get(row, "Action") != ""
		}),
		Transform: transformSchwab,
	}
}

// SchwabOption is a decomposed Schwab option symbol.
type SchwabOption struct {
	Underlying string
	Expiry     string
	Strike     string
	OptionType string
}

// ParseSchwabOptionSymbol decomposes symbols like "AAPL 01/19/2024 150.00 C".
func ParseSchwabOptionSymbol(symbol string) (SchwabOption, bool) {
	m := schwabOptionPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(symbol)))
	if m == nil {
		return SchwabOption{}, false
	}
	return SchwabOption{
		Underlying: m[1],
		Expiry:     m[2],
		Strike:     m[3],
		OptionType: m[4],
	}, true
}

func transformSchwab(row model.RawRow) Result {
	action := get(row, "Action")
	if !oneOf(action, schwabTradeActions...) {
		return Skip("non-trade activity %q", action)
	}

	symbol := get(row, "Symbol")
	fs := model.FieldSet{
		model.FieldTimestamp: get(row, "Date"),
		model.FieldSymbol:    symbol,
		model.FieldSide:      action,
		model.FieldQuantity:  get(row, "Quantity"),
		model.FieldPrice:     get(row, "Price"),
		model.FieldFees:      get(row, "Fees & Comm"),
	}

	if opt, ok := ParseSchwabOptionSymbol(symbol); ok {
		fs[model.FieldInstrumentType] = string(model.InstrumentOption)
		fs[model.FieldUnderlying] = opt.Underlying
		fs[model.FieldExpiry] = opt.Expiry
		fs[model.FieldStrike] = opt.Strike
		fs[model.FieldOptionType] = opt.OptionType
	}
	return Accept(fs)
}
