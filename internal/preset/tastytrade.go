package preset

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/normalize"
)

var tastytradeHeaders = []string{
	"Date", "Type", "Sub Type", "Action", "Symbol", "Instrument Type",
	"Quantity", "Average Price", "Commissions", "Fees", "Multiplier",
	"Underlying Symbol", "Expiration Date", "Strike Price", "Call or Put",
}

var tastytradeInstruments = map[string]model.InstrumentType{
	"equity":          model.InstrumentEquity,
	"equity option":   model.InstrumentOption,
	"future":          model.InstrumentFutures,
	"future option":   model.InstrumentOption,
	"cryptocurrency":  model.InstrumentCrypto,
	"index option":    model.InstrumentOption,
	"equity offering": model.InstrumentEquity,
}

// Tastytrade reads the tastytrade transaction history export.
func Tastytrade() *Preset {
	return &Preset{
		ID:         "tastytrade",
		Label:      "tastytrade",
		StrictSide: true,
		Detect: detector(tastytradeHeaders, func(row model.RawRow) bool {
			return get(row, "Type") != "" && strings.Contains(get(row, "Date"), "-")
		}),
		Transform: transformTastytrade,
	}
}

func transformTastytrade(row model.RawRow) Result {
	if !strings.EqualFold(get(row, "Type"), "Trade") {
		return Skip("non-trade activity %q", get(row, "Type"))
	}

	instrument := strings.ToLower(get(row, "Instrument Type"))
	kind, ok := tastytradeInstruments[instrument]
	if !ok {
		return Skip("unsupported instrument type %q", get(row, "Instrument Type"))
	}

	fees, err := sumFees(get(row, "Commissions"), get(row, "Fees"))
	if err != nil {
		return Reject("%v", err)
	}

	price := strings.TrimPrefix(strings.TrimSpace(get(row, "Average Price")), "-")

	fs := model.FieldSet{
		model.FieldTimestamp:      get(row, "Date"),
		model.FieldSymbol:         compactSymbol(get(row, "Symbol")),
		model.FieldSide:           first(row, "Action", "Sub Type"),
		model.FieldQuantity:       get(row, "Quantity"),
		model.FieldPrice:          price,
		model.FieldFees:           fees,
		model.FieldCurrency:       get(row, "Currency"),
		model.FieldOrderID:        get(row, "Order #"),
		model.FieldInstrumentType: string(kind),
		model.FieldMultiplier:     get(row, "Multiplier"),
	}

	if kind == model.InstrumentOption {
		fs[model.FieldUnderlying] = first(row, "Underlying Symbol", "Root Symbol")
		fs[model.FieldExpiry] = get(row, "Expiration Date")
		fs[model.FieldStrike] = get(row, "Strike Price")
		fs[model.FieldOptionType] = get(row, "Call or Put")
	}
	return Accept(fs)
}

// sumFees adds fee columns, ignoring blanks. Signs are dropped since exports
// disagree on whether fees are negative.
func sumFees(values ...string) (string, error) {
	total := decimal.Zero
	for _, v := range values {
		d, err := normalize.ParseOptionalNumber("fees", v)
		if err != nil {
			return "", err
		}
		total = total.Add(d.Abs())
	}
	return total.String(), nil
}
