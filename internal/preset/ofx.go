package preset

import (
	"strings"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/ofx"
)

// OFX reads rows flattened from OFX/QFX investment statements.
func OFX() *Preset {
	return &Preset{
		ID:         "ofx",
		Label:      "OFX / QFX investment statement",
		StrictSide: true,
		Detect: detector(ofx.Columns, func(row model.RawRow) bool {
			return get(row, "FITID") != ""
		}),
		Transform: transformOFX,
	}
}

func transformOFX(row model.RawRow) Result {
	fees, err := sumFees(get(row, "Commission"), get(row, "Fees"))
	if err != nil {
		return Reject("%v", err)
	}

	kind := model.InstrumentEquity
	if strings.EqualFold(get(row, "Security Type"), "OPTION") {
		kind = model.InstrumentOption
	}

	fs := model.FieldSet{
		model.FieldTimestamp:      get(row, "Date"),
		model.FieldSymbol:         get(row, "Symbol"),
		model.FieldSide:           get(row, "Action"),
		model.FieldQuantity:       get(row, "Quantity"),
		model.FieldPrice:          get(row, "Price"),
		model.FieldFees:           fees,
		model.FieldCurrency:       get(row, "Currency"),
		model.FieldExecID:         get(row, "FITID"),
		model.FieldInstrumentType: string(kind),
		model.FieldMultiplier:     get(row, "Multiplier"),
	}
	if kind == model.InstrumentOption {
		fs[model.FieldUnderlying] = get(row, "Underlying")
		fs[model.FieldExpiry] = get(row, "Expiry")
		fs[model.FieldStrike] = get(row, "Strike")
		fs[model.FieldOptionType] = get(row, "Option Type")
	}
	return Accept(fs)
}
