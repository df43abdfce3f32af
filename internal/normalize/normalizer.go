// Package normalize turns loosely typed canonical field values into strictly
// typed executions.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-trades-must-flow/internal/dedupe"
	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

// DefaultCurrency is applied when a row carries none.
const DefaultCurrency = "USD"

var contractMultiplier = decimal.NewFromInt(100)

// Options tune normalization for a run.
type Options struct {
	// Location interprets timestamps that carry no zone.
	Location *time.Location
	// StrictSide rejects unrecognized sides instead of defaulting to buy.
	StrictSide bool
}

// RowContext carries the per-row provenance stamped onto executions.
type RowContext struct {
	UserID          string
	BrokerAccountID string
	ImportRunID     string
	Line            int
}

// Normalizer validates and converts canonical field sets.
type Normalizer struct {
	opts Options
}

// New creates a normalizer.
func New(opts Options) *Normalizer {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Normalizer{opts: opts}
}

// Normalize converts fs into an execution, or returns every field-scoped
// problem found. A row with any error yields no execution.
func (n *Normalizer) Normalize(fs model.FieldSet, rc RowContext) (*model.Execution, []string) {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	for _, f := range model.RequiredFields {
		if !fs.Has(f) {
			fail("missing required field: %s", f)
		}
	}

	exec := &model.Execution{
		ID:              uuid.NewString(),
		UserID:          rc.UserID,
		BrokerAccountID: strings.TrimSpace(rc.BrokerAccountID),
		ImportRunID:     rc.ImportRunID,
		LineNumber:      rc.Line,
		Venue:           fs.Get(model.FieldVenue),
		OrderID:         fs.Get(model.FieldOrderID),
		ExecID:          fs.Get(model.FieldExecID),
		Currency:        strings.ToUpper(fs.Get(model.FieldCurrency)),
		InstrumentType:  model.InstrumentEquity,
		Multiplier:      decimal.NewFromInt(1),
	}
	if exec.Currency == "" {
		exec.Currency = DefaultCurrency
	}

	if fs.Has(model.FieldTimestamp) {
		ts, err := ParseTimestamp(fs.Get(model.FieldTimestamp), n.opts.Location)
		if err != nil {
			fail("timestamp: %v", err)
		} else {
			exec.Timestamp = ts
		}
	}

	if fs.Has(model.FieldSide) {
		side, effect, ok := ParseSide(fs.Get(model.FieldSide))
		if !ok && n.opts.StrictSide {
			fail("side: unrecognized value %q", fs.Get(model.FieldSide))
		}
		exec.Side, exec.Effect = side, effect
	}

	if fs.Has(model.FieldQuantity) {
		qty, err := ParseNumber(string(model.FieldQuantity), fs.Get(model.FieldQuantity))
		switch {
		case err != nil:
			errs = append(errs, err.Error())
		case qty.IsZero():
			fail("quantity must be non-zero")
		default:
			qty = qty.Abs()
			if exec.Side == model.SideSell {
				qty = qty.Neg()
			}
			exec.Quantity = qty
		}
	}

	if fs.Has(model.FieldPrice) {
		price, err := ParseNumber(string(model.FieldPrice), fs.Get(model.FieldPrice))
		switch {
		case err != nil:
			errs = append(errs, err.Error())
		case price.IsNegative():
			fail("price must not be negative: %s", fs.Get(model.FieldPrice))
		default:
			exec.Price = price
		}
	}

	if fees, err := ParseOptionalNumber(string(model.FieldFees), fs.Get(model.FieldFees)); err != nil {
		errs = append(errs, err.Error())
	} else {
		exec.Fees = fees.Abs()
	}

	if raw := fs.Get(model.FieldInstrumentType); raw != "" {
		kind, ok := ParseInstrumentType(raw)
		if !ok {
			fail("instrument_type: unrecognized value %q", raw)
		} else {
			exec.InstrumentType = kind
		}
	}

	exec.Symbol = NormalizeSymbol(fs.Get(model.FieldSymbol))
	errs = append(errs, n.applyOptionFields(exec, fs)...)

	if raw := fs.Get(model.FieldMultiplier); raw != "" {
		mult, err := ParseNumber(string(model.FieldMultiplier), raw)
		switch {
		case err != nil:
			errs = append(errs, err.Error())
		case !mult.IsPositive():
			fail("multiplier must be positive: %s", raw)
		default:
			exec.Multiplier = mult
		}
	} else if exec.IsOption() {
		exec.Multiplier = contractMultiplier
	}

	if len(errs) > 0 {
		return nil, errs
	}

	exec.UniqueHash = dedupe.HashExecution(exec)
	return exec, nil
}

// applyOptionFields fills contract details from explicit columns, falling back
// to a decomposed OCC symbol, and enforces that option rows are complete.
func (n *Normalizer) applyOptionFields(exec *model.Execution, fs model.FieldSet) []string {
	var errs []string

	occ, isOCC := ParseWebullOptionsSymbol(exec.Symbol)
	explicit := fs.Has(model.FieldOptionType) || fs.Has(model.FieldStrike) || fs.Has(model.FieldExpiry)
	if !isOCC && !explicit && exec.InstrumentType != model.InstrumentOption {
		return nil
	}
	exec.InstrumentType = model.InstrumentOption

	exec.Underlying = NormalizeSymbol(fs.Get(model.FieldUnderlying))
	if exec.Underlying == "" && isOCC {
		exec.Underlying = occ.Underlying
	}

	if raw := fs.Get(model.FieldOptionType); raw != "" {
		kind, ok := ParseOptionType(raw)
		if !ok {
			errs = append(errs, fmt.Sprintf("option_type: unrecognized value %q", raw))
		}
		exec.OptionType = kind
	} else if isOCC {
		exec.OptionType = occ.OptionType
	}

	if raw := fs.Get(model.FieldStrike); raw != "" {
		strike, err := ParseNumber(string(model.FieldStrike), raw)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			exec.Strike = decimal.NewNullDecimal(strike)
		}
	} else if isOCC {
		exec.Strike = decimal.NewNullDecimal(occ.Strike)
	}

	if raw := fs.Get(model.FieldExpiry); raw != "" {
		expiry, err := ParseDate(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("expiry: %v", err))
		} else {
			exec.Expiry = expiry
		}
	} else if isOCC {
		exec.Expiry = occ.Expiry
	}

	if len(errs) > 0 {
		return errs
	}

	if exec.Underlying == "" {
		errs = append(errs, "option field required: underlying")
	}
	if exec.Expiry == "" {
		errs = append(errs, "option field required: expiry")
	}
	if !exec.Strike.Valid {
		errs = append(errs, "option field required: strike")
	}
	if exec.OptionType == "" {
		errs = append(errs, "option field required: option_type")
	}

	// Contracts given as separate columns get a per-contract symbol so
	// different strikes never share a dedupe key.
	if len(errs) == 0 && !isOCC {
		occSymbol, err := FormatOCCSymbol(OptionContract{
			Underlying: exec.Underlying,
			Expiry:     exec.Expiry,
			OptionType: exec.OptionType,
			Strike:     exec.Strike.Decimal,
		})
		if err == nil {
			exec.Symbol = occSymbol
		}
	}
	return errs
}
