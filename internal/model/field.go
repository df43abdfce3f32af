// Package model defines the core domain models used throughout the application.
package model

import "strings"

// Field names one slot of the canonical vocabulary shared by the field mapper
// and the row normalizer.
type Field string

// Canonical fields.
const (
	FieldTimestamp      Field = "timestamp"
	FieldSymbol         Field = "symbol"
	FieldSide           Field = "side"
	FieldQuantity       Field = "quantity"
	FieldPrice          Field = "price"
	FieldFees           Field = "fees"
	FieldCurrency       Field = "currency"
	FieldVenue          Field = "venue"
	FieldOrderID        Field = "order_id"
	FieldExecID         Field = "exec_id"
	FieldInstrumentType Field = "instrument_type"
	FieldExpiry         Field = "expiry"
	FieldStrike         Field = "strike"
	FieldOptionType     Field = "option_type"
	FieldMultiplier     Field = "multiplier"
	FieldUnderlying     Field = "underlying"
)

// AllFields lists the canonical vocabulary in display order.
var AllFields = []Field{
	FieldTimestamp,
	FieldSymbol,
	FieldSide,
	FieldQuantity,
	FieldPrice,
	FieldFees,
	FieldCurrency,
	FieldVenue,
	FieldOrderID,
	FieldExecID,
	FieldInstrumentType,
	FieldExpiry,
	FieldStrike,
	FieldOptionType,
	FieldMultiplier,
	FieldUnderlying,
}

// RequiredFields must be present for a manually mapped row to be accepted.
var RequiredFields = []Field{
	FieldTimestamp,
	FieldSymbol,
	FieldSide,
	FieldQuantity,
	FieldPrice,
}

// ParseField resolves a user supplied field name.
func ParseField(s string) (Field, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, f := range AllFields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// FieldSet holds raw canonical values produced by a preset transform or a
// manual mapping, before normalization.
type FieldSet map[Field]string

// Get returns the trimmed value for f.
func (fs FieldSet) Get(f Field) string {
	return strings.TrimSpace(fs[f])
}

// Has reports whether f carries a non-blank value.
func (fs FieldSet) Has(f Field) bool {
	return fs.Get(f) != ""
}
