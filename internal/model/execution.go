package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentType is the asset class of an execution.
type InstrumentType string

// Instrument types.
const (
	InstrumentEquity  InstrumentType = "equity"
	InstrumentOption  InstrumentType = "option"
	InstrumentFutures InstrumentType = "futures"
	InstrumentCrypto  InstrumentType = "crypto"
)

// Side is the stored direction of an execution. Short and cover are
// collapsed to sell and buy with Effect carrying the open/close intent.
type Side string

// Sides.
const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Effect records whether an execution opens or closes a position, when the
// source says so.
type Effect string

// Position effects.
const (
	EffectNone  Effect = ""
	EffectOpen  Effect = "open"
	EffectClose Effect = "close"
)

// OptionType is CALL or PUT.
type OptionType string

// Option types.
const (
	OptionCall OptionType = "CALL"
	OptionPut  OptionType = "PUT"
)

// Execution is the canonical, normalized unit written to the executions
// store. Quantity is signed: positive means bought.
type Execution struct {
	Timestamp       time.Time
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	Fees            decimal.Decimal
	Multiplier      decimal.Decimal
	Strike          decimal.NullDecimal
	ID              string
	UserID          string
	BrokerAccountID string
	ImportRunID     string
	InstrumentID    string
	Symbol          string
	Underlying      string
	Expiry          string
	Currency        string
	Venue           string
	OrderID         string
	ExecID          string
	UniqueHash      string
	InstrumentType  InstrumentType
	Side            Side
	Effect          Effect
	OptionType      OptionType
	LineNumber      int
}

// IsOption reports whether the execution carries option contract fields.
func (e *Execution) IsOption() bool {
	return e.InstrumentType == InstrumentOption
}
