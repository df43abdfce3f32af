// Package dedupe computes the content hash that identifies an execution.
//
// The hash input is the pipe-joined string
//
//	<timestamp>|<SYMBOL>|<side>|<abs quantity>|<price>|<broker account>
//
// where the timestamp is UTC ISO-8601 with millisecond precision and the
// numbers are rendered in their shortest decimal form. Stores recompute the
// same string, so any change here is a schema change.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

// TimestampLayout is the canonical ISO-8601 rendering used in the hash.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Key is the natural key of an execution.
type Key struct {
	Timestamp       time.Time
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	Symbol          string
	Side            string
	BrokerAccountID string
}

// Canonical renders the hash input string.
func (k Key) Canonical() string {
	return strings.Join([]string{
		k.Timestamp.UTC().Format(TimestampLayout),
		strings.ToUpper(strings.TrimSpace(k.Symbol)),
		strings.ToLower(strings.TrimSpace(k.Side)),
		k.Quantity.Abs().String(),
		k.Price.String(),
		strings.TrimSpace(k.BrokerAccountID),
	}, "|")
}

// Hash returns the hex SHA-256 of the canonical string.
func (k Key) Hash() string {
	sum := sha256.Sum256([]byte(k.Canonical()))
	return hex.EncodeToString(sum[:])
}

// KeyOf extracts the natural key of an execution.
func KeyOf(e *model.Execution) Key {
	return Key{
		Timestamp:       e.Timestamp,
		Symbol:          e.Symbol,
		Side:            string(e.Side),
		Quantity:        e.Quantity,
		Price:           e.Price,
		BrokerAccountID: e.BrokerAccountID,
	}
}

// HashExecution computes the unique hash of an execution.
func HashExecution(e *model.Execution) string {
	return KeyOf(e).Hash()
}
