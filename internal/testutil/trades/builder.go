// Package trades builds broker style CSV exports for tests. It offers a
// fluent API for valid trades, blank lines and rows that fail validation.
//
// Example usage:
//
//	data := trades.NewBuilder(t).
//		WithTrades(10).
//		WithInvalidRow().
//		CSV()
package trades

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"testing"
	"time"
)

// Header is the generic export layout the builder writes. Every column maps
// onto a canonical field by name.
var Header = []string{"Date", "Symbol", "Side", "Quantity", "Price", "Fees", "Order ID"}

// TimeLayout is the timestamp format of the Date column.
const TimeLayout = "2006-01-02 15:04:05"

// Base is the time of the first generated trade.
var Base = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

// Trade is one exported fill.
type Trade struct {
	Time     time.Time
	Symbol   string
	Side     string
	Quantity string
	Price    string
	Fees     string
	OrderID  string
}

func (tr Trade) values() []string {
	return []string{
		tr.Time.Format(TimeLayout),
		tr.Symbol,
		tr.Side,
		tr.Quantity,
		tr.Price,
		tr.Fees,
		tr.OrderID,
	}
}

// Builder accumulates CSV rows.
type Builder struct {
	t       *testing.T
	rows    [][]string
	trades  int
	invalid int
}

// NewBuilder creates an empty builder.
func NewBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{t: t}
}

// WithTrade appends one trade.
func (b *Builder) WithTrade(tr Trade) *Builder {
	b.rows = append(b.rows, tr.values())
	b.trades++
	return b
}

// WithTrades appends n distinct valid trades, one minute apart, alternating
// buys and sells across two symbols.
func (b *Builder) WithTrades(n int) *Builder {
	symbols := []string{"AAPL", "MSFT"}
	sides := []string{"Buy", "Sell"}
	for i := 0; i < n; i++ {
		k := b.trades
		b.WithTrade(Trade{
			Time:     Base.Add(time.Duration(k) * time.Minute),
			Symbol:   symbols[k%2],
			Side:     sides[(k/2)%2],
			Quantity: fmt.Sprintf("%d", 10+k),
			Price:    fmt.Sprintf("%d.25", 100+k),
			Fees:     "0.35",
			OrderID:  fmt.Sprintf("ORD-%04d", k),
		})
	}
	return b
}

// WithInvalidRow appends a row with a zero quantity.
func (b *Builder) WithInvalidRow() *Builder {
	k := b.trades + b.invalid
	b.rows = append(b.rows, Trade{
		Time:     Base.Add(time.Duration(k) * time.Minute),
		Symbol:   "TSLA",
		Side:     "Buy",
		Quantity: "0",
		Price:    "200",
		OrderID:  fmt.Sprintf("BAD-%04d", k),
	}.values())
	b.invalid++
	return b
}

// WithInvalidRows appends n rows with a zero quantity.
func (b *Builder) WithInvalidRows(n int) *Builder {
	for i := 0; i < n; i++ {
		b.WithInvalidRow()
	}
	return b
}

// WithBlankRow appends an empty line.
func (b *Builder) WithBlankRow() *Builder {
	b.rows = append(b.rows, nil)
	return b
}

// Trades is the number of valid trades added.
func (b *Builder) Trades() int {
	return b.trades
}

// CSV renders the header and rows.
func (b *Builder) CSV() []byte {
	b.t.Helper()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		b.t.Fatalf("failed to write header: %v", err)
	}
	for _, row := range b.rows {
		if row == nil {
			w.Flush()
			buf.WriteString("\n")
			continue
		}
		if err := w.Write(row); err != nil {
			b.t.Fatalf("failed to write row: %v", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		b.t.Fatalf("failed to render csv: %v", err)
	}
	return buf.Bytes()
}
