package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// CellKind tags the variant held by a Cell.
type CellKind uint8

// Cell kinds.
const (
	CellNull CellKind = iota
	CellString
	CellNumber
)

// Cell is one loosely typed source value: a string, a number or null.
type Cell struct {
	Text   string
	Number float64
	Kind   CellKind
}

// StringCell wraps a string value.
func StringCell(s string) Cell {
	return Cell{Kind: CellString, Text: s}
}

// NumberCell wraps a numeric value.
func NumberCell(n float64) Cell {
	return Cell{Kind: CellNumber, Number: n}
}

// String renders the cell as source text. Null renders as "".
func (c Cell) String() string {
	switch c.Kind {
	case CellString:
		return c.Text
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	default:
		return ""
	}
}

// IsBlank reports whether the cell is null or whitespace only.
func (c Cell) IsBlank() bool {
	return strings.TrimSpace(c.String()) == ""
}

// MarshalJSON encodes the cell as its natural JSON value.
func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CellString:
		return json.Marshal(c.Text)
	case CellNumber:
		return json.Marshal(c.Number)
	default:
		return []byte("null"), nil
	}
}

// RawRow is one data row as read from the source file. Headers keeps the
// column order; Cells is keyed by the de-duplicated header name.
type RawRow struct {
	Cells   map[string]Cell
	Headers []string
	Line    int
}

// NewRawRow builds a row from parallel header and value slices. Missing
// trailing values become null cells.
func NewRawRow(line int, headers []string, values []Cell) RawRow {
	cells := make(map[string]Cell, len(headers))
	for i, h := range headers {
		if i < len(values) {
			cells[h] = values[i]
		} else {
			cells[h] = Cell{}
		}
	}
	return RawRow{Line: line, Headers: headers, Cells: cells}
}

// Get returns the cell stored under the exact header name.
func (r RawRow) Get(header string) Cell {
	return r.Cells[header]
}

// Value returns the trimmed text of the exact header name.
func (r RawRow) Value(header string) string {
	return strings.TrimSpace(r.Cells[header].String())
}

// IsBlank reports whether every cell of the row is blank.
func (r RawRow) IsBlank() bool {
	for _, c := range r.Cells {
		if !c.IsBlank() {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the row as an ordered-by-header JSON object.
func (r RawRow) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, h := range r.Headers {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(h)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Cells[h])
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}
