package sniffer

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/ofx"
)

// flexTradeElements are the Flex query elements that carry one execution
// each, as attributes.
var flexTradeElements = map[string]bool{
	"Trade":        true,
	"TradeConfirm": true,
}

// newFlexSource reads FlexQueryResponse/FlexStatements/.../Trades/Trade
// elements. Columns are the union of attribute names in first-seen order.
func newFlexSource(data []byte) (*tableSource, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false

	var (
		cols   []string
		index  = make(map[string]int)
		trades []map[string]string
		lines  []int
		sawXML bool
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawXML = true
		if !flexTradeElements[start.Name.Local] {
			continue
		}

		line, _ := dec.InputPos()
		attrs := make(map[string]string, len(start.Attr))
		for _, a := range start.Attr {
			name := a.Name.Local
			if _, known := index[name]; !known {
				index[name] = len(cols)
				cols = append(cols, name)
			}
			attrs[name] = a.Value
		}
		trades = append(trades, attrs)
		lines = append(lines, line)
	}

	if !sawXML {
		return nil, fmt.Errorf("no XML elements found")
	}
	if len(trades) == 0 {
		return nil, ErrNoDataRows
	}

	headerRow := make([]model.Cell, len(cols))
	for i, c := range cols {
		headerRow[i] = model.StringCell(c)
	}
	table := [][]model.Cell{headerRow}
	tableLines := []int{0}

	for i, attrs := range trades {
		row := make([]model.Cell, len(cols))
		for name, v := range attrs {
			row[index[name]] = model.StringCell(v)
		}
		table = append(table, row)
		tableLines = append(tableLines, lines[i])
	}

	return newTableSource(table, tableLines, int64(len(data)))
}

// newOFXSource flattens an OFX/QFX investment statement.
func newOFXSource(data []byte) (*tableSource, error) {
	stmt, err := ofx.NewParser().Parse(context.Background(), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if len(stmt.Rows) == 0 {
		return nil, ErrNoDataRows
	}

	headerRow := stringCells(ofx.Columns)
	table := [][]model.Cell{headerRow}
	lines := []int{1}
	for i, r := range stmt.Rows {
		table = append(table, stringCells(r))
		lines = append(lines, i+2)
	}
	return newTableSource(table, lines, int64(len(data)))
}
