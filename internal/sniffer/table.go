package sniffer

import (
	"bytes"
	"fmt"
	"io"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

// tableSource serves rows from a fully decoded table. Byte progress is
// prorated by row since spreadsheets have no meaningful stream offset.
type tableSource struct {
	cols  []string
	rows  [][]model.Cell
	lines []int
	idx   int
	total int64
}

// newTableSource uses the first non-blank row as the header. lines holds the
// 1-based source line of each table row.
func newTableSource(table [][]model.Cell, lines []int, total int64) (*tableSource, error) {
	s := &tableSource{total: total}
	headerFound := false
	for i, row := range table {
		if isBlank(row) {
			continue
		}
		if !headerFound {
			raw := make([]string, len(row))
			for j, c := range row {
				raw[j] = c.String()
			}
			s.cols = DedupeHeaders(raw)
			headerFound = true
			continue
		}
		s.rows = append(s.rows, row)
		s.lines = append(s.lines, lines[i])
	}
	if !headerFound {
		return nil, ErrNoDataRows
	}
	return s, nil
}

func (s *tableSource) headers() []string {
	return s.cols
}

func (s *tableSource) next() ([]model.Cell, int, error) {
	if s.idx >= len(s.rows) {
		return nil, 0, io.EOF
	}
	row, line := s.rows[s.idx], s.lines[s.idx]
	s.idx++
	return row, line, nil
}

func (s *tableSource) offset() int64 {
	if len(s.rows) == 0 {
		return s.total
	}
	return s.total * int64(s.idx) / int64(len(s.rows))
}

// newXLSXSource reads the first worksheet.
func newXLSXSource(data []byte) (*tableSource, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var (
		table [][]model.Cell
		lines []int
	)
	for line := 1; rows.Next(); line++ {
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		table = append(table, stringCells(cols))
		lines = append(lines, line)
	}
	if err := rows.Error(); err != nil {
		return nil, err
	}

	return newTableSource(table, lines, int64(len(data)))
}

// newXLSSource reads the first worksheet of a legacy BIFF workbook. The
// decoder panics on some malformed files, so panics become parse errors.
func newXLSSource(data []byte) (src *tableSource, err error) {
	defer func() {
		if r := recover(); r != nil {
			src, err = nil, fmt.Errorf("corrupt xls workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	if wb == nil {
		return nil, fmt.Errorf("no workbook stream found")
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	var (
		table [][]model.Cell
		lines []int
	)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := xlsRow(sheet, i)
		if row == nil {
			continue
		}
		cells := make([]model.Cell, row.LastCol())
		for c := range cells {
			cells[c] = model.StringCell(row.Col(c))
		}
		table = append(table, cells)
		lines = append(lines, i+1)
	}

	return newTableSource(table, lines, int64(len(data)))
}

// xlsRow returns nil for rows the sheet does not define.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}
