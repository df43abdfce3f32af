package sniffer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// delimitedSource streams CSV and TSV records.
type delimitedSource struct {
	reader *csv.Reader
	cols   []string
	skip   int64
}

func newDelimitedSource(data []byte, comma rune) (*delimitedSource, error) {
	var skip int64
	if bytes.HasPrefix(data, utf8BOM) {
		skip = int64(len(utf8BOM))
		data = data[len(utf8BOM):]
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = false

	s := &delimitedSource{reader: r, skip: skip}

	// The header is the first record with any content.
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil, ErrNoDataRows
		}
		if err != nil {
			return nil, err
		}
		if !isBlank(stringCells(record)) {
			s.cols = DedupeHeaders(record)
			return s, nil
		}
	}
}

func (s *delimitedSource) headers() []string {
	return s.cols
}

func (s *delimitedSource) next() ([]model.Cell, int, error) {
	for {
		record, err := s.reader.Read()
		if err != nil {
			return nil, 0, err
		}
		cells := stringCells(record)
		if isBlank(cells) {
			continue
		}
		line, _ := s.reader.FieldPos(0)
		return cells, line, nil
	}
}

func (s *delimitedSource) offset() int64 {
	return s.skip + s.reader.InputOffset()
}

func stringCells(record []string) []model.Cell {
	cells := make([]model.Cell, len(record))
	for i, v := range record {
		cells[i] = model.StringCell(v)
	}
	return cells
}
