// Package sniffer reads uploaded trade files: it detects the file type,
// extracts de-duplicated headers with a row sample, and reads bounded row
// windows for chunked ingest.
package sniffer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

// FileType is a supported upload format.
type FileType string

// Supported file types.
const (
	TypeCSV  FileType = "csv"
	TypeTSV  FileType = "tsv"
	TypeXLSX FileType = "xlsx"
	TypeXLS  FileType = "xls"
	TypeXML  FileType = "xml"
	TypeOFX  FileType = "ofx"
)

// DefaultSampleSize is the number of rows returned by Sniff when the caller
// does not ask for a specific amount.
const DefaultSampleSize = 50

var (
	// ErrNoDataRows means the file decoded but contained no data rows.
	ErrNoDataRows = errors.New("file contains no data rows")
	// ErrUnsupportedType is returned for unknown declared types.
	ErrUnsupportedType = errors.New("unsupported file type")
)

// ParseError reports a file that could not be decoded as its declared type.
type ParseError struct {
	Err      error
	FileType FileType
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s file: %v", e.FileType, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// DetectFileType resolves the file type from the declared type, falling back
// to the file extension. Spreadsheets are checked against their magic bytes
// since xls and xlsx are often mislabeled.
func DetectFileType(fileName, declared string, data []byte) (FileType, error) {
	kind := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(declared), "."))
	if kind == "" {
		kind = strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	}

	var ft FileType
	switch kind {
	case "csv", "txt", "text/csv":
		ft = TypeCSV
	case "tsv", "tab", "text/tab-separated-values":
		ft = TypeTSV
	case "xlsx", "xlsm":
		ft = TypeXLSX
	case "xls":
		ft = TypeXLS
	case "xml", "text/xml", "application/xml":
		ft = TypeXML
	case "ofx", "qfx":
		ft = TypeOFX
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, kind)
	}

	switch {
	case ft == TypeXLSX && bytes.HasPrefix(data, oleMagic):
		ft = TypeXLS
	case ft == TypeXLS && bytes.HasPrefix(data, zipMagic):
		ft = TypeXLSX
	case ft == TypeCSV && looksTabDelimited(data):
		ft = TypeTSV
	}
	return ft, nil
}

// looksTabDelimited reports whether the first line uses tabs and no commas.
func looksTabDelimited(data []byte) bool {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	return bytes.Count(line, []byte("\t")) > 0 && bytes.Count(line, []byte(",")) == 0
}

// ContentType is the MIME type used when storing a source file.
func (ft FileType) ContentType() string {
	switch ft {
	case TypeCSV:
		return "text/csv"
	case TypeTSV:
		return "text/tab-separated-values"
	case TypeXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case TypeXLS:
		return "application/vnd.ms-excel"
	case TypeXML:
		return "application/xml"
	case TypeOFX:
		return "application/x-ofx"
	default:
		return "application/octet-stream"
	}
}

// Sample is the result of sniffing a file.
type Sample struct {
	Headers    []string
	Rows       []model.RawRow
	FileType   FileType
	TotalBytes int64
}

// Sniff extracts headers and up to sampleSize data rows.
func Sniff(data []byte, ft FileType, sampleSize int) (*Sample, error) {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}

	w, err := ReadWindow(data, ft, 0, sampleSize)
	if err != nil {
		return nil, err
	}
	if len(w.Rows) == 0 {
		return nil, &ParseError{FileType: ft, Err: ErrNoDataRows}
	}

	return &Sample{
		Headers:    w.Headers,
		Rows:       w.Rows,
		FileType:   ft,
		TotalBytes: w.TotalBytes,
	}, nil
}

// Window is a bounded slice of data rows.
type Window struct {
	Headers []string
	Rows    []model.RawRow
	// NextIndex is the data row index following the window.
	NextIndex      int
	ProcessedBytes int64
	TotalBytes     int64
	// EOF is set when no data rows follow the window.
	EOF bool
}

// ReadWindow returns up to limit non-blank data rows starting at the
// zero-based data row index offset. An offset past the end yields an empty
// window with EOF set.
func ReadWindow(data []byte, ft FileType, offset, limit int) (*Window, error) {
	if offset < 0 || limit <= 0 {
		return nil, fmt.Errorf("invalid window offset=%d limit=%d", offset, limit)
	}

	src, err := open(data, ft)
	if err != nil {
		return nil, &ParseError{FileType: ft, Err: err}
	}

	w := &Window{
		Headers:    src.headers(),
		TotalBytes: int64(len(data)),
		NextIndex:  offset,
	}

	index := 0
	for {
		values, line, err := src.next()
		if errors.Is(err, io.EOF) {
			w.EOF = true
			w.ProcessedBytes = w.TotalBytes
			break
		}
		if err != nil {
			return nil, &ParseError{FileType: ft, Err: err}
		}

		if index >= offset+limit {
			// A row exists past the window.
			break
		}
		if index >= offset {
			w.Rows = append(w.Rows, model.NewRawRow(line, w.Headers, values))
			w.ProcessedBytes = src.offset()
		}
		index++
	}

	w.NextIndex = offset + len(w.Rows)
	return w, nil
}

// rowSource yields non-blank data rows in file order.
type rowSource interface {
	headers() []string
	// next returns io.EOF after the last row.
	next() ([]model.Cell, int, error)
	// offset is the number of bytes consumed through the last returned row.
	offset() int64
}

func open(data []byte, ft FileType) (rowSource, error) {
	switch ft {
	case TypeCSV:
		return newDelimitedSource(data, ',')
	case TypeTSV:
		return newDelimitedSource(data, '\t')
	case TypeXLSX:
		return newXLSXSource(data)
	case TypeXLS:
		return newXLSSource(data)
	case TypeXML:
		return newFlexSource(data)
	case TypeOFX:
		return newOFXSource(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, ft)
	}
}

func isBlank(values []model.Cell) bool {
	for _, v := range values {
		if !v.IsBlank() {
			return false
		}
	}
	return true
}
