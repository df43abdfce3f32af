package sniffer

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const webullCSV = "Name,Symbol,Side,Status,Filled,Total Qty,Price,Avg Price,Time-in-Force,Placed Time,Filled Time\n" +
	"Tesla,TSLA,Buy,Filled,10,10,@250.00,250.00,DAY,08/22/2025 09:30:00 EDT,08/22/2025 09:30:01 EDT\n" +
	",,,,,,,,,,\n" +
	"Apple,AAPL,Sell,Filled,5,5,@190.10,190.10,DAY,08/22/2025 10:00:00 EDT,08/22/2025 10:00:02 EDT\n" +
	"Apple,AAPL,Buy,Cancelled,0,5,@180.00,,GTC,08/22/2025 10:05:00 EDT,\n"

func TestSniffCSV(t *testing.T) {
	sample, err := Sniff([]byte(webullCSV), TypeCSV, 50)
	require.NoError(t, err)

	assert.Equal(t, TypeCSV, sample.FileType)
	assert.Len(t, sample.Headers, 11)
	assert.Equal(t, "Filled Time", sample.Headers[10])
	require.Len(t, sample.Rows, 3)

	assert.Equal(t, "TSLA", sample.Rows[0].Value("Symbol"))
	assert.Equal(t, 2, sample.Rows[0].Line)
	assert.Equal(t, "AAPL", sample.Rows[1].Value("Symbol"))
	assert.Equal(t, 4, sample.Rows[1].Line)
	assert.Equal(t, int64(len(webullCSV)), sample.TotalBytes)
}

func TestSniffSampleSmallerThanFile(t *testing.T) {
	sample, err := Sniff([]byte(webullCSV), TypeCSV, 1)
	require.NoError(t, err)
	require.Len(t, sample.Rows, 1)
	assert.Equal(t, "TSLA", sample.Rows[0].Value("Symbol"))
}

func TestSniffNoDataRows(t *testing.T) {
	for name, data := range map[string]string{
		"empty":       "",
		"header only": "Symbol,Qty\n",
		"blank rows":  "Symbol,Qty\n,\n , \n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Sniff([]byte(data), TypeCSV, 10)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNoDataRows))

			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, TypeCSV, parseErr.FileType)
		})
	}
}

func TestSniffDuplicateHeaders(t *testing.T) {
	data := "Symbol,Filled Time,,Filled Time\nAAPL,,x,01/02/2024\n"
	sample, err := Sniff([]byte(data), TypeCSV, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Symbol", "Filled Time", "Column 3", "Filled Time_2"}, sample.Headers)
	assert.Equal(t, "01/02/2024", sample.Rows[0].Value("Filled Time_2"))
}

func TestSniffTSVWithBOM(t *testing.T) {
	data := "\xEF\xBB\xBFSymbol\tQty\nAAPL\t10\n"
	sample, err := Sniff([]byte(data), TypeTSV, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Symbol", "Qty"}, sample.Headers)
	assert.Equal(t, "10", sample.Rows[0].Value("Qty"))
}

func numberedCSV(n int) []byte {
	var b strings.Builder
	b.WriteString("Symbol,Qty\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "S%d,%d\n", i, i+1)
	}
	return []byte(b.String())
}

func TestReadWindow(t *testing.T) {
	data := numberedCSV(10)

	first, err := ReadWindow(data, TypeCSV, 0, 4)
	require.NoError(t, err)
	require.Len(t, first.Rows, 4)
	assert.False(t, first.EOF)
	assert.Equal(t, 4, first.NextIndex)
	assert.Equal(t, "S0", first.Rows[0].Value("Symbol"))
	assert.Equal(t, 2, first.Rows[0].Line)
	assert.Greater(t, first.ProcessedBytes, int64(0))
	assert.Less(t, first.ProcessedBytes, first.TotalBytes)

	second, err := ReadWindow(data, TypeCSV, 4, 4)
	require.NoError(t, err)
	require.Len(t, second.Rows, 4)
	assert.Equal(t, "S4", second.Rows[0].Value("Symbol"))
	assert.Greater(t, second.ProcessedBytes, first.ProcessedBytes)

	last, err := ReadWindow(data, TypeCSV, 8, 4)
	require.NoError(t, err)
	require.Len(t, last.Rows, 2)
	assert.True(t, last.EOF)
	assert.Equal(t, last.TotalBytes, last.ProcessedBytes)

	exact, err := ReadWindow(data, TypeCSV, 6, 4)
	require.NoError(t, err)
	assert.Len(t, exact.Rows, 4)
	assert.True(t, exact.EOF)
}

func TestReadWindowPastEnd(t *testing.T) {
	w, err := ReadWindow(numberedCSV(3), TypeCSV, 500, 100)
	require.NoError(t, err)
	assert.Empty(t, w.Rows)
	assert.True(t, w.EOF)
	assert.Equal(t, 500, w.NextIndex)
}

func TestReadWindowMatchesSingleRead(t *testing.T) {
	data := numberedCSV(25)

	whole, err := ReadWindow(data, TypeCSV, 0, 20)
	require.NoError(t, err)

	var parts []string
	for offset := 0; offset < 20; offset += 10 {
		w, err := ReadWindow(data, TypeCSV, offset, 10)
		require.NoError(t, err)
		for _, r := range w.Rows {
			parts = append(parts, r.Value("Symbol"))
		}
	}

	var all []string
	for _, r := range whole.Rows {
		all = append(all, r.Value("Symbol"))
	}
	assert.Equal(t, all, parts)
}

func TestReadWindowInvalid(t *testing.T) {
	_, err := ReadWindow(numberedCSV(3), TypeCSV, -1, 10)
	assert.Error(t, err)
	_, err = ReadWindow(numberedCSV(3), TypeCSV, 0, 0)
	assert.Error(t, err)
}

func TestSniffXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Symbol", "Qty", "Price"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"AAPL", 10, "150.5"}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]any{"MSFT", 3, "400"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	sample, err := Sniff(buf.Bytes(), TypeXLSX, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Symbol", "Qty", "Price"}, sample.Headers)
	require.Len(t, sample.Rows, 2)
	assert.Equal(t, "10", sample.Rows[0].Value("Qty"))
	assert.Equal(t, "MSFT", sample.Rows[1].Value("Symbol"))
	assert.Equal(t, 4, sample.Rows[1].Line)
}

func TestSniffCorruptSpreadsheet(t *testing.T) {
	_, err := Sniff([]byte("definitely not a zip"), TypeXLSX, 10)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, TypeXLSX, parseErr.FileType)

	_, err = Sniff([]byte("definitely not ole"), TypeXLS, 10)
	assert.Error(t, err)
}

const flexXML = `<?xml version="1.0" encoding="UTF-8"?>
<FlexQueryResponse queryName="trades" type="AF">
  <FlexStatements count="1">
    <FlexStatement accountId="U1234567">
      <Trades>
        <Trade accountId="U1234567" symbol="AAPL" buySell="BUY" quantity="100" tradePrice="150.25" dateTime="20240115;093000" />
        <Trade accountId="U1234567" symbol="AAPL" buySell="SELL" quantity="-100" tradePrice="151" dateTime="20240115;103000" ibCommission="-1" />
      </Trades>
    </FlexStatement>
  </FlexStatements>
</FlexQueryResponse>`

func TestSniffFlexXML(t *testing.T) {
	sample, err := Sniff([]byte(flexXML), TypeXML, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"accountId", "symbol", "buySell", "quantity", "tradePrice", "dateTime", "ibCommission"}, sample.Headers)
	require.Len(t, sample.Rows, 2)
	assert.Equal(t, "BUY", sample.Rows[0].Value("buySell"))
	assert.Equal(t, "", sample.Rows[0].Value("ibCommission"))
	assert.Equal(t, "-1", sample.Rows[1].Value("ibCommission"))
	assert.Equal(t, 6, sample.Rows[0].Line)
}

func TestSniffFlexWithoutTrades(t *testing.T) {
	_, err := Sniff([]byte(`<FlexQueryResponse><FlexStatements/></FlexQueryResponse>`), TypeXML, 10)
	assert.ErrorIs(t, err, ErrNoDataRows)

	_, err = Sniff([]byte("Symbol,Qty"), TypeXML, 10)
	assert.Error(t, err)
}

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		declared string
		data     []byte
		want     FileType
	}{
		{"declared csv", "x.bin", "csv", []byte("a,b\n"), TypeCSV},
		{"extension", "trades.XLSX", "", []byte("PK\x03\x04"), TypeXLSX},
		{"qfx", "export.qfx", "", nil, TypeOFX},
		{"tab sniffed", "export.csv", "", []byte("a\tb\n1\t2\n"), TypeTSV},
		{"xls that is xlsx", "old.xls", "", []byte("PK\x03\x04rest"), TypeXLSX},
		{"xlsx that is xls", "new.xlsx", "", append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, 0), TypeXLS},
		{"flex", "flex.xml", ".xml", nil, TypeXML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFileType(tt.file, tt.declared, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DetectFileType("report.pdf", "", nil)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestDedupeHeaders(t *testing.T) {
	assert.Equal(t,
		[]string{"A", "A_2", "a_3", "Column 4", "A_2_2"},
		DedupeHeaders([]string{"A", " A ", "a", "", "A_2"}),
	)
}
