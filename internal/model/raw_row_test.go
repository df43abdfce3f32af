package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCell_String(t *testing.T) {
	tests := []struct {
		name string
		cell Cell
		want string
	}{
		{name: "string", cell: StringCell(" AAPL "), want: " AAPL "},
		{name: "integer number", cell: NumberCell(100), want: "100"},
		{name: "fractional number", cell: NumberCell(3.51), want: "3.51"},
		{name: "null", cell: Cell{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cell.String())
		})
	}
}

func TestNewRawRow_PadsMissingValues(t *testing.T) {
	row := NewRawRow(2, []string{"Symbol", "Side", "Price"}, []Cell{StringCell("AAPL")})

	assert.Equal(t, 2, row.Line)
	assert.Equal(t, "AAPL", row.Value("Symbol"))
	assert.Equal(t, CellNull, row.Get("Price").Kind)
	assert.False(t, row.IsBlank())
}

func TestRawRow_MarshalJSONKeepsHeaderOrder(t *testing.T) {
	row := NewRawRow(3, []string{"Symbol", "Qty", "Note"}, []Cell{
		StringCell("TSLA"),
		NumberCell(5),
	})

	data, err := row.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"Symbol":"TSLA","Qty":5,"Note":null}`, string(data))
}

func TestImportRun_LeaseExpired(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	run := &ImportRun{Status: RunProcessing, LeaseExpiresAt: now.Add(-time.Minute)}
	assert.True(t, run.LeaseExpired(now))

	run.LeaseExpiresAt = now.Add(time.Minute)
	assert.False(t, run.LeaseExpired(now))

	run.Status = RunComplete
	run.LeaseExpiresAt = now.Add(-time.Hour)
	assert.False(t, run.LeaseExpired(now))
}

func TestParseField(t *testing.T) {
	f, ok := ParseField(" Order_ID ")
	require.True(t, ok)
	assert.Equal(t, FieldOrderID, f)

	_, ok = ParseField("commission")
	assert.False(t, ok)
}
