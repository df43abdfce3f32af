package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/the-trades-must-flow/internal/errreport"
	"github.com/Veraticus/the-trades-must-flow/internal/ingest"
	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/preset"
)

func TestRenderSummary(t *testing.T) {
	out := RenderSummary("Import Complete", model.RunSummary{
		Total:        12,
		Added:        9,
		Duplicates:   1,
		Errors:       2,
		ErrorsCSVURL: "file:///tmp/errors.csv",
	})

	assert.Contains(t, out, "Import Complete")
	assert.Contains(t, out, "Rows processed: 12")
	assert.Contains(t, out, "Added: 9")
	assert.Contains(t, out, "Duplicates: 1")
	assert.Contains(t, out, "Errors: 2")
	assert.Contains(t, out, "file:///tmp/errors.csv")
	assert.NotContains(t, out, "Skipped")
}

func TestRenderErrorDetails(t *testing.T) {
	assert.Empty(t, RenderErrorDetails(nil, 5))

	details := []errreport.Detail{
		{LineNumber: 2, Symbol: "AAPL", Reason: "quantity must be non-zero"},
		{LineNumber: 3, Symbol: "MSFT", Reason: "missing required field: price"},
		{LineNumber: 4, Symbol: "TSLA", Reason: "side: unrecognized value \"x\""},
	}
	out := RenderErrorDetails(details, 2)
	assert.Contains(t, out, "Line")
	assert.Contains(t, out, "quantity must be non-zero")
	assert.Contains(t, out, "MSFT")
	assert.NotContains(t, out, "TSLA")
	assert.Contains(t, out, "and 1 more")
}

func TestRenderRuns(t *testing.T) {
	out := RenderRuns([]model.ImportRun{
		{
			JobID:     "job-1",
			Status:    model.RunComplete,
			FileName:  "trades.csv",
			Source:    "webull",
			Summary:   model.RunSummary{Added: 4, Duplicates: 2},
			CreatedAt: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		},
	})

	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Status")
	assert.Contains(t, lines[1], "job-1")
	assert.Contains(t, lines[1], "webull")
	assert.Contains(t, lines[1], "complete")
}

func TestImportProgress(t *testing.T) {
	var out bytes.Buffer
	p := NewImportProgress(&out, 1000, 0)

	p.Update(&ingest.ChunkResponse{Added: 3, Duplicates: 1, ProcessedBytes: 400})
	p.Update(&ingest.ChunkResponse{Added: 2, Errors: 1, ProcessedBytes: 1000, Complete: true})

	added, dupes, errs := p.Counts()
	assert.Equal(t, 5, added)
	assert.Equal(t, 1, dupes)
	assert.Equal(t, 1, errs)
}

func TestRenderPresets(t *testing.T) {
	webull, schwab := preset.Webull(), preset.Schwab()
	out := RenderPresets([]preset.Match{
		{Preset: webull, Score: 0.95},
		{Preset: schwab, Score: 0.2},
	}, 0.9)

	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[1], webull.ID)
	assert.Contains(t, lines[1], "0.95 "+SuccessIcon)
	assert.Contains(t, lines[2], schwab.Label)
	assert.NotContains(t, lines[2], SuccessIcon)
}
