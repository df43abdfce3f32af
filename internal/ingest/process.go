package ingest

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-trades-must-flow/internal/mapping"
	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/normalize"
	"github.com/Veraticus/the-trades-must-flow/internal/preset"
	"github.com/Veraticus/the-trades-must-flow/internal/upsert"
)

// rowPlan converts raw rows of one run into executions.
type rowPlan struct {
	preset     *preset.Preset
	normalizer *normalize.Normalizer
	mapping    mapping.Mapping
	ctx        normalize.RowContext
}

// chunkOutcome collects per-row results of one window.
type chunkOutcome struct {
	raw        map[int]model.RawRow
	executions []model.Execution
	bad        []model.BadRow
	skipped    int
}

func (p *rowPlan) process(rows []model.RawRow) *chunkOutcome {
	out := &chunkOutcome{raw: make(map[int]model.RawRow, len(rows))}
	for _, row := range rows {
		out.raw[row.Line] = row

		exec, bad, skipped := p.row(row)
		switch {
		case skipped:
			out.skipped++
		case bad != nil:
			out.bad = append(out.bad, *bad)
		default:
			out.executions = append(out.executions, *exec)
		}
	}
	return out
}

// row converts one raw row. A panic while handling the row rejects that row
// only.
func (p *rowPlan) row(raw model.RawRow) (exec *model.Execution, bad *model.BadRow, skipped bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Row processing panicked", "line", raw.Line, "panic", r)
			exec, skipped = nil, false
			bad = &model.BadRow{
				Line:   raw.Line,
				Raw:    raw,
				Errors: []string{fmt.Sprintf("unexpected error: %v", r)},
			}
		}
	}()

	var fs model.FieldSet
	if p.preset != nil {
		res := p.preset.Transform(raw)
		switch res.Outcome {
		case preset.Skipped:
			return nil, nil, true
		case preset.Rejected:
			return nil, &model.BadRow{Line: raw.Line, Raw: raw, Fields: res.Fields, Errors: []string{res.Reason}}, false
		}
		fs = res.Fields
	} else {
		var errs []string
		fs, errs = mapping.Apply(raw, p.mapping)
		if len(errs) > 0 {
			return nil, &model.BadRow{Line: raw.Line, Raw: raw, Fields: fs, Errors: errs}, false
		}
	}

	rc := p.ctx
	rc.Line = raw.Line
	exec, errs := p.normalizer.Normalize(fs, rc)
	if len(errs) > 0 {
		return nil, &model.BadRow{Line: raw.Line, Raw: raw, Fields: fs, Errors: errs}, false
	}
	return exec, nil, false
}

// addFailures reports executions the store refused as bad rows.
func (o *chunkOutcome) addFailures(failures []upsert.Failure) {
	for _, f := range failures {
		e := f.Execution
		o.bad = append(o.bad, model.BadRow{
			Line:   e.LineNumber,
			Raw:    o.raw[e.LineNumber],
			Fields: executionFields(&e),
			Errors: []string{fmt.Sprintf("insert failed: %v", f.Err)},
		})
	}
}

func executionFields(e *model.Execution) model.FieldSet {
	fs := model.FieldSet{
		model.FieldTimestamp: e.Timestamp.UTC().Format(time.RFC3339),
		model.FieldSymbol:    e.Symbol,
		model.FieldSide:      string(e.Side),
		model.FieldQuantity:  e.Quantity.String(),
		model.FieldPrice:     e.Price.String(),
		model.FieldFees:      e.Fees.String(),
	}
	if e.OrderID != "" {
		fs[model.FieldOrderID] = e.OrderID
	}
	return fs
}
