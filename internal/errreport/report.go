// Package errreport turns rejected rows into a downloadable CSV artifact.
package errreport

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/Veraticus/the-trades-must-flow/internal/common"
	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/service"
)

// DefaultURLTTL is how long error download links stay valid.
const DefaultURLTTL = 7 * 24 * time.Hour

// Header is the column layout of the errors CSV.
var Header = []string{"line_number", "reason", "symbol", "timestamp", "side", "quantity", "price", "raw_json"}

// Detail is the JSON form of a rejected row returned to clients.
type Detail struct {
	Raw        json.RawMessage `json:"raw"`
	Reason     string          `json:"reason"`
	Symbol     string          `json:"symbol,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
	Side       string          `json:"side,omitempty"`
	Quantity   string          `json:"quantity,omitempty"`
	Price      string          `json:"price,omitempty"`
	LineNumber int             `json:"lineNumber"`
}

// keyField prefers the canonical value and falls back to the raw column of
// the same name.
func keyField(b model.BadRow, f model.Field) string {
	if v := b.Fields.Get(f); v != "" {
		return v
	}
	return b.Raw.Value(string(f))
}

func rawJSON(b model.BadRow) json.RawMessage {
	if len(b.Raw.Headers) == 0 {
		return json.RawMessage("{}")
	}
	data, err := json.Marshal(b.Raw)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// Details converts bad rows for a response body.
func Details(rows []model.BadRow) []Detail {
	out := make([]Detail, len(rows))
	for i, b := range rows {
		out[i] = Detail{
			LineNumber: b.Line,
			Reason:     b.Reason(),
			Raw:        rawJSON(b),
			Symbol:     keyField(b, model.FieldSymbol),
			Timestamp:  keyField(b, model.FieldTimestamp),
			Side:       keyField(b, model.FieldSide),
			Quantity:   keyField(b, model.FieldQuantity),
			Price:      keyField(b, model.FieldPrice),
		}
	}
	return out
}

// BuildCSV renders rows, with the header line when withHeader is set.
func BuildCSV(rows []model.BadRow, withHeader bool) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if withHeader {
		if err := w.Write(Header); err != nil {
			return nil, err
		}
	}
	for _, d := range Details(rows) {
		record := []string{
			strconv.Itoa(d.LineNumber),
			d.Reason,
			d.Symbol,
			d.Timestamp,
			d.Side,
			d.Quantity,
			d.Price,
			string(d.Raw),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Path is the blob location of a run's errors CSV.
func Path(userID, runID string) string {
	return path.Join(userID, runID, "errors.csv")
}

// Reporter publishes error artifacts to blob storage.
type Reporter struct {
	blobs service.BlobStore
	ttl   time.Duration
}

// NewReporter creates a reporter. A zero ttl uses DefaultURLTTL.
func NewReporter(blobs service.BlobStore, ttl time.Duration) *Reporter {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	return &Reporter{blobs: blobs, ttl: ttl}
}

// Publish appends rows to the run's errors CSV and returns a signed download
// URL. Failures are logged and yield an empty URL; they never fail an import.
func (r *Reporter) Publish(ctx context.Context, userID, runID string, rows []model.BadRow) string {
	if r == nil || r.blobs == nil || len(rows) == 0 {
		return ""
	}

	url, err := r.publish(ctx, userID, runID, rows)
	if err != nil {
		common.LogWarn(ctx, err, "Failed to publish errors CSV", common.Fields{
			"user_id": userID,
			"run_id":  runID,
			"rows":    len(rows),
		})
		return ""
	}
	return url
}

func (r *Reporter) publish(ctx context.Context, userID, runID string, rows []model.BadRow) (string, error) {
	key := Path(userID, runID)

	existing, err := r.blobs.Get(ctx, key)
	switch {
	case errors.Is(err, common.ErrNotFound):
		existing = nil
	case err != nil:
		return "", fmt.Errorf("failed to read existing errors CSV: %w", err)
	}

	// A retried chunk reports the same lines again.
	seen, err := reportedLines(existing)
	if err != nil {
		return "", fmt.Errorf("failed to read existing errors CSV: %w", err)
	}
	fresh := make([]model.BadRow, 0, len(rows))
	for _, b := range rows {
		if !seen[b.Line] {
			fresh = append(fresh, b)
		}
	}

	if len(fresh) > 0 {
		body, err := BuildCSV(fresh, len(existing) == 0)
		if err != nil {
			return "", fmt.Errorf("failed to build errors CSV: %w", err)
		}
		if len(existing) > 0 {
			body = append(existing[:len(existing):len(existing)], body...)
		}
		if err := r.blobs.Put(ctx, key, "text/csv", body); err != nil {
			return "", fmt.Errorf("failed to upload errors CSV: %w", err)
		}
	}

	url, err := r.blobs.SignedURL(ctx, key, r.ttl)
	if err != nil {
		return "", fmt.Errorf("failed to sign errors CSV: %w", err)
	}
	return url, nil
}

// reportedLines collects the line numbers already present in an errors CSV.
func reportedLines(data []byte) (map[int]bool, error) {
	seen := make(map[int]bool)
	if len(data) == 0 {
		return seen, nil
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if line, convErr := strconv.Atoi(rec[0]); convErr == nil {
			seen[line] = true
		}
	}
	return seen, nil
}
