// Package mapping implements manual column mapping: header based guesses,
// duplicate tolerant lookups and the required field check.
package mapping

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

// Mapping assigns a source column to each canonical field.
type Mapping map[model.Field]string

// synonyms are compared against headers after lowercasing and collapsing
// punctuation to single spaces.
var synonyms = map[model.Field][]string{
	model.FieldTimestamp: {
		"timestamp", "filled time", "fill time", "execution time", "exec time", "date time",
		"datetime", "trade time", "time", "trade date", "transaction date", "activity date",
		"date", "placed time",
	},
	model.FieldSymbol:         {"symbol", "ticker", "instrument", "security", "stock symbol", "contract"},
	model.FieldSide:           {"side", "action", "buy sell", "b s", "direction", "transaction type", "trans code"},
	model.FieldQuantity:       {"quantity", "qty", "filled qty", "filled quantity", "filled", "shares", "total qty", "units", "size"},
	model.FieldPrice:          {"price", "avg price", "average price", "fill price", "filled price", "execution price", "trade price", "exec price"},
	model.FieldFees:           {"fees", "fee", "commission", "commissions", "comm", "fees comm", "commission fees", "ib commission"},
	model.FieldCurrency:       {"currency", "ccy"},
	model.FieldVenue:          {"venue", "exchange", "route", "listing exchange"},
	model.FieldOrderID:        {"order id", "order number", "order no", "order"},
	model.FieldExecID:         {"exec id", "execution id", "trade id", "transaction id", "fill id", "fitid"},
	model.FieldInstrumentType: {"instrument type", "asset type", "asset class", "asset category", "security type", "sec type"},
	model.FieldExpiry:         {"expiry", "expiration", "expiration date", "exp date", "expiry date"},
	model.FieldStrike:         {"strike", "strike price"},
	model.FieldOptionType:     {"option type", "put call", "call put", "right"},
	model.FieldMultiplier:     {"multiplier", "contract multiplier", "contract size"},
	model.FieldUnderlying:     {"underlying", "underlying symbol", "root", "root symbol"},
}

var (
	nonAlnum        = regexp.MustCompile(`[^a-z0-9]+`)
	duplicateSuffix = regexp.MustCompile(`_\d+$`)
)

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.TrimSpace(nonAlnum.ReplaceAllString(h, " "))
}

// BaseHeader strips the "_N" suffix added to repeated header names.
func BaseHeader(h string) string {
	return duplicateSuffix.ReplaceAllString(strings.TrimSpace(h), "")
}

// AutoMap proposes a column for each canonical field it can recognize. Each
// column is used at most once; suffixed duplicates are never proposed since
// lookups already fall back to them.
func AutoMap(headers []string) Mapping {
	m := make(Mapping)
	used := make(map[string]bool)

	candidates := make([]string, 0, len(headers))
	for _, h := range headers {
		if BaseHeader(h) != h && containsFold(headers, BaseHeader(h)) {
			continue
		}
		candidates = append(candidates, h)
	}

	// Exact synonym matches win over partial ones, and earlier synonyms win
	// over later ones.
	for _, exact := range []bool{true, false} {
		for _, field := range model.AllFields {
			if _, done := m[field]; done {
				continue
			}
			for _, syn := range synonyms[field] {
				if h, ok := findHeader(candidates, used, syn, exact); ok {
					m[field] = h
					used[h] = true
					break
				}
			}
		}
	}
	return m
}

func findHeader(headers []string, used map[string]bool, syn string, exact bool) (string, bool) {
	for _, h := range headers {
		if used[h] {
			continue
		}
		norm := normalizeHeader(h)
		if exact && norm == syn {
			return h, true
		}
		// Partial matches only on whole words, and never for one-letter
		// synonyms.
		if !exact && len(syn) > 2 && containsWords(norm, syn) {
			return h, true
		}
	}
	return "", false
}

func containsWords(norm, syn string) bool {
	return strings.HasPrefix(norm, syn+" ") ||
		strings.HasSuffix(norm, " "+syn) ||
		strings.Contains(norm, " "+syn+" ")
}

func containsFold(headers []string, want string) bool {
	for _, h := range headers {
		if strings.EqualFold(h, want) {
			return true
		}
	}
	return false
}

// Lookup finds the value for a mapped column, matching case-insensitively and
// returning the first non-empty value among "Col", "Col_2", "Col_3".
func Lookup(row model.RawRow, column string) string {
	want := BaseHeader(column)
	if want == "" {
		return ""
	}
	if v := row.Value(column); v != "" {
		return v
	}
	for _, h := range row.Headers {
		if strings.EqualFold(h, column) || strings.EqualFold(BaseHeader(h), want) {
			if v := row.Value(h); v != "" {
				return v
			}
		}
	}
	return ""
}

// Apply extracts canonical values from row. Every unmapped or empty required
// field produces a "missing required field" error naming it.
func Apply(row model.RawRow, m Mapping) (model.FieldSet, []string) {
	fs := make(model.FieldSet, len(m))
	for field, column := range m {
		if v := Lookup(row, column); v != "" {
			fs[field] = v
		}
	}

	var errs []string
	for _, f := range model.RequiredFields {
		if !fs.Has(f) {
			errs = append(errs, fmt.Sprintf("missing required field: %s", f))
		}
	}
	return fs, errs
}

// Missing lists required fields that m leaves unmapped.
func (m Mapping) Missing() []model.Field {
	var missing []model.Field
	for _, f := range model.RequiredFields {
		if strings.TrimSpace(m[f]) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// Validate checks that every key is a canonical field and every required field
// is mapped to one of headers.
func (m Mapping) Validate(headers []string) error {
	keys := make([]string, 0, len(m))
	for f := range m {
		keys = append(keys, string(f))
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, ok := model.ParseField(k); !ok {
			return fmt.Errorf("unknown field %q", k)
		}
		column := m[model.Field(k)]
		if column != "" && !containsFold(headers, column) && !containsFold(headers, BaseHeader(column)) {
			return fmt.Errorf("field %s mapped to unknown column %q", k, column)
		}
	}

	if missing := m.Missing(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = string(f)
		}
		return fmt.Errorf("missing required field: %s", strings.Join(names, ", "))
	}
	return nil
}

// FromStrings converts a loosely typed mapping such as a decoded JSON body.
func FromStrings(raw map[string]string) (Mapping, error) {
	m := make(Mapping, len(raw))
	for k, v := range raw {
		f, ok := model.ParseField(k)
		if !ok {
			return nil, fmt.Errorf("unknown field %q", k)
		}
		if v = strings.TrimSpace(v); v != "" {
			m[f] = v
		}
	}
	return m, nil
}
