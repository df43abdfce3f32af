// Package preset holds the library of known broker export formats. Each
// preset scores how well a file matches it and transforms raw rows into
// canonical fields.
package preset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/the-trades-must-flow/internal/mapping"
	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

// DefaultThreshold is the score at or above which an import defaults to
// preset mode.
const DefaultThreshold = 0.9

// Outcome classifies what a transform did with a row.
type Outcome int

// Transform outcomes.
const (
	// Accepted rows carry canonical fields.
	Accepted Outcome = iota
	// Skipped rows are intentionally excluded, such as cash movements.
	Skipped
	// Rejected rows are invalid and reported as errors.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Skipped:
		return "skipped"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the output of a preset transform.
type Result struct {
	Fields  model.FieldSet
	Reason  string
	Outcome Outcome
}

// Accept wraps canonical fields.
func Accept(fs model.FieldSet) Result {
	return Result{Outcome: Accepted, Fields: fs}
}

// Skip excludes a row without counting it as an error.
func Skip(format string, args ...any) Result {
	return Result{Outcome: Skipped, Reason: fmt.Sprintf(format, args...)}
}

// Reject marks a row invalid.
func Reject(format string, args ...any) Result {
	return Result{Outcome: Rejected, Reason: fmt.Sprintf(format, args...)}
}

// Preset is a statically known broker export format.
type Preset struct {
	// Detect scores headers and sample rows in [0,1].
	Detect func(headers []string, sample []model.RawRow) float64
	// Transform converts one raw row.
	Transform func(row model.RawRow) Result
	ID        string
	Label     string
	// StrictSide rejects rows whose side text is not recognized.
	StrictSide bool
}

// Score runs the preset heuristic, clamped to [0,1].
func (p *Preset) Score(headers []string, sample []model.RawRow) float64 {
	s := p.Detect(headers, sample)
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

// Match is the best scoring preset for a file.
type Match struct {
	Preset *Preset
	Score  float64
}

// Registry is an ordered preset library.
type Registry struct {
	byID    map[string]*Preset
	presets []*Preset
}

// NewRegistry builds a registry from presets. IDs must be unique.
func NewRegistry(presets ...*Preset) (*Registry, error) {
	r := &Registry{byID: make(map[string]*Preset, len(presets))}
	for _, p := range presets {
		if p.ID == "" || p.Detect == nil || p.Transform == nil {
			return nil, fmt.Errorf("preset %q is incomplete", p.ID)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate preset id %q", p.ID)
		}
		r.byID[p.ID] = p
		r.presets = append(r.presets, p)
	}
	return r, nil
}

// Default returns the built-in broker presets.
func Default() *Registry {
	r, err := NewRegistry(
		Webull(),
		IBKRFlex(),
		Schwab(),
		Robinhood(),
		Tastytrade(),
		OFX(),
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Get looks up a preset by id.
func (r *Registry) Get(id string) (*Preset, bool) {
	p, ok := r.byID[strings.ToLower(strings.TrimSpace(id))]
	return p, ok
}

// All lists presets in registration order.
func (r *Registry) All() []*Preset {
	out := make([]*Preset, len(r.presets))
	copy(out, r.presets)
	return out
}

// Match evaluates every preset and returns the highest scoring one. Ties
// keep registration order. Preset is nil when nothing scores above zero.
func (r *Registry) Match(headers []string, sample []model.RawRow) Match {
	var best Match
	for _, p := range r.presets {
		if s := p.Score(headers, sample); s > best.Score {
			best = Match{Preset: p, Score: s}
		}
	}
	return best
}

// Ranked returns every preset with its score, best first.
func (r *Registry) Ranked(headers []string, sample []model.RawRow) []Match {
	out := make([]Match, 0, len(r.presets))
	for _, p := range r.presets {
		out = append(out, Match{Preset: p, Score: p.Score(headers, sample)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// headerScore is the fraction of expected headers present, ignoring case and
// duplicate suffixes.
func headerScore(headers, expected []string) float64 {
	if len(expected) == 0 {
		return 0
	}
	have := make(map[string]bool, len(headers))
	for _, h := range headers {
		have[strings.ToLower(mapping.BaseHeader(h))] = true
	}
	found := 0
	for _, e := range expected {
		if have[strings.ToLower(e)] {
			found++
		}
	}
	return float64(found) / float64(len(expected))
}

// sampleScore is the fraction of sample rows passing check.
func sampleScore(sample []model.RawRow, check func(model.RawRow) bool) float64 {
	if len(sample) == 0 {
		return 0
	}
	passed := 0
	for _, row := range sample {
		if check(row) {
			passed++
		}
	}
	return float64(passed) / float64(len(sample))
}

// detector weighs header coverage at 80% and sample shape at 20%.
func detector(expected []string, check func(model.RawRow) bool) func([]string, []model.RawRow) float64 {
	return func(headers []string, sample []model.RawRow) float64 {
		h := headerScore(headers, expected)
		if h == 0 {
			return 0
		}
		return 0.8*h + 0.2*sampleScore(sample, check)
	}
}

// get reads a column case-insensitively, tolerating duplicate headers.
func get(row model.RawRow, column string) string {
	return mapping.Lookup(row, column)
}

// first returns the first non-empty column value.
func first(row model.RawRow, columns ...string) string {
	for _, c := range columns {
		if v := get(row, c); v != "" {
			return v
		}
	}
	return ""
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(v), a) {
			return true
		}
	}
	return false
}

// compactSymbol removes the padding some brokers put inside OCC symbols.
func compactSymbol(s string) string {
	return strings.Join(strings.Fields(s), "")
}
