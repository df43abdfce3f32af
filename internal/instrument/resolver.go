// Package instrument resolves execution symbols to stored instruments.
package instrument

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/Veraticus/the-trades-must-flow/internal/common"
	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/service"
)

// DefaultTTL is how long a resolved instrument id stays cached.
const DefaultTTL = 30 * time.Minute

// Resolver looks up instrument ids through a TTL cache.
type Resolver struct {
	store service.InstrumentStore
	cache *cache.Cache
}

// NewResolver creates a resolver over store. A zero ttl uses DefaultTTL.
func NewResolver(store service.InstrumentStore, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Resolver{
		store: store,
		cache: cache.New(ttl, 2*ttl),
	}
}

func cacheKey(symbol string, kind model.InstrumentType) string {
	return string(kind) + "|" + strings.ToUpper(strings.TrimSpace(symbol))
}

// Resolve returns the instrument id for symbol, creating the instrument when
// the store has never seen it.
func (r *Resolver) Resolve(ctx context.Context, symbol string, kind model.InstrumentType) (string, error) {
	if kind == "" {
		kind = model.InstrumentEquity
	}
	key := cacheKey(symbol, kind)
	if id, ok := r.cache.Get(key); ok {
		return id.(string), nil
	}

	inst, err := r.store.FindOrCreateInstrument(ctx, symbol, kind)
	if err != nil {
		return "", fmt.Errorf("failed to resolve instrument %s: %w", symbol, err)
	}
	r.cache.Set(key, inst.ID, cache.DefaultExpiration)
	return inst.ID, nil
}

// Annotate fills InstrumentID on each execution. Failures are logged and
// leave the reference empty.
func Annotate(ctx context.Context, resolver service.InstrumentResolver, executions []model.Execution) {
	if resolver == nil {
		return
	}
	for i := range executions {
		e := &executions[i]
		if e.InstrumentID != "" {
			continue
		}
		id, err := resolver.Resolve(ctx, e.Symbol, e.InstrumentType)
		if err != nil {
			common.LogWarn(ctx, err, "Instrument resolution failed", common.Fields{
				"symbol": e.Symbol,
				"line":   e.LineNumber,
			})
			continue
		}
		e.InstrumentID = id
	}
}
