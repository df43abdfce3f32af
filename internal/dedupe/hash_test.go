package dedupe

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

func baseKey() Key {
	return Key{
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Symbol:    "AAPL",
		Side:      "buy",
		Quantity:  decimal.NewFromInt(100),
		Price:     decimal.NewFromInt(150),
	}
}

func TestKey_Canonical(t *testing.T) {
	assert.Equal(t, "2024-01-01T00:00:00.000Z|AAPL|buy|100|150|", baseKey().Canonical())
}

func TestKey_HashIgnoresCasingAndWhitespace(t *testing.T) {
	messy := baseKey()
	messy.Symbol = "aapl "
	messy.Side = "BUY"

	assert.Equal(t, baseKey().Hash(), messy.Hash())
}

func TestKey_HashIsStableAcrossRepresentations(t *testing.T) {
	k := baseKey()
	k.Quantity = decimal.RequireFromString("-100.000")
	k.Price = decimal.RequireFromString("150.00")
	k.Timestamp = time.Date(2023, 12, 31, 19, 0, 0, 0, time.FixedZone("EST", -5*3600))

	assert.Equal(t, baseKey().Hash(), k.Hash())
}

func TestKey_HashDistinguishesNaturalKeyFields(t *testing.T) {
	mutations := map[string]func(*Key){
		"timestamp": func(k *Key) { k.Timestamp = k.Timestamp.Add(time.Second) },
		"symbol":    func(k *Key) { k.Symbol = "MSFT" },
		"side":      func(k *Key) { k.Side = "sell" },
		"quantity":  func(k *Key) { k.Quantity = decimal.NewFromInt(101) },
		"price":     func(k *Key) { k.Price = decimal.RequireFromString("150.01") },
		"account":   func(k *Key) { k.BrokerAccountID = "U123" },
	}

	base := baseKey().Hash()
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			k := baseKey()
			mutate(&k)
			assert.NotEqual(t, base, k.Hash())
		})
	}
}

func TestHashExecution(t *testing.T) {
	e := &model.Execution{
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Symbol:    "AAPL",
		Side:      model.SideBuy,
		Quantity:  decimal.NewFromInt(100),
		Price:     decimal.NewFromInt(150),
	}

	assert.Equal(t, baseKey().Hash(), HashExecution(e))
	assert.Len(t, HashExecution(e), 64)
}
