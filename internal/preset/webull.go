package preset

import (
	"strings"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/normalize"
)

var webullHeaders = []string{
	"Name", "Symbol", "Side", "Status", "Filled", "Total Qty",
	"Price", "Avg Price", "Time-in-Force", "Placed Time", "Filled Time",
}

// Webull reads the Webull order history export. Only filled orders are
// executions; cancelled and working orders are skipped.
func Webull() *Preset {
	return &Preset{
		ID:         "webull",
		Label:      "Webull",
		StrictSide: true,
		Detect: detector(webullHeaders, func(row model.RawRow) bool {
			return get(row, "Status") != "" && oneOf(get(row, "Side"), "buy", "sell", "short", "cover")
		}),
		Transform: transformWebull,
	}
}

func transformWebull(row model.RawRow) Result {
	status := strings.ToLower(get(row, "Status"))
	if status != "filled" && status != "partially filled" {
		return Skip("order status %q", get(row, "Status"))
	}

	qty := get(row, "Filled")
	if q, err := normalize.ParseNumber("quantity", qty); err == nil && q.IsZero() {
		return Skip("nothing filled")
	}

	filledAt := get(row, "Filled Time")
	if filledAt == "" {
		return Reject("filled order without Filled Time")
	}

	return Accept(model.FieldSet{
		model.FieldTimestamp: filledAt,
		model.FieldSymbol:    get(row, "Symbol"),
		model.FieldSide:      get(row, "Side"),
		model.FieldQuantity:  qty,
		model.FieldPrice:     first(row, "Avg Price", "Price"),
	})
}
