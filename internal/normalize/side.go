package normalize

import (
	"strings"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

type sideEntry struct {
	side   model.Side
	effect model.Effect
}

var sideAliases = map[string]sideEntry{
	"buy":           {model.SideBuy, model.EffectNone},
	"b":             {model.SideBuy, model.EffectNone},
	"bot":           {model.SideBuy, model.EffectNone},
	"bought":        {model.SideBuy, model.EffectNone},
	"long":          {model.SideBuy, model.EffectNone},
	"buy to open":   {model.SideBuy, model.EffectOpen},
	"bto":           {model.SideBuy, model.EffectOpen},
	"buy to close":  {model.SideBuy, model.EffectClose},
	"btc":           {model.SideBuy, model.EffectClose},
	"buy to cover":  {model.SideBuy, model.EffectClose},
	"cover":         {model.SideBuy, model.EffectClose},
	"sell":          {model.SideSell, model.EffectNone},
	"s":             {model.SideSell, model.EffectNone},
	"sld":           {model.SideSell, model.EffectNone},
	"sold":          {model.SideSell, model.EffectNone},
	"sell to close": {model.SideSell, model.EffectClose},
	"stc":           {model.SideSell, model.EffectClose},
	"sell to open":  {model.SideSell, model.EffectOpen},
	"sto":           {model.SideSell, model.EffectOpen},
	"short":         {model.SideSell, model.EffectOpen},
	"sell short":    {model.SideSell, model.EffectOpen},
	"ss":            {model.SideSell, model.EffectOpen},
}

// ParseSide maps textual side variants onto buy or sell plus an optional
// open/close effect. ok is false when the text is not recognized.
func ParseSide(raw string) (side model.Side, effect model.Effect, ok bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
	key = strings.Join(strings.Fields(key), " ")

	if e, found := sideAliases[key]; found {
		return e.side, e.effect, true
	}
	return model.SideBuy, model.EffectNone, false
}
