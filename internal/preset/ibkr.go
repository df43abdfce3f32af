package preset

import (
	"strings"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

var ibkrHeaders = []string{
	"symbol", "buySell", "quantity", "tradePrice", "dateTime",
	"ibCommission", "currency", "assetCategory",
}

var ibkrAssetTypes = map[string]model.InstrumentType{
	"STK":    model.InstrumentEquity,
	"ETF":    model.InstrumentEquity,
	"OPT":    model.InstrumentOption,
	"FOP":    model.InstrumentOption,
	"FUT":    model.InstrumentFutures,
	"CRYPTO": model.InstrumentCrypto,
}

// IBKRFlex reads Interactive Brokers Flex query trades, either as the XML
// Trade attributes or a CSV export with the same column names.
func IBKRFlex() *Preset {
	return &Preset{
		ID:         "ibkr-flex",
		Label:      "Interactive Brokers Flex Query",
		StrictSide: true,
		Detect: detector(ibkrHeaders, func(row model.RawRow) bool {
			side := strings.ToUpper(get(row, "buySell"))
			return strings.HasPrefix(side, "BUY") || strings.HasPrefix(side, "SELL")
		}),
		Transform: transformIBKR,
	}
}

func transformIBKR(row model.RawRow) Result {
	if level := get(row, "levelOfDetail"); level != "" && !strings.EqualFold(level, "EXECUTION") {
		return Skip("level of detail %s", level)
	}

	side := strings.ToUpper(get(row, "buySell"))
	if strings.Contains(side, "(CA.)") {
		return Skip("cancelled execution")
	}

	category := strings.ToUpper(get(row, "assetCategory"))
	kind := model.InstrumentEquity
	if category != "" {
		k, ok := ibkrAssetTypes[category]
		if !ok {
			return Skip("unsupported asset category %s", category)
		}
		kind = k
	}

	timestamp := get(row, "dateTime")
	if timestamp == "" {
		if date := get(row, "tradeDate"); date != "" {
			timestamp = strings.TrimSpace(date + ";" + get(row, "tradeTime"))
			timestamp = strings.TrimSuffix(timestamp, ";")
		}
	}

	switch strings.ToUpper(get(row, "openCloseIndicator")) {
	case "O":
		side += "_TO_OPEN"
	case "C":
		side += "_TO_CLOSE"
	}

	fs := model.FieldSet{
		model.FieldTimestamp:      timestamp,
		model.FieldSymbol:         compactSymbol(get(row, "symbol")),
		model.FieldSide:           side,
		model.FieldQuantity:       get(row, "quantity"),
		model.FieldPrice:          get(row, "tradePrice"),
		model.FieldFees:           get(row, "ibCommission"),
		model.FieldCurrency:       get(row, "currency"),
		model.FieldVenue:          get(row, "exchange"),
		model.FieldOrderID:        get(row, "ibOrderID"),
		model.FieldExecID:         first(row, "ibExecID", "tradeID", "transactionID"),
		model.FieldInstrumentType: string(kind),
		model.FieldMultiplier:     get(row, "multiplier"),
	}

	if kind == model.InstrumentOption {
		fs[model.FieldUnderlying] = get(row, "underlyingSymbol")
		fs[model.FieldExpiry] = get(row, "expiry")
		fs[model.FieldStrike] = get(row, "strike")
		fs[model.FieldOptionType] = get(row, "putCall")
	}
	return Accept(fs)
}
