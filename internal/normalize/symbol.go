package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

// OptionContract is the decomposed form of an option symbol.
type OptionContract struct {
	Strike     decimal.Decimal
	Underlying string
	Expiry     string
	OptionType model.OptionType
}

// OCC style: underlying, YYMMDD, C or P, strike * 1000 in eight digits.
var occSymbolPattern = regexp.MustCompile(`^([A-Z][A-Z0-9.]*?)\s*(\d{6})([CP])(\d{8})$`)

var strikeScale = decimal.NewFromInt(1000)

// NormalizeSymbol trims and uppercases a ticker. A leading "." or "-" used by
// some platforms for option symbols is dropped.
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.TrimLeft(s, ".-")
}

// ParseWebullOptionsSymbol decomposes symbols like TSLA250822C00325000.
func ParseWebullOptionsSymbol(symbol string) (OptionContract, bool) {
	m := occSymbolPattern.FindStringSubmatch(NormalizeSymbol(symbol))
	if m == nil {
		return OptionContract{}, false
	}

	expiry, err := time.Parse("060102", m[2])
	if err != nil {
		return OptionContract{}, false
	}

	digits, err := decimal.NewFromString(m[4])
	if err != nil {
		return OptionContract{}, false
	}

	kind := model.OptionCall
	if m[3] == "P" {
		kind = model.OptionPut
	}

	return OptionContract{
		Underlying: m[1],
		Expiry:     expiry.Format("2006-01-02"),
		OptionType: kind,
		Strike:     digits.Div(strikeScale),
	}, true
}

// ParseOptionType accepts C, CALL, P and PUT in any case.
func ParseOptionType(s string) (model.OptionType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C", "CALL", "CALLS":
		return model.OptionCall, true
	case "P", "PUT", "PUTS":
		return model.OptionPut, true
	default:
		return "", false
	}
}

// ParseInstrumentType maps broker asset-class labels onto the stored types.
func ParseInstrumentType(s string) (model.InstrumentType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equity", "stock", "stocks", "stk", "etf", "shares", "common stock", "equities":
		return model.InstrumentEquity, true
	case "option", "options", "opt", "equity option", "equity and index options", "fop":
		return model.InstrumentOption, true
	case "future", "futures", "fut":
		return model.InstrumentFutures, true
	case "crypto", "cryptocurrency", "crypto currency", "digital asset":
		return model.InstrumentCrypto, true
	default:
		return "", false
	}
}

// FormatOCCSymbol renders a contract in the compact OCC form parsed by
// ParseWebullOptionsSymbol.
func FormatOCCSymbol(c OptionContract) (string, error) {
	expiry, err := time.Parse("2006-01-02", c.Expiry)
	if err != nil {
		return "", err
	}
	side := "C"
	if c.OptionType == model.OptionPut {
		side = "P"
	}
	return fmt.Sprintf("%s%s%s%08d", NormalizeSymbol(c.Underlying), expiry.Format("060102"), side, c.Strike.Mul(strikeScale).IntPart()), nil
}
