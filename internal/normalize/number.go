package normalize

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// NumberError reports a value that could not be read as a finite number.
type NumberError struct {
	Field string
	Raw   string
}

func (e *NumberError) Error() string {
	if strings.TrimSpace(e.Raw) == "" {
		return fmt.Sprintf("%s is empty", e.Field)
	}
	return fmt.Sprintf("%s is not a number: %q", e.Field, e.Raw)
}

var currencyMarkers = []string{"@", "$", "€", "£", "¥", "USD", "EUR", "GBP", "CAD"}

// ParseNumber reads broker-formatted numbers: "(12.50)" is negative,
// leading "@" or currency markers are dropped and thousands separators are
// ignored. field names the value in the returned error.
func ParseNumber(field, raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, &NumberError{Field: field, Raw: raw}
	}

	// Sign, parentheses and currency marker come in any order: "-$5", "$-5",
	// "($5)", "$(5)".
	negative := false
	for i := 0; i < 3; i++ {
		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
			negative = !negative
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
		if strings.HasPrefix(s, "-") {
			negative = !negative
			s = strings.TrimSpace(s[1:])
		} else if strings.HasPrefix(s, "+") {
			s = strings.TrimSpace(s[1:])
		}
		for _, m := range currencyMarkers {
			if strings.HasPrefix(strings.ToUpper(s), m) {
				s = strings.TrimSpace(s[len(m):])
				break
			}
		}
	}
	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimSpace(s[:len(s)-1])
	}

	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" || strings.ContainsAny(s, "eE") && !isScientific(s) {
		return decimal.Zero, &NumberError{Field: field, Raw: raw}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &NumberError{Field: field, Raw: raw}
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseOptionalNumber returns zero for blank input.
func ParseOptionalNumber(field, raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	return ParseNumber(field, raw)
}

func isScientific(s string) bool {
	idx := strings.IndexAny(s, "eE")
	if idx <= 0 || idx == len(s)-1 {
		return false
	}
	for _, r := range s[:idx] {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	exp := strings.TrimPrefix(strings.TrimPrefix(s[idx+1:], "-"), "+")
	if exp == "" {
		return false
	}
	for _, r := range exp {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
