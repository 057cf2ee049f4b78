package normalizer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var errNegativeAmount = errors.New("negative amount")

// currencySymbols maps symbols and local words to ISO 4217 codes.
var currencySymbols = []struct {
	token string
	code  string
}{
	{"US$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"₩", "KRW"},
	{"원", "KRW"},
	{"$", "USD"},
}

// parseAmount parses a monetary string such as "1.234.567,89 €", "£1,250,000" or
// "150000000". It returns the amount and the currency implied by a symbol or ISO
// code found in the text. Empty input yields (nil, "", nil).
func parseAmount(raw string, lc locale) (*float64, string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, "", nil
	}

	currency := detectCurrency(s)

	var b strings.Builder
	negative := false
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' || r == ',':
			b.WriteRune(r)
		case r == '-' || r == '−':
			if b.Len() == 0 {
				negative = true
			}
		}
	}
	digits := b.String()
	if digits == "" || strings.Trim(digits, ".,") == "" {
		return nil, currency, fmt.Errorf("no digits in amount %q", raw)
	}
	if negative {
		return nil, currency, errNegativeAmount
	}

	value, err := strconv.ParseFloat(canonicalNumber(digits, lc), 64)
	if err != nil {
		return nil, currency, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return &value, currency, nil
}

// canonicalNumber rewrites digits with '.' and ',' separators into strconv form.
func canonicalNumber(s string, lc locale) string {
	s = strings.Trim(s, ".,")
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Both present: whichever comes last is the decimal separator.
		if lastComma > lastDot {
			return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")

	case lastComma >= 0:
		if strings.Count(s, ",") > 1 || looksLikeThousands(s, lastComma) {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)

	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			return strings.ReplaceAll(s, ".", "")
		}
		if lc.decimalComma && looksLikeThousands(s, lastDot) {
			return strings.ReplaceAll(s, ".", "")
		}
		return s

	default:
		return s
	}
}

// looksLikeThousands reports whether a single separator at idx is followed by
// exactly three digits.
func looksLikeThousands(s string, idx int) bool {
	return idx > 0 && len(s)-idx-1 == 3
}

func detectCurrency(s string) string {
	upper := strings.ToUpper(s)
	for _, f := range strings.FieldsFunc(upper, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if len(f) == 3 && isISOCurrency(f) {
			return f
		}
	}
	for _, sym := range currencySymbols {
		if strings.Contains(s, sym.token) {
			return sym.code
		}
	}
	return ""
}
