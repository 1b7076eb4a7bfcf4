// Package currency formats amounts for display. It performs no conversion:
// an amount is always shown in the currency it was recorded in.
package currency

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"budgetsmart/internal/core"
)

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"ILS": "₪",
	"CAD": "C$",
}

// Normalize validates an ISO 4217 code and returns it upper-cased.
func Normalize(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidCurrency, code)
	}
	return unit.String(), nil
}

// Symbol returns the display symbol of code. Codes without a known symbol
// are shown as the code itself.
func Symbol(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if s, ok := symbols[code]; ok {
		return s
	}
	return code
}

// Options controls Format.
type Options struct {
	// ShowSign prefixes positive amounts with "+".
	ShowSign bool
}

// Format renders m as e.g. "$1,234.56" or "-€12.00".
func Format(m core.Money, code string, opts Options) string {
	d := decimal.New(m.Cents, -2)

	sign := ""
	switch {
	case d.IsNegative():
		sign = "-"
		d = d.Abs()
	case opts.ShowSign && d.IsPositive():
		sign = "+"
	}

	fixed := d.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	symbol := Symbol(code)
	if _, known := symbols[strings.ToUpper(strings.TrimSpace(code))]; !known && symbol != "" {
		symbol += " "
	}
	return sign + symbol + group(whole) + "." + frac
}

// group inserts thousands separators into a string of digits.
func group(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
