// Package currencyutils provides the ISO 4217 currency rules used when amounts are
// canonicalized into minor units.
package currencyutils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var currencyCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)

// minorUnitExceptions lists ISO 4217 currencies whose exponent is not 2
var minorUnitExceptions = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0,
	"KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0,
	"XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// IsValidCurrencyCode reports whether code looks like an ISO 4217 alphabetic code
func IsValidCurrencyCode(code string) bool {
	return currencyCodePattern.MatchString(code)
}

// NormalizeCode upper-cases and trims a currency code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// MinorUnits returns the number of decimal places of the currency
func MinorUnits(currency string) int32 {
	if exp, ok := minorUnitExceptions[NormalizeCode(currency)]; ok {
		return exp
	}
	return 2
}

// ToMinorUnits converts an amount into integer minor units of the currency.
// exact is false when the amount carried more precision than the currency
// allows and had to be rounded (banker's rounding).
func ToMinorUnits(amount decimal.Decimal, currency string) (minor int64, exact bool) {
	exp := MinorUnits(currency)
	rounded := amount.RoundBank(exp)
	exact = rounded.Equal(amount)
	return rounded.Shift(exp).IntPart(), exact
}

// FitsMinorUnits reports whether the amount, rounded to the currency's
// precision, is representable as int64 minor units. ToMinorUnits wraps otherwise.
func FitsMinorUnits(amount decimal.Decimal, currency string) bool {
	exp := MinorUnits(currency)
	return amount.RoundBank(exp).Shift(exp).BigInt().IsInt64()
}

// FromMinorUnits converts integer minor units back into a decimal amount
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -MinorUnits(currency))
}

// FormatAmount formats an amount with the currency's precision followed by its code,
// e.g. "100.00 EUR" or "1500 JPY".
func FormatAmount(amount decimal.Decimal, currency string) string {
	formatted := amount.StringFixed(MinorUnits(currency))
	if currency == "" {
		return formatted
	}
	return fmt.Sprintf("%s %s", formatted, NormalizeCode(currency))
}

// WithinTolerance reports whether |a-b| <= tolerance
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
