package currency

import (
	"strings"

	"digitlotto/domain/entities"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits carried by one whole coin
const Decimals = 18

// ToSmallestUnit scales a human decimal string into integral smallest units.
// Digits past the 18th fractional place are truncated, never rounded.
// Only non-negative plain decimals are accepted: no sign, no exponent.
func ToSmallestUnit(amount string) (decimal.Decimal, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return decimal.Zero, nil
	}
	if !isPlainDecimal(amount) {
		return decimal.Zero, entities.WrapInvalidAmount("amount "+amount+" is not a non-negative decimal number", nil)
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, entities.WrapInvalidAmount("amount "+amount+" is not a decimal number", err)
	}

	return parsed.Shift(Decimals).Truncate(0), nil
}

// MustSmallestUnit is ToSmallestUnit for constants known to be valid
func MustSmallestUnit(amount string) decimal.Decimal {
	value, err := ToSmallestUnit(amount)
	if err != nil {
		panic(err)
	}
	return value
}

// ToHuman renders smallest units as a decimal string without trailing fractional zeros
func ToHuman(units decimal.Decimal) string {
	return units.Shift(-Decimals).String()
}

// isPlainDecimal reports whether s is digits with at most one decimal point
func isPlainDecimal(s string) bool {
	digits, points := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			points++
		default:
			return false
		}
	}
	return digits > 0 && points <= 1
}
