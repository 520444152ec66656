// Package amountfmt formats and parses token amounts expressed in a
// token's base units against a per-token decimals count, the way
// JSON-RPC clients display balances without losing u64 precision.
package amountfmt

import (
	"fmt"
	"math/big"
)

// Format renders amount (in base units) as a decimal string with up to
// decimals fractional digits, trimming trailing zeros.
func Format(amount uint64, decimals uint8) string {
	if decimals == 0 {
		return fmt.Sprintf("%d", amount)
	}

	amountBig := new(big.Int).SetUint64(amount)
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)

	whole := new(big.Int).Div(amountBig, divisor)
	frac := new(big.Int).Mod(amountBig, divisor)

	if frac.Sign() == 0 {
		return whole.String()
	}

	fracStr := fmt.Sprintf("%0*d", int(decimals), frac)
	for len(fracStr) > 0 && fracStr[len(fracStr)-1] == '0' {
		fracStr = fracStr[:len(fracStr)-1]
	}

	return fmt.Sprintf("%s.%s", whole.String(), fracStr)
}

// Parse converts a decimal string into base units for the given
// decimals count.
func Parse(s string, decimals uint8) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty amount string")
	}

	wholeStr, fracStr := s, ""
	for i, c := range s {
		if c == '.' {
			wholeStr = s[:i]
			fracStr = s[i+1:]
			break
		}
	}
	if wholeStr == "" {
		wholeStr = "0"
	}

	for _, c := range wholeStr + fracStr {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid character in amount %q: %c", s, c)
		}
	}

	for len(fracStr) < int(decimals) {
		fracStr += "0"
	}
	if len(fracStr) > int(decimals) {
		return 0, fmt.Errorf("amount %q has more than %d fractional digits", s, decimals)
	}

	combined := wholeStr + fracStr
	amount := new(big.Int)
	if _, ok := amount.SetString(combined, 10); !ok {
		return 0, fmt.Errorf("invalid amount: %q", s)
	}
	if !amount.IsUint64() {
		return 0, fmt.Errorf("amount overflow: %q", s)
	}

	return amount.Uint64(), nil
}

// U64String renders a u64 as a decimal string with no fractional
// conversion — the wire form the spec mandates for wallet amounts and
// ids, since JSON numbers cannot safely round-trip the full u64 range.
func U64String(v uint64) string {
	return fmt.Sprintf("%d", v)
}

// ParseU64String parses the decimal-string wire form back into a u64.
func ParseU64String(s string) (uint64, error) {
	var v uint64
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, fmt.Errorf("invalid u64 string %q: %w", s, err)
	}
	return v, nil
}
