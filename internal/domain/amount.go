package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// Raw-amount conversions. All amounts cross component boundaries as
// non-negative arbitrary-precision integers in the token's smallest
// unit; decimals travel alongside on the binding.

// Pow10 returns 10^n as a big.Int. n < 0 yields zero.
func Pow10(n int) *big.Int {
	if n < 0 {
		return new(big.Int)
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// ToRaw converts a decimal string ("12.34") into the smallest-unit
// integer for d decimals, truncating excess fractional digits toward
// zero. Negative amounts are rejected.
func ToRaw(s string, d int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > d {
		fracPart = fracPart[:d]
	}
	for len(fracPart) < d {
		fracPart += "0"
	}
	raw, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	return raw, nil
}

// FormatRaw renders a smallest-unit integer as a decimal string for d
// decimals, trimming trailing fractional zeros.
func FormatRaw(raw *big.Int, d int) string {
	if raw == nil {
		return "0"
	}
	q, r := new(big.Int).QuoRem(raw, Pow10(d), new(big.Int))
	if d == 0 || r.Sign() == 0 {
		return q.String()
	}
	frac := fmt.Sprintf("%0*s", d, r.String())
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return q.String()
	}
	return q.String() + "." + frac
}

// PercentOfRaw computes raw * bps / 10000 truncating toward zero.
// Percentage arithmetic goes through basis points so no floating point
// touches raw amounts.
func PercentOfRaw(raw *big.Int, bps int64) *big.Int {
	if raw == nil || raw.Sign() <= 0 || bps <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(raw, big.NewInt(bps))
	return out.Quo(out, big.NewInt(10_000))
}
