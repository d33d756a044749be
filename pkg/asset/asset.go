// Package asset parses and manipulates ledger asset strings such as
// "12.3400 DAPP" with exact fixed-point semantics.
package asset

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var shareScale = decimal.NewFromInt(1_000_000)

// Asset is a token quantity paired with its symbol.
type Asset struct {
	Amount decimal.Decimal
	Symbol string
}

// Parse parses an asset string of the form "<amount> <symbol>".
func Parse(s string) (Asset, error) {
	idx := strings.IndexByte(s, ' ')
	if idx <= 0 || idx == len(s)-1 {
		return Asset{}, fmt.Errorf("malformed asset string %q", s)
	}
	amount, err := decimal.NewFromString(s[:idx])
	if err != nil {
		return Asset{}, fmt.Errorf("parse asset amount %q: %w", s, err)
	}
	return Asset{Amount: amount, Symbol: s[idx+1:]}, nil
}

// MustParse parses an asset string and panics on failure. Test helper.
func MustParse(s string) Asset {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Zero returns a zero-valued asset with the given symbol.
func Zero(symbol string) Asset {
	return Asset{Amount: decimal.Zero, Symbol: symbol}
}

// FromDecimal wraps an amount and symbol into an Asset.
func FromDecimal(amount decimal.Decimal, symbol string) Asset {
	return Asset{Amount: amount, Symbol: symbol}
}

// Add returns the sum of two assets. Symbols must match; adding to a
// zero-symbol asset adopts the other's symbol.
func (a Asset) Add(b Asset) (Asset, error) {
	if a.Symbol == "" {
		return Asset{Amount: a.Amount.Add(b.Amount), Symbol: b.Symbol}, nil
	}
	if b.Symbol != "" && a.Symbol != b.Symbol {
		return Asset{}, fmt.Errorf("symbol mismatch: %s vs %s", a.Symbol, b.Symbol)
	}
	return Asset{Amount: a.Amount.Add(b.Amount), Symbol: a.Symbol}, nil
}

// IsZero reports whether the amount is zero.
func (a Asset) IsZero() bool {
	return a.Amount.IsZero()
}

// String renders the asset with the amount truncated to 4 decimal places.
func (a Asset) String() string {
	return a.Amount.RoundDown(4).StringFixed(4) + " " + a.Symbol
}

// MarshalJSON renders the asset as its canonical string form.
func (a Asset) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON parses an asset from its canonical string form.
func (a *Asset) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Share computes part/total as a stake share truncated (never rounded) to
// 6 decimal digits. A zero total yields zero.
func Share(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	q, _ := part.Mul(shareScale).QuoRem(total, 0)
	return q.Shift(-6)
}
