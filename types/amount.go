// Package types provides the fixed-precision amounts used across FundMe.
//
// Wei counts the native asset in its smallest unit (10^18 per ether) and USD
// counts US dollars with 18 decimals of precision. Both are arbitrary
// precision integers; all arithmetic is integer-only and no value is ever
// rounded through a float.
package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits carried by both Wei (per
// ether) and USD amounts.
const Decimals = 18

// MaxBits bounds every parsed amount to the 256-bit range of a native
// on-chain value.
const MaxBits = 256

// maxExponent bounds the decimal exponent accepted by ParseEther and ParseUSD
// before any scaling happens.
const maxExponent = 96

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// amount is the shared immutable integer representation. A nil pointer is
// zero, so the zero value of every amount type is usable.
type amount struct {
	v *big.Int
}

func (a amount) big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// Big returns a copy of the underlying integer.
func (a amount) Big() *big.Int { return new(big.Int).Set(a.big()) }

// Sign returns -1, 0 or +1.
func (a amount) Sign() int { return a.big().Sign() }

// IsZero reports whether the amount is zero.
func (a amount) IsZero() bool { return a.Sign() == 0 }

// IsNegative reports whether the amount is below zero.
func (a amount) IsNegative() bool { return a.Sign() < 0 }

// IsPositive reports whether the amount is above zero.
func (a amount) IsPositive() bool { return a.Sign() > 0 }

// String returns the integer in base 10 (smallest units).
func (a amount) String() string { return a.big().String() }

func (a amount) decimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.big(), -Decimals)
}

// ──────────────────────────────────────────────────
// Wei
// ──────────────────────────────────────────────────

// Wei is an amount of the native asset in its smallest unit.
type Wei struct{ amount }

// NewWei returns n wei.
func NewWei(n int64) Wei { return Wei{amount{big.NewInt(n)}} }

// WeiFromBig copies b into a Wei amount. A nil b is zero.
func WeiFromBig(b *big.Int) Wei {
	if b == nil {
		return Wei{}
	}
	return Wei{amount{new(big.Int).Set(b)}}
}

// ParseWei parses a base-10 integer count of wei.
func ParseWei(s string) (Wei, error) {
	b, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return Wei{}, fmt.Errorf("types: invalid wei amount %q", s)
	}
	if err := checkBits(b); err != nil {
		return Wei{}, fmt.Errorf("types: invalid wei amount: %w", err)
	}
	return Wei{amount{b}}, nil
}

// ParseEther parses a decimal ether amount ("0.05") into wei. Amounts finer
// than one wei are rejected.
func ParseEther(s string) (Wei, error) {
	b, err := parseScaled(s)
	if err != nil {
		return Wei{}, fmt.Errorf("types: invalid ether amount %q: %w", s, err)
	}
	return Wei{amount{b}}, nil
}

// MustEther is like ParseEther but panics on error.
func MustEther(s string) Wei {
	w, err := ParseEther(s)
	if err != nil {
		panic(err)
	}
	return w
}

// Add returns w + other.
func (w Wei) Add(other Wei) Wei {
	return Wei{amount{new(big.Int).Add(w.big(), other.big())}}
}

// Sub returns w - other.
func (w Wei) Sub(other Wei) Wei {
	return Wei{amount{new(big.Int).Sub(w.big(), other.big())}}
}

// Cmp compares w and other.
func (w Wei) Cmp(other Wei) int { return w.big().Cmp(other.big()) }

// Equal reports whether both amounts are the same number of wei.
func (w Wei) Equal(other Wei) bool { return w.Cmp(other) == 0 }

// Ether formats w in ether with trailing zeros trimmed ("0.05").
func (w Wei) Ether() string { return w.decimal().String() }

// MarshalJSON encodes w as a quoted base-10 string so that values above
// 2^53 survive JavaScript clients.
func (w Wei) MarshalJSON() ([]byte, error) { return json.Marshal(w.String()) }

// UnmarshalJSON accepts a quoted or bare base-10 integer.
func (w *Wei) UnmarshalJSON(data []byte) error {
	parsed, err := ParseWei(unquote(data))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// ──────────────────────────────────────────────────
// USD
// ──────────────────────────────────────────────────

// USD is a US-dollar value with 18 decimals of precision.
type USD struct{ amount }

// Dollars returns n whole dollars.
func Dollars(n int64) USD {
	return USD{amount{new(big.Int).Mul(big.NewInt(n), unit)}}
}

// USDFromBig copies b (18-decimal fixed point) into a USD value.
func USDFromBig(b *big.Int) USD {
	if b == nil {
		return USD{}
	}
	return USD{amount{new(big.Int).Set(b)}}
}

// ParseUSD parses a decimal dollar amount ("50", "12.5").
func ParseUSD(s string) (USD, error) {
	b, err := parseScaled(s)
	if err != nil {
		return USD{}, fmt.Errorf("types: invalid usd amount %q: %w", s, err)
	}
	return USD{amount{b}}, nil
}

// Cmp compares u and other.
func (u USD) Cmp(other USD) int { return u.big().Cmp(other.big()) }

// LessThan reports whether u < other.
func (u USD) LessThan(other USD) bool { return u.Cmp(other) < 0 }

// Equal reports whether both values are identical to the last decimal.
func (u USD) Equal(other USD) bool { return u.Cmp(other) == 0 }

// Dollars formats u with trailing zeros trimmed ("50", "12.5").
func (u USD) Dollars() string { return u.decimal().String() }

// Display formats u for humans, rounded to cents ("$50.00").
func (u USD) Display() string {
	d := u.decimal()
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

// MarshalJSON encodes u as a quoted base-10 string of 18-decimal units.
func (u USD) MarshalJSON() ([]byte, error) { return json.Marshal(u.String()) }

// UnmarshalJSON accepts a quoted or bare base-10 integer.
func (u *USD) UnmarshalJSON(data []byte) error {
	b, ok := new(big.Int).SetString(unquote(data), 10)
	if !ok {
		return fmt.Errorf("types: invalid usd units %s", data)
	}
	*u = USD{amount{b}}
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// parseScaled reads a decimal string into 18-decimal units. The exponent is
// bounded first: decimal accepts "1e2000000000" and would otherwise expand it.
func parseScaled(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if exp := d.Exponent(); exp > maxExponent || exp < -maxExponent-Decimals {
		return nil, fmt.Errorf("exponent %d out of range", exp)
	}
	scaled := d.Shift(Decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("more than %d decimal places", Decimals)
	}
	b := scaled.BigInt()
	if err := checkBits(b); err != nil {
		return nil, err
	}
	return b, nil
}

func checkBits(b *big.Int) error {
	if b.BitLen() > MaxBits {
		return fmt.Errorf("exceeds %d bits", MaxBits)
	}
	return nil
}

func unquote(data []byte) string {
	return strings.Trim(strings.TrimSpace(string(data)), `"`)
}

// ParseUSDUnits parses a base-10 integer count of 18-decimal USD units, the
// form USD.String produces.
func ParseUSDUnits(s string) (USD, error) {
	b, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return USD{}, fmt.Errorf("types: invalid usd units %q", s)
	}
	return USD{amount{b}}, nil
}
