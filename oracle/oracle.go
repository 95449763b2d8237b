// Package oracle defines the price feed FundMe converts contributions with,
// together with the feeds shipped for development and production networks.
//
// A feed reports the USD price of one unit of the native asset as an integer
// answer scaled by 10^Decimals, the way on-chain aggregators do: an answer of
// 200000000000 with 8 decimals is 2000 USD.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// ErrInvalidPrice is returned for answers that cannot be used for
// conversion (missing, zero or negative).
var ErrInvalidPrice = errors.New("oracle: invalid price answer")

// PriceFeed is a source of the latest asset price.
type PriceFeed interface {
	// Address identifies the feed; a fund is bound to it at deployment.
	Address() string
	LatestPrice(ctx context.Context) (Price, error)
}

// Price is one round of feed data.
type Price struct {
	Answer    *big.Int  `json:"answer"`
	Decimals  uint8     `json:"decimals"`
	RoundID   uint64    `json:"round_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate reports ErrInvalidPrice unless the answer is strictly positive.
func (p Price) Validate() error {
	if p.Answer == nil {
		return fmt.Errorf("%w: missing", ErrInvalidPrice)
	}
	if p.Answer.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, p.Answer)
	}
	return nil
}

// Scale returns 10^Decimals.
func (p Price) Scale() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(p.Decimals)), nil)
}

// String renders the answer in whole units, e.g. "2000.00000000".
func (p Price) String() string {
	if p.Answer == nil {
		return "<nil>"
	}
	if p.Decimals == 0 {
		return p.Answer.String()
	}
	r := new(big.Rat).SetFrac(p.Answer, p.Scale())
	return r.FloatString(int(p.Decimals))
}

// Func adapts a function into a PriceFeed.
type Func struct {
	Addr string
	Fn   func(ctx context.Context) (Price, error)
}

// Address implements PriceFeed.
func (f Func) Address() string { return f.Addr }

// LatestPrice implements PriceFeed.
func (f Func) LatestPrice(ctx context.Context) (Price, error) { return f.Fn(ctx) }
