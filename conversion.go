package fundme

import (
	"math/big"

	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/types"
)

// DefaultMinimumUSD is the smallest accepted contribution, 50 USD.
var DefaultMinimumUSD = types.Dollars(50)

// ConversionRate converts amount to its USD value at price:
//
//	usd = amount * answer / 10^decimals
//
// The product is formed before dividing and the quotient truncates toward
// zero. price must already be validated.
func ConversionRate(amount types.Wei, price oracle.Price) types.USD {
	v := new(big.Int).Mul(amount.Big(), price.Answer)
	v.Quo(v, price.Scale())
	return types.USDFromBig(v)
}

// oneEther is the reference amount for a per-ether price.
var oneEther = types.WeiFromBig(new(big.Int).Exp(big.NewInt(10), big.NewInt(types.Decimals), nil))
