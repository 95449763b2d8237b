package fundme

import (
	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/types"
)

// Re-exported so that callers of the core API need not import types and
// fund for the common cases.

// Wei is re-exported from the types package.
type Wei = types.Wei

// USD is re-exported from the types package.
type USD = types.USD

// Contribution is re-exported from the fund package.
type Contribution = fund.Contribution

// Withdrawal is re-exported from the fund package.
type Withdrawal = fund.Withdrawal

var (
	ParseEther = types.ParseEther
	MustEther  = types.MustEther
	Dollars    = types.Dollars
)
