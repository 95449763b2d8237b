// Package fund holds the FundMe domain records: the deployed fund and the
// receipts written for every accepted contribution and every withdrawal.
package fund

import (
	"time"

	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/types"
)

// Fund is one deployed FundMe instance. Owner and PriceFeed are bound at
// deployment and never change.
type Fund struct {
	ID         id.FundID `json:"id"`
	Owner      string    `json:"owner"`
	PriceFeed  string    `json:"price_feed"`
	MinimumUSD types.USD `json:"minimum_usd"`
	Network    string    `json:"network,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Contribution struct {
	ID          id.ContributionID `json:"id"`
	FundID      id.FundID         `json:"fund_id"`
	Contributor string            `json:"contributor"`
	Amount      types.Wei         `json:"amount"`
	USDValue    types.USD         `json:"usd_value"`
	Price       types.USD         `json:"price"` // USD per ether at acceptance
	Index       int               `json:"index"` // position in the contributor order
	Fallback    bool              `json:"fallback"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Strategy selects how a withdrawal walks the contributor order.
type Strategy string

const (
	// StrategyReadThrough re-reads the order length and each entry from
	// storage on every iteration.
	StrategyReadThrough Strategy = "read_through"
	// StrategyCopyThenClear reads the whole order once and works on the copy.
	StrategyCopyThenClear Strategy = "copy_then_clear"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategyReadThrough || s == StrategyCopyThenClear
}

type Withdrawal struct {
	ID            id.WithdrawalID `json:"id"`
	FundID        id.FundID       `json:"fund_id"`
	Owner         string          `json:"owner"`
	Amount        types.Wei       `json:"amount"`
	Strategy      Strategy        `json:"strategy"`
	Contributors  int             `json:"contributors"` // order entries cleared
	StorageReads  int             `json:"storage_reads"`
	StorageWrites int             `json:"storage_writes"`
	CreatedAt     time.Time       `json:"created_at"`
}

type ListOpts struct {
	Limit  int
	Offset int
}
