package fund

import (
	"context"

	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/types"
)

type Store interface {
	Create(ctx context.Context, f *Fund) error
	Get(ctx context.Context, fundID id.FundID) (*Fund, error)
}

// LedgerStore holds the per-fund accounting state.
type LedgerStore interface {
	// Record applies an accepted contribution: it adds the amount to the
	// contributor's total and the balance, appends the contributor to the
	// order and persists the receipt. It sets c.Index.
	Record(ctx context.Context, c *Contribution) error
	Contribution(ctx context.Context, fundID id.FundID, contributor string) (types.Wei, error)
	ContributorAt(ctx context.Context, fundID id.FundID, index int) (string, error)
	ContributorCount(ctx context.Context, fundID id.FundID) (int, error)
	Balance(ctx context.Context, fundID id.FundID) (types.Wei, error)
}

type ReceiptStore interface {
	ListContributions(ctx context.Context, fundID id.FundID, opts ListOpts) ([]*Contribution, error)
	ListWithdrawals(ctx context.Context, fundID id.FundID, opts ListOpts) ([]*Withdrawal, error)
}
