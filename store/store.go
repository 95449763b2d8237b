package store

import (
	"context"

	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/types"
)

// Store is the unified storage interface for FundMe. Methods are declared
// explicitly rather than by embedding fund's sub-interfaces so that backends
// have one flat method set to satisfy.
type Store interface {
	// Fund methods
	CreateFund(ctx context.Context, f *fund.Fund) error
	GetFund(ctx context.Context, fundID id.FundID) (*fund.Fund, error)

	// Ledger methods
	RecordContribution(ctx context.Context, c *fund.Contribution) error
	Contribution(ctx context.Context, fundID id.FundID, contributor string) (types.Wei, error)
	ContributorAt(ctx context.Context, fundID id.FundID, index int) (string, error)
	ContributorCount(ctx context.Context, fundID id.FundID) (int, error)
	Balance(ctx context.Context, fundID id.FundID) (types.Wei, error)

	// Receipt methods
	ListContributions(ctx context.Context, fundID id.FundID, opts fund.ListOpts) ([]*fund.Contribution, error)
	ListWithdrawals(ctx context.Context, fundID id.FundID, opts fund.ListOpts) ([]*fund.Withdrawal, error)

	// WithTx runs fn inside a transaction scoped to one fund. The fund's
	// ledger state is locked for the duration; fn's changes are committed
	// when it returns nil and discarded otherwise.
	WithTx(ctx context.Context, fundID id.FundID, fn func(ctx context.Context, tx Tx) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx exposes the ledger primitives a withdrawal is built from. Every call is
// one storage access, which is what the withdrawal strategies are measured
// by.
type Tx interface {
	ContributorCount(ctx context.Context) (int, error)
	ContributorAt(ctx context.Context, index int) (string, error)
	// Contributors returns a copy of the whole contributor order.
	Contributors(ctx context.Context) ([]string, error)
	// ResetContribution sets a contributor's total to zero. Resetting an
	// already zero total is a no-op.
	ResetContribution(ctx context.Context, contributor string) error
	ClearContributors(ctx context.Context) error
	Balance(ctx context.Context) (types.Wei, error)
	DrainBalance(ctx context.Context) error
	RecordWithdrawal(ctx context.Context, w *fund.Withdrawal) error
}
