// Package plugin provides the hook system FundMe extensions attach to.
// A plugin implements Plugin plus any of the On* interfaces it cares about;
// the Registry discovers those once at registration.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called once a ledger is bound to its fund.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, f *fund.Fund) error
}

// OnShutdown is called when the ledger is closed.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// OnFundDeployed is called after a new fund is created.
type OnFundDeployed interface {
	Plugin
	OnFundDeployed(ctx context.Context, f *fund.Fund) error
}

// ──────────────────────────────────────────────────
// Contribution hooks
// ──────────────────────────────────────────────────

// OnContributed is called after a contribution is recorded.
type OnContributed interface {
	Plugin
	OnContributed(ctx context.Context, c *fund.Contribution) error
}

// OnContributionRejected is called when a contribution is refused, either
// below the minimum or because no usable price was available.
type OnContributionRejected interface {
	Plugin
	OnContributionRejected(ctx context.Context, fundID id.FundID, contributor string, amount types.Wei, reason error) error
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawn is called after a withdrawal commits.
type OnWithdrawn interface {
	Plugin
	OnWithdrawn(ctx context.Context, w *fund.Withdrawal) error
}

// OnWithdrawalFailed is called when a withdrawal is refused or rolled back.
type OnWithdrawalFailed interface {
	Plugin
	OnWithdrawalFailed(ctx context.Context, fundID id.FundID, caller string, strategy fund.Strategy, reason error) error
}

// ──────────────────────────────────────────────────
// Oracle hooks
// ──────────────────────────────────────────────────

// OnPriceRead is called after every price feed read, successful or not.
type OnPriceRead interface {
	Plugin
	OnPriceRead(ctx context.Context, feed string, price oracle.Price, elapsed time.Duration, err error) error
}
