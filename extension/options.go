package extension

import (
	"github.com/xraph/fundme"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/payout"
	"github.com/xraph/fundme/plugin"
	"github.com/xraph/fundme/store"
)

// Option configures the FundMe Forge extension.
type Option func(*Extension)

// WithStore sets the store the ledger persists to.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithBank sets where withdrawals are paid out.
func WithBank(b payout.Bank) Option {
	return func(e *Extension) {
		e.bank = b
	}
}

// WithPriceFeed sets the oracle the fund is bound to.
func WithPriceFeed(f oracle.PriceFeed) Option {
	return func(e *Extension) {
		e.feed = f
	}
}

// WithLedgerOption passes a fundme.Option through to the underlying ledger.
func WithLedgerOption(opt fundme.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, fundme.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents HTTP handler construction.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration when the ledger binds.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for fund routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithFundID attaches to an existing fund instead of deploying one.
func WithFundID(fundID string) Option {
	return func(e *Extension) { e.config.FundID = fundID }
}

// WithOwner sets the owner of a newly deployed fund.
func WithOwner(owner string) Option {
	return func(e *Extension) { e.config.Owner = owner }
}

// WithMinimumUSD sets the contribution floor in whole dollars.
func WithMinimumUSD(dollars int64) Option {
	return func(e *Extension) { e.config.MinimumUSD = dollars }
}

// WithNetwork sets the network recorded on a newly deployed fund.
func WithNetwork(name string) Option {
	return func(e *Extension) { e.config.Network = name }
}
