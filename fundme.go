package fundme

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/payout"
	"github.com/xraph/fundme/plugin"
	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/types"
)

// Ledger is one deployed fund: it accepts contributions worth at least the
// minimum USD value and lets only the owner withdraw the balance.
//
// Mutating operations are serialized; a Ledger is safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	store   store.Store
	bank    payout.Bank
	feed    oracle.PriceFeed
	fund    *fund.Fund
	plugins *plugin.Registry
	logger  *slog.Logger
	now     func() time.Time
	migrate bool
}

// Config describes a fund to deploy.
type Config struct {
	// Owner is the deployer identity; the only caller allowed to withdraw.
	Owner string
	// PriceFeed is bound to the fund for its whole life.
	PriceFeed oracle.PriceFeed
	// MinimumUSD defaults to DefaultMinimumUSD when zero, so every fund has
	// a positive threshold.
	MinimumUSD types.USD
	Network    string
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		if err := l.plugins.Register(p); err != nil {
			l.logger.Warn("plugin registration failed", "plugin", p.Name(), "error", err)
		}
	}
}

// WithClock overrides time.Now for receipt timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithoutMigrate skips store migration on Deploy and Load.
func WithoutMigrate() Option {
	return func(l *Ledger) { l.migrate = false }
}

func newLedger(s store.Store, bank payout.Bank, feed oracle.PriceFeed, opts []Option) *Ledger {
	l := &Ledger{
		store:   s,
		bank:    bank,
		feed:    feed,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
		migrate: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Deploy creates a new fund owned by cfg.Owner and bound to cfg.PriceFeed.
func Deploy(ctx context.Context, s store.Store, bank payout.Bank, cfg Config, opts ...Option) (*Ledger, error) {
	if strings.TrimSpace(cfg.Owner) == "" {
		return nil, ValidationError{Field: "owner", Message: "must not be empty"}
	}
	if cfg.PriceFeed == nil {
		return nil, ValidationError{Field: "price_feed", Message: "is required"}
	}
	if bank == nil {
		return nil, ValidationError{Field: "bank", Message: "is required"}
	}
	minimum := cfg.MinimumUSD
	if minimum.IsZero() {
		minimum = DefaultMinimumUSD
	}
	if minimum.IsNegative() {
		return nil, ValidationError{Field: "minimum_usd", Message: "must not be negative"}
	}

	l := newLedger(s, bank, cfg.PriceFeed, opts)
	if err := l.migrateStore(ctx); err != nil {
		return nil, err
	}

	f := &fund.Fund{
		ID:         id.NewFundID(),
		Owner:      cfg.Owner,
		PriceFeed:  cfg.PriceFeed.Address(),
		MinimumUSD: minimum,
		Network:    cfg.Network,
		CreatedAt:  l.now(),
	}
	if err := s.CreateFund(ctx, f); err != nil {
		return nil, fmt.Errorf("create fund: %w", err)
	}
	l.fund = f

	l.logger.Info("fund deployed",
		"fund_id", f.ID.String(),
		"owner", f.Owner,
		"price_feed", f.PriceFeed,
		"minimum_usd", f.MinimumUSD.Dollars(),
		"network", f.Network,
	)
	l.plugins.EmitFundDeployed(ctx, f)
	l.plugins.EmitInit(ctx, f)
	return l, nil
}

// Load attaches to an already deployed fund. feed must have the address the
// fund was deployed with.
func Load(ctx context.Context, s store.Store, bank payout.Bank, fundID id.FundID, feed oracle.PriceFeed, opts ...Option) (*Ledger, error) {
	if feed == nil {
		return nil, ValidationError{Field: "price_feed", Message: "is required"}
	}
	if bank == nil {
		return nil, ValidationError{Field: "bank", Message: "is required"}
	}

	l := newLedger(s, bank, feed, opts)
	if err := l.migrateStore(ctx); err != nil {
		return nil, err
	}

	f, err := s.GetFund(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("load fund %s: %w", fundID, err)
	}
	if !strings.EqualFold(f.PriceFeed, feed.Address()) {
		return nil, fmt.Errorf("%w: fund %s uses %s, got %s", ErrPriceFeedMismatch, fundID, f.PriceFeed, feed.Address())
	}
	l.fund = f

	l.logger.Debug("fund loaded", "fund_id", f.ID.String(), "owner", f.Owner)
	l.plugins.EmitInit(ctx, f)
	return l, nil
}

func (l *Ledger) migrateStore(ctx context.Context) error {
	if !l.migrate {
		return nil
	}
	if err := l.store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	return nil
}

// Close notifies plugins of shutdown. The store is owned by the caller and
// stays open.
func (l *Ledger) Close(ctx context.Context) error {
	l.plugins.EmitShutdown(ctx)
	return nil
}

// Plugins returns the ledger's plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// ──────────────────────────────────────────────────
// Contributions
// ──────────────────────────────────────────────────

// Contribute records amount from caller if it is worth at least the minimum
// USD value at the current oracle price.
func (l *Ledger) Contribute(ctx context.Context, caller string, amount types.Wei) (*fund.Contribution, error) {
	return l.contribute(ctx, caller, amount, false)
}

// Receive handles a bare value transfer with no call data. It follows the
// same acceptance rule as Contribute.
func (l *Ledger) Receive(ctx context.Context, caller string, amount types.Wei) (*fund.Contribution, error) {
	return l.contribute(ctx, caller, amount, true)
}

// Fallback handles a call to an entry point the ledger does not expose.
// Any value it carries is treated as a contribution.
func (l *Ledger) Fallback(ctx context.Context, caller, method string, amount types.Wei) (*fund.Contribution, error) {
	l.logger.Debug("routing unknown call to contribute",
		"fund_id", l.fund.ID.String(),
		"caller", caller,
		"method", method,
	)
	return l.contribute(ctx, caller, amount, true)
}

func (l *Ledger) contribute(ctx context.Context, caller string, amount types.Wei, fallback bool) (*fund.Contribution, error) {
	if strings.TrimSpace(caller) == "" {
		return nil, ValidationError{Field: "caller", Message: "must not be empty"}
	}
	if amount.IsNegative() {
		return nil, ValidationError{Field: "amount", Message: "must not be negative"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	price, err := l.latestPrice(ctx)
	if err != nil {
		l.plugins.EmitContributionRejected(ctx, l.fund.ID, caller, amount, err)
		return nil, err
	}

	usd := ConversionRate(amount, price)
	if usd.LessThan(l.fund.MinimumUSD) {
		err := fmt.Errorf("%w: %s is worth %s, minimum is %s",
			ErrInsufficientContribution, amount.Ether(), usd.Display(), l.fund.MinimumUSD.Display())
		l.logger.Debug("contribution rejected",
			"fund_id", l.fund.ID.String(),
			"caller", caller,
			"amount_wei", amount.String(),
			"usd", usd.Dollars(),
		)
		l.plugins.EmitContributionRejected(ctx, l.fund.ID, caller, amount, err)
		return nil, err
	}

	c := &fund.Contribution{
		ID:          id.NewContributionID(),
		FundID:      l.fund.ID,
		Contributor: caller,
		Amount:      amount,
		USDValue:    usd,
		Price:       ConversionRate(oneEther, price),
		Fallback:    fallback,
		CreatedAt:   l.now(),
	}
	if err := l.store.RecordContribution(ctx, c); err != nil {
		return nil, fmt.Errorf("record contribution: %w", err)
	}

	l.logger.Info("contribution accepted",
		"fund_id", l.fund.ID.String(),
		"contribution_id", c.ID.String(),
		"caller", caller,
		"amount_wei", amount.String(),
		"usd", usd.Dollars(),
		"index", c.Index,
	)
	l.plugins.EmitContributed(ctx, c)
	return c, nil
}

// latestPrice reads the bound feed and maps every unusable outcome to
// ErrOracleUnavailable.
func (l *Ledger) latestPrice(ctx context.Context) (oracle.Price, error) {
	start := time.Now()
	price, err := l.feed.LatestPrice(ctx)
	if err == nil {
		err = price.Validate()
	}
	l.plugins.EmitPriceRead(ctx, l.feed.Address(), price, time.Since(start), err)
	if err != nil {
		l.logger.Warn("price feed unavailable", "feed", l.feed.Address(), "error", err)
		return oracle.Price{}, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	return price, nil
}

// USDValue converts amount at the current oracle price.
func (l *Ledger) USDValue(ctx context.Context, amount types.Wei) (types.USD, error) {
	price, err := l.latestPrice(ctx)
	if err != nil {
		return types.USD{}, err
	}
	return ConversionRate(amount, price), nil
}

// LatestPrice returns the current validated oracle price.
func (l *Ledger) LatestPrice(ctx context.Context) (oracle.Price, error) {
	return l.latestPrice(ctx)
}

// ──────────────────────────────────────────────────
// Withdrawals
// ──────────────────────────────────────────────────

// Withdraw transfers the whole balance to the owner and resets the
// accounting, re-reading the contributor order from storage as it goes.
func (l *Ledger) Withdraw(ctx context.Context, caller string) (*fund.Withdrawal, error) {
	return l.withdraw(ctx, caller, fund.StrategyReadThrough)
}

// WithdrawCheap has the same effect as Withdraw but reads the contributor
// order from storage once.
func (l *Ledger) WithdrawCheap(ctx context.Context, caller string) (*fund.Withdrawal, error) {
	return l.withdraw(ctx, caller, fund.StrategyCopyThenClear)
}

func (l *Ledger) withdraw(ctx context.Context, caller string, strategy fund.Strategy) (*fund.Withdrawal, error) {
	if caller != l.fund.Owner {
		err := fmt.Errorf("%w: %s", ErrUnauthorized, caller)
		l.logger.Warn("withdrawal refused", "fund_id", l.fund.ID.String(), "caller", caller)
		l.plugins.EmitWithdrawalFailed(ctx, l.fund.ID, caller, strategy, err)
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		w           *fund.Withdrawal
		transferred bool
	)
	err := l.store.WithTx(ctx, l.fund.ID, func(ctx context.Context, tx store.Tx) error {
		mt := &meteredTx{Tx: tx}

		cleared, err := clearContributors(ctx, mt, strategy)
		if err != nil {
			return fmt.Errorf("clear contributors: %w", err)
		}
		balance, err := mt.Balance(ctx)
		if err != nil {
			return fmt.Errorf("read balance: %w", err)
		}
		if err := mt.DrainBalance(ctx); err != nil {
			return fmt.Errorf("drain balance: %w", err)
		}

		w = &fund.Withdrawal{
			ID:            id.NewWithdrawalID(),
			FundID:        l.fund.ID,
			Owner:         l.fund.Owner,
			Amount:        balance,
			Strategy:      strategy,
			Contributors:  cleared,
			StorageReads:  mt.reads,
			StorageWrites: mt.writes,
			CreatedAt:     l.now(),
		}
		if err := tx.RecordWithdrawal(ctx, w); err != nil {
			return fmt.Errorf("record withdrawal: %w", err)
		}

		if err := l.bank.Transfer(ctx, l.fund.Owner, balance); err != nil {
			return fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
		transferred = true
		return nil
	})
	if err != nil {
		if transferred {
			l.reverse(ctx, w, err)
		}
		l.logger.Error("withdrawal failed",
			"fund_id", l.fund.ID.String(),
			"strategy", string(strategy),
			"error", err,
		)
		l.plugins.EmitWithdrawalFailed(ctx, l.fund.ID, caller, strategy, err)
		return nil, err
	}

	l.logger.Info("withdrawal completed",
		"fund_id", l.fund.ID.String(),
		"withdrawal_id", w.ID.String(),
		"amount_wei", w.Amount.String(),
		"strategy", string(strategy),
		"contributors", w.Contributors,
		"storage_reads", w.StorageReads,
		"storage_writes", w.StorageWrites,
	)
	l.plugins.EmitWithdrawn(ctx, w)
	return w, nil
}

// reverse undoes a transfer whose ledger commit failed.
func (l *Ledger) reverse(ctx context.Context, w *fund.Withdrawal, cause error) {
	r, ok := l.bank.(payout.Reverser)
	if !ok {
		l.logger.Error("withdrawal commit failed after transfer; bank cannot reverse",
			"fund_id", l.fund.ID.String(),
			"amount_wei", w.Amount.String(),
			"error", cause,
		)
		return
	}
	if err := r.Reverse(context.WithoutCancel(ctx), w.Owner, w.Amount); err != nil {
		l.logger.Error("transfer reversal failed",
			"fund_id", l.fund.ID.String(),
			"amount_wei", w.Amount.String(),
			"error", errors.Join(cause, err),
		)
	}
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// FundID returns the fund's address.
func (l *Ledger) FundID() id.FundID { return l.fund.ID }

// Fund returns a copy of the deployed fund record.
func (l *Ledger) Fund() fund.Fund { return *l.fund }

// Owner returns the deployer identity.
func (l *Ledger) Owner() string { return l.fund.Owner }

// PriceFeed returns the address of the bound oracle.
func (l *Ledger) PriceFeed() string { return l.fund.PriceFeed }

// MinimumUSD returns the acceptance threshold.
func (l *Ledger) MinimumUSD() types.USD { return l.fund.MinimumUSD }

// Contribution returns the total contributed by identity since the last
// withdrawal; zero for unknown identities.
func (l *Ledger) Contribution(ctx context.Context, identity string) (types.Wei, error) {
	return l.store.Contribution(ctx, l.fund.ID, identity)
}

// ContributorAt returns the identity at position index of the contributor
// order. Repeat contributors appear once per contribution.
func (l *Ledger) ContributorAt(ctx context.Context, index int) (string, error) {
	if index < 0 {
		return "", fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return l.store.ContributorAt(ctx, l.fund.ID, index)
}

// ContributorCount returns the length of the contributor order.
func (l *Ledger) ContributorCount(ctx context.Context) (int, error) {
	return l.store.ContributorCount(ctx, l.fund.ID)
}

// Contributors returns the whole contributor order.
func (l *Ledger) Contributors(ctx context.Context) ([]string, error) {
	n, err := l.ContributorCount(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := range n {
		c, err := l.store.ContributorAt(ctx, l.fund.ID, i)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Balance returns the held balance.
func (l *Ledger) Balance(ctx context.Context) (types.Wei, error) {
	return l.store.Balance(ctx, l.fund.ID)
}

// Contributions lists contribution receipts, oldest first.
func (l *Ledger) Contributions(ctx context.Context, opts fund.ListOpts) ([]*fund.Contribution, error) {
	return l.store.ListContributions(ctx, l.fund.ID, opts)
}

// Withdrawals lists withdrawal receipts, oldest first.
func (l *Ledger) Withdrawals(ctx context.Context, opts fund.ListOpts) ([]*fund.Withdrawal, error) {
	return l.store.ListWithdrawals(ctx, l.fund.ID, opts)
}
