// Package observability provides a metrics extension for FundMe that records
// lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/plugin"
	"github.com/xraph/fundme/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnFundDeployed         = (*MetricsExtension)(nil)
	_ plugin.OnContributed          = (*MetricsExtension)(nil)
	_ plugin.OnContributionRejected = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawn            = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawalFailed     = (*MetricsExtension)(nil)
	_ plugin.OnPriceRead            = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records fund lifecycle metrics.
// Register it as a FundMe plugin to track contributions and withdrawals.
type MetricsExtension struct {
	factory MetricFactory

	// Fund metrics
	FundsLoaded   Counter
	FundsDeployed Counter

	// Contribution metrics
	ContributionsAccepted Counter
	ContributionsRejected Counter
	ContributionsBelowMin Counter
	ContributedEther      Histogram

	// Withdrawal metrics
	Withdrawals            Counter
	WithdrawalsFailed      Counter
	WithdrawalsRefused     Counter
	WithdrawnEther         Histogram
	WithdrawalStorageReads Histogram

	// Oracle metrics
	PriceReads       Counter
	PriceReadErrors  Counter
	PriceReadLatency Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Fund metrics
		FundsLoaded:   factory.Counter("fundme.fund.loaded"),
		FundsDeployed: factory.Counter("fundme.fund.deployed"),

		// Contribution metrics
		ContributionsAccepted: factory.Counter("fundme.contribution.accepted"),
		ContributionsRejected: factory.Counter("fundme.contribution.rejected"),
		ContributionsBelowMin: factory.Counter("fundme.contribution.below_minimum"),
		ContributedEther:      factory.Histogram("fundme.contribution.ether"),

		// Withdrawal metrics
		Withdrawals:            factory.Counter("fundme.withdrawal.completed"),
		WithdrawalsFailed:      factory.Counter("fundme.withdrawal.failed"),
		WithdrawalsRefused:     factory.Counter("fundme.withdrawal.unauthorized"),
		WithdrawnEther:         factory.Histogram("fundme.withdrawal.ether"),
		WithdrawalStorageReads: factory.Histogram("fundme.withdrawal.storage_reads"),

		// Oracle metrics
		PriceReads:       factory.Counter("fundme.oracle.reads"),
		PriceReadErrors:  factory.Counter("fundme.oracle.errors"),
		PriceReadLatency: factory.Histogram("fundme.oracle.latency_ms"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(context.Context, *fund.Fund) error {
	m.FundsLoaded.Inc()
	return nil
}

// OnFundDeployed implements plugin.OnFundDeployed.
func (m *MetricsExtension) OnFundDeployed(context.Context, *fund.Fund) error {
	m.FundsDeployed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Contribution hooks
// ──────────────────────────────────────────────────

// OnContributed implements plugin.OnContributed.
func (m *MetricsExtension) OnContributed(_ context.Context, c *fund.Contribution) error {
	m.ContributionsAccepted.Inc()
	m.ContributedEther.Observe(ether(c.Amount))
	return nil
}

// OnContributionRejected implements plugin.OnContributionRejected.
func (m *MetricsExtension) OnContributionRejected(_ context.Context, _ id.FundID, _ string, _ types.Wei, reason error) error {
	m.ContributionsRejected.Inc()
	if errors.Is(reason, fundme.ErrInsufficientContribution) {
		m.ContributionsBelowMin.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawn implements plugin.OnWithdrawn.
func (m *MetricsExtension) OnWithdrawn(_ context.Context, w *fund.Withdrawal) error {
	m.Withdrawals.Inc()
	m.WithdrawnEther.Observe(ether(w.Amount))
	m.WithdrawalStorageReads.Observe(float64(w.StorageReads))
	return nil
}

// OnWithdrawalFailed implements plugin.OnWithdrawalFailed.
func (m *MetricsExtension) OnWithdrawalFailed(_ context.Context, _ id.FundID, _ string, _ fund.Strategy, reason error) error {
	if errors.Is(reason, fundme.ErrUnauthorized) {
		m.WithdrawalsRefused.Inc()
		return nil
	}
	m.WithdrawalsFailed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Oracle hooks
// ──────────────────────────────────────────────────

// OnPriceRead implements plugin.OnPriceRead.
func (m *MetricsExtension) OnPriceRead(_ context.Context, _ string, _ oracle.Price, elapsed time.Duration, err error) error {
	m.PriceReads.Inc()
	if err != nil {
		m.PriceReadErrors.Inc()
	}
	m.PriceReadLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ether converts a wei amount to float ether for histograms only.
func ether(w types.Wei) float64 {
	f, _ := strconv.ParseFloat(w.Ether(), 64)
	return f
}
