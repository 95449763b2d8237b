package observability

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/types"
)

func TestMetricsExtensionCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsExtension(NewPrometheusFactory(reg))
	ctx := context.Background()
	fundID := id.NewFundID()

	require.NoError(t, m.OnFundDeployed(ctx, &fund.Fund{ID: fundID}))
	require.NoError(t, m.OnContributed(ctx, &fund.Contribution{Amount: types.MustEther("0.05")}))
	require.NoError(t, m.OnContributionRejected(ctx, fundID, "0xb", types.MustEther("0.01"), fundme.ErrInsufficientContribution))
	require.NoError(t, m.OnContributionRejected(ctx, fundID, "0xb", types.MustEther("1"),
		fmt.Errorf("%w: down", fundme.ErrOracleUnavailable)))
	require.NoError(t, m.OnWithdrawn(ctx, &fund.Withdrawal{Amount: types.MustEther("0.05"), StorageReads: 4}))
	require.NoError(t, m.OnWithdrawalFailed(ctx, fundID, "0xb", fund.StrategyReadThrough, fundme.ErrUnauthorized))
	require.NoError(t, m.OnWithdrawalFailed(ctx, fundID, "0xo", fund.StrategyReadThrough, fundme.ErrTransferFailed))
	require.NoError(t, m.OnPriceRead(ctx, "0xfeed", oracle.Price{}, 3*time.Millisecond, nil))
	require.NoError(t, m.OnPriceRead(ctx, "0xfeed", oracle.Price{}, time.Millisecond, oracle.ErrInvalidPrice))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FundsDeployed.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContributionsAccepted.(prometheus.Counter)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ContributionsRejected.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContributionsBelowMin.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Withdrawals.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WithdrawalsRefused.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WithdrawalsFailed.(prometheus.Counter)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PriceReads.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PriceReadErrors.(prometheus.Counter)))
}

func TestPrometheusFactoryNamesAndReuse(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := NewPrometheusFactory(reg)

	a := f.Counter("fundme.fund.deployed")
	b := f.Counter("fundme.fund.deployed")
	a.Inc()
	b.Inc()
	assert.Equal(t, 2.0, testutil.ToFloat64(a.(prometheus.Counter)))

	f.Histogram("fundme.oracle.latency_ms").Observe(1)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.ElementsMatch(t, []string{"fundme_fund_deployed_total", "fundme_oracle_latency_ms"}, names)
}
