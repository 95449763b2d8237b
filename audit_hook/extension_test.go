package audithook

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/types"
)

type captured struct {
	events []*AuditEvent
}

func (c *captured) recorder() Recorder {
	return RecorderFunc(func(_ context.Context, evt *AuditEvent) error {
		c.events = append(c.events, evt)
		return nil
	})
}

func TestContributionEvents(t *testing.T) {
	var c captured
	ext := New(c.recorder())
	ctx := context.Background()

	contribution := &fund.Contribution{
		ID:          id.NewContributionID(),
		FundID:      id.NewFundID(),
		Contributor: "0xalice",
		Amount:      types.MustEther("0.05"),
		USDValue:    types.Dollars(100),
	}
	require.NoError(t, ext.OnContributed(ctx, contribution))
	require.NoError(t, ext.OnContributionRejected(ctx, contribution.FundID, "0xbob",
		types.MustEther("0.01"), fundme.ErrInsufficientContribution))
	require.NoError(t, ext.OnContributionRejected(ctx, contribution.FundID, "0xbob",
		types.MustEther("1"), fmt.Errorf("%w: stale", fundme.ErrOracleUnavailable)))

	require.Len(t, c.events, 3)

	accepted := c.events[0]
	assert.Equal(t, ActionContributionAccepted, accepted.Action)
	assert.Equal(t, contribution.ID.String(), accepted.ResourceID)
	assert.Equal(t, "$100.00", accepted.Metadata["usd_value"])
	assert.Equal(t, "50000000000000000", accepted.Metadata["amount_wei"])

	assert.Equal(t, ActionContributionRejected, c.events[1].Action)
	assert.Equal(t, SeverityInfo, c.events[1].Severity)
	assert.Equal(t, OutcomeFailure, c.events[1].Outcome)
	assert.NotEmpty(t, c.events[1].Reason)

	assert.Equal(t, SeverityError, c.events[2].Severity)
}

func TestWithdrawalEvents(t *testing.T) {
	var c captured
	ext := New(c.recorder())
	ctx := context.Background()
	fundID := id.NewFundID()

	require.NoError(t, ext.OnWithdrawn(ctx, &fund.Withdrawal{
		ID:       id.NewWithdrawalID(),
		FundID:   fundID,
		Owner:    "0xowner",
		Amount:   types.MustEther("0.1"),
		Strategy: fund.StrategyCopyThenClear,
	}))
	require.NoError(t, ext.OnWithdrawalFailed(ctx, fundID, "0xmallory", fund.StrategyReadThrough, fundme.ErrUnauthorized))
	require.NoError(t, ext.OnWithdrawalFailed(ctx, fundID, "0xowner", fund.StrategyReadThrough, fundme.ErrTransferFailed))

	require.Len(t, c.events, 3)
	assert.Equal(t, ActionWithdrawalCompleted, c.events[0].Action)
	assert.Equal(t, "copy_then_clear", c.events[0].Metadata["strategy"])

	assert.Equal(t, ActionWithdrawalUnauthorized, c.events[1].Action)
	assert.Equal(t, CategoryAccess, c.events[1].Category)

	assert.Equal(t, ActionWithdrawalFailed, c.events[2].Action)
	assert.Equal(t, SeverityCritical, c.events[2].Severity)
}

func TestPriceReadOnlyAuditsFailures(t *testing.T) {
	var c captured
	ext := New(c.recorder())
	ctx := context.Background()

	require.NoError(t, ext.OnPriceRead(ctx, "0xfeed", oracle.Price{}, time.Millisecond, nil))
	require.NoError(t, ext.OnPriceRead(ctx, "0xfeed", oracle.Price{}, time.Millisecond, errors.New("timeout")))

	require.Len(t, c.events, 1)
	assert.Equal(t, ActionOracleFailed, c.events[0].Action)
	assert.Equal(t, "0xfeed", c.events[0].ResourceID)
}

func TestActionFiltering(t *testing.T) {
	var c captured
	ext := New(c.recorder(), WithDisabledActions(ActionFundDeployed))
	ctx := context.Background()

	f := &fund.Fund{ID: id.NewFundID(), Owner: "0xowner", MinimumUSD: types.Dollars(50)}
	require.NoError(t, ext.OnFundDeployed(ctx, f))
	assert.Empty(t, c.events)

	ext = New(c.recorder(), WithEnabledActions(ActionFundDeployed))
	require.NoError(t, ext.OnFundDeployed(ctx, f))
	require.NoError(t, ext.OnWithdrawalFailed(ctx, f.ID, "0xowner", fund.StrategyReadThrough, fundme.ErrTransferFailed))
	require.Len(t, c.events, 1)
	assert.Equal(t, ActionFundDeployed, c.events[0].Action)
}

func TestCategoryAndOutcomeFiltering(t *testing.T) {
	ctx := context.Background()
	f := &fund.Fund{ID: id.NewFundID(), Owner: "0xowner", MinimumUSD: types.Dollars(50)}

	var c captured
	ext := New(c.recorder(), WithCategories(CategoryAccess))
	require.NoError(t, ext.OnFundDeployed(ctx, f))
	require.NoError(t, ext.OnWithdrawalFailed(ctx, f.ID, "0xmallory", fund.StrategyReadThrough, fundme.ErrUnauthorized))
	require.Len(t, c.events, 1)
	assert.Equal(t, ActionWithdrawalUnauthorized, c.events[0].Action)

	var d captured
	ext = New(d.recorder(), WithFailuresOnly())
	require.NoError(t, ext.OnFundDeployed(ctx, f))
	require.NoError(t, ext.OnWithdrawalFailed(ctx, f.ID, "0xowner", fund.StrategyCopyThenClear, fundme.ErrTransferFailed))
	require.Len(t, d.events, 1)
	assert.Equal(t, OutcomeFailure, d.events[0].Outcome)

	assert.Len(t, allActions(), 7)
}

func TestRecorderErrorIsSwallowed(t *testing.T) {
	ext := New(RecorderFunc(func(context.Context, *AuditEvent) error {
		return errors.New("backend down")
	}))
	f := &fund.Fund{ID: id.NewFundID(), MinimumUSD: types.Dollars(50)}
	assert.NoError(t, ext.OnFundDeployed(context.Background(), f))
}
