// Package storetest is a conformance suite every store.Store backend runs
// from its own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/types"
)

// Factory returns a fresh, migrated store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"FundRoundTrip", testFundRoundTrip},
		{"UnknownFund", testUnknownFund},
		{"DuplicateFund", testDuplicateFund},
		{"RecordContribution", testRecordContribution},
		{"ContributorAtBounds", testContributorAtBounds},
		{"ListContributions", testListContributions},
		{"TxCommit", testTxCommit},
		{"TxRollback", testTxRollback},
		{"FundsAreIsolated", testFundsAreIsolated},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func newFund(t *testing.T, s store.Store) *fund.Fund {
	t.Helper()
	f := &fund.Fund{
		ID:         id.NewFundID(),
		Owner:      "0xowner",
		PriceFeed:  "0xfeed",
		MinimumUSD: types.Dollars(50),
		Network:    "hardhat",
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, s.CreateFund(context.Background(), f))
	return f
}

func contribute(t *testing.T, s store.Store, f *fund.Fund, who, ether string) *fund.Contribution {
	t.Helper()
	c := &fund.Contribution{
		ID:          id.NewContributionID(),
		FundID:      f.ID,
		Contributor: who,
		Amount:      types.MustEther(ether),
		USDValue:    types.Dollars(100),
		Price:       types.Dollars(2000),
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, s.RecordContribution(context.Background(), c))
	return c
}

func testFundRoundTrip(t *testing.T, s store.Store) {
	f := newFund(t, s)

	got, err := s.GetFund(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, f.Owner, got.Owner)
	assert.Equal(t, f.PriceFeed, got.PriceFeed)
	assert.True(t, f.MinimumUSD.Equal(got.MinimumUSD), "minimum %s", got.MinimumUSD)
	assert.Equal(t, f.Network, got.Network)
	assert.True(t, f.CreatedAt.Equal(got.CreatedAt), "created_at %s != %s", got.CreatedAt, f.CreatedAt)
}

func testUnknownFund(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.GetFund(ctx, id.NewFundID())
	assert.ErrorIs(t, err, fundme.ErrFundNotFound)

	err = s.RecordContribution(ctx, &fund.Contribution{
		ID:          id.NewContributionID(),
		FundID:      id.NewFundID(),
		Contributor: "0xalice",
		Amount:      types.NewWei(1),
	})
	assert.ErrorIs(t, err, fundme.ErrFundNotFound)
}

func testDuplicateFund(t *testing.T, s store.Store) {
	f := newFund(t, s)
	err := s.CreateFund(context.Background(), f)
	assert.ErrorIs(t, err, fundme.ErrAlreadyExists)
}

func testRecordContribution(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := newFund(t, s)

	first := contribute(t, s, f, "0xalice", "0.05")
	second := contribute(t, s, f, "0xbob", "1")
	third := contribute(t, s, f, "0xalice", "0.1")
	assert.Equal(t, []int{0, 1, 2}, []int{first.Index, second.Index, third.Index})

	alice, err := s.Contribution(ctx, f.ID, "0xalice")
	require.NoError(t, err)
	assert.Equal(t, "0.15", alice.Ether())

	unknown, err := s.Contribution(ctx, f.ID, "0xnobody")
	require.NoError(t, err)
	assert.True(t, unknown.IsZero())

	n, err := s.ContributorCount(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for i, want := range []string{"0xalice", "0xbob", "0xalice"} {
		got, err := s.ContributorAt(ctx, f.ID, i)
		require.NoError(t, err)
		assert.Equal(t, want, got, "index %d", i)
	}

	balance, err := s.Balance(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.15", balance.Ether())
}

func testContributorAtBounds(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := newFund(t, s)

	_, err := s.ContributorAt(ctx, f.ID, 0)
	assert.ErrorIs(t, err, fundme.ErrIndexOutOfRange)

	contribute(t, s, f, "0xalice", "1")
	_, err = s.ContributorAt(ctx, f.ID, 1)
	assert.ErrorIs(t, err, fundme.ErrIndexOutOfRange)
}

func testListContributions(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := newFund(t, s)
	var want []string
	for _, who := range []string{"0xa", "0xb", "0xc", "0xd"} {
		want = append(want, contribute(t, s, f, who, "1").ID.String())
	}

	all, err := s.ListContributions(ctx, f.ID, fund.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, c := range all {
		assert.Equal(t, want[i], c.ID.String())
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "1", c.Amount.Ether())
		assert.Equal(t, "100", c.USDValue.Dollars())
		assert.Equal(t, "2000", c.Price.Dollars())
	}

	paged, err := s.ListContributions(ctx, f.ID, fund.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 2)
	assert.Equal(t, want[1], paged[0].ID.String())
	assert.Equal(t, want[2], paged[1].ID.String())
}

func clearAll(ctx context.Context, tx store.Tx) (types.Wei, error) {
	contributors, err := tx.Contributors(ctx)
	if err != nil {
		return types.Wei{}, err
	}
	for _, c := range contributors {
		if err := tx.ResetContribution(ctx, c); err != nil {
			return types.Wei{}, err
		}
	}
	if err := tx.ClearContributors(ctx); err != nil {
		return types.Wei{}, err
	}
	balance, err := tx.Balance(ctx)
	if err != nil {
		return types.Wei{}, err
	}
	return balance, tx.DrainBalance(ctx)
}

func testTxCommit(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := newFund(t, s)
	contribute(t, s, f, "0xalice", "1")
	contribute(t, s, f, "0xbob", "2")
	contribute(t, s, f, "0xalice", "3")

	w := &fund.Withdrawal{
		ID:        id.NewWithdrawalID(),
		FundID:    f.ID,
		Owner:     f.Owner,
		Strategy:  fund.StrategyCopyThenClear,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	err := s.WithTx(ctx, f.ID, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.ContributorCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		second, err := tx.ContributorAt(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "0xbob", second)

		balance, err := clearAll(ctx, tx)
		if err != nil {
			return err
		}
		w.Amount = balance
		w.Contributors = 3
		return tx.RecordWithdrawal(ctx, w)
	})
	require.NoError(t, err)
	assert.Equal(t, "6", w.Amount.Ether())

	for _, who := range []string{"0xalice", "0xbob"} {
		c, err := s.Contribution(ctx, f.ID, who)
		require.NoError(t, err)
		assert.True(t, c.IsZero(), "%s still has %s", who, c)
	}
	n, err := s.ContributorCount(ctx, f.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	balance, err := s.Balance(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	ws, err := s.ListWithdrawals(ctx, f.ID, fund.ListOpts{})
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, w.ID, ws[0].ID)
	assert.Equal(t, "6", ws[0].Amount.Ether())
	assert.Equal(t, fund.StrategyCopyThenClear, ws[0].Strategy)
	assert.Equal(t, 3, ws[0].Contributors)

	// the order restarts after a withdrawal
	again := contribute(t, s, f, "0xcarol", "1")
	assert.Equal(t, 0, again.Index)
}

func testTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := newFund(t, s)
	contribute(t, s, f, "0xalice", "1")
	contribute(t, s, f, "0xbob", "2")

	boom := errors.New("transfer refused")
	err := s.WithTx(ctx, f.ID, func(ctx context.Context, tx store.Tx) error {
		if _, err := clearAll(ctx, tx); err != nil {
			return err
		}
		if err := tx.RecordWithdrawal(ctx, &fund.Withdrawal{
			ID:        id.NewWithdrawalID(),
			FundID:    f.ID,
			Owner:     f.Owner,
			Strategy:  fund.StrategyReadThrough,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	alice, err := s.Contribution(ctx, f.ID, "0xalice")
	require.NoError(t, err)
	assert.Equal(t, "1", alice.Ether())
	n, err := s.ContributorCount(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	balance, err := s.Balance(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "3", balance.Ether())
	ws, err := s.ListWithdrawals(ctx, f.ID, fund.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, ws)
}

func testFundsAreIsolated(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := newFund(t, s)
	b := newFund(t, s)
	contribute(t, s, a, "0xalice", "1")

	n, err := s.ContributorCount(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	balance, err := s.Balance(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func testPing(t *testing.T, s store.Store) {
	assert.NoError(t, s.Ping(context.Background()))
}
