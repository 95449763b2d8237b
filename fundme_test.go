package fundme_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/payout"
	paymem "github.com/xraph/fundme/payout/memory"
	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/store/memory"
	"github.com/xraph/fundme/types"
)

const owner = "0xowner"

type harness struct {
	ledger *fundme.Ledger
	store  *memory.Store
	bank   *paymem.Bank
	feed   *oracle.Mock
}

func deploy(t *testing.T, opts ...fundme.Option) *harness {
	t.Helper()
	h := &harness{
		store: memory.New(),
		bank:  paymem.New(),
		feed:  oracle.NewDefaultMock(),
	}
	l, err := fundme.Deploy(context.Background(), h.store, h.bank, fundme.Config{
		Owner:     owner,
		PriceFeed: h.feed,
		Network:   "hardhat",
	}, opts...)
	require.NoError(t, err)
	h.ledger = l
	return h
}

func (h *harness) contribute(t *testing.T, who, ether string) *fund.Contribution {
	t.Helper()
	c, err := h.ledger.Contribute(context.Background(), who, types.MustEther(ether))
	require.NoError(t, err)
	return c
}

func TestDeploy(t *testing.T) {
	h := deploy(t)

	assert.Equal(t, owner, h.ledger.Owner())
	assert.Equal(t, oracle.DefaultMockAddress, h.ledger.PriceFeed())
	assert.Equal(t, "50", h.ledger.MinimumUSD().Dollars())
	assert.Equal(t, id.PrefixFund, h.ledger.FundID().Prefix())

	stored, err := h.store.GetFund(context.Background(), h.ledger.FundID())
	require.NoError(t, err)
	assert.Equal(t, owner, stored.Owner)
}

func TestDeployMinimum(t *testing.T) {
	ctx := context.Background()
	feed := oracle.NewDefaultMock()

	tests := []struct {
		name    string
		minimum types.USD
		want    string
	}{
		{"zero takes the default", types.USD{}, "50"},
		{"explicit", types.Dollars(10), "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := fundme.Deploy(ctx, memory.New(), paymem.New(), fundme.Config{
				Owner:      owner,
				PriceFeed:  feed,
				MinimumUSD: tt.minimum,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, l.MinimumUSD().Dollars())
			assert.True(t, l.MinimumUSD().IsPositive())

			_, err = l.Contribute(ctx, "0xA", types.Wei{})
			assert.ErrorIs(t, err, fundme.ErrInsufficientContribution)
		})
	}
}

func TestDeployValidation(t *testing.T) {
	ctx := context.Background()
	feed := oracle.NewDefaultMock()

	tests := []struct {
		name string
		bank payout.Bank
		cfg  fundme.Config
	}{
		{"missing owner", paymem.New(), fundme.Config{PriceFeed: feed}},
		{"missing feed", paymem.New(), fundme.Config{Owner: owner}},
		{"missing bank", nil, fundme.Config{Owner: owner, PriceFeed: feed}},
		{"negative minimum", paymem.New(), fundme.Config{Owner: owner, PriceFeed: feed, MinimumUSD: types.Dollars(-1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fundme.Deploy(ctx, memory.New(), tt.bank, tt.cfg)
			assert.ErrorIs(t, err, fundme.ErrInvalidInput)
			var ve fundme.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestContributeScenario(t *testing.T) {
	ctx := context.Background()
	h := deploy(t)

	c, err := h.ledger.Contribute(ctx, "0xA", types.MustEther("0.05"))
	require.NoError(t, err)
	assert.Equal(t, "100", c.USDValue.Dollars())
	assert.Equal(t, "2000", c.Price.Dollars())
	assert.Equal(t, 0, c.Index)
	assert.False(t, c.Fallback)

	got, err := h.ledger.Contribution(ctx, "0xA")
	require.NoError(t, err)
	assert.Equal(t, "50000000000000000", got.String())

	first, err := h.ledger.ContributorAt(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "0xA", first)

	_, err = h.ledger.Contribute(ctx, "0xB", types.MustEther("0.01"))
	assert.ErrorIs(t, err, fundme.ErrInsufficientContribution)
	assert.True(t, fundme.IsRejection(err))

	b, err := h.ledger.Contribution(ctx, "0xB")
	require.NoError(t, err)
	assert.True(t, b.IsZero())
	n, err := h.ledger.ContributorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	balance, err := h.ledger.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.05", balance.Ether())
}

func TestContributeThreshold(t *testing.T) {
	tests := []struct {
		name   string
		ether  string
		accept bool
	}{
		{"exactly the minimum", "0.025", true},
		{"one wei below", "0.024999999999999999", false},
		{"zero", "0", false},
		{"well above", "10", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := deploy(t)
			_, err := h.ledger.Contribute(context.Background(), "0xA", types.MustEther(tt.ether))
			if tt.accept {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, fundme.ErrInsufficientContribution)
			}
		})
	}
}

func TestContributeFollowsPrice(t *testing.T) {
	ctx := context.Background()
	h := deploy(t)

	// at 1000 USD, 0.05 ether is exactly 50 USD
	h.feed.UpdateAnswer(big.NewInt(1000_00000000))
	_, err := h.ledger.Contribute(ctx, "0xA", types.MustEther("0.05"))
	require.NoError(t, err)

	h.feed.UpdateAnswer(big.NewInt(999_00000000))
	_, err = h.ledger.Contribute(ctx, "0xA", types.MustEther("0.05"))
	assert.ErrorIs(t, err, fundme.ErrInsufficientContribution)
}

func TestContributeInvalidInput(t *testing.T) {
	ctx := context.Background()
	h := deploy(t)

	_, err := h.ledger.Contribute(ctx, "", types.MustEther("1"))
	assert.ErrorIs(t, err, fundme.ErrInvalidInput)
	_, err = h.ledger.Contribute(ctx, "0xA", types.NewWei(-1))
	assert.ErrorIs(t, err, fundme.ErrInvalidInput)
}

func TestContributeAccumulates(t *testing.T) {
	ctx := context.Background()
	h := deploy(t)

	h.contribute(t, "0xA", "0.05")
	h.contribute(t, "0xB", "1")
	c := h.contribute(t, "0xA", "0.1")
	assert.Equal(t, 2, c.Index)

	a, err := h.ledger.Contribution(ctx, "0xA")
	require.NoError(t, err)
	assert.Equal(t, "0.15", a.Ether())

	order, err := h.ledger.Contributors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xA", "0xB", "0xA"}, order)

	balance, err := h.ledger.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.15", balance.Ether())

	history, err := h.ledger.Contributions(ctx, fund.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestOracleUnavailable(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *oracle.Mock)
	}{
		{"feed error", func(m *oracle.Mock) { m.SetError(errors.New("rpc timeout")) }},
		{"zero answer", func(m *oracle.Mock) { m.UpdateAnswer(big.NewInt(0)) }},
		{"negative answer", func(m *oracle.Mock) { m.UpdateAnswer(big.NewInt(-2000_00000000)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := deploy(t)
			tt.setup(h.feed)

			_, err := h.ledger.Contribute(ctx, "0xA", types.MustEther("1"))
			assert.ErrorIs(t, err, fundme.ErrOracleUnavailable)
			assert.True(t, fundme.IsRetryable(err))

			n, err := h.ledger.ContributorCount(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)

			_, err = h.ledger.USDValue(ctx, types.MustEther("1"))
			assert.ErrorIs(t, err, fundme.ErrOracleUnavailable)
		})
	}
}

func TestReceiveAndFallbackRouteToContribute(t *testing.T) {
	ctx := context.Background()
	h := deploy(t)

	c, err := h.ledger.Receive(ctx, "0xA", types.MustEther("0.05"))
	require.NoError(t, err)
	assert.True(t, c.Fallback)

	c, err = h.ledger.Fallback(ctx, "0xB", "doesNotExist()", types.MustEther("0.05"))
	require.NoError(t, err)
	assert.True(t, c.Fallback)
	assert.Equal(t, 1, c.Index)

	_, err = h.ledger.Fallback(ctx, "0xC", "doesNotExist()", types.MustEther("0.01"))
	assert.ErrorIs(t, err, fundme.ErrInsufficientContribution)
	_, err = h.ledger.Receive(ctx, "0xC", types.Wei{})
	assert.ErrorIs(t, err, fundme.ErrInsufficientContribution)

	b, err := h.ledger.Contribution(ctx, "0xB")
	require.NoError(t, err)
	assert.Equal(t, "0.05", b.Ether())
}

func TestContributorAtOutOfRange(t *testing.T) {
	ctx := context.Background()
	h := deploy(t)
	h.contribute(t, "0xA", "1")

	for _, i := range []int{-1, 1, 100} {
		_, err := h.ledger.ContributorAt(ctx, i)
		assert.ErrorIs(t, err, fundme.ErrIndexOutOfRange, "index %d", i)
	}
}

func assertCleared(t *testing.T, h *harness, contributors ...string) {
	t.Helper()
	ctx := context.Background()
	for _, who := range contributors {
		c, err := h.ledger.Contribution(ctx, who)
		require.NoError(t, err)
		assert.True(t, c.IsZero(), "%s still holds %s", who, c)
	}
	n, err := h.ledger.ContributorCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	balance, err := h.ledger.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	_, err = h.ledger.ContributorAt(ctx, 0)
	assert.ErrorIs(t, err, fundme.ErrIndexOutOfRange)
}

func TestWithdrawStrategies(t *testing.T) {
	withdrawals := map[string]func(l *fundme.Ledger, ctx context.Context, caller string) (*fund.Withdrawal, error){
		"Withdraw":      (*fundme.Ledger).Withdraw,
		"WithdrawCheap": (*fundme.Ledger).WithdrawCheap,
	}

	for name, withdraw := range withdrawals {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := deploy(t)
			h.contribute(t, "0xA", "1")
			h.contribute(t, "0xB", "2")
			h.contribute(t, "0xA", "0.5")

			w, err := withdraw(h.ledger, ctx, owner)
			require.NoError(t, err)
			assert.Equal(t, "3.5", w.Amount.Ether())
			assert.Equal(t, 3, w.Contributors)
			assert.Equal(t, owner, w.Owner)
			assert.Equal(t, "3.5", h.bank.BalanceOf(owner).Ether())
			assertCleared(t, h, "0xA", "0xB")

			history, err := h.ledger.Withdrawals(ctx, fund.ListOpts{})
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.Equal(t, w.ID, history[0].ID)

			// the fund keeps working after a withdrawal
			c := h.contribute(t, "0xC", "1")
			assert.Equal(t, 0, c.Index)
		})
	}
}

func TestWithdrawStorageAccess(t *testing.T) {
	const n = 5
	run := func(cheap bool) *fund.Withdrawal {
		h := deploy(t)
		for i := range n {
			h.contribute(t, fmt.Sprintf("0x%d", i%2), "1")
		}
		var (
			w   *fund.Withdrawal
			err error
		)
		if cheap {
			w, err = h.ledger.WithdrawCheap(context.Background(), owner)
		} else {
			w, err = h.ledger.Withdraw(context.Background(), owner)
		}
		require.NoError(t, err)
		return w
	}

	readThrough := run(false)
	cheap := run(true)

	assert.Equal(t, fund.StrategyReadThrough, readThrough.Strategy)
	assert.Equal(t, fund.StrategyCopyThenClear, cheap.Strategy)

	// length re-read every iteration plus once to stop, each entry, balance
	assert.Equal(t, 2*n+2, readThrough.StorageReads)
	// length and entries once, balance
	assert.Equal(t, n+2, cheap.StorageReads)
	assert.Less(t, cheap.StorageReads, readThrough.StorageReads)

	// a reset per entry, one clear, one drain
	assert.Equal(t, n+2, readThrough.StorageWrites)
	assert.Equal(t, readThrough.StorageWrites, cheap.StorageWrites)
	assert.True(t, readThrough.Amount.Equal(cheap.Amount))
}

func TestWithdrawUnauthorized(t *testing.T) {
	ctx := context.Background()
	h := deploy(t)
	h.contribute(t, "0xA", "1")

	for _, withdraw := range []func(context.Context, string) (*fund.Withdrawal, error){h.ledger.Withdraw, h.ledger.WithdrawCheap} {
		_, err := withdraw(ctx, "0xA")
		assert.ErrorIs(t, err, fundme.ErrUnauthorized)
	}

	a, err := h.ledger.Contribution(ctx, "0xA")
	require.NoError(t, err)
	assert.Equal(t, "1", a.Ether())
	balance, err := h.ledger.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", balance.Ether())
	assert.Empty(t, h.bank.Transfers())
}

func TestWithdrawEmptyFund(t *testing.T) {
	h := deploy(t)
	w, err := h.ledger.Withdraw(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, w.Amount.IsZero())
	assert.Zero(t, w.Contributors)
}

func TestWithdrawTransferFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	h := deploy(t)
	h.contribute(t, "0xA", "1")
	h.contribute(t, "0xA", "2")
	h.bank.Refuse(owner)

	_, err := h.ledger.WithdrawCheap(ctx, owner)
	assert.ErrorIs(t, err, fundme.ErrTransferFailed)
	assert.ErrorIs(t, err, payout.ErrRecipientRefused)

	a, err := h.ledger.Contribution(ctx, "0xA")
	require.NoError(t, err)
	assert.Equal(t, "3", a.Ether())
	n, err := h.ledger.ContributorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	balance, err := h.ledger.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3", balance.Ether())
	history, err := h.ledger.Withdrawals(ctx, fund.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, history)

	h.bank.Accept(owner)
	w, err := h.ledger.Withdraw(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "3", w.Amount.Ether())
}

// commitFailingStore discards every transaction after its body succeeds.
type commitFailingStore struct {
	store.Store
	err error
}

func (s *commitFailingStore) WithTx(ctx context.Context, fundID id.FundID, fn func(context.Context, store.Tx) error) error {
	return s.Store.WithTx(ctx, fundID, func(ctx context.Context, tx store.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return s.err
	})
}

func TestWithdrawCommitFailureReversesTransfer(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	bank := paymem.New()
	commitErr := errors.New("commit failed")

	l, err := fundme.Deploy(ctx, &commitFailingStore{Store: mem, err: commitErr}, bank, fundme.Config{
		Owner:     owner,
		PriceFeed: oracle.NewDefaultMock(),
	})
	require.NoError(t, err)
	_, err = l.Contribute(ctx, "0xA", types.MustEther("1"))
	require.NoError(t, err)

	_, err = l.Withdraw(ctx, owner)
	assert.ErrorIs(t, err, commitErr)
	assert.True(t, bank.BalanceOf(owner).IsZero())
	assert.Len(t, bank.Transfers(), 2)

	balance, err := l.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", balance.Ether())
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	h := deploy(t)
	h.contribute(t, "0xA", "1")

	again, err := fundme.Load(ctx, h.store, h.bank, h.ledger.FundID(), h.feed)
	require.NoError(t, err)
	assert.Equal(t, owner, again.Owner())
	balance, err := again.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", balance.Ether())

	other := oracle.NewMock("0xother", 8, oracle.DefaultInitialAnswer())
	_, err = fundme.Load(ctx, h.store, h.bank, h.ledger.FundID(), other)
	assert.ErrorIs(t, err, fundme.ErrPriceFeedMismatch)

	_, err = fundme.Load(ctx, h.store, h.bank, id.NewFundID(), h.feed)
	assert.ErrorIs(t, err, fundme.ErrFundNotFound)
	assert.True(t, fundme.IsNotFound(err))
}

func TestConcurrentContributions(t *testing.T) {
	ctx := context.Background()
	h := deploy(t)

	const workers = 20
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.ledger.Contribute(ctx, fmt.Sprintf("0x%02d", i), types.MustEther("0.1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := h.ledger.ContributorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, workers, n)
	balance, err := h.ledger.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", balance.Ether())
}

type hookRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *hookRecorder) Name() string { return "recorder" }

func (r *hookRecorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *hookRecorder) OnFundDeployed(context.Context, *fund.Fund) error {
	r.add("deployed")
	return nil
}

func (r *hookRecorder) OnContributed(_ context.Context, c *fund.Contribution) error {
	r.add("contributed " + c.Contributor)
	return nil
}

func (r *hookRecorder) OnContributionRejected(_ context.Context, _ id.FundID, who string, _ types.Wei, reason error) error {
	r.add("rejected " + who)
	if !errors.Is(reason, fundme.ErrInsufficientContribution) {
		return fmt.Errorf("unexpected reason %w", reason)
	}
	return nil
}

func (r *hookRecorder) OnWithdrawn(_ context.Context, w *fund.Withdrawal) error {
	r.add("withdrawn " + w.Amount.Ether())
	return nil
}

func (r *hookRecorder) OnWithdrawalFailed(_ context.Context, _ id.FundID, caller string, _ fund.Strategy, _ error) error {
	r.add("withdrawal failed " + caller)
	return nil
}

func (r *hookRecorder) OnPriceRead(context.Context, string, oracle.Price, time.Duration, error) error {
	r.add("price")
	return nil
}

func TestPluginHooks(t *testing.T) {
	ctx := context.Background()
	rec := &hookRecorder{}
	h := deploy(t, fundme.WithPlugin(rec))

	h.contribute(t, "0xA", "1")
	_, _ = h.ledger.Contribute(ctx, "0xB", types.MustEther("0.001"))
	_, _ = h.ledger.Withdraw(ctx, "0xB")
	_, err := h.ledger.Withdraw(ctx, owner)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"deployed",
		"price", "contributed 0xA",
		"price", "rejected 0xB",
		"withdrawal failed 0xB",
		"withdrawn 1",
	}, rec.events)
	assert.Equal(t, 1, h.ledger.Plugins().Count())
	assert.NoError(t, h.ledger.Close(ctx))
}
