// Package memory is an in-process store. Withdrawal transactions snapshot
// the fund's ledger state and restore it when the transaction fails.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/types"
)

type Store struct {
	mu     sync.RWMutex
	funds  map[string]*state
	closed bool
}

// state is everything recorded for one fund.
type state struct {
	fund          fund.Fund
	totals        map[string]types.Wei
	order         []string
	balance       types.Wei
	contributions []*fund.Contribution
	withdrawals   []*fund.Withdrawal
}

func (st *state) clone() *state {
	return &state{
		fund:          st.fund,
		totals:        maps.Clone(st.totals),
		order:         slices.Clone(st.order),
		balance:       st.balance,
		contributions: slices.Clone(st.contributions),
		withdrawals:   slices.Clone(st.withdrawals),
	}
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{funds: make(map[string]*state)}
}

// lookup returns the fund's state. Callers hold s.mu.
func (s *Store) lookup(fundID id.FundID) (*state, error) {
	if s.closed {
		return nil, fundme.ErrStoreClosed
	}
	st, ok := s.funds[fundID.String()]
	if !ok {
		return nil, fundme.ErrFundNotFound
	}
	return st, nil
}

// ──────────────────────────────────────────────────
// Fund methods
// ──────────────────────────────────────────────────

func (s *Store) CreateFund(_ context.Context, f *fund.Fund) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fundme.ErrStoreClosed
	}
	if _, exists := s.funds[f.ID.String()]; exists {
		return fundme.ErrAlreadyExists
	}
	s.funds[f.ID.String()] = &state{fund: *f, totals: make(map[string]types.Wei)}
	return nil
}

func (s *Store) GetFund(_ context.Context, fundID id.FundID) (*fund.Fund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.lookup(fundID)
	if err != nil {
		return nil, err
	}
	f := st.fund
	return &f, nil
}

// ──────────────────────────────────────────────────
// Ledger methods
// ──────────────────────────────────────────────────

func (s *Store) RecordContribution(_ context.Context, c *fund.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.lookup(c.FundID)
	if err != nil {
		return err
	}
	c.Index = len(st.order)
	st.totals[c.Contributor] = st.totals[c.Contributor].Add(c.Amount)
	st.order = append(st.order, c.Contributor)
	st.balance = st.balance.Add(c.Amount)
	receipt := *c
	st.contributions = append(st.contributions, &receipt)
	return nil
}

func (s *Store) Contribution(_ context.Context, fundID id.FundID, contributor string) (types.Wei, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.lookup(fundID)
	if err != nil {
		return types.Wei{}, err
	}
	return st.totals[contributor], nil
}

func (s *Store) ContributorAt(_ context.Context, fundID id.FundID, index int) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.lookup(fundID)
	if err != nil {
		return "", err
	}
	return at(st.order, index)
}

func (s *Store) ContributorCount(_ context.Context, fundID id.FundID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.lookup(fundID)
	if err != nil {
		return 0, err
	}
	return len(st.order), nil
}

func (s *Store) Balance(_ context.Context, fundID id.FundID) (types.Wei, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.lookup(fundID)
	if err != nil {
		return types.Wei{}, err
	}
	return st.balance, nil
}

// ──────────────────────────────────────────────────
// Receipt methods
// ──────────────────────────────────────────────────

func (s *Store) ListContributions(_ context.Context, fundID id.FundID, opts fund.ListOpts) ([]*fund.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.lookup(fundID)
	if err != nil {
		return nil, err
	}
	return page(st.contributions, opts), nil
}

func (s *Store) ListWithdrawals(_ context.Context, fundID id.FundID, opts fund.ListOpts) ([]*fund.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.lookup(fundID)
	if err != nil {
		return nil, err
	}
	return page(st.withdrawals, opts), nil
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

func (s *Store) WithTx(ctx context.Context, fundID id.FundID, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.lookup(fundID)
	if err != nil {
		return err
	}
	saved := st.clone()
	if err := fn(ctx, &tx{st: st}); err != nil {
		s.funds[fundID.String()] = saved
		return err
	}
	return nil
}

// tx operates on live state while the store lock is held.
type tx struct {
	st *state
}

func (t *tx) ContributorCount(context.Context) (int, error) { return len(t.st.order), nil }

func (t *tx) ContributorAt(_ context.Context, index int) (string, error) {
	return at(t.st.order, index)
}

func (t *tx) Contributors(context.Context) ([]string, error) {
	return slices.Clone(t.st.order), nil
}

func (t *tx) ResetContribution(_ context.Context, contributor string) error {
	if _, ok := t.st.totals[contributor]; ok {
		t.st.totals[contributor] = types.Wei{}
	}
	return nil
}

func (t *tx) ClearContributors(context.Context) error {
	t.st.order = nil
	return nil
}

func (t *tx) Balance(context.Context) (types.Wei, error) { return t.st.balance, nil }

func (t *tx) DrainBalance(context.Context) error {
	t.st.balance = types.Wei{}
	return nil
}

func (t *tx) RecordWithdrawal(_ context.Context, w *fund.Withdrawal) error {
	receipt := *w
	t.st.withdrawals = append(t.st.withdrawals, &receipt)
	return nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fundme.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func at(order []string, index int) (string, error) {
	if index < 0 || index >= len(order) {
		return "", fmt.Errorf("%w: %d of %d", fundme.ErrIndexOutOfRange, index, len(order))
	}
	return order[index], nil
}

func page[T any](items []*T, opts fund.ListOpts) []*T {
	start := min(max(opts.Offset, 0), len(items))
	end := len(items)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	out := make([]*T, 0, end-start)
	for _, item := range items[start:end] {
		cp := *item
		out = append(out, &cp)
	}
	return out
}
