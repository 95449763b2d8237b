package fundme

import (
	"context"

	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/types"
)

// clearContributors zeroes every contributor's total and empties the order.
// Both strategies leave identical state; they differ only in how often the
// order is read from storage. It returns the number of order entries.
func clearContributors(ctx context.Context, tx store.Tx, strategy fund.Strategy) (int, error) {
	if strategy == fund.StrategyCopyThenClear {
		contributors, err := tx.Contributors(ctx)
		if err != nil {
			return 0, err
		}
		for _, c := range contributors {
			if err := tx.ResetContribution(ctx, c); err != nil {
				return 0, err
			}
		}
		return len(contributors), tx.ClearContributors(ctx)
	}

	cleared := 0
	for i := 0; ; i++ {
		n, err := tx.ContributorCount(ctx)
		if err != nil {
			return 0, err
		}
		if i >= n {
			break
		}
		c, err := tx.ContributorAt(ctx, i)
		if err != nil {
			return 0, err
		}
		if err := tx.ResetContribution(ctx, c); err != nil {
			return 0, err
		}
		cleared++
	}
	return cleared, tx.ClearContributors(ctx)
}

// meteredTx counts storage accesses. Reading the whole order costs one
// access for its length plus one per entry.
type meteredTx struct {
	store.Tx
	reads  int
	writes int
}

func (m *meteredTx) ContributorCount(ctx context.Context) (int, error) {
	m.reads++
	return m.Tx.ContributorCount(ctx)
}

func (m *meteredTx) ContributorAt(ctx context.Context, index int) (string, error) {
	m.reads++
	return m.Tx.ContributorAt(ctx, index)
}

func (m *meteredTx) Contributors(ctx context.Context) ([]string, error) {
	out, err := m.Tx.Contributors(ctx)
	m.reads += 1 + len(out)
	return out, err
}

func (m *meteredTx) ResetContribution(ctx context.Context, contributor string) error {
	m.writes++
	return m.Tx.ResetContribution(ctx, contributor)
}

func (m *meteredTx) ClearContributors(ctx context.Context) error {
	m.writes++
	return m.Tx.ClearContributors(ctx)
}

func (m *meteredTx) Balance(ctx context.Context) (types.Wei, error) {
	m.reads++
	return m.Tx.Balance(ctx)
}

func (m *meteredTx) DrainBalance(ctx context.Context) error {
	m.writes++
	return m.Tx.DrainBalance(ctx)
}
