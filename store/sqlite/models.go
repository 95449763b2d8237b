package sqlite

import (
	"fmt"
	"time"

	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/types"
)

type fundModel struct {
	ID         string
	Owner      string
	PriceFeed  string
	MinimumUSD string
	Network    string
	CreatedAt  string
}

func (m *fundModel) toFund() (*fund.Fund, error) {
	fid, err := id.ParseFundID(m.ID)
	if err != nil {
		return nil, err
	}
	minimum, err := types.ParseUSDUnits(m.MinimumUSD)
	if err != nil {
		return nil, err
	}
	created, err := parseTime(m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &fund.Fund{
		ID:         fid,
		Owner:      m.Owner,
		PriceFeed:  m.PriceFeed,
		MinimumUSD: minimum,
		Network:    m.Network,
		CreatedAt:  created,
	}, nil
}

type contributionModel struct {
	ID          string
	FundID      string
	Contributor string
	Amount      string
	USDValue    string
	Price       string
	Position    int
	Fallback    bool
	CreatedAt   string
}

func (m *contributionModel) toContribution() (*fund.Contribution, error) {
	cid, err := id.ParseContributionID(m.ID)
	if err != nil {
		return nil, err
	}
	fid, err := id.ParseFundID(m.FundID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseWei(m.Amount)
	if err != nil {
		return nil, err
	}
	usd, err := types.ParseUSDUnits(m.USDValue)
	if err != nil {
		return nil, err
	}
	price, err := types.ParseUSDUnits(m.Price)
	if err != nil {
		return nil, err
	}
	created, err := parseTime(m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &fund.Contribution{
		ID:          cid,
		FundID:      fid,
		Contributor: m.Contributor,
		Amount:      amount,
		USDValue:    usd,
		Price:       price,
		Index:       m.Position,
		Fallback:    m.Fallback,
		CreatedAt:   created,
	}, nil
}

type withdrawalModel struct {
	ID            string
	FundID        string
	Owner         string
	Amount        string
	Strategy      string
	Contributors  int
	StorageReads  int
	StorageWrites int
	CreatedAt     string
}

func (m *withdrawalModel) toWithdrawal() (*fund.Withdrawal, error) {
	wid, err := id.ParseWithdrawalID(m.ID)
	if err != nil {
		return nil, err
	}
	fid, err := id.ParseFundID(m.FundID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseWei(m.Amount)
	if err != nil {
		return nil, err
	}
	created, err := parseTime(m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &fund.Withdrawal{
		ID:            wid,
		FundID:        fid,
		Owner:         m.Owner,
		Amount:        amount,
		Strategy:      fund.Strategy(m.Strategy),
		Contributors:  m.Contributors,
		StorageReads:  m.StorageReads,
		StorageWrites: m.StorageWrites,
		CreatedAt:     created,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("fundme/sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}
