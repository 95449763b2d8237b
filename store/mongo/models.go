package mongo

import (
	"time"

	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/types"
)

// ==================== Fund models ====================

// fundModel carries the fund's configuration and its whole ledger state, so
// a withdrawal is a single guarded document update.
type fundModel struct {
	ID         string       `bson:"_id"`
	Owner      string       `bson:"owner"`
	PriceFeed  string       `bson:"price_feed"`
	MinimumUSD string       `bson:"minimum_usd"`
	Network    string       `bson:"network"`
	Balance    string       `bson:"balance"`
	Funders    []string     `bson:"funders"`
	Totals     []totalModel `bson:"totals"`
	Version    int64        `bson:"version"`
	Seq        int64        `bson:"seq"`
	CreatedAt  time.Time    `bson:"created_at"`
}

type totalModel struct {
	Contributor string `bson:"contributor"`
	Amount      string `bson:"amount"`
}

func toFundModel(f *fund.Fund) *fundModel {
	return &fundModel{
		ID:         f.ID.String(),
		Owner:      f.Owner,
		PriceFeed:  f.PriceFeed,
		MinimumUSD: f.MinimumUSD.String(),
		Network:    f.Network,
		Balance:    "0",
		Funders:    []string{},
		Totals:     []totalModel{},
		CreatedAt:  f.CreatedAt,
	}
}

func fromFundModel(m *fundModel) (*fund.Fund, error) {
	fid, err := id.ParseFundID(m.ID)
	if err != nil {
		return nil, err
	}
	minimum, err := types.ParseUSDUnits(m.MinimumUSD)
	if err != nil {
		return nil, err
	}
	return &fund.Fund{
		ID:         fid,
		Owner:      m.Owner,
		PriceFeed:  m.PriceFeed,
		MinimumUSD: minimum,
		Network:    m.Network,
		CreatedAt:  m.CreatedAt.UTC(),
	}, nil
}

// total returns the contributor's recorded total, zero when absent.
func (m *fundModel) total(contributor string) (types.Wei, error) {
	for _, t := range m.Totals {
		if t.Contributor == contributor {
			return types.ParseWei(t.Amount)
		}
	}
	return types.Wei{}, nil
}

func (m *fundModel) setTotal(contributor string, amount types.Wei) {
	for i := range m.Totals {
		if m.Totals[i].Contributor == contributor {
			m.Totals[i].Amount = amount.String()
			return
		}
	}
	m.Totals = append(m.Totals, totalModel{Contributor: contributor, Amount: amount.String()})
}

// ==================== Receipt models ====================

type contributionModel struct {
	ID          string    `bson:"_id"`
	FundID      string    `bson:"fund_id"`
	Seq         int64     `bson:"seq"`
	Contributor string    `bson:"contributor"`
	Amount      string    `bson:"amount"`
	USDValue    string    `bson:"usd_value"`
	Price       string    `bson:"price"`
	Position    int       `bson:"position"`
	Fallback    bool      `bson:"fallback"`
	CreatedAt   time.Time `bson:"created_at"`
}

func toContributionModel(c *fund.Contribution, seq int64) *contributionModel {
	return &contributionModel{
		ID:          c.ID.String(),
		FundID:      c.FundID.String(),
		Seq:         seq,
		Contributor: c.Contributor,
		Amount:      c.Amount.String(),
		USDValue:    c.USDValue.String(),
		Price:       c.Price.String(),
		Position:    c.Index,
		Fallback:    c.Fallback,
		CreatedAt:   c.CreatedAt,
	}
}

func fromContributionModel(m *contributionModel) (*fund.Contribution, error) {
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
	return &fund.Contribution{
		ID:          cid,
		FundID:      fid,
		Contributor: m.Contributor,
		Amount:      amount,
		USDValue:    usd,
		Price:       price,
		Index:       m.Position,
		Fallback:    m.Fallback,
		CreatedAt:   m.CreatedAt.UTC(),
	}, nil
}

type withdrawalModel struct {
	ID            string    `bson:"_id"`
	FundID        string    `bson:"fund_id"`
	Seq           int64     `bson:"seq"`
	Owner         string    `bson:"owner"`
	Amount        string    `bson:"amount"`
	Strategy      string    `bson:"strategy"`
	Contributors  int       `bson:"contributors"`
	StorageReads  int       `bson:"storage_reads"`
	StorageWrites int       `bson:"storage_writes"`
	CreatedAt     time.Time `bson:"created_at"`
}

func toWithdrawalModel(w *fund.Withdrawal, seq int64) *withdrawalModel {
	return &withdrawalModel{
		ID:            w.ID.String(),
		FundID:        w.FundID.String(),
		Seq:           seq,
		Owner:         w.Owner,
		Amount:        w.Amount.String(),
		Strategy:      string(w.Strategy),
		Contributors:  w.Contributors,
		StorageReads:  w.StorageReads,
		StorageWrites: w.StorageWrites,
		CreatedAt:     w.CreatedAt,
	}
}

func fromWithdrawalModel(m *withdrawalModel) (*fund.Withdrawal, error) {
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
	return &fund.Withdrawal{
		ID:            wid,
		FundID:        fid,
		Owner:         m.Owner,
		Amount:        amount,
		Strategy:      fund.Strategy(m.Strategy),
		Contributors:  m.Contributors,
		StorageReads:  m.StorageReads,
		StorageWrites: m.StorageWrites,
		CreatedAt:     m.CreatedAt.UTC(),
	}, nil
}
