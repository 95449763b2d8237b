package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/text/message"

	"github.com/xraph/fundme"
)

// StatusResult is what `status` reports.
type StatusResult struct {
	FundID       string          `json:"fund_id"`
	Network      string          `json:"network"`
	Owner        string          `json:"owner"`
	PriceFeed    string          `json:"price_feed"`
	MinimumUSD   string          `json:"minimum_usd"`
	Balance      string          `json:"balance"`
	OrderLength  int             `json:"order_length"`
	BalanceUSD   string          `json:"balance_usd,omitempty"`
	Contributors []FunderSummary `json:"contributors"`
}

// FunderSummary is one contributor and its current total.
type FunderSummary struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show the deployed fund, its balance and contributors",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, rootOpts)
		},
	}
}

func runStatus(cmd *cobra.Command, opts *RootOptions) error {
	rt, err := newRuntime(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(cmd.Context())
	defer cancel()

	s, err := rt.attach(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	res, err := collectStatus(ctx, s.ledger, rt.network.Name)
	if err != nil {
		return ledgerError("status", err)
	}

	return newFormatter(opts, cmd.OutOrStdout()).Result(res, func(p *message.Printer, w io.Writer) {
		fmt.Fprintf(w, "Fund %s on %s\n", res.FundID, res.Network)
		fmt.Fprintf(w, "  owner:      %s\n", res.Owner)
		fmt.Fprintf(w, "  price feed: %s\n", res.PriceFeed)
		fmt.Fprintf(w, "  minimum:    %s\n", money(p, s.ledger.MinimumUSD()))
		if res.BalanceUSD != "" {
			fmt.Fprintf(w, "  balance:    %s ETH (%s)\n", res.Balance, res.BalanceUSD)
		} else {
			fmt.Fprintf(w, "  balance:    %s ETH\n", res.Balance)
		}
		p.Fprintf(w, "  contributors: %d (%d order entries)\n", len(res.Contributors), res.OrderLength)
		for _, c := range res.Contributors {
			fmt.Fprintf(w, "    %s  %s ETH\n", c.Address, c.Amount)
		}
	})
}

func collectStatus(ctx context.Context, l *fundme.Ledger, network string) (*StatusResult, error) {
	balance, err := l.Balance(ctx)
	if err != nil {
		return nil, err
	}
	res := &StatusResult{
		FundID:       l.FundID().String(),
		Network:      network,
		Owner:        l.Owner(),
		PriceFeed:    l.PriceFeed(),
		MinimumUSD:   l.MinimumUSD().Dollars(),
		Balance:      balance.Ether(),
		Contributors: []FunderSummary{},
	}
	// The balance is still worth showing when the oracle is down.
	if usd, err := l.USDValue(ctx, balance); err == nil {
		res.BalanceUSD = money(message.NewPrinter(languageTag), usd)
	}

	contributors, err := l.Contributors(ctx)
	if err != nil {
		return nil, err
	}
	res.OrderLength = len(contributors)
	seen := make(map[string]bool, len(contributors))
	for _, addr := range contributors {
		if seen[addr] {
			continue
		}
		seen[addr] = true
		amount, err := l.Contribution(ctx, addr)
		if err != nil {
			return nil, err
		}
		res.Contributors = append(res.Contributors, FunderSummary{Address: addr, Amount: amount.Ether()})
	}
	return res, nil
}
