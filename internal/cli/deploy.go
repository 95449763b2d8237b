package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/text/message"

	"github.com/xraph/fundme/types"
)

// DeployResult is what `deploy` reports.
type DeployResult struct {
	FundID     string `json:"fund_id"`
	Network    string `json:"network"`
	ChainID    int64  `json:"chain_id"`
	Owner      string `json:"owner"`
	PriceFeed  string `json:"price_feed"`
	Mock       bool   `json:"mock"`
	MinimumUSD string `json:"minimum_usd"`
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		owner   string
		minimum string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a new fund on the selected network",
		Long: `Deploy a new fund owned by --owner (or FUNDME_OWNER).

Development networks bind the mock price feed; other networks bind the
price feed address from the network table. The fund ID is written to the
deployments file so later commands attach to it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, rootOpts, owner, minimum)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner identity (defaults to FUNDME_OWNER)")
	cmd.Flags().StringVar(&minimum, "minimum-usd", "", "minimum contribution in USD (defaults to FUNDME_MINIMUM_USD)")

	return cmd
}

func runDeploy(cmd *cobra.Command, opts *RootOptions, owner, minimum string) error {
	rt, err := newRuntime(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	owner, err = rt.caller(owner)
	if err != nil {
		return err
	}

	minUSD := types.Dollars(rt.env.MinimumUSD)
	if minimum != "" {
		if minUSD, err = types.ParseUSD(minimum); err != nil {
			return WrapExitError(ExitCommandError, "--minimum-usd", err)
		}
	}

	ctx, cancel := withTimeout(cmd.Context())
	defer cancel()

	s, err := rt.deploy(ctx, owner, minUSD)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	l := s.ledger
	res := DeployResult{
		FundID:     l.FundID().String(),
		Network:    rt.network.Name,
		ChainID:    rt.network.ChainID,
		Owner:      l.Owner(),
		PriceFeed:  l.PriceFeed(),
		Mock:       rt.development(),
		MinimumUSD: l.MinimumUSD().Dollars(),
	}

	return newFormatter(opts, cmd.OutOrStdout()).Result(res, func(p *message.Printer, w io.Writer) {
		if res.Mock {
			fmt.Fprintf(w, "Local network detected, using mock price feed %s\n", res.PriceFeed)
		}
		fmt.Fprintf(w, "Deployed FundMe %s on %s (chain %d)\n", res.FundID, res.Network, res.ChainID)
		fmt.Fprintf(w, "  owner:      %s\n", res.Owner)
		fmt.Fprintf(w, "  price feed: %s\n", res.PriceFeed)
		fmt.Fprintf(w, "  minimum:    %s\n", money(p, l.MinimumUSD()))
	})
}
