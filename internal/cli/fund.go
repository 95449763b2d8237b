package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/text/message"

	"github.com/xraph/fundme/types"
)

// NewFundCommand creates the fund command. Without flags it sends 1 ether
// from the owner, the way the deploy-then-fund workflow expects.
func NewFundCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		value string
		wei   string
		from  string
	)

	cmd := &cobra.Command{
		Use:           "fund",
		Short:         "Contribute to the deployed fund",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseValue(value, wei, cmd.Flags().Changed("wei"))
			if err != nil {
				return err
			}
			return runFund(cmd, rootOpts, from, amount)
		},
	}

	cmd.Flags().StringVar(&value, "value", "1", "amount in ether")
	cmd.Flags().StringVar(&wei, "wei", "", "amount in wei (overrides --value)")
	cmd.Flags().StringVar(&from, "from", "", "contributor identity (defaults to FUNDME_OWNER)")

	return cmd
}

func parseValue(value, wei string, useWei bool) (types.Wei, error) {
	if useWei {
		w, err := types.ParseWei(wei)
		if err != nil {
			return types.Wei{}, WrapExitError(ExitCommandError, "--wei", err)
		}
		return w, nil
	}
	w, err := types.ParseEther(value)
	if err != nil {
		return types.Wei{}, WrapExitError(ExitCommandError, "--value", err)
	}
	return w, nil
}

func runFund(cmd *cobra.Command, opts *RootOptions, from string, amount types.Wei) error {
	rt, err := newRuntime(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	from, err = rt.caller(from)
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

	out := newFormatter(opts, cmd.OutOrStdout())
	if out.Format == "text" {
		fmt.Fprintln(out.Writer, "Funding contract")
	}

	c, err := s.ledger.Contribute(ctx, from, amount)
	if err != nil {
		return ledgerError("fund", err)
	}

	return out.Result(c, func(p *message.Printer, w io.Writer) {
		fmt.Fprintf(w, "Funded! %s ETH (%s) from %s\n", c.Amount.Ether(), money(p, c.USDValue), c.Contributor)
	})
}
