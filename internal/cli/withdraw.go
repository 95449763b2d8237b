package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/text/message"

	"github.com/xraph/fundme/fund"
)

// NewWithdrawCommand creates the withdraw command.
func NewWithdrawCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		cheap bool
		from  string
	)

	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw the whole balance to the owner",
		Long: `Withdraw the whole balance to the owner and clear every contribution.

--cheap reads the contributor order once instead of on every iteration;
the outcome is identical.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithdraw(cmd, rootOpts, from, cheap)
		},
	}

	cmd.Flags().BoolVar(&cheap, "cheap", false, "use the copy-then-clear strategy")
	cmd.Flags().StringVar(&from, "from", "", "caller identity (defaults to FUNDME_OWNER)")

	return cmd
}

func runWithdraw(cmd *cobra.Command, opts *RootOptions, from string, cheap bool) error {
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

	var w *fund.Withdrawal
	if cheap {
		w, err = s.ledger.WithdrawCheap(ctx, from)
	} else {
		w, err = s.ledger.Withdraw(ctx, from)
	}
	if err != nil {
		return ledgerError("withdraw", err)
	}

	return newFormatter(opts, cmd.OutOrStdout()).Result(w, func(p *message.Printer, out io.Writer) {
		fmt.Fprintf(out, "Withdrew %s ETH to %s\n", w.Amount.Ether(), w.Owner)
		p.Fprintf(out, "  strategy: %s, %d contributors cleared, %d storage reads, %d writes\n",
			w.Strategy, w.Contributors, w.StorageReads, w.StorageWrites)
	})
}
