package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/message"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/types"
)

// PriceResult is what `price` reports.
type PriceResult struct {
	Feed        string    `json:"feed"`
	Answer      string    `json:"answer"`
	Decimals    uint8     `json:"decimals"`
	RoundID     uint64    `json:"round_id"`
	UpdatedAt   time.Time `json:"updated_at"`
	USDPerEther string    `json:"usd_per_ether"`
}

// NewPriceCommand creates the price command. It reads the feed bound to the
// selected network without needing a deployment.
func NewPriceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "price",
		Short:         "Read the latest price from the network's price feed",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrice(cmd, rootOpts)
		},
	}
}

func runPrice(cmd *cobra.Command, opts *RootOptions) error {
	rt, err := newRuntime(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	feed, closeFeed, err := rt.buildFeed()
	if err != nil {
		return WrapExitError(ExitCommandError, "bind price feed", err)
	}
	defer closeFeed()

	ctx, cancel := withTimeout(cmd.Context())
	defer cancel()

	p, err := feed.LatestPrice(ctx)
	if err == nil {
		err = p.Validate()
	}
	if err != nil {
		return WrapExitError(ExitFailure, "read price", fmt.Errorf("%w: %w", fundme.ErrOracleUnavailable, err))
	}

	perEther := fundme.ConversionRate(types.MustEther("1"), p)
	res := PriceResult{
		Feed:        feed.Address(),
		Answer:      p.Answer.String(),
		Decimals:    p.Decimals,
		RoundID:     p.RoundID,
		UpdatedAt:   p.UpdatedAt,
		USDPerEther: perEther.Dollars(),
	}

	return newFormatter(opts, cmd.OutOrStdout()).Result(res, func(pr *message.Printer, w io.Writer) {
		fmt.Fprintf(w, "ETH/USD %s (feed %s, round %d)\n", p.String(), res.Feed, res.RoundID)
		fmt.Fprintf(w, "1 ETH = %s\n", money(pr, perEther))
	})
}
