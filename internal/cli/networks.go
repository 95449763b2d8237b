package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/text/message"

	"github.com/xraph/fundme/config"
)

// NetworkView is one row of `networks`.
type NetworkView struct {
	Name               string `json:"name"`
	ChainID            int64  `json:"chain_id"`
	Development        bool   `json:"development"`
	BlockConfirmations int    `json:"block_confirmations"`
	PriceFeed          string `json:"price_feed,omitempty"`
	Default            bool   `json:"default"`
}

// NewNetworksCommand creates the networks command.
func NewNetworksCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "networks",
		Short:         "List the configured networks",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			views := networkViews(rt.networks)
			return newFormatter(rootOpts, cmd.OutOrStdout()).Result(views, func(_ *message.Printer, w io.Writer) {
				renderNetworks(w, views)
			})
		},
	}
}

func networkViews(n config.Networks) []NetworkView {
	views := make([]NetworkView, 0, len(n.Networks))
	for _, name := range n.Names() {
		net, _ := n.Get(name)
		v := NetworkView{
			Name:               name,
			ChainID:            net.ChainID,
			Development:        n.IsDevelopment(name),
			BlockConfirmations: net.BlockConfirmations,
			PriceFeed:          net.PriceFeed,
			Default:            name == n.Default,
		}
		views = append(views, v)
	}
	return views
}

func renderNetworks(w io.Writer, views []NetworkView) {
	const row = "%-2s%-11s %-9s %-4s %-13s %s\n"
	fmt.Fprintf(w, row, "", "NAME", "CHAIN ID", "DEV", "CONFIRMATIONS", "PRICE FEED")
	for _, v := range views {
		mark, dev, feed := "", "no", v.PriceFeed
		if v.Default {
			mark = "*"
		}
		if v.Development {
			dev = "yes"
			feed = "mock"
		}
		fmt.Fprintf(w, row, mark, v.Name, fmt.Sprint(v.ChainID), dev, fmt.Sprint(v.BlockConfirmations), feed)
	}
}
