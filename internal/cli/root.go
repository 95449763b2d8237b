// Package cli implements the fundme command line: deploying a fund, funding
// and withdrawing against it, reading its state, and serving the HTTP API.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Network  string
	EnvFiles []string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the fundme CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fundme",
		Short: "FundMe crowdfunding ledger",
		Long: `Deploy and operate a FundMe ledger: a fund that accepts contributions
worth at least a USD minimum at the current oracle price and lets only
its owner withdraw the balance.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Network, "network", "n", "", "target network (defaults to FUNDME_NETWORK or the table default)")
	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", nil, "dotenv files to load (defaults to .env and .env.local)")

	cmd.AddCommand(NewDeployCommand(opts))
	cmd.AddCommand(NewFundCommand(opts))
	cmd.AddCommand(NewWithdrawCommand(opts))
	cmd.AddCommand(NewPriceCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewNetworksCommand(opts))

	return cmd
}
