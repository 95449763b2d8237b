// Command fundme deploys and operates a FundMe ledger.
package main

import (
	"fmt"
	"os"

	"github.com/xraph/fundme/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
