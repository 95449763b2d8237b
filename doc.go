// Package fundme provides a crowdfunding ledger: it accepts contributions
// worth at least a minimum USD value, keeps per-contributor totals and lets
// only the fund's owner withdraw the accumulated balance.
//
// FundMe is a library. A Ledger is bound to one deployed fund and needs a
// store, a payout bank and a price feed:
//
//	import (
//	    "github.com/xraph/fundme"
//	    "github.com/xraph/fundme/oracle"
//	    "github.com/xraph/fundme/payout/memory"
//	    "github.com/xraph/fundme/store/postgres"
//	)
//
//	store, err := postgres.New(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	l, err := fundme.Deploy(ctx, store, bank, fundme.Config{
//	    Owner:     "0xf39F…2266",
//	    PriceFeed: oracle.NewDefaultMock(),
//	})
//
// # Contributions
//
// Contribute converts the amount to USD at the feed's latest answer:
//
//	usd = amount * answer / 10^decimals
//
// using integer arithmetic throughout. Anything worth less than MinimumUSD
// (50 USD by default) fails with ErrInsufficientContribution and leaves the
// ledger untouched. Bare transfers (Receive) and calls to unknown entry
// points (Fallback) follow the same rule.
//
//	c, err := l.Contribute(ctx, "0xalice", types.MustEther("0.05"))
//
// Every accepted contribution appends its contributor to an ordered log.
// Repeat contributors appear once per contribution.
//
// # Withdrawals
//
// Withdraw and WithdrawCheap both zero every contributor's total, empty the
// log, drain the balance and transfer it to the owner, all in one store
// transaction. They differ only in how often they read the log from
// storage, which each Withdrawal receipt reports in StorageReads.
//
// # Identifiers
//
// Funds and receipts use TypeIDs:
//
//	fund_01h2xcejqtf2nbrexx3vqjhp41  // Fund address
//	ctb_01h2xcejqtf2nbrexx3vqjhp41   // Contribution receipt
//	wdr_01h455vb4pex5vsknk084sn02q   // Withdrawal receipt
package fundme
