package fundme

import "github.com/xraph/fundme/id"

// ID is the identifier type for funds and receipts.
type ID = id.ID

// FundID addresses a deployed fund.
type FundID = id.FundID
