// Package payout moves withdrawn balances to their recipient.
package payout

import (
	"context"
	"errors"

	"github.com/xraph/fundme/types"
)

// ErrRecipientRefused is returned when a recipient cannot accept funds.
var ErrRecipientRefused = errors.New("payout: recipient refused funds")

// Bank performs the value transfer at the end of a withdrawal.
type Bank interface {
	Transfer(ctx context.Context, to string, amount types.Wei) error
}

// Reverser is implemented by banks that can undo a completed transfer. The
// ledger uses it when its own commit fails after the money has moved.
type Reverser interface {
	Reverse(ctx context.Context, to string, amount types.Wei) error
}

// BankFunc adapts a function into a Bank.
type BankFunc func(ctx context.Context, to string, amount types.Wei) error

// Transfer implements Bank.
func (f BankFunc) Transfer(ctx context.Context, to string, amount types.Wei) error {
	return f(ctx, to, amount)
}
