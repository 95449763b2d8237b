// Package memory provides a simulated in-process Bank.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/fundme/payout"
	"github.com/xraph/fundme/types"
)

// Bank keeps account balances in memory. Recipients marked with Refuse
// reject every transfer.
type Bank struct {
	mu       sync.RWMutex
	accounts map[string]types.Wei
	refused  map[string]bool
	history  []Transfer
}

// Transfer is one completed payout.
type Transfer struct {
	To     string
	Amount types.Wei
}

var (
	_ payout.Bank     = (*Bank)(nil)
	_ payout.Reverser = (*Bank)(nil)
)

// New creates an empty bank.
func New() *Bank {
	return &Bank{
		accounts: make(map[string]types.Wei),
		refused:  make(map[string]bool),
	}
}

// Transfer implements payout.Bank.
func (b *Bank) Transfer(ctx context.Context, to string, amount types.Wei) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount.IsNegative() {
		return fmt.Errorf("payout/memory: negative transfer %s", amount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.refused[to] {
		return fmt.Errorf("%w: %s", payout.ErrRecipientRefused, to)
	}
	b.accounts[to] = b.accounts[to].Add(amount)
	b.history = append(b.history, Transfer{To: to, Amount: amount})
	return nil
}

// Reverse implements payout.Reverser.
func (b *Bank) Reverse(_ context.Context, to string, amount types.Wei) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.accounts[to].Cmp(amount) < 0 {
		return fmt.Errorf("payout/memory: cannot reverse %s from %s", amount, to)
	}
	b.accounts[to] = b.accounts[to].Sub(amount)
	b.history = append(b.history, Transfer{To: to, Amount: types.NewWei(0).Sub(amount)})
	return nil
}

// Refuse makes address reject all future transfers.
func (b *Bank) Refuse(address string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refused[address] = true
}

// Accept undoes Refuse.
func (b *Bank) Accept(address string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.refused, address)
}

// BalanceOf returns the amount received by address.
func (b *Bank) BalanceOf(address string) types.Wei {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.accounts[address]
}

// Transfers returns every payout and reversal in order.
func (b *Bank) Transfers() []Transfer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Transfer, len(b.history))
	copy(out, b.history)
	return out
}
