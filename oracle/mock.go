package oracle

import (
	"context"
	"math/big"
	"sync"
	"time"
)

// Development feed defaults: 8 decimals and 2000 USD per ether.
const (
	DefaultDecimals = 8

	// DefaultMockAddress is where development networks expect the mock
	// aggregator.
	DefaultMockAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
)

// DefaultInitialAnswer returns 2000 * 10^8.
func DefaultInitialAnswer() *big.Int {
	return new(big.Int).Mul(big.NewInt(2000), big.NewInt(100_000_000))
}

// Mock is an in-process aggregator for development networks and tests.
// Every update starts a new round.
type Mock struct {
	mu        sync.RWMutex
	address   string
	decimals  uint8
	answer    *big.Int
	round     uint64
	updatedAt time.Time
	err       error
}

var _ PriceFeed = (*Mock)(nil)

// NewMock creates a mock feed reporting initialAnswer at round 1.
func NewMock(address string, decimals uint8, initialAnswer *big.Int) *Mock {
	m := &Mock{address: address, decimals: decimals}
	m.UpdateAnswer(initialAnswer)
	return m
}

// NewDefaultMock creates the mock deployed on development networks.
func NewDefaultMock() *Mock {
	return NewMock(DefaultMockAddress, DefaultDecimals, DefaultInitialAnswer())
}

// Address implements PriceFeed.
func (m *Mock) Address() string { return m.address }

// Decimals returns the answer scale.
func (m *Mock) Decimals() uint8 { return m.decimals }

// UpdateAnswer publishes a new answer in the next round.
func (m *Mock) UpdateAnswer(answer *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.round++
	m.answer = copyInt(answer)
	m.updatedAt = time.Now().UTC()
}

// UpdateRoundData publishes a complete round.
func (m *Mock) UpdateRoundData(roundID uint64, answer *big.Int, updatedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.round = roundID
	m.answer = copyInt(answer)
	m.updatedAt = updatedAt
}

// SetError makes LatestPrice fail with err until cleared with nil.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// LatestPrice implements PriceFeed. The mock does not validate its answer.
func (m *Mock) LatestPrice(ctx context.Context) (Price, error) {
	if err := ctx.Err(); err != nil {
		return Price{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return Price{}, m.err
	}
	return Price{
		Answer:    copyInt(m.answer),
		Decimals:  m.decimals,
		RoundID:   m.round,
		UpdatedAt: m.updatedAt,
	}, nil
}

func copyInt(b *big.Int) *big.Int {
	if b == nil {
		return nil
	}
	return new(big.Int).Set(b)
}
