package oracle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retrying retries transient feed failures with exponential backoff.
// Invalid prices are not retried.
type Retrying struct {
	feed        PriceFeed
	maxRetries  uint64
	initial     time.Duration
	maxInterval time.Duration
	logger      *slog.Logger
}

var _ PriceFeed = (*Retrying)(nil)

// RetryOption configures a Retrying feed.
type RetryOption func(*Retrying)

// WithMaxRetries bounds the number of retries after the first attempt.
func WithMaxRetries(n uint64) RetryOption {
	return func(r *Retrying) { r.maxRetries = n }
}

// WithBackoff sets the first and the largest wait between attempts.
func WithBackoff(initial, maxInterval time.Duration) RetryOption {
	return func(r *Retrying) {
		r.initial = initial
		r.maxInterval = maxInterval
	}
}

// WithRetryLogger sets the logger used for retry notices.
func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(r *Retrying) { r.logger = logger }
}

// NewRetrying wraps feed. Defaults: 3 retries, 200ms growing to 2s.
func NewRetrying(feed PriceFeed, opts ...RetryOption) *Retrying {
	r := &Retrying{
		feed:        feed,
		maxRetries:  3,
		initial:     200 * time.Millisecond,
		maxInterval: 2 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Address implements PriceFeed.
func (r *Retrying) Address() string { return r.feed.Address() }

// LatestPrice implements PriceFeed.
func (r *Retrying) LatestPrice(ctx context.Context) (Price, error) {
	var p Price
	op := func() error {
		var err error
		p, err = r.feed.LatestPrice(ctx)
		if err != nil {
			if errors.Is(err, ErrInvalidPrice) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := p.Validate(); err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.initial
	eb.MaxInterval = r.maxInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, r.maxRetries), ctx)

	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		r.logger.Warn("price feed read failed, retrying",
			"feed", r.feed.Address(),
			"error", err,
			"wait", wait,
		)
	})
	if err != nil {
		return Price{}, err
	}
	return p, nil
}
