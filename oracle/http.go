package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// maxDocumentBytes bounds a price document body.
const maxDocumentBytes = 1 << 16

// HTTPFeed reads prices from a JSON price document served over HTTP:
//
//	{"answer":"200000000000","decimals":8,"round_id":42,"updated_at":"2024-01-01T00:00:00Z"}
//
// The answer may be a string or a bare number.
type HTTPFeed struct {
	address string
	url     string
	client  *http.Client
	header  http.Header
}

var _ PriceFeed = (*HTTPFeed)(nil)

// HTTPOption configures an HTTPFeed.
type HTTPOption func(*HTTPFeed)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFeed) { f.client = c }
}

// WithHeader adds a request header, e.g. an API key.
func WithHeader(key, value string) HTTPOption {
	return func(f *HTTPFeed) { f.header.Add(key, value) }
}

// NewHTTPFeed creates a feed bound to address that polls url.
func NewHTTPFeed(address, url string, opts ...HTTPOption) *HTTPFeed {
	f := &HTTPFeed{
		address: address,
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		header:  make(http.Header),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Address implements PriceFeed.
func (f *HTTPFeed) Address() string { return f.address }

type priceDocument struct {
	Answer    json.RawMessage `json:"answer"`
	Decimals  uint8           `json:"decimals"`
	RoundID   uint64          `json:"round_id"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LatestPrice implements PriceFeed.
func (f *HTTPFeed) LatestPrice(ctx context.Context) (Price, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Price{}, fmt.Errorf("oracle: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range f.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Price{}, fmt.Errorf("oracle: fetch %s: %w", f.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512)) //nolint:errcheck // diagnostic only
		return Price{}, fmt.Errorf("oracle: fetch %s: status %d: %s", f.url, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc priceDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentBytes)).Decode(&doc); err != nil {
		return Price{}, fmt.Errorf("oracle: decode price document: %w", err)
	}

	raw := strings.Trim(strings.TrimSpace(string(doc.Answer)), `"`)
	answer, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return Price{}, fmt.Errorf("%w: unparseable answer %q", ErrInvalidPrice, raw)
	}

	return Price{
		Answer:    answer,
		Decimals:  doc.Decimals,
		RoundID:   doc.RoundID,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}
