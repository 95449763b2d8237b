package oracle

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockDefaults(t *testing.T) {
	m := NewDefaultMock()

	p, err := m.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultMockAddress, m.Address())
	assert.Equal(t, uint8(8), p.Decimals)
	assert.Equal(t, "200000000000", p.Answer.String())
	assert.Equal(t, uint64(1), p.RoundID)
	assert.Equal(t, "2000.00000000", p.String())
}

func TestMockUpdates(t *testing.T) {
	m := NewMock("feed", 8, big.NewInt(1))

	m.UpdateAnswer(big.NewInt(3000_00000000))
	p, err := m.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p.RoundID)
	assert.Equal(t, "300000000000", p.Answer.String())

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.UpdateRoundData(90, big.NewInt(-5), at)
	p, err = m.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(90), p.RoundID)
	assert.Equal(t, at, p.UpdatedAt)
	assert.ErrorIs(t, p.Validate(), ErrInvalidPrice)

	boom := errors.New("boom")
	m.SetError(boom)
	_, err = m.LatestPrice(context.Background())
	assert.ErrorIs(t, err, boom)

	m.SetError(nil)
	_, err = m.LatestPrice(context.Background())
	assert.NoError(t, err)
}

func TestMockReturnsCopies(t *testing.T) {
	m := NewDefaultMock()
	p, err := m.LatestPrice(context.Background())
	require.NoError(t, err)
	p.Answer.SetInt64(1)

	again, err := m.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "200000000000", again.Answer.String())
}

func TestPriceValidate(t *testing.T) {
	assert.ErrorIs(t, Price{}.Validate(), ErrInvalidPrice)
	assert.ErrorIs(t, Price{Answer: big.NewInt(0)}.Validate(), ErrInvalidPrice)
	assert.ErrorIs(t, Price{Answer: big.NewInt(-1)}.Validate(), ErrInvalidPrice)
	assert.NoError(t, Price{Answer: big.NewInt(1)}.Validate())
}

func TestHTTPFeed(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		answer  string
		wantErr error
		anyErr  bool
	}{
		{"string answer", 200, `{"answer":"200000000000","decimals":8,"round_id":7,"updated_at":"2024-01-01T00:00:00Z"}`, "200000000000", nil, false},
		{"number answer", 200, `{"answer":123456789012345678901234,"decimals":18,"round_id":1}`, "123456789012345678901234", nil, false},
		{"garbage answer", 200, `{"answer":"twelve","decimals":8}`, "", ErrInvalidPrice, true},
		{"bad json", 200, `{`, "", nil, true},
		{"oversized document", 200, `{"answer":"` + strings.Repeat("1", maxDocumentBytes) + `","decimals":8}`, "", nil, true},
		{"server error", 500, `down`, "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			feed := NewHTTPFeed("0xfeed", srv.URL, WithHeader("X-Api-Key", "secret"))
			assert.Equal(t, "0xfeed", feed.Address())

			p, err := feed.LatestPrice(context.Background())
			if tt.anyErr {
				require.Error(t, err)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.answer, p.Answer.String())
		})
	}
}

func TestRetryingRecoversFromTransientErrors(t *testing.T) {
	var calls atomic.Int32
	feed := Func{Addr: "feed", Fn: func(context.Context) (Price, error) {
		if calls.Add(1) < 3 {
			return Price{}, errors.New("connection reset")
		}
		return Price{Answer: big.NewInt(42), Decimals: 0}, nil
	}}

	r := NewRetrying(feed, WithBackoff(time.Millisecond, 2*time.Millisecond))
	p, err := r.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", p.Answer.String())
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryingGivesUp(t *testing.T) {
	var calls atomic.Int32
	down := errors.New("down")
	feed := Func{Addr: "feed", Fn: func(context.Context) (Price, error) {
		calls.Add(1)
		return Price{}, down
	}}

	r := NewRetrying(feed, WithMaxRetries(2), WithBackoff(time.Millisecond, time.Millisecond))
	_, err := r.LatestPrice(context.Background())
	assert.ErrorIs(t, err, down)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryingDoesNotRetryInvalidPrices(t *testing.T) {
	var calls atomic.Int32
	feed := Func{Addr: "feed", Fn: func(context.Context) (Price, error) {
		calls.Add(1)
		return Price{Answer: big.NewInt(0)}, nil
	}}

	_, err := NewRetrying(feed, WithBackoff(time.Millisecond, time.Millisecond)).LatestPrice(context.Background())
	assert.ErrorIs(t, err, ErrInvalidPrice)
	assert.Equal(t, int32(1), calls.Load())
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	v, ok := c.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = value
	return nil
}

func TestCached(t *testing.T) {
	var calls atomic.Int32
	mock := NewDefaultMock()
	feed := Func{Addr: mock.Address(), Fn: func(ctx context.Context) (Price, error) {
		calls.Add(1)
		return mock.LatestPrice(ctx)
	}}
	cache := &mapCache{data: map[string][]byte{}}
	c := NewCached(feed, cache, time.Minute, nil)

	first, err := c.LatestPrice(context.Background())
	require.NoError(t, err)
	mock.UpdateAnswer(big.NewInt(1))
	second, err := c.LatestPrice(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, first.Answer.String(), second.Answer.String())
	assert.Contains(t, cache.data, "fundme:price:"+DefaultMockAddress)
}

func TestCachedFallsThroughOnCacheFailure(t *testing.T) {
	cache := &mapCache{data: map[string][]byte{}, err: errors.New("redis down")}
	c := NewCached(NewDefaultMock(), cache, time.Minute, nil)

	p, err := c.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "200000000000", p.Answer.String())
}

func TestCachedSkipsInvalidPrices(t *testing.T) {
	mock := NewMock("feed", 8, big.NewInt(0))
	cache := &mapCache{data: map[string][]byte{}}
	c := NewCached(mock, cache, time.Minute, nil)

	p, err := c.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, p.Validate(), ErrInvalidPrice)
	assert.Empty(t, cache.data)
}
