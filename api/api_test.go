package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/api"
	"github.com/xraph/fundme/oracle"
	paymem "github.com/xraph/fundme/payout/memory"
	"github.com/xraph/fundme/store/memory"
	"github.com/xraph/fundme/types"
)

const owner = "0xowner"

type server struct {
	handler http.Handler
	ledger  *fundme.Ledger
	bank    *paymem.Bank
	feed    *oracle.Mock
}

func newServer(t *testing.T, opts ...api.Option) *server {
	t.Helper()
	s := &server{bank: paymem.New(), feed: oracle.NewDefaultMock()}
	l, err := fundme.Deploy(context.Background(), memory.New(), s.bank, fundme.Config{
		Owner:     owner,
		PriceFeed: s.feed,
	})
	require.NoError(t, err)
	s.ledger = l
	s.handler = api.NewRouter(l, opts...)
	return s
}

func (s *server) do(t *testing.T, method, path, caller, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if caller != "" {
		req.Header.Set(api.CallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestFundAndRead(t *testing.T) {
	s := newServer(t)

	rec, body := s.do(t, http.MethodPost, "/fund", "0xalice", `{"value":"0.05"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "0xalice", body["contributor"])
	assert.Equal(t, "50000000000000000", body["amount"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, body = s.do(t, http.MethodGet, "/contributions/0xalice", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0.05", body["ether"])

	rec, body = s.do(t, http.MethodGet, "/balance", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "50000000000000000", body["wei"])

	rec, body = s.do(t, http.MethodGet, "/funders/0", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0xalice", body["contributor"])

	rec, body = s.do(t, http.MethodGet, "/funders", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
}

func TestFundBelowMinimum(t *testing.T) {
	s := newServer(t)

	rec, body := s.do(t, http.MethodPost, "/fund", "0xbob", `{"value":"0.01"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "insufficient_contribution", body["code"])
	assert.NotEmpty(t, body["request_id"])
}

func TestFundWithWei(t *testing.T) {
	s := newServer(t)

	rec, _ := s.do(t, http.MethodPost, "/fund", "0xalice", `{"wei":"25000000000000000"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	total, err := s.ledger.Contribution(context.Background(), "0xalice")
	require.NoError(t, err)
	assert.True(t, total.Equal(types.MustEther("0.025")))
}

func TestBadRequests(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name   string
		path   string
		caller string
		body   string
	}{
		{"malformed json", "/fund", "0xalice", `{"value":`},
		{"both value and wei", "/fund", "0xalice", `{"value":"1","wei":"1"}`},
		{"bad ether", "/fund", "0xalice", `{"value":"abc"}`},
		{"huge exponent", "/fund", "0xalice", `{"value":"1e10000000"}`},
		{"huge exponent on receive", "/", "0xalice", `{"value":"1e2000000000"}`},
		{"huge exponent on fallback", "/anything", "0xalice", `{"value":"1e1000000"}`},
		{"wei above 256 bits", "/fund", "0xalice", `{"wei":"115792089237316195423570985008687907853269984665640564039457584007913129639936"}`},
		{"missing caller", "/fund", "", `{"value":"1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := s.do(t, http.MethodPost, tt.path, tt.caller, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_input", body["code"])
		})
	}

	rec, _ := s.do(t, http.MethodGet, "/funders/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/contributions?limit=-1", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostToReadRoute(t *testing.T) {
	s := newServer(t)

	for _, path := range []string{"/owner", "/price-feed", "/balance", "/funders", "/funders/0", "/healthz"} {
		t.Run(path, func(t *testing.T) {
			rec, body := s.do(t, http.MethodPost, path, "0xalice", `{"value":"0.05"}`)
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			assert.Equal(t, "method_not_allowed", body["code"])
		})
	}

	n, err := s.ledger.ContributorCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFunderIndexOutOfRange(t *testing.T) {
	s := newServer(t)

	rec, body := s.do(t, http.MethodGet, "/funders/0", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "index_out_of_range", body["code"])
}

func TestReceiveAndFallback(t *testing.T) {
	s := newServer(t)

	rec, body := s.do(t, http.MethodPost, "/", "0xalice", `{"value":"0.05"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["fallback"])

	rec, body = s.do(t, http.MethodPost, "/does-not-exist", "0xbob", `{"value":"0.05"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "0xbob", body["contributor"])

	rec, _ = s.do(t, http.MethodPost, "/other", "0xcarol", `{"value":"0.05"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, _ = s.do(t, http.MethodPost, "/nope", "0xdave", `{"value":"0.01"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	n, err := s.ledger.ContributorCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestWithdraw(t *testing.T) {
	for _, path := range []string{"/withdraw", "/withdraw/cheap"} {
		t.Run(path, func(t *testing.T) {
			s := newServer(t)
			s.do(t, http.MethodPost, "/fund", "0xalice", `{"value":"0.05"}`)

			rec, body := s.do(t, http.MethodPost, path, "0xmallory", "")
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Equal(t, "unauthorized", body["code"])

			rec, body = s.do(t, http.MethodPost, path, owner, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "50000000000000000", body["amount"])
			assert.True(t, s.bank.BalanceOf(owner).Equal(types.MustEther("0.05")))

			rec, body = s.do(t, http.MethodGet, "/balance", "", "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "0", body["wei"])
		})
	}
}

func TestWithdrawTransferFailed(t *testing.T) {
	s := newServer(t)
	s.do(t, http.MethodPost, "/fund", "0xalice", `{"value":"0.05"}`)
	s.bank.Refuse(owner)

	rec, body := s.do(t, http.MethodPost, "/withdraw", owner, "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "transfer_failed", body["code"])

	rec, body = s.do(t, http.MethodGet, "/contributions/0xalice", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0.05", body["ether"])
}

func TestOracleUnavailable(t *testing.T) {
	s := newServer(t)
	s.feed.SetError(errors.New("feed offline"))

	rec, body := s.do(t, http.MethodPost, "/fund", "0xalice", `{"value":"1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "oracle_unavailable", body["code"])

	rec, _ = s.do(t, http.MethodGet, "/price", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStaticReads(t *testing.T) {
	s := newServer(t)

	_, body := s.do(t, http.MethodGet, "/owner", "", "")
	assert.Equal(t, owner, body["owner"])

	_, body = s.do(t, http.MethodGet, "/price-feed", "", "")
	assert.Equal(t, oracle.DefaultMockAddress, body["price_feed"])

	_, body = s.do(t, http.MethodGet, "/minimum", "", "")
	assert.Equal(t, "$50.00", body["display"])

	s.feed.UpdateAnswer(big.NewInt(3000_00000000))
	_, body = s.do(t, http.MethodGet, "/price", "", "")
	assert.Equal(t, "$3000.00", body["usd_per_ether"])
	assert.EqualValues(t, 8, body["decimals"])
}

func TestReceiptLists(t *testing.T) {
	s := newServer(t)
	for _, who := range []string{"0xa", "0xb", "0xc"} {
		s.do(t, http.MethodPost, "/fund", who, `{"value":"0.05"}`)
	}
	s.do(t, http.MethodPost, "/withdraw", owner, "")

	req := httptest.NewRequest(http.MethodGet, "/contributions?limit=2&offset=1", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "0xb", list[0]["contributor"])
	assert.Equal(t, "0xc", list[1]["contributor"])

	req = httptest.NewRequest(http.MethodGet, "/withdrawals", nil)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "read_through", list[0]["strategy"])
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("fundme_fund_deployed_total 1\n"))
	})
	var healthy = true
	s := newServer(t,
		api.WithMetrics(metrics),
		api.WithHealthCheck(func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("store down")
		}),
	)

	rec, body := s.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, s.ledger.FundID().String(), body["fund_id"])

	healthy = false
	rec, _ = s.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fundme_fund_deployed_total")
}
