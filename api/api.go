// Package api exposes a Ledger over HTTP with chi.
//
// The caller identity travels in the X-Caller header. Value-carrying
// requests take a JSON body of either {"value":"0.05"} in ether or
// {"wei":"50000000000000000"}. A POST to any path the router does not know
// is routed to the ledger's fallback entry point; a POST to a known read
// route is a 405.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/types"
)

// CallerHeader carries the identity of the account making the request.
const CallerHeader = "X-Caller"

// maxBodyBytes bounds value request bodies.
const maxBodyBytes = 1 << 16

// Handler serves one Ledger.
type Handler struct {
	ledger  *fundme.Ledger
	logger  zerolog.Logger
	metrics http.Handler
	health  func(ctx context.Context) error
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request and error logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithMetrics mounts a metrics handler, typically promhttp, at /metrics.
func WithMetrics(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithHealthCheck sets the probe behind /healthz.
func WithHealthCheck(fn func(ctx context.Context) error) Option {
	return func(h *Handler) { h.health = fn }
}

// NewRouter returns the HTTP surface for l.
func NewRouter(l *fundme.Ledger, opts ...Option) http.Handler {
	h := &Handler{ledger: l, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(RequestID, middleware.RealIP, middleware.Recoverer, Logger(h.logger))

	// Funding
	r.Post("/fund", h.fund)
	r.Post("/", h.receive)

	// Withdrawal
	r.Post("/withdraw", h.withdraw)
	r.Post("/withdraw/cheap", h.withdrawCheap)

	// Reads
	r.Get("/price-feed", h.priceFeed)
	r.Get("/price", h.price)
	r.Get("/owner", h.owner)
	r.Get("/balance", h.balance)
	r.Get("/minimum", h.minimum)
	r.Get("/contributions", h.listContributions)
	r.Get("/contributions/{address}", h.contribution)
	r.Get("/withdrawals", h.listWithdrawals)
	r.Get("/funders", h.funders)
	r.Get("/funders/{index}", h.funderAt)

	r.Get("/healthz", h.healthz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.NotFound(h.fallback)
	r.MethodNotAllowed(h.methodNotAllowed)
	return r
}

// ──────────────────────────────────────────────────
// Funding
// ──────────────────────────────────────────────────

type valueRequest struct {
	Value string `json:"value,omitempty"`
	Wei   string `json:"wei,omitempty"`
}

func (h *Handler) fund(w http.ResponseWriter, r *http.Request) {
	amount, err := readValue(r)
	if err != nil {
		h.error(w, r, err)
		return
	}
	c, err := h.ledger.Contribute(r.Context(), caller(r), amount)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.json(w, http.StatusCreated, c)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	amount, err := readValue(r)
	if err != nil {
		h.error(w, r, err)
		return
	}
	c, err := h.ledger.Receive(r.Context(), caller(r), amount)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.json(w, http.StatusCreated, c)
}

// fallback turns an unknown POST into a contribution and 404s the rest.
func (h *Handler) fallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.json(w, http.StatusNotFound, errorResponse{Error: "not found", Code: "not_found"})
		return
	}
	amount, err := readValue(r)
	if err != nil {
		h.error(w, r, err)
		return
	}
	c, err := h.ledger.Fallback(r.Context(), caller(r), r.URL.Path, amount)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.json(w, http.StatusCreated, c)
}

// methodNotAllowed rejects value sent to a known read-only route.
func (h *Handler) methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	h.json(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: "method_not_allowed"})
}

// readValue decodes a value request. An empty body is a zero amount.
func readValue(r *http.Request) (types.Wei, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return types.Wei{}, fmt.Errorf("%w: read body: %w", fundme.ErrInvalidInput, err)
	}
	if len(body) == 0 {
		return types.Wei{}, nil
	}

	var req valueRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return types.Wei{}, fundme.ValidationError{Field: "body", Message: err.Error()}
	}
	switch {
	case req.Value != "" && req.Wei != "":
		return types.Wei{}, fundme.ValidationError{Field: "body", Message: "set value or wei, not both"}
	case req.Value != "":
		amount, err := types.ParseEther(req.Value)
		if err != nil {
			return types.Wei{}, fundme.ValidationError{Field: "value", Message: err.Error()}
		}
		return amount, nil
	case req.Wei != "":
		amount, err := types.ParseWei(req.Wei)
		if err != nil {
			return types.Wei{}, fundme.ValidationError{Field: "wei", Message: err.Error()}
		}
		return amount, nil
	}
	return types.Wei{}, nil
}

func caller(r *http.Request) string {
	return r.Header.Get(CallerHeader)
}

// ──────────────────────────────────────────────────
// Withdrawal
// ──────────────────────────────────────────────────

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	h.doWithdraw(w, r, h.ledger.Withdraw)
}

func (h *Handler) withdrawCheap(w http.ResponseWriter, r *http.Request) {
	h.doWithdraw(w, r, h.ledger.WithdrawCheap)
}

func (h *Handler) doWithdraw(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, caller string) (*fund.Withdrawal, error),
) {
	wd, err := fn(r.Context(), caller(r))
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.json(w, http.StatusOK, wd)
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

type amountResponse struct {
	Wei   string `json:"wei"`
	Ether string `json:"ether"`
}

func newAmount(w types.Wei) amountResponse {
	return amountResponse{Wei: w.String(), Ether: w.Ether()}
}

func (h *Handler) priceFeed(w http.ResponseWriter, _ *http.Request) {
	h.json(w, http.StatusOK, map[string]string{"price_feed": h.ledger.PriceFeed()})
}

func (h *Handler) price(w http.ResponseWriter, r *http.Request) {
	p, err := h.ledger.LatestPrice(r.Context())
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.json(w, http.StatusOK, map[string]any{
		"answer":        p.Answer.String(),
		"decimals":      p.Decimals,
		"round_id":      p.RoundID,
		"updated_at":    p.UpdatedAt,
		"usd_per_ether": fundme.ConversionRate(types.MustEther("1"), p).Display(),
	})
}

func (h *Handler) owner(w http.ResponseWriter, _ *http.Request) {
	h.json(w, http.StatusOK, map[string]string{"owner": h.ledger.Owner()})
}

func (h *Handler) minimum(w http.ResponseWriter, _ *http.Request) {
	m := h.ledger.MinimumUSD()
	h.json(w, http.StatusOK, map[string]string{"minimum_usd": m.Dollars(), "display": m.Display()})
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	b, err := h.ledger.Balance(r.Context())
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.json(w, http.StatusOK, newAmount(b))
}

func (h *Handler) contribution(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	total, err := h.ledger.Contribution(r.Context(), address)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.json(w, http.StatusOK, struct {
		Contributor string `json:"contributor"`
		amountResponse
	}{address, newAmount(total)})
}

func (h *Handler) funders(w http.ResponseWriter, r *http.Request) {
	list, err := h.ledger.Contributors(r.Context())
	if err != nil {
		h.error(w, r, err)
		return
	}
	if list == nil {
		list = []string{}
	}
	h.json(w, http.StatusOK, map[string]any{"count": len(list), "funders": list})
}

func (h *Handler) funderAt(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.error(w, r, fundme.ValidationError{Field: "index", Message: "must be an integer"})
		return
	}
	who, err := h.ledger.ContributorAt(r.Context(), index)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.json(w, http.StatusOK, map[string]any{"index": index, "contributor": who})
}

func (h *Handler) listContributions(w http.ResponseWriter, r *http.Request) {
	opts, err := listOpts(r)
	if err != nil {
		h.error(w, r, err)
		return
	}
	list, err := h.ledger.Contributions(r.Context(), opts)
	if err != nil {
		h.error(w, r, err)
		return
	}
	if list == nil {
		list = []*fund.Contribution{}
	}
	h.json(w, http.StatusOK, list)
}

func (h *Handler) listWithdrawals(w http.ResponseWriter, r *http.Request) {
	opts, err := listOpts(r)
	if err != nil {
		h.error(w, r, err)
		return
	}
	list, err := h.ledger.Withdrawals(r.Context(), opts)
	if err != nil {
		h.error(w, r, err)
		return
	}
	if list == nil {
		list = []*fund.Withdrawal{}
	}
	h.json(w, http.StatusOK, list)
}

func listOpts(r *http.Request) (fund.ListOpts, error) {
	var opts fund.ListOpts
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, fundme.ValidationError{Field: name, Message: "must be a non-negative integer"}
		}
		*dst = n
	}
	return opts, nil
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.json(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	h.json(w, http.StatusOK, map[string]string{"status": "ok", "fund_id": h.ledger.FundID().String()})
}

// ──────────────────────────────────────────────────
// Responses
// ──────────────────────────────────────────────────

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func (h *Handler) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) error(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).
			Str("request_id", RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	h.json(w, status, errorResponse{
		Error:     err.Error(),
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// classify maps ledger errors to an HTTP status and a stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, fundme.ErrInsufficientContribution):
		return http.StatusUnprocessableEntity, "insufficient_contribution"
	case errors.Is(err, fundme.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, fundme.ErrTransferFailed):
		return http.StatusBadGateway, "transfer_failed"
	case errors.Is(err, fundme.ErrIndexOutOfRange):
		return http.StatusNotFound, "index_out_of_range"
	case errors.Is(err, fundme.ErrFundNotFound):
		return http.StatusNotFound, "fund_not_found"
	case errors.Is(err, fundme.ErrOracleUnavailable):
		return http.StatusServiceUnavailable, "oracle_unavailable"
	case errors.Is(err, fundme.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
