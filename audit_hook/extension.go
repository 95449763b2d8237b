// Package audithook bridges FundMe lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package carries no audit
// backend dependency. Callers inject a RecorderFunc adapter at wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/plugin"
	"github.com/xraph/fundme/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnFundDeployed         = (*Extension)(nil)
	_ plugin.OnContributed          = (*Extension)(nil)
	_ plugin.OnContributionRejected = (*Extension)(nil)
	_ plugin.OnWithdrawn            = (*Extension)(nil)
	_ plugin.OnWithdrawalFailed     = (*Extension)(nil)
	_ plugin.OnPriceRead            = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges FundMe lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled      map[string]bool // nil = all enabled
	failuresOnly bool
	logger       *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Fund lifecycle hooks
// ──────────────────────────────────────────────────

// OnFundDeployed implements plugin.OnFundDeployed.
func (e *Extension) OnFundDeployed(ctx context.Context, f *fund.Fund) error {
	return e.record(ctx, ActionFundDeployed, SeverityInfo, OutcomeSuccess,
		ResourceFund, f.ID.String(), CategoryFunding, nil,
		"owner", f.Owner,
		"price_feed", f.PriceFeed,
		"minimum_usd", f.MinimumUSD.Display(),
		"network", f.Network,
	)
}

// ──────────────────────────────────────────────────
// Contribution hooks
// ──────────────────────────────────────────────────

// OnContributed implements plugin.OnContributed.
func (e *Extension) OnContributed(ctx context.Context, c *fund.Contribution) error {
	return e.record(ctx, ActionContributionAccepted, SeverityInfo, OutcomeSuccess,
		ResourceContribution, c.ID.String(), CategoryFunding, nil,
		"fund_id", c.FundID.String(),
		"contributor", c.Contributor,
		"amount_wei", c.Amount.String(),
		"usd_value", c.USDValue.Display(),
		"fallback", c.Fallback,
	)
}

// OnContributionRejected implements plugin.OnContributionRejected.
func (e *Extension) OnContributionRejected(ctx context.Context, fundID id.FundID, contributor string, amount types.Wei, reason error) error {
	severity := SeverityInfo
	if errors.Is(reason, fundme.ErrOracleUnavailable) {
		severity = SeverityError
	}
	return e.record(ctx, ActionContributionRejected, severity, OutcomeFailure,
		ResourceContribution, "", CategoryFunding, reason,
		"fund_id", fundID.String(),
		"contributor", contributor,
		"amount_wei", amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawn implements plugin.OnWithdrawn.
func (e *Extension) OnWithdrawn(ctx context.Context, w *fund.Withdrawal) error {
	return e.record(ctx, ActionWithdrawalCompleted, SeverityInfo, OutcomeSuccess,
		ResourceWithdrawal, w.ID.String(), CategoryPayout, nil,
		"fund_id", w.FundID.String(),
		"owner", w.Owner,
		"amount_wei", w.Amount.String(),
		"strategy", string(w.Strategy),
		"contributors", w.Contributors,
	)
}

// OnWithdrawalFailed implements plugin.OnWithdrawalFailed. Unauthorized
// attempts are recorded under their own action in the access category.
func (e *Extension) OnWithdrawalFailed(ctx context.Context, fundID id.FundID, caller string, strategy fund.Strategy, reason error) error {
	action, category, severity := ActionWithdrawalFailed, CategoryPayout, SeverityCritical
	if errors.Is(reason, fundme.ErrUnauthorized) {
		action, category, severity = ActionWithdrawalUnauthorized, CategoryAccess, SeverityWarning
	}
	return e.record(ctx, action, severity, OutcomeFailure,
		ResourceWithdrawal, "", category, reason,
		"fund_id", fundID.String(),
		"caller", caller,
		"strategy", string(strategy),
	)
}

// ──────────────────────────────────────────────────
// Oracle hooks
// ──────────────────────────────────────────────────

// OnPriceRead implements plugin.OnPriceRead. Only failed reads are audited.
func (e *Extension) OnPriceRead(ctx context.Context, feed string, _ oracle.Price, elapsed time.Duration, err error) error {
	if err == nil {
		return nil
	}
	return e.record(ctx, ActionOracleFailed, SeverityError, OutcomeFailure,
		ResourceOracle, feed, CategoryOracle, err,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}
	if e.failuresOnly && outcome == OutcomeSuccess {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
