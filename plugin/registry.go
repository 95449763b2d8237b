package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/types"
)

// hookTimeout bounds a single hook call.
const hookTimeout = 5 * time.Second

// Registry holds registered plugins with per-hook lists cached at
// registration time.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	onInit                 []OnInit
	onShutdown             []OnShutdown
	onFundDeployed         []OnFundDeployed
	onContributed          []OnContributed
	onContributionRejected []OnContributionRejected
	onWithdrawn            []OnWithdrawn
	onWithdrawalFailed     []OnWithdrawalFailed
	onPriceRead            []OnPriceRead
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds p and caches the hooks it implements. Names must be unique.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}
	r.plugins = append(r.plugins, p)

	var hooks []string
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnFundDeployed); ok {
		r.onFundDeployed = append(r.onFundDeployed, v)
		hooks = append(hooks, "OnFundDeployed")
	}
	if v, ok := p.(OnContributed); ok {
		r.onContributed = append(r.onContributed, v)
		hooks = append(hooks, "OnContributed")
	}
	if v, ok := p.(OnContributionRejected); ok {
		r.onContributionRejected = append(r.onContributionRejected, v)
		hooks = append(hooks, "OnContributionRejected")
	}
	if v, ok := p.(OnWithdrawn); ok {
		r.onWithdrawn = append(r.onWithdrawn, v)
		hooks = append(hooks, "OnWithdrawn")
	}
	if v, ok := p.(OnWithdrawalFailed); ok {
		r.onWithdrawalFailed = append(r.onWithdrawalFailed, v)
		hooks = append(hooks, "OnWithdrawalFailed")
	}
	if v, ok := p.(OnPriceRead); ok {
		r.onPriceRead = append(r.onPriceRead, v)
		hooks = append(hooks, "OnPriceRead")
	}

	r.logger.Info("plugin registered", "name", p.Name(), "hooks", hooks)
	return nil
}

// Get returns a plugin by name, or nil.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins in registration order.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission
// ──────────────────────────────────────────────────

// EmitInit dispatches OnInit.
func (r *Registry) EmitInit(ctx context.Context, f *fund.Fund) {
	emit(ctx, r, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, f)
	})
}

// EmitShutdown dispatches OnShutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitFundDeployed dispatches OnFundDeployed.
func (r *Registry) EmitFundDeployed(ctx context.Context, f *fund.Fund) {
	emit(ctx, r, "OnFundDeployed", snapshot(r, &r.onFundDeployed), func(p OnFundDeployed) error {
		return p.OnFundDeployed(ctx, f)
	})
}

// EmitContributed dispatches OnContributed.
func (r *Registry) EmitContributed(ctx context.Context, c *fund.Contribution) {
	emit(ctx, r, "OnContributed", snapshot(r, &r.onContributed), func(p OnContributed) error {
		return p.OnContributed(ctx, c)
	})
}

// EmitContributionRejected dispatches OnContributionRejected.
func (r *Registry) EmitContributionRejected(ctx context.Context, fundID id.FundID, contributor string, amount types.Wei, reason error) {
	emit(ctx, r, "OnContributionRejected", snapshot(r, &r.onContributionRejected), func(p OnContributionRejected) error {
		return p.OnContributionRejected(ctx, fundID, contributor, amount, reason)
	})
}

// EmitWithdrawn dispatches OnWithdrawn.
func (r *Registry) EmitWithdrawn(ctx context.Context, w *fund.Withdrawal) {
	emit(ctx, r, "OnWithdrawn", snapshot(r, &r.onWithdrawn), func(p OnWithdrawn) error {
		return p.OnWithdrawn(ctx, w)
	})
}

// EmitWithdrawalFailed dispatches OnWithdrawalFailed.
func (r *Registry) EmitWithdrawalFailed(ctx context.Context, fundID id.FundID, caller string, strategy fund.Strategy, reason error) {
	emit(ctx, r, "OnWithdrawalFailed", snapshot(r, &r.onWithdrawalFailed), func(p OnWithdrawalFailed) error {
		return p.OnWithdrawalFailed(ctx, fundID, caller, strategy, reason)
	})
}

// EmitPriceRead dispatches OnPriceRead.
func (r *Registry) EmitPriceRead(ctx context.Context, feed string, price oracle.Price, elapsed time.Duration, err error) {
	emit(ctx, r, "OnPriceRead", snapshot(r, &r.onPriceRead), func(p OnPriceRead) error {
		return p.OnPriceRead(ctx, feed, price, elapsed, err)
	})
}

func snapshot[T any](r *Registry, list *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *list
}

// emit calls every hook in order. Failures are logged; they never reach the
// operation that fired the event.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, plugins []T, call func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return call(p) }); err != nil {
			r.logger.Warn("plugin hook failed",
				"hook", hook,
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("plugin panic: %s: %v", pluginName, rec)
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(hookTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
