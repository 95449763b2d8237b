package audithook

import (
	"log/slog"
	"maps"
	"slices"
)

// Option configures an Extension.
type Option func(*Extension)

// actionCategories files every known action under its category.
var actionCategories = map[string]string{
	ActionFundDeployed:           CategoryFunding,
	ActionContributionAccepted:   CategoryFunding,
	ActionContributionRejected:   CategoryFunding,
	ActionWithdrawalCompleted:    CategoryPayout,
	ActionWithdrawalFailed:       CategoryPayout,
	ActionWithdrawalUnauthorized: CategoryAccess,
	ActionOracleFailed:           CategoryOracle,
}

// WithLogger sets the logger used to report recorder failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) { e.logger = logger }
}

// WithEnabledActions audits only the listed actions. Without it every
// action is audited.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool, len(actions))
		for _, a := range actions {
			e.enabled[a] = true
		}
	}
}

// WithDisabledActions audits everything except the listed actions.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		if e.enabled == nil {
			e.enabled = make(map[string]bool, len(actionCategories))
			for _, a := range allActions() {
				e.enabled[a] = true
			}
		}
		for _, a := range actions {
			delete(e.enabled, a)
		}
	}
}

// WithCategories audits only actions filed under the given categories,
// e.g. CategoryAccess and CategoryPayout for an owner-activity trail.
func WithCategories(categories ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool)
		for action, category := range actionCategories {
			if slices.Contains(categories, category) {
				e.enabled[action] = true
			}
		}
	}
}

// WithFailuresOnly drops successful outcomes and keeps rejections and faults.
func WithFailuresOnly() Option {
	return func(e *Extension) { e.failuresOnly = true }
}

// allActions returns all known audit actions in sorted order.
func allActions() []string {
	return slices.Sorted(maps.Keys(actionCategories))
}
