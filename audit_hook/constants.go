package audithook

// Action constants for audit events.
const (
	// Fund actions
	ActionFundDeployed = "fund.deployed"

	// Contribution actions
	ActionContributionAccepted = "contribution.accepted"
	ActionContributionRejected = "contribution.rejected"

	// Withdrawal actions
	ActionWithdrawalCompleted    = "withdrawal.completed"
	ActionWithdrawalFailed       = "withdrawal.failed"
	ActionWithdrawalUnauthorized = "withdrawal.unauthorized"

	// Oracle actions
	ActionOracleFailed = "oracle.failed"
)

// Resource constants for audit events.
const (
	ResourceFund         = "fund"
	ResourceContribution = "contribution"
	ResourceWithdrawal   = "withdrawal"
	ResourceOracle       = "oracle"
)

// Category constants for audit events.
const (
	CategoryFunding = "funding"
	CategoryPayout  = "payout"
	CategoryAccess  = "access"
	CategoryOracle  = "oracle"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
