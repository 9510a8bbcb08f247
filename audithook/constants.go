package audithook

// Action constants for audit events.
const (
	// Consumption actions
	ActionMealServed   = "meal.served"
	ActionMealInPeriod = "meal.served_in_period"
	ActionMealIntoDebt = "meal.served_into_debt"

	// Balance actions
	ActionTokensAdded     = "tokens.added"
	ActionBalanceAdjusted = "balance.adjusted"

	// Payment actions
	ActionPaymentIssued = "payment.issued"
	ActionReceiptSent   = "receipt.sent"
	ActionReceiptFailed = "receipt.failed"

	// Period actions
	ActionPeriodAssigned  = "period.assigned"
	ActionPeriodRemoved   = "period.removed"
	ActionPeriodActivated = "period.activated"
	ActionPeriodExpired   = "period.expired"

	// Sweep actions
	ActionSweepCompleted = "sweep.completed"
)

// Resource constants for audit events.
const (
	ResourceAccount = "account"
	ResourceEntry   = "entry"
	ResourcePayment = "payment"
	ResourcePeriod  = "period"
	ResourceSweep   = "sweep"
)

// Category constants for audit events.
const (
	CategoryConsumption = "consumption"
	CategoryBalance     = "balance"
	CategoryPayment     = "payment"
	CategoryPeriod      = "period"
	CategoryOperations  = "operations"
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
	OutcomePartial = "partial"
)
