package audithook

// Action constants for audit events.
const (
	// Subscription actions
	ActionSubscriptionCreated     = "subscription.created"
	ActionSubscriptionActivated   = "subscription.activated"
	ActionSubscriptionRenewed     = "subscription.renewed"
	ActionSubscriptionGracePeriod = "subscription.grace_period"
	ActionSubscriptionTerminated  = "subscription.terminated"

	// Invoice actions
	ActionInvoiceCreated = "invoice.created"
	ActionInvoicePaid    = "invoice.paid"

	// Payment actions
	ActionPaymentRecorded = "payment.recorded"

	// Provisioning actions
	ActionActivationFailed = "activation.failed"
)

// Resource constants for audit events.
const (
	ResourceSubscription = "subscription"
	ResourceInvoice      = "invoice"
	ResourcePayment      = "payment"
)

// Category constants for audit events.
const (
	CategorySubscription = "subscription"
	CategoryBilling      = "billing"
	CategoryPayment      = "payment"
	CategoryProvisioning = "provisioning"
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
