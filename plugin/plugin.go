// Package plugin provides an extensible plugin system for xchpay.
// Plugins can hook into subscription, invoice, and payment events to extend
// the billing engine without touching its core flow.
package plugin

import (
	"context"

	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/invoice"
	"github.com/xraph/xchpay/payment"
	"github.com/xraph/xchpay/subscription"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated is called after a pending subscription is stored.
type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionActivated is called when a settled invoice activates a subscription.
type OnSubscriptionActivated interface {
	Plugin
	OnSubscriptionActivated(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionRenewed is called when a subscription's end date is extended.
type OnSubscriptionRenewed interface {
	Plugin
	OnSubscriptionRenewed(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionGracePeriod is called when an active subscription reaches its
// end date and enters the grace period.
type OnSubscriptionGracePeriod interface {
	Plugin
	OnSubscriptionGracePeriod(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionTerminated is called when a subscription is terminated.
type OnSubscriptionTerminated interface {
	Plugin
	OnSubscriptionTerminated(ctx context.Context, sub *subscription.Subscription) error
}

// ──────────────────────────────────────────────────
// Invoice and payment hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated is called after an invoice is stored.
type OnInvoiceCreated interface {
	Plugin
	OnInvoiceCreated(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoicePaid is called exactly once per invoice, when it flips to paid.
type OnInvoicePaid interface {
	Plugin
	OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error
}

// OnPaymentRecorded is called for every newly ingested payment.
type OnPaymentRecorded interface {
	Plugin
	OnPaymentRecorded(ctx context.Context, p *payment.Payment) error
}

// OnActivationFailed is called when dispatching a subscription's activation
// command fails after its invoice was settled.
type OnActivationFailed interface {
	Plugin
	OnActivationFailed(ctx context.Context, subID id.SubscriptionID, act subscription.Activation, err error) error
}
