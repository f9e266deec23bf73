// Package observability provides a metrics extension for xchpay that records
// billing lifecycle event counts via a MetricFactory.
package observability

import (
	"context"
	"errors"

	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/invoice"
	"github.com/xraph/xchpay/payment"
	"github.com/xraph/xchpay/plugin"
	"github.com/xraph/xchpay/provision"
	"github.com/xraph/xchpay/subscription"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                    = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCreated     = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionActivated   = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionRenewed     = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionGracePeriod = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionTerminated  = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCreated          = (*MetricsExtension)(nil)
	_ plugin.OnInvoicePaid             = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRecorded         = (*MetricsExtension)(nil)
	_ plugin.OnActivationFailed        = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide billing metrics.
// Register it as an xchpay plugin to automatically track them.
type MetricsExtension struct {
	factory MetricFactory

	// Subscription metrics
	SubscriptionCreated     Counter
	SubscriptionActivated   Counter
	SubscriptionRenewed     Counter
	SubscriptionGracePeriod Counter
	SubscriptionTerminated  Counter

	// Invoice metrics
	InvoiceCreated   Counter
	InvoicePaid      Counter
	InvoiceAmountDue Histogram
	InvoiceOverpaid  Counter

	// Payment metrics
	PaymentRecorded Counter
	PaymentAmount   Histogram

	// Activation metrics
	ActivationFailed    Counter
	ActivationUnhandled Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions, or NewPrometheusFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		SubscriptionCreated:     factory.Counter("xchpay.subscription.created"),
		SubscriptionActivated:   factory.Counter("xchpay.subscription.activated"),
		SubscriptionRenewed:     factory.Counter("xchpay.subscription.renewed"),
		SubscriptionGracePeriod: factory.Counter("xchpay.subscription.grace_period"),
		SubscriptionTerminated:  factory.Counter("xchpay.subscription.terminated"),

		InvoiceCreated:   factory.Counter("xchpay.invoice.created"),
		InvoicePaid:      factory.Counter("xchpay.invoice.paid"),
		InvoiceAmountDue: factory.Histogram("xchpay.invoice.amount_due_xch"),
		InvoiceOverpaid:  factory.Counter("xchpay.invoice.overpaid"),

		PaymentRecorded: factory.Counter("xchpay.payment.recorded"),
		PaymentAmount:   factory.Histogram("xchpay.payment.amount_xch"),

		ActivationFailed:    factory.Counter("xchpay.activation.failed"),
		ActivationUnhandled: factory.Counter("xchpay.activation.unhandled"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (m *MetricsExtension) OnSubscriptionCreated(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCreated.Inc()
	return nil
}

// OnSubscriptionActivated implements plugin.OnSubscriptionActivated.
func (m *MetricsExtension) OnSubscriptionActivated(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionActivated.Inc()
	return nil
}

// OnSubscriptionRenewed implements plugin.OnSubscriptionRenewed.
func (m *MetricsExtension) OnSubscriptionRenewed(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionRenewed.Inc()
	return nil
}

// OnSubscriptionGracePeriod implements plugin.OnSubscriptionGracePeriod.
func (m *MetricsExtension) OnSubscriptionGracePeriod(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionGracePeriod.Inc()
	return nil
}

// OnSubscriptionTerminated implements plugin.OnSubscriptionTerminated.
func (m *MetricsExtension) OnSubscriptionTerminated(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionTerminated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Invoice and payment hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (m *MetricsExtension) OnInvoiceCreated(_ context.Context, inv *invoice.Invoice) error {
	m.InvoiceCreated.Inc()
	m.InvoiceAmountDue.Observe(inv.TotalAmountDue.Decimal().InexactFloat64())
	return nil
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (m *MetricsExtension) OnInvoicePaid(_ context.Context, inv *invoice.Invoice) error {
	m.InvoicePaid.Inc()
	if inv.AmountPaid.Amount > inv.TotalAmountDue.Amount {
		m.InvoiceOverpaid.Inc()
	}
	return nil
}

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (m *MetricsExtension) OnPaymentRecorded(_ context.Context, p *payment.Payment) error {
	m.PaymentRecorded.Inc()
	m.PaymentAmount.Observe(p.Amount.Decimal().InexactFloat64())
	return nil
}

// OnActivationFailed implements plugin.OnActivationFailed.
func (m *MetricsExtension) OnActivationFailed(_ context.Context, _ id.SubscriptionID, _ subscription.Activation, err error) error {
	m.ActivationFailed.Inc()
	if errors.Is(err, provision.ErrNoHandler) {
		m.ActivationUnhandled.Inc()
	}
	return nil
}
