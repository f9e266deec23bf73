package observability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/invoice"
	"github.com/xraph/xchpay/payment"
	"github.com/xraph/xchpay/provision"
	"github.com/xraph/xchpay/subscription"
	"github.com/xraph/xchpay/types"
)

func newTestExtension(t *testing.T) (*MetricsExtension, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetricsExtension(NewPrometheusFactory(reg)), reg
}

func counterValue(t *testing.T, c Counter) float64 {
	t.Helper()
	pc, ok := c.(prometheus.Counter)
	require.True(t, ok)
	return testutil.ToFloat64(pc)
}

func TestMetricsExtension_SubscriptionHooks(t *testing.T) {
	m, _ := newTestExtension(t)
	ctx := context.Background()
	sub := &subscription.Subscription{ID: id.NewSubscriptionID()}

	require.NoError(t, m.OnSubscriptionCreated(ctx, sub))
	require.NoError(t, m.OnSubscriptionCreated(ctx, sub))
	require.NoError(t, m.OnSubscriptionActivated(ctx, sub))
	require.NoError(t, m.OnSubscriptionRenewed(ctx, sub))
	require.NoError(t, m.OnSubscriptionGracePeriod(ctx, sub))
	require.NoError(t, m.OnSubscriptionTerminated(ctx, sub))

	assert.InDelta(t, 2, counterValue(t, m.SubscriptionCreated), 0)
	assert.InDelta(t, 1, counterValue(t, m.SubscriptionActivated), 0)
	assert.InDelta(t, 1, counterValue(t, m.SubscriptionRenewed), 0)
	assert.InDelta(t, 1, counterValue(t, m.SubscriptionGracePeriod), 0)
	assert.InDelta(t, 1, counterValue(t, m.SubscriptionTerminated), 0)
}

func TestMetricsExtension_InvoiceHooks(t *testing.T) {
	m, reg := newTestExtension(t)
	ctx := context.Background()

	inv := &invoice.Invoice{TotalAmountDue: types.XCH(10), AmountPaid: types.XCH(10)}
	require.NoError(t, m.OnInvoiceCreated(ctx, inv))
	require.NoError(t, m.OnInvoicePaid(ctx, inv))

	over := &invoice.Invoice{TotalAmountDue: types.XCH(10), AmountPaid: types.XCH(11)}
	require.NoError(t, m.OnInvoicePaid(ctx, over))

	assert.InDelta(t, 1, counterValue(t, m.InvoiceCreated), 0)
	assert.InDelta(t, 2, counterValue(t, m.InvoicePaid), 0)
	assert.InDelta(t, 1, counterValue(t, m.InvoiceOverpaid), 0)

	n, err := testutil.GatherAndCount(reg, "xchpay_invoice_amount_due_xch")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetricsExtension_PaymentAndActivation(t *testing.T) {
	m, _ := newTestExtension(t)
	ctx := context.Background()

	require.NoError(t, m.OnPaymentRecorded(ctx, &payment.Payment{Amount: types.Mojos(250_000_000_000)}))
	assert.InDelta(t, 1, counterValue(t, m.PaymentRecorded), 0)

	subID := id.NewSubscriptionID()
	act := subscription.Activation{Command: subscription.CommandProvisionNode}
	require.NoError(t, m.OnActivationFailed(ctx, subID, act, errors.New("region full")))
	require.NoError(t, m.OnActivationFailed(ctx, subID, act, fmt.Errorf("dispatch: %w", provision.ErrNoHandler)))

	assert.InDelta(t, 2, counterValue(t, m.ActivationFailed), 0)
	assert.InDelta(t, 1, counterValue(t, m.ActivationUnhandled), 0)
}

func TestPrometheusFactory_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	a := NewPrometheusFactory(reg).Counter("xchpay.invoice.paid")
	b := NewPrometheusFactory(reg).Counter("xchpay.invoice.paid")
	a.Inc()
	b.Inc()

	assert.InDelta(t, 2, counterValue(t, a), 0)

	f := NewPrometheusFactory(reg)
	assert.Same(t, f.Histogram("xchpay.payment.amount_xch"), f.Histogram("xchpay.payment.amount_xch"))
}

func TestMetricName(t *testing.T) {
	assert.Equal(t, "xchpay_subscription_grace_period", metricName("xchpay.subscription.grace_period"))
	assert.Equal(t, "observability_metrics", metricName("observability-metrics"))
}
