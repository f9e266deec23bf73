package xchpay_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/xchpay"
	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/invoice"
	"github.com/xraph/xchpay/payment"
	"github.com/xraph/xchpay/store"
	"github.com/xraph/xchpay/subscription"
	"github.com/xraph/xchpay/types"
)

// assertConserved checks that the invoice's amount paid equals the sum of
// its recorded payments.
func assertConserved(t *testing.T, h *harness, invID id.InvoiceID) {
	t.Helper()
	ctx := context.Background()

	inv, err := h.engine.GetInvoice(ctx, invID)
	require.NoError(t, err)
	payments, err := h.engine.ListPayments(ctx, invID)
	require.NoError(t, err)

	total := payment.Total(inv.TotalAmountDue.Currency, payments)
	assert.True(t, inv.AmountPaid.Equal(total),
		"amount paid %s != recorded payments %s", inv.AmountPaid, total)
}

var errConnReset = errors.New("connection reset")

// flakyStore fails selected writes a fixed number of times before passing
// them through to the wrapped store. Status writes are keyed by their target
// status: fail returns an error, lose reports a lost race without writing.
type flakyStore struct {
	store.Store

	mu       sync.Mutex
	failSync int
	fail     map[subscription.Status]int
	lose     map[subscription.Status]int
}

func (f *flakyStore) take(counts map[subscription.Status]int, to subscription.Status) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if counts[to] == 0 {
		return false
	}
	counts[to]--
	return true
}

func (f *flakyStore) SyncAmountPaid(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	f.mu.Lock()
	fail := f.failSync > 0
	if fail {
		f.failSync--
	}
	f.mu.Unlock()
	if fail {
		return nil, errConnReset
	}
	return f.Store.SyncAmountPaid(ctx, invID)
}

func (f *flakyStore) SetSubscriptionStatus(ctx context.Context, subID id.SubscriptionID, from, to subscription.Status, at time.Time) (bool, error) {
	if f.take(f.fail, to) {
		return false, errConnReset
	}
	if f.take(f.lose, to) {
		return false, nil
	}
	return f.Store.SetSubscriptionStatus(ctx, subID, from, to, at)
}

// newFlakyHarness returns a harness whose store is wrapped by f.
func newFlakyHarness(t *testing.T, f *flakyStore, opts ...xchpay.Option) *harness {
	t.Helper()
	return newWrappedHarness(t, func(s store.Store) store.Store {
		f.Store = s
		return f
	}, opts...)
}

func TestCheckForPayment_InstallmentsSettleOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub, inv := h.subscribe(t)

	got := h.pay(t, inv, "coin-1", types.XCH(6))
	assert.Equal(t, invoice.StatusUnpaid, got.Status)
	assert.True(t, got.AmountPaid.Equal(types.XCH(6)))
	assert.Empty(t, h.provision.Calls())
	assertConserved(t, h, inv.ID)

	s, err := h.engine.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPending, s.Status)

	got = h.pay(t, inv, "coin-2", types.XCH(5))
	assert.Equal(t, invoice.StatusPaid, got.Status)
	assert.True(t, got.AmountPaid.Equal(types.XCH(11)), "overpayment is kept as paid")
	require.NotNil(t, got.PaidAt)
	assert.Equal(t, testStart, *got.PaidAt)
	assertConserved(t, h, inv.ID)

	s, err = h.engine.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, s.Status)

	calls := h.provision.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, sub.ID.String(), calls[0].SubID.String())
	assert.Equal(t, subscription.CommandProvisionNode, calls[0].Activation.Command)
	assert.Equal(t, "eu-west", calls[0].Activation.Params.Region)

	assert.Equal(t, 1, h.hooks.Count("invoice_paid"))
	assert.Equal(t, 1, h.hooks.Count("subscription_activated"))
	assert.Equal(t, 0, h.hooks.Count("subscription_renewed"))
}

func TestCheckForPayment_PaidInvoiceIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, inv := h.subscribe(t)

	paid := h.pay(t, inv, "coin-1", types.XCH(10))
	require.Equal(t, invoice.StatusPaid, paid.Status)
	listed := h.gateway.ListCalls(inv.PaymentAddress)

	// A late coin must not be credited to a paid invoice.
	h.gateway.Deposit(inv.PaymentAddress, "coin-late", types.XCH(3), true)

	again, err := h.engine.CheckForPayment(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, again.Status)
	assert.True(t, again.AmountPaid.Equal(paid.AmountPaid))
	assert.Equal(t, listed, h.gateway.ListCalls(inv.PaymentAddress), "paid invoices are not polled")

	payments, err := h.engine.ListPayments(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.Len(t, h.provision.Calls(), 1)
	assert.Equal(t, 1, h.hooks.Count("subscription_activated"))
}

func TestCheckForPayment_SameTransactionTwice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, inv := h.subscribe(t)

	h.gateway.Deposit(inv.PaymentAddress, "coin-1", types.XCH(4), true)

	for range 2 {
		got, err := h.engine.CheckForPayment(ctx, inv.ID)
		require.NoError(t, err)
		assert.True(t, got.AmountPaid.Equal(types.XCH(4)))
	}

	payments, err := h.engine.ListPayments(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "coin-1", payments[0].CoinName)
	assert.Equal(t, uint64(1), payments[0].ConfirmedAtHeight)
	assertConserved(t, h, inv.ID)
}

func TestCheckForPayment_ConcurrentPolls(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, inv := h.subscribe(t)

	h.gateway.Deposit(inv.PaymentAddress, "coin-1", types.XCH(3), true)
	h.gateway.Deposit(inv.PaymentAddress, "coin-2", types.XCH(3), true)
	h.gateway.Deposit(inv.PaymentAddress, "coin-3", types.XCH(4), true)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.engine.CheckForPayment(ctx, inv.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := h.engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, got.Status)
	assert.True(t, got.AmountPaid.Equal(types.XCH(10)))
	assertConserved(t, h, inv.ID)

	assert.Len(t, h.provision.Calls(), 1)
	assert.Equal(t, 1, h.hooks.Count("invoice_paid"))
	assert.Equal(t, 1, h.hooks.Count("subscription_activated"))
}

func TestCheckForPayment_LostCreditIsRestored(t *testing.T) {
	h := newFlakyHarness(t, &flakyStore{failSync: 1})
	ctx := context.Background()
	sub, inv := h.subscribe(t)

	h.gateway.Deposit(inv.PaymentAddress, "coin-1", types.XCH(10), true)

	_, err := h.engine.CheckForPayment(ctx, inv.ID)
	require.ErrorIs(t, err, xchpay.ErrPersistence)
	require.ErrorIs(t, err, errConnReset)

	payments, err := h.engine.ListPayments(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1, "the coin row survives the failed credit")

	got, err := h.engine.CheckForPayment(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, got.Status)
	assert.True(t, got.AmountPaid.Equal(types.XCH(10)))
	assertConserved(t, h, inv.ID)

	s, err := h.engine.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, s.Status)
	assert.Len(t, h.provision.Calls(), 1)
}

func TestCheckForPayment_ResumesActivationOfPaidInvoice(t *testing.T) {
	h := newFlakyHarness(t, &flakyStore{
		fail: map[subscription.Status]int{subscription.StatusActive: 1},
	})
	ctx := context.Background()
	sub, inv := h.subscribe(t)

	h.gateway.Deposit(inv.PaymentAddress, "coin-1", types.XCH(10), true)

	_, err := h.engine.CheckForPayment(ctx, inv.ID)
	require.ErrorIs(t, err, errConnReset)

	got, err := h.engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, invoice.StatusPaid, got.Status)
	s, err := h.engine.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, subscription.StatusPending, s.Status)
	assert.Empty(t, h.provision.Calls())

	got, err = h.engine.CheckForPayment(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, got.Status)

	s, err = h.engine.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, s.Status)
	assert.Len(t, h.provision.Calls(), 1)
	assert.Equal(t, 1, h.hooks.Count("subscription_activated"))
	assert.Equal(t, 1, h.hooks.Count("invoice_paid"))

	// Further polls and confirmations leave the activation alone.
	_, err = h.engine.CheckForPayment(ctx, inv.ID)
	require.NoError(t, err)
	_, err = h.engine.ConfirmPayment(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, h.provision.Calls(), 1)
}

func TestResumePendingActivations(t *testing.T) {
	h := newFlakyHarness(t, &flakyStore{
		fail: map[subscription.Status]int{subscription.StatusActive: 1},
	})
	ctx := context.Background()
	stuck, inv := h.subscribe(t)
	waiting, _ := h.subscribe(t)

	h.gateway.Deposit(inv.PaymentAddress, "coin-1", types.XCH(10), true)
	res, err := h.engine.ReconcileUnpaid(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed())

	// The paid invoice is no longer polled.
	res, err = h.engine.ReconcileUnpaid(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scanned)

	res, err = h.engine.ResumePendingActivations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 1, res.Changed)
	assert.Equal(t, 0, res.Failed())

	s, err := h.engine.GetSubscription(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, s.Status)
	s, err = h.engine.GetSubscription(ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPending, s.Status)
	assert.Len(t, h.provision.Calls(), 1)

	res, err = h.engine.ResumePendingActivations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, 0, res.Changed)
}

func TestConfirmPayment_ResumesActivation(t *testing.T) {
	h := newFlakyHarness(t, &flakyStore{
		fail: map[subscription.Status]int{subscription.StatusActive: 1},
	})
	ctx := context.Background()
	sub, inv := h.subscribe(t)

	_, err := h.engine.ConfirmPayment(ctx, inv.ID)
	require.ErrorIs(t, err, xchpay.ErrPersistence)

	subID, err := h.engine.ConfirmPayment(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID.String(), subID.String())

	s, err := h.engine.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, s.Status)
	assert.Len(t, h.provision.Calls(), 1)
}

func TestCheckForPayment_IgnoresUnconfirmed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, inv := h.subscribe(t)

	h.gateway.Deposit(inv.PaymentAddress, "coin-1", types.XCH(10), false)

	got, err := h.engine.CheckForPayment(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusUnpaid, got.Status)
	assert.True(t, got.AmountPaid.IsZero())

	require.True(t, h.gateway.Confirm(inv.PaymentAddress, "coin-1"))

	got, err = h.engine.CheckForPayment(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, got.Status)
	assertConserved(t, h, inv.ID)
}

func TestCheckForPayment_EmptyListIsValid(t *testing.T) {
	h := newHarness(t)
	_, inv := h.subscribe(t)

	got, err := h.engine.CheckForPayment(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusUnpaid, got.Status)
	assert.True(t, got.AmountPaid.IsZero())
}

func TestCheckForPayment_GatewayUnavailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, inv := h.subscribe(t)

	h.gateway.Deposit(inv.PaymentAddress, "coin-1", types.XCH(10), true)
	h.gateway.SetOffline(true)

	_, err := h.engine.CheckForPayment(ctx, inv.ID)
	require.ErrorIs(t, err, xchpay.ErrGatewayUnavailable)
	assert.True(t, xchpay.IsRetryable(err))

	payments, err := h.engine.ListPayments(ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)

	h.gateway.SetOffline(false)
	got, err := h.engine.CheckForPayment(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, got.Status)
}

func TestCheckForPayment_UnknownInvoice(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.CheckForPayment(context.Background(), id.NewInvoiceID())
	require.ErrorIs(t, err, xchpay.ErrInvoiceNotFound)
}

func TestConfirmPayment(t *testing.T) {
	t.Run("unknown invoice", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine.ConfirmPayment(context.Background(), id.NewInvoiceID())
		require.ErrorIs(t, err, xchpay.ErrInvoiceNotFound)
	})

	t.Run("second confirmation does not re-activate", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		sub, inv := h.subscribe(t)

		subID, err := h.engine.ConfirmPayment(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, sub.ID.String(), subID.String())

		subID, err = h.engine.ConfirmPayment(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, sub.ID.String(), subID.String())

		assert.Len(t, h.provision.Calls(), 1)
		assert.Equal(t, 1, h.hooks.Count("subscription_activated"))
	})

	t.Run("missing subscription", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		p, err := testCatalog(t).Get("support")
		require.NoError(t, err)

		inv, err := h.engine.CreateInvoice(ctx, "bob", id.NewSubscriptionID(), p)
		require.NoError(t, err)

		_, err = h.engine.ConfirmPayment(ctx, inv.ID)
		require.ErrorIs(t, err, xchpay.ErrSubscriptionNotFound)
	})

	t.Run("activation failure is reported, not returned", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		sub, inv := h.subscribe(t)
		h.provision.Fail(errors.New("region full"))

		subID, err := h.engine.ConfirmPayment(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, sub.ID.String(), subID.String())

		s, err := h.engine.GetSubscription(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, s.Status)
		assert.Equal(t, 1, h.hooks.Count("activation_failed"))

		got, err := h.engine.GetInvoice(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, invoice.StatusPaid, got.Status)
	})

	t.Run("terminated subscription stays terminated", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		sub, inv := h.subscribe(t)

		_, err := h.engine.TerminateSubscription(ctx, sub.ID)
		require.NoError(t, err)

		_, err = h.engine.ConfirmPayment(ctx, inv.ID)
		require.NoError(t, err)

		s, err := h.engine.GetSubscription(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusTerminated, s.Status)
		assert.Empty(t, h.provision.Calls())
	})
}

func TestReconcileUnpaid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var invs []*invoice.Invoice
	for i := range 5 {
		_, inv := h.subscribe(t)
		if i%2 == 0 {
			h.gateway.Deposit(inv.PaymentAddress, fmt.Sprintf("coin-%d", i), types.XCH(10), true)
		}
		invs = append(invs, inv)
	}

	res, err := h.engine.ReconcileUnpaid(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Scanned)
	assert.Equal(t, 5, res.Succeeded)
	assert.Equal(t, 0, res.Failed())
	require.NoError(t, res.Err())

	for i, inv := range invs {
		got, err := h.engine.GetInvoice(ctx, inv.ID)
		require.NoError(t, err)
		if i%2 == 0 {
			assert.Equal(t, invoice.StatusPaid, got.Status)
		} else {
			assert.Equal(t, invoice.StatusUnpaid, got.Status)
		}
		assertConserved(t, h, inv.ID)
	}
	assert.Len(t, h.provision.Calls(), 3)

	// Only the two unpaid invoices are scanned on the next run.
	res, err = h.engine.ReconcileUnpaid(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scanned)
}

func TestReconcileUnpaid_CollectsFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for range 3 {
		h.subscribe(t)
	}
	h.gateway.SetOffline(true)

	res, err := h.engine.ReconcileUnpaid(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 3, res.Failed())
	assert.Equal(t, 0, res.Succeeded)
	require.ErrorIs(t, res.Err(), xchpay.ErrGatewayUnavailable)
}
