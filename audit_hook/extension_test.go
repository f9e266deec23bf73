package audithook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/invoice"
	"github.com/xraph/xchpay/payment"
	"github.com/xraph/xchpay/subscription"
	"github.com/xraph/xchpay/types"
)

type memRecorder struct {
	mu     sync.Mutex
	events []*AuditEvent
	err    error
}

func (r *memRecorder) Record(_ context.Context, evt *AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return r.err
}

func (r *memRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExtension_RecordsEvents(t *testing.T) {
	rec := &memRecorder{}
	ext := New(rec, quiet())
	ctx := context.Background()

	sub := &subscription.Subscription{
		ID:         id.NewSubscriptionID(),
		UserID:     "alice",
		ProductKey: "node-small",
		Activation: subscription.Activation{Command: subscription.CommandProvisionNode},
	}
	inv := &invoice.Invoice{
		ID:             id.NewInvoiceID(),
		SubscriptionID: sub.ID,
		TotalAmountDue: types.XCH(10),
		AmountPaid:     types.XCH(10),
		PaymentAddress: "txch1q1",
	}
	pay := &payment.Payment{InvoiceID: inv.ID, CoinName: "coin-1", Amount: types.XCH(10), ConfirmedAtHeight: 42}

	_ = ext.OnSubscriptionCreated(ctx, sub)
	_ = ext.OnInvoiceCreated(ctx, inv)
	_ = ext.OnPaymentRecorded(ctx, pay)
	_ = ext.OnInvoicePaid(ctx, inv)
	_ = ext.OnSubscriptionActivated(ctx, sub)
	_ = ext.OnActivationFailed(ctx, sub.ID, sub.Activation, errors.New("region full"))

	want := []string{
		ActionSubscriptionCreated,
		ActionInvoiceCreated,
		ActionPaymentRecorded,
		ActionInvoicePaid,
		ActionSubscriptionActivated,
		ActionActivationFailed,
	}
	got := rec.actions()
	if len(got) != len(want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("actions[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	payEvt := rec.events[2]
	if payEvt.ResourceID != inv.ID.String()+"/coin-1" {
		t.Errorf("payment resource id = %s", payEvt.ResourceID)
	}
	if payEvt.Metadata["amount"] != "10 XCH" {
		t.Errorf("payment amount = %v", payEvt.Metadata["amount"])
	}

	failed := rec.events[5]
	if failed.Outcome != OutcomeFailure || failed.Severity != SeverityCritical {
		t.Errorf("activation failure outcome/severity = %s/%s", failed.Outcome, failed.Severity)
	}
	if failed.Reason != "region full" {
		t.Errorf("reason = %q", failed.Reason)
	}
}

func TestExtension_ActionFilters(t *testing.T) {
	ctx := context.Background()
	sub := &subscription.Subscription{ID: id.NewSubscriptionID()}

	rec := &memRecorder{}
	ext := New(rec, quiet(), WithEnabledActions(ActionSubscriptionTerminated))
	_ = ext.OnSubscriptionCreated(ctx, sub)
	_ = ext.OnSubscriptionTerminated(ctx, sub)
	if got := rec.actions(); len(got) != 1 || got[0] != ActionSubscriptionTerminated {
		t.Errorf("enabled filter: actions = %v", got)
	}

	rec = &memRecorder{}
	ext = New(rec, quiet(), WithDisabledActions(ActionSubscriptionCreated))
	_ = ext.OnSubscriptionCreated(ctx, sub)
	_ = ext.OnSubscriptionGracePeriod(ctx, sub)
	if got := rec.actions(); len(got) != 1 || got[0] != ActionSubscriptionGracePeriod {
		t.Errorf("disabled filter: actions = %v", got)
	}
}

func TestExtension_RecorderErrorIsSwallowed(t *testing.T) {
	rec := &memRecorder{err: errors.New("audit store down")}
	ext := New(rec, quiet())

	if err := ext.OnSubscriptionRenewed(context.Background(), &subscription.Subscription{ID: id.NewSubscriptionID()}); err != nil {
		t.Fatalf("OnSubscriptionRenewed returned %v", err)
	}
}
