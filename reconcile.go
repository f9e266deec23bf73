package xchpay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/invoice"
	"github.com/xraph/xchpay/payment"
	"github.com/xraph/xchpay/subscription"
	"github.com/xraph/xchpay/types"
)

// CheckForPayment polls the chain for transactions to an invoice's address,
// records every new confirmed one and settles the invoice once the amount
// paid covers the amount due. It is safe to call repeatedly and
// concurrently: a coin is credited to an invoice at most once.
func (e *Engine) CheckForPayment(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	if inv.IsPaid() {
		if err := e.resumeActivation(ctx, inv); err != nil {
			return nil, err
		}
		return inv, nil
	}

	if err := e.requireGateway(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}
	txs, err := e.gateway.ListTransactions(ctx, inv.PaymentAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrGatewayUnavailable, inv.PaymentAddress, err)
	}
	if txs == nil {
		return nil, fmt.Errorf("%w: no answer for %s", ErrGatewayUnavailable, inv.PaymentAddress)
	}

	currency := inv.TotalAmountDue.Currency
	now := e.now()
	confirmed := txs.Confirmed()
	candidates := make([]*payment.Payment, 0, len(confirmed))
	for _, tx := range confirmed {
		// The address was issued for this invoice, so its coins are
		// denominated in the invoice currency.
		candidates = append(candidates, &payment.Payment{
			InvoiceID:         inv.ID,
			CoinName:          tx.ID,
			Amount:            types.Money{Amount: tx.Amount.Amount, Currency: currency},
			Fee:               types.Money{Amount: tx.Fee.Amount, Currency: currency},
			ConfirmedAtHeight: tx.ConfirmedAtHeight,
			CreatedAt:         now,
		})
	}

	var (
		inserted []*payment.Payment
		recErr   error
	)
	if len(candidates) > 0 {
		inserted, recErr = e.store.RecordPayments(ctx, candidates)
	}

	// The amount paid is recomputed from the recorded payments on every
	// poll, so a credit lost after its rows were inserted is restored here.
	synced, err := e.store.SyncAmountPaid(ctx, inv.ID)
	if err != nil {
		e.logger.Error("amount paid not synced with recorded payments",
			"invoice_id", inv.ID.String(),
			"inserted", len(inserted),
			"error", err,
		)
		return nil, fmt.Errorf("%w: sync invoice %s: %w", ErrPersistence, inv.ID, err)
	}
	if !synced.AmountPaid.Equal(inv.AmountPaid) {
		e.logger.Info("amount paid updated",
			"invoice_id", inv.ID.String(),
			"amount_paid", synced.AmountPaid.String(),
			"amount_due", synced.TotalAmountDue.String(),
		)
	}
	inv = synced

	for _, p := range inserted {
		e.plugins.EmitPaymentRecorded(ctx, p)
	}
	if len(inserted) > 0 {
		e.logger.Info("payments recorded",
			"invoice_id", inv.ID.String(),
			"count", len(inserted),
		)
	}
	if recErr != nil {
		return nil, fmt.Errorf("%w: record payments: %w", ErrPersistence, recErr)
	}

	if !inv.IsSettled() {
		return inv, nil
	}

	if _, err := e.ConfirmPayment(ctx, inv.ID); err != nil {
		return nil, err
	}
	return e.store.GetInvoice(ctx, inv.ID)
}

// ConfirmPayment marks an invoice paid and activates its subscription. The
// paid transition is conditional, so when several reconcilers race on the
// same invoice exactly one of them activates; the others return the
// subscription id without side effects.
func (e *Engine) ConfirmPayment(ctx context.Context, invID id.InvoiceID) (id.SubscriptionID, error) {
	now := e.now()

	err := e.store.MarkInvoicePaid(ctx, invID, now)
	if err != nil && !errors.Is(err, ErrInvoicePaid) {
		return id.Nil, err
	}

	inv, getErr := e.store.GetInvoice(ctx, invID)
	if getErr != nil {
		return id.Nil, getErr
	}
	if err != nil {
		e.logger.Debug("invoice already settled", "invoice_id", invID.String())
		if err := e.resumeActivation(ctx, inv); err != nil {
			return id.Nil, err
		}
		return inv.SubscriptionID, nil
	}

	e.logger.Info("invoice paid",
		"invoice_id", invID.String(),
		"subscription_id", inv.SubscriptionID.String(),
		"amount_paid", inv.AmountPaid.String(),
	)
	e.plugins.EmitInvoicePaid(ctx, inv)

	sub, err := e.store.GetSubscription(ctx, inv.SubscriptionID)
	if err != nil {
		return id.Nil, err
	}

	switch sub.Status {
	case subscription.StatusPending:
		if err := e.activate(ctx, sub, subscription.StatusPending, false); err != nil {
			return id.Nil, err
		}

	case subscription.StatusGracePeriod:
		if err := e.activate(ctx, sub, subscription.StatusGracePeriod, true); err != nil {
			return id.Nil, err
		}

	case subscription.StatusActive:
		// A renewal invoice paid ahead of the end date.
		sub.EndDate = e.extend(sub.EndDate)
		if err := e.store.UpdateSubscription(ctx, sub); err != nil {
			return id.Nil, fmt.Errorf("%w: renew subscription: %w", ErrPersistence, err)
		}
		e.logger.Info("subscription renewed",
			"subscription_id", sub.ID.String(),
			"end_date", sub.EndDate,
		)
		e.plugins.EmitSubscriptionRenewed(ctx, sub)

	case subscription.StatusTerminated:
		e.logger.Warn("payment settled an invoice of a terminated subscription",
			"invoice_id", invID.String(),
			"subscription_id", sub.ID.String(),
		)
	}

	return sub.ID, nil
}

// resumeActivation finishes the activation of a subscription whose initial
// invoice is already paid but whose status write failed. A pending
// subscription only ever has its initial invoice, so a paid invoice means
// it is owed an activation; the guarded transition keeps it exactly-once.
func (e *Engine) resumeActivation(ctx context.Context, inv *invoice.Invoice) error {
	sub, err := e.store.GetSubscription(ctx, inv.SubscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != subscription.StatusPending {
		return nil
	}
	e.logger.Warn("resuming activation of subscription with a paid invoice",
		"invoice_id", inv.ID.String(),
		"subscription_id", sub.ID.String(),
	)
	return e.activate(ctx, sub, subscription.StatusPending, false)
}

// activate moves sub from the given status to active and dispatches its
// activation. Subscriptions coming back from grace_period also get a new
// billing period.
func (e *Engine) activate(ctx context.Context, sub *subscription.Subscription, from subscription.Status, renew bool) error {
	changed, err := e.store.SetSubscriptionStatus(ctx, sub.ID, from, subscription.StatusActive, e.now())
	if err != nil {
		return fmt.Errorf("%w: activate subscription: %w", ErrPersistence, err)
	}
	if !changed {
		e.logger.Debug("subscription status moved concurrently, skipping activation",
			"subscription_id", sub.ID.String(),
			"expected", string(from),
		)
		return nil
	}
	sub.Status = subscription.StatusActive

	if renew {
		fresh, err := e.store.GetSubscription(ctx, sub.ID)
		if err != nil {
			return err
		}
		fresh.EndDate = e.extend(fresh.EndDate)
		if err := e.store.UpdateSubscription(ctx, fresh); err != nil {
			return fmt.Errorf("%w: renew subscription: %w", ErrPersistence, err)
		}
		*sub = *fresh
		e.plugins.EmitSubscriptionRenewed(ctx, sub)
	}

	e.logger.Info("subscription activated",
		"subscription_id", sub.ID.String(),
		"command", string(sub.Activation.Command),
		"end_date", sub.EndDate,
	)

	if err := e.provisioner.Provision(ctx, sub.Activation, sub.ID); err != nil {
		e.logger.Error("activation dispatch failed",
			"subscription_id", sub.ID.String(),
			"command", string(sub.Activation.Command),
			"error", err,
		)
		e.plugins.EmitActivationFailed(ctx, sub.ID, sub.Activation, err)
	}

	e.plugins.EmitSubscriptionActivated(ctx, sub)
	return nil
}

// ReconcileUnpaid runs CheckForPayment for every unpaid invoice. The
// returned error reports only a failure to list invoices; per-invoice
// failures are in the result.
func (e *Engine) ReconcileUnpaid(ctx context.Context) (*BatchResult, error) {
	invs, err := e.store.ListInvoices(ctx, invoice.ListOpts{Status: invoice.StatusUnpaid})
	if err != nil {
		return &BatchResult{}, fmt.Errorf("%w: list unpaid invoices: %w", ErrPersistence, err)
	}

	res := fanOut(ctx, e.config.BatchConcurrency, invs, func(ctx context.Context, inv *invoice.Invoice) error {
		if _, err := e.CheckForPayment(ctx, inv.ID); err != nil {
			e.logger.Error("check for payment failed",
				"invoice_id", inv.ID.String(),
				"error", err,
			)
			return fmt.Errorf("invoice %s: %w", inv.ID, err)
		}
		return nil
	})
	return res, nil
}

// ResumePendingActivations finds pending subscriptions whose invoice is
// already paid and finishes their activation. ReconcileUnpaid never lists
// such invoices again, so the poll job runs this after it.
func (e *Engine) ResumePendingActivations(ctx context.Context) (*BatchResult, error) {
	subs, err := e.store.ListSubscriptions(ctx, subscription.ListOpts{Status: subscription.StatusPending})
	if err != nil {
		return &BatchResult{}, fmt.Errorf("%w: list pending subscriptions: %w", ErrPersistence, err)
	}

	var resumed atomic.Int64
	res := fanOut(ctx, e.config.BatchConcurrency, subs, func(ctx context.Context, sub *subscription.Subscription) error {
		paid, err := e.store.ListInvoices(ctx, invoice.ListOpts{
			SubscriptionID: sub.ID,
			Status:         invoice.StatusPaid,
			Limit:          1,
		})
		if err != nil {
			return fmt.Errorf("subscription %s: %w: list paid invoices: %w", sub.ID, ErrPersistence, err)
		}
		if len(paid) == 0 {
			return nil
		}
		if err := e.resumeActivation(ctx, paid[0]); err != nil {
			e.logger.Error("resume activation failed",
				"subscription_id", sub.ID.String(),
				"error", err,
			)
			return fmt.Errorf("subscription %s: %w", sub.ID, err)
		}
		resumed.Add(1)
		return nil
	})
	res.Changed = int(resumed.Load())
	return res, nil
}
