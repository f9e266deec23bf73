package xchpay

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/invoice"
	"github.com/xraph/xchpay/subscription"
	"github.com/xraph/xchpay/types"
)

// windowSlack widens the inclusive upper bound of the expiration window
// past storage timestamp precision.
const windowSlack = time.Millisecond

// CreateSubscription creates a pending subscription to a catalog product and
// issues its first invoice. When invoicing fails the subscription is kept
// and returned together with the error; CreateInvoice can be retried.
func (e *Engine) CreateSubscription(ctx context.Context, userID, productKey string, params subscription.Params) (*subscription.Subscription, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, ValidationError{Field: "user_id", Message: "required"})
	}

	p, err := e.lookupProduct(productKey)
	if err != nil {
		return nil, err
	}

	act := p.Activation(params)
	if err := act.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidActivation, err)
	}

	now := e.now()
	sub := &subscription.Subscription{
		Entity:     types.NewEntityAt(now),
		ID:         id.NewSubscriptionID(),
		UserID:     userID,
		ProductKey: p.Key,
		StartDate:  now,
		EndDate:    e.extend(now),
		Status:     subscription.StatusPending,
		Activation: act,
	}

	if err := e.store.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("%w: create subscription: %w", ErrPersistence, err)
	}

	e.logger.Info("subscription created",
		"subscription_id", sub.ID.String(),
		"user_id", userID,
		"product", p.Key,
	)
	e.plugins.EmitSubscriptionCreated(ctx, sub)

	if _, err := e.CreateInvoice(ctx, userID, sub.ID, p); err != nil {
		e.logger.Error("initial invoice failed",
			"subscription_id", sub.ID.String(),
			"error", err,
		)
		return sub, fmt.Errorf("xchpay: invoice subscription %s: %w", sub.ID, err)
	}

	return sub, nil
}

// RenewSubscription extends a subscription's end date by one billing
// period. Terminated subscriptions cannot be renewed.
func (e *Engine) RenewSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.Status == subscription.StatusTerminated {
		return nil, ErrAlreadyTerminated
	}

	sub.EndDate = e.extend(sub.EndDate)
	sub.TouchAt(e.now())
	if err := e.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("%w: renew subscription: %w", ErrPersistence, err)
	}

	e.logger.Info("subscription renewed",
		"subscription_id", sub.ID.String(),
		"end_date", sub.EndDate,
	)
	e.plugins.EmitSubscriptionRenewed(ctx, sub)

	return sub, nil
}

// TerminateSubscription terminates a subscription from any status.
// Terminating an already terminated subscription is a no-op. A concurrent
// status change only causes a re-read; termination wins in the end.
func (e *Engine) TerminateSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sub, err := e.store.GetSubscription(ctx, subID)
		if err != nil {
			return nil, err
		}
		if sub.Status == subscription.StatusTerminated {
			return sub, nil
		}

		changed, err := e.store.SetSubscriptionStatus(ctx, subID, sub.Status, subscription.StatusTerminated, e.now())
		if err != nil {
			return nil, fmt.Errorf("%w: terminate subscription: %w", ErrPersistence, err)
		}
		if !changed {
			e.logger.Debug("subscription status moved during termination, retrying",
				"subscription_id", subID.String(),
				"seen", string(sub.Status),
			)
			continue
		}

		sub.Status = subscription.StatusTerminated
		e.logger.Info("subscription terminated", "subscription_id", subID.String())
		e.plugins.EmitSubscriptionTerminated(ctx, sub)
		return sub, nil
	}
}

// CheckSubscriptionsForExpiration finds active subscriptions ending within
// the expiration window, makes sure each has an unpaid renewal invoice and
// sends an expiration notice. A renewal invoice already issued inside the
// window is reused instead of issuing another one.
func (e *Engine) CheckSubscriptionsForExpiration(ctx context.Context) (*BatchResult, error) {
	now := e.now()
	subs, err := e.store.ListSubscriptions(ctx, subscription.ListOpts{
		Status:    subscription.StatusActive,
		EndFrom:   now,
		EndBefore: now.Add(e.config.ExpirationWindow + windowSlack),
	})
	if err != nil {
		return &BatchResult{}, fmt.Errorf("%w: list expiring subscriptions: %w", ErrPersistence, err)
	}

	res := fanOut(ctx, e.config.BatchConcurrency, subs, func(ctx context.Context, sub *subscription.Subscription) error {
		if err := e.warnExpiring(ctx, sub); err != nil {
			e.logger.Error("expiration check failed",
				"subscription_id", sub.ID.String(),
				"error", err,
			)
			return fmt.Errorf("subscription %s: %w", sub.ID, err)
		}
		return nil
	})
	return res, nil
}

func (e *Engine) warnExpiring(ctx context.Context, sub *subscription.Subscription) error {
	inv, err := e.renewalInvoice(ctx, sub)
	if err != nil {
		return err
	}
	e.notify(ctx, sub.UserID, expirationNotice(sub, inv, e.InvoiceURL(inv.ID)))
	return nil
}

// renewalInvoice returns the unpaid invoice issued for the current
// expiration window, creating it when there is none.
func (e *Engine) renewalInvoice(ctx context.Context, sub *subscription.Subscription) (*invoice.Invoice, error) {
	existing, err := e.store.ListInvoices(ctx, invoice.ListOpts{
		SubscriptionID: sub.ID,
		Status:         invoice.StatusUnpaid,
		IssuedFrom:     sub.EndDate.Add(-e.config.ExpirationWindow),
		Limit:          1,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list renewal invoices: %w", ErrPersistence, err)
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	p, err := e.lookupProduct(sub.ProductKey)
	if err != nil {
		return nil, err
	}
	return e.CreateInvoice(ctx, sub.UserID, sub.ID, p)
}

// SetSubscriptionsToGracePeriod moves active subscriptions whose end date
// falls on the current day into grace_period and tells their owners.
// Changed counts the subscriptions it moved; running it twice on the same
// day moves nothing the second time. Per-row failures are logged and
// collected in the result; only a failed listing is returned as an error.
func (e *Engine) SetSubscriptionsToGracePeriod(ctx context.Context) (*BatchResult, error) {
	now := e.now()
	y, m, d := now.Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	subs, err := e.store.ListSubscriptions(ctx, subscription.ListOpts{
		Status:    subscription.StatusActive,
		EndFrom:   startOfDay,
		EndBefore: startOfDay.AddDate(0, 0, 1),
	})
	if err != nil {
		return &BatchResult{}, fmt.Errorf("%w: list ending subscriptions: %w", ErrPersistence, err)
	}

	var moved atomic.Int64
	res := fanOut(ctx, e.config.BatchConcurrency, subs, func(ctx context.Context, sub *subscription.Subscription) error {
		changed, err := e.store.SetSubscriptionStatus(ctx, sub.ID,
			subscription.StatusActive, subscription.StatusGracePeriod, now)
		if err != nil {
			e.logger.Error("grace period transition failed",
				"subscription_id", sub.ID.String(),
				"error", err,
			)
			return fmt.Errorf("subscription %s: %w", sub.ID, err)
		}
		if !changed {
			return nil
		}
		moved.Add(1)

		sub.Status = subscription.StatusGracePeriod
		e.logger.Info("subscription entered grace period",
			"subscription_id", sub.ID.String(),
			"end_date", sub.EndDate,
		)
		e.notify(ctx, sub.UserID, gracePeriodNotice(sub, sub.EndDate.Add(e.config.GracePeriod)))
		e.plugins.EmitSubscriptionGracePeriod(ctx, sub)
		return nil
	})

	res.Changed = int(moved.Load())
	return res, nil
}

// TerminateExpiredGracePeriods terminates subscriptions whose grace period
// has run out. It does nothing unless AutoTerminateAfterGrace is set.
// Failures follow the same rules as SetSubscriptionsToGracePeriod.
func (e *Engine) TerminateExpiredGracePeriods(ctx context.Context) (*BatchResult, error) {
	if !e.config.AutoTerminateAfterGrace {
		return &BatchResult{}, nil
	}

	now := e.now()
	subs, err := e.store.ListSubscriptions(ctx, subscription.ListOpts{
		Status:    subscription.StatusGracePeriod,
		EndBefore: now.Add(-e.config.GracePeriod),
	})
	if err != nil {
		return &BatchResult{}, fmt.Errorf("%w: list lapsed subscriptions: %w", ErrPersistence, err)
	}

	var terminated atomic.Int64
	res := fanOut(ctx, e.config.BatchConcurrency, subs, func(ctx context.Context, sub *subscription.Subscription) error {
		changed, err := e.store.SetSubscriptionStatus(ctx, sub.ID,
			subscription.StatusGracePeriod, subscription.StatusTerminated, now)
		if err != nil {
			e.logger.Error("grace period termination failed",
				"subscription_id", sub.ID.String(),
				"error", err,
			)
			return fmt.Errorf("subscription %s: %w", sub.ID, err)
		}
		if !changed {
			return nil
		}
		terminated.Add(1)

		sub.Status = subscription.StatusTerminated
		e.logger.Info("subscription terminated after grace period", "subscription_id", sub.ID.String())
		e.notify(ctx, sub.UserID, terminationNotice(sub))
		e.plugins.EmitSubscriptionTerminated(ctx, sub)
		return nil
	})

	res.Changed = int(terminated.Load())
	return res, nil
}
