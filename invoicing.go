package xchpay

import (
	"context"
	"fmt"

	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/invoice"
	"github.com/xraph/xchpay/product"
	"github.com/xraph/xchpay/types"
)

// invoiceTermYears is how long an invoice stays payable after issue.
const invoiceTermYears = 1

// CreateInvoice issues an invoice for p against a subscription, backed by a
// fresh payment address, and notifies the user. Notification failures are
// logged and do not undo the invoice.
func (e *Engine) CreateInvoice(ctx context.Context, userID string, subID id.SubscriptionID, p *product.Product) (*invoice.Invoice, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil product", ErrInvalidInput)
	}
	if err := e.requireGateway(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAddressUnavailable, err)
	}

	addr, err := e.gateway.ResolveNewAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAddressUnavailable, err)
	}
	if addr == "" {
		return nil, fmt.Errorf("%w: gateway returned an empty address", ErrAddressUnavailable)
	}

	now := e.now()
	inv := &invoice.Invoice{
		Entity:         types.NewEntityAt(now),
		ID:             id.NewInvoiceID(),
		SubscriptionID: subID,
		IssueDate:      now,
		DueDate:        now.AddDate(invoiceTermYears, 0, 0),
		TotalAmountDue: p.Cost,
		AmountPaid:     types.Zero(p.Cost.Currency),
		PaymentAddress: addr,
		Status:         invoice.StatusUnpaid,
	}

	if err := e.store.CreateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("%w: create invoice: %w", ErrPersistence, err)
	}

	e.logger.Info("invoice created",
		"invoice_id", inv.ID.String(),
		"subscription_id", subID.String(),
		"amount_due", inv.TotalAmountDue.String(),
		"address", addr,
	)

	e.notify(ctx, userID, invoiceNotice(inv, p.Name, e.InvoiceURL(inv.ID)))
	e.plugins.EmitInvoiceCreated(ctx, inv)

	return inv, nil
}
