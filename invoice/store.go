package invoice

import (
	"context"
	"time"

	"github.com/xraph/xchpay/id"
)

type Store interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, invID id.InvoiceID) (*Invoice, error)
	List(ctx context.Context, opts ListOpts) ([]*Invoice, error)
	// SyncAmountPaid sets the invoice's amount paid to the sum of its
	// recorded payments in a single write and returns the updated invoice.
	SyncAmountPaid(ctx context.Context, invID id.InvoiceID) (*Invoice, error)
	// MarkPaid flips an unpaid invoice to paid. It fails with the
	// invoice-paid error when the invoice was already settled.
	MarkPaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time) error
}

// ListOpts filters invoice listings. Zero values are ignored.
type ListOpts struct {
	SubscriptionID id.SubscriptionID
	Status         Status
	IssuedFrom     time.Time
	Limit          int
	Offset         int
}
