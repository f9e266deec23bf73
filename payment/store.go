package payment

import (
	"context"

	"github.com/xraph/xchpay/id"
)

type Store interface {
	// RecordBatch inserts payments, silently skipping any whose
	// (invoice, coin) pair is already stored. It returns only the payments
	// inserted by this call.
	RecordBatch(ctx context.Context, payments []*Payment) ([]*Payment, error)
	List(ctx context.Context, invID id.InvoiceID, opts ListOpts) ([]*Payment, error)
}

type ListOpts struct {
	Limit  int
	Offset int
}
