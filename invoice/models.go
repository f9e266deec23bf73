package invoice

import (
	"time"

	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/types"
)

type Status string

const (
	StatusUnpaid Status = "unpaid"
	StatusPaid   Status = "paid"
)

// Invoice is a request for payment against a subscription. Its ID doubles
// as the public guid embedded in invoice links.
type Invoice struct {
	types.Entity
	ID             id.InvoiceID      `json:"id"`
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	IssueDate      time.Time         `json:"issue_date"`
	DueDate        time.Time         `json:"due_date"`
	TotalAmountDue types.Money       `json:"total_amount_due"`
	AmountPaid     types.Money       `json:"amount_paid"`
	PaymentAddress string            `json:"payment_address"`
	Status         Status            `json:"status"`
	PaidAt         *time.Time        `json:"paid_at,omitempty"`
}

// IsPaid reports whether the invoice has been settled.
func (i *Invoice) IsPaid() bool { return i.Status == StatusPaid }

// IsSettled reports whether the amount paid covers the amount due.
func (i *Invoice) IsSettled() bool { return i.AmountPaid.Covers(i.TotalAmountDue) }

// Outstanding returns the amount still owed, or zero once settled.
func (i *Invoice) Outstanding() types.Money {
	if i.IsSettled() {
		return types.Zero(i.TotalAmountDue.Currency)
	}
	return i.TotalAmountDue.Subtract(i.AmountPaid)
}
