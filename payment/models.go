package payment

import (
	"time"

	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/types"
)

// Payment is a confirmed on-chain transaction credited to an invoice.
// (InvoiceID, CoinName) is unique; payments are never updated or removed.
type Payment struct {
	InvoiceID         id.InvoiceID `json:"invoice_id"`
	CoinName          string       `json:"coin_name"`
	Amount            types.Money  `json:"amount"`
	Fee               types.Money  `json:"fee"`
	ConfirmedAtHeight uint64       `json:"confirmed_at_height"`
	CreatedAt         time.Time    `json:"created_at"`
}

// Key returns the idempotency key of the payment.
func (p *Payment) Key() string {
	return p.InvoiceID.String() + "/" + p.CoinName
}

// Total sums the amounts of ps in the given currency.
func Total(currency string, ps []*Payment) types.Money {
	total := types.Zero(currency)
	for _, p := range ps {
		total = total.Add(p.Amount)
	}
	return total
}
