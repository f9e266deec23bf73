// Package chain defines the blockchain gateway consumed by the payment
// reconciler, plus the transaction shapes it returns.
package chain

import (
	"context"

	"github.com/xraph/xchpay/types"
)

// Transaction is an incoming transfer to a payment address. ID is the
// on-chain coin name and is unique per address.
type Transaction struct {
	ID                string      `json:"id"`
	Amount            types.Money `json:"amount"`
	Fee               types.Money `json:"fee"`
	Confirmed         bool        `json:"confirmed"`
	ConfirmedAtHeight uint64      `json:"confirmed_at_height"`
}

// TransactionList is the result of listing an address. An empty list is a
// valid answer; a nil *TransactionList means the node could not answer.
type TransactionList struct {
	Address      string        `json:"address"`
	Transactions []Transaction `json:"transactions"`
}

// Confirmed returns only the confirmed transactions, in order.
func (l *TransactionList) Confirmed() []Transaction {
	if l == nil {
		return nil
	}
	out := make([]Transaction, 0, len(l.Transactions))
	for _, tx := range l.Transactions {
		if tx.Confirmed {
			out = append(out, tx)
		}
	}
	return out
}

// Gateway talks to a wallet or full node.
type Gateway interface {
	// ResolveNewAddress returns a fresh receiving address.
	ResolveNewAddress(ctx context.Context) (string, error)
	// ListTransactions returns every transaction sent to address.
	ListTransactions(ctx context.Context, address string) (*TransactionList, error)
}
