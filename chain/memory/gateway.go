// Package memory provides an in-process chain.Gateway for tests and local
// development. Addresses are generated sequentially and transactions are
// injected with Deposit and Confirm.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xraph/xchpay/chain"
	"github.com/xraph/xchpay/types"
)

// ErrUnavailable is returned while the gateway is marked offline.
var ErrUnavailable = errors.New("chain/memory: node unavailable")

type Gateway struct {
	mu      sync.Mutex
	prefix  string
	next    int
	height  uint64
	offline bool
	addrErr error
	txs     map[string][]chain.Transaction
	lists   map[string]int
}

var _ chain.Gateway = (*Gateway)(nil)

// New returns a gateway issuing addresses of the form "<prefix>1qN".
func New(prefix string) *Gateway {
	if prefix == "" {
		prefix = "txch"
	}
	return &Gateway{
		prefix: prefix,
		txs:    make(map[string][]chain.Transaction),
		lists:  make(map[string]int),
	}
}

func (g *Gateway) ResolveNewAddress(_ context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.offline {
		return "", ErrUnavailable
	}
	if g.addrErr != nil {
		return "", g.addrErr
	}
	g.next++
	return fmt.Sprintf("%s1q%d", g.prefix, g.next), nil
}

func (g *Gateway) ListTransactions(_ context.Context, address string) (*chain.TransactionList, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.offline {
		return nil, ErrUnavailable
	}
	g.lists[address]++
	txs := make([]chain.Transaction, len(g.txs[address]))
	copy(txs, g.txs[address])
	return &chain.TransactionList{Address: address, Transactions: txs}, nil
}

// Deposit adds a transaction to address. Confirmed deposits are stamped
// with the next block height.
func (g *Gateway) Deposit(address, coinName string, amount types.Money, confirmed bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tx := chain.Transaction{
		ID:        coinName,
		Amount:    amount,
		Fee:       types.Zero(amount.Currency),
		Confirmed: confirmed,
	}
	if confirmed {
		g.height++
		tx.ConfirmedAtHeight = g.height
	}
	g.txs[address] = append(g.txs[address], tx)
}

// Confirm marks a pending deposit as confirmed. It reports whether the
// coin was found.
func (g *Gateway) Confirm(address, coinName string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range g.txs[address] {
		tx := &g.txs[address][i]
		if tx.ID == coinName && !tx.Confirmed {
			g.height++
			tx.Confirmed = true
			tx.ConfirmedAtHeight = g.height
			return true
		}
	}
	return false
}

// SetOffline makes every call fail with ErrUnavailable until reset.
func (g *Gateway) SetOffline(offline bool) {
	g.mu.Lock()
	g.offline = offline
	g.mu.Unlock()
}

// FailAddresses makes ResolveNewAddress return err; nil restores it.
func (g *Gateway) FailAddresses(err error) {
	g.mu.Lock()
	g.addrErr = err
	g.mu.Unlock()
}

// ListCalls returns how many times address was listed.
func (g *Gateway) ListCalls(address string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lists[address]
}
